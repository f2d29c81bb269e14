// Package panics provides goroutine wrappers that recover and log panics
// instead of letting a background worker die silently. It backs the
// ChainDriver worker goroutine: a panic there must be logged loudly
// before the process goes down, not swallowed.
package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/btcsuite/btclog"
)

const logDeadline = 5 * time.Second

// logFatal writes the recovered value and both stack traces to log,
// giving up after logDeadline if the logger itself is wedged.
func logFatal(log btclog.Logger, recovered interface{}, originStack []byte) {
	wrote := make(chan struct{})
	go func() {
		defer close(wrote)
		log.Criticalf("Fatal error: %+v", recovered)
		if originStack != nil {
			log.Criticalf("Goroutine stack trace: %s", originStack)
		}
		log.Criticalf("Stack trace: %s", debug.Stack())
	}()

	select {
	case <-wrote:
	case <-time.After(logDeadline):
		fmt.Fprintln(os.Stderr, "timed out writing a fatal-error log entry")
	}
}

// HandlePanic must be deferred directly in a goroutine that should crash
// the process loudly, rather than vanish silently, on panic. originStack
// is the stack trace captured at the point the goroutine was launched,
// so the log shows both where the goroutine started and where it died.
func HandlePanic(log btclog.Logger, originStack []byte) {
	recovered := recover()
	if recovered == nil {
		return
	}
	logFatal(log, recovered, originStack)
	os.Exit(1)
}

// GoroutineWrapperFunc returns a launcher that runs f on a new goroutine
// guarded by HandlePanic. The caller's stack is captured before the
// goroutine starts so a panic can still be reported against its origin.
func GoroutineWrapperFunc(log btclog.Logger) func(f func()) {
	return func(f func()) {
		originStack := debug.Stack()
		go func() {
			defer HandlePanic(log, originStack)
			f()
		}()
	}
}
