// Package logger maintains the set of per-subsystem loggers used across the
// parser. It mirrors the subsystem-tag registry the rest of the pack keeps,
// just scoped to the subsystems this module actually has.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// logWriter tees every log line to stdout and, once InitLogRotator has
// run, to the rotating log file as well.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var logRotator *rotator.Rotator

// InitLogRotator points the backend at a rotating log file in logDir,
// rolling it once it exceeds 10MiB and keeping 3 old versions. It must
// be called before any subsystem logger is used if file output is
// wanted; until then, logging goes to stdout only.
func InitLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create log rotator: %w", err)
	}
	logRotator = r
	return nil
}

// SubsystemTags enumerates the subsystem identifiers recognized by SetLogLevel.
var SubsystemTags = struct {
	CHST, // chainstate
	PARS, // blockparser
	DRVR, // chaindriver
	SRC, // chainsource
	BSQD string // cmd/bsqparserd
}{
	CHST: "CHST",
	PARS: "PARS",
	DRVR: "DRVR",
	SRC:  "SRC",
	BSQD: "BSQD",
}

var (
	backendLog = btclog.NewBackend(logWriter{})

	chstLog = backendLog.Logger(SubsystemTags.CHST)
	parsLog = backendLog.Logger(SubsystemTags.PARS)
	drvrLog = backendLog.Logger(SubsystemTags.DRVR)
	srcLog  = backendLog.Logger(SubsystemTags.SRC)
	bsqdLog = backendLog.Logger(SubsystemTags.BSQD)

	subsystemLoggers = map[string]btclog.Logger{
		SubsystemTags.CHST: chstLog,
		SubsystemTags.PARS: parsLog,
		SubsystemTags.DRVR: drvrLog,
		SubsystemTags.SRC:  srcLog,
		SubsystemTags.BSQD: bsqdLog,
	}
)

// Get returns the logger registered for tag, and whether it exists.
func Get(tag string) (logger btclog.Logger, ok bool) {
	logger, ok = subsystemLoggers[tag]
	return
}

// SetLogLevel sets the logging level for the given subsystem. Unknown
// subsystems are ignored.
func SetLogLevel(subsystemID string, level string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		lvl = btclog.LevelInfo
	}
	logger.SetLevel(lvl)
}

// SetLogLevels sets the level of every registered subsystem logger.
func SetLogLevels(level string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, level)
	}
}

// SupportedSubsystems returns the sorted list of subsystem tags.
func SupportedSubsystems() []string {
	tags := make([]string, 0, len(subsystemLoggers))
	for tag := range subsystemLoggers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ParseAndSetDebugLevels parses a debug-level spec of the form
// "level" or "subsys=level,subsys=level,..." and applies it.
func ParseAndSetDebugLevels(spec string) error {
	if !strings.Contains(spec, ",") && !strings.Contains(spec, "=") {
		SetLogLevels(spec)
		return nil
	}
	for _, pair := range strings.Split(spec, ",") {
		fields := strings.SplitN(pair, "=", 2)
		if len(fields) != 2 {
			return fmt.Errorf("invalid debug level pair %q", pair)
		}
		subsysID, level := fields[0], fields[1]
		if _, ok := Get(subsysID); !ok {
			return fmt.Errorf("unknown subsystem %q -- supported subsystems %s",
				subsysID, strings.Join(SupportedSubsystems(), ", "))
		}
		SetLogLevel(subsysID, level)
	}
	return nil
}
