// Package chainerrors defines the error kinds surfaced by chainstate,
// blockparser, and chaindriver, following a typed ruleError idiom:
// a small typed error carrying a code, rather than ad hoc sentinel values.
package chainerrors

import "fmt"

// Code identifies the kind of failure a ChainError represents.
type Code int

const (
	// CodeSourceUnavailable wraps a BlockSource transport failure.
	CodeSourceUnavailable Code = iota
	// CodeOrphanDetected means the incoming block's previous_hash does
	// not match the current chain tip.
	CodeOrphanDetected
	// CodeGenesisConflict means a second, distinct genesis tx was observed.
	CodeGenesisConflict
	// CodeInvariantViolation means a parser-internal invariant failed
	// (fixed-point cap exceeded, intra-block dependency cycle, a record
	// re-added with a different payload, ...).
	CodeInvariantViolation
	// CodeChainLinkage means AppendBlock's linkage precondition no longer
	// held at commit time.
	CodeChainLinkage
)

func (c Code) String() string {
	switch c {
	case CodeSourceUnavailable:
		return "SourceUnavailable"
	case CodeOrphanDetected:
		return "OrphanDetected"
	case CodeGenesisConflict:
		return "GenesisConflict"
	case CodeInvariantViolation:
		return "InvariantViolation"
	case CodeChainLinkage:
		return "ChainLinkage"
	default:
		return "Unknown"
	}
}

// ChainError is the error type chainstate, blockparser, chainsource and
// chaindriver return for chain failures; chaindriver also returns the
// context's own error when the caller's context ends first. Height is set
// when the failure is block-scoped; zero otherwise.
type ChainError struct {
	Code    Code
	Height  uint32
	Message string
	Cause   error
}

func (e *ChainError) Error() string {
	if e.Height != 0 {
		return fmt.Sprintf("%s at height %d: %s", e.Code, e.Height, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/errors.As chains.
func (e *ChainError) Unwrap() error {
	return e.Cause
}

// New builds a ChainError with no wrapped cause.
func New(code Code, height uint32, message string) *ChainError {
	return &ChainError{Code: code, Height: height, Message: message}
}

// Wrap builds a ChainError wrapping cause.
func Wrap(code Code, height uint32, message string, cause error) *ChainError {
	return &ChainError{Code: code, Height: height, Message: message, Cause: cause}
}

// Is reports whether err is a *ChainError with the given code, so callers
// can branch with errors.Is(err, chainerrors.New(chainerrors.CodeOrphanDetected, 0, ""))
// style sentinels built from New(code, 0, "").
func (e *ChainError) Is(target error) bool {
	t, ok := target.(*ChainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
