package minotaur

import (
	"errors"
	"fmt"
)

var (
	// Solver-level errors, surfaced by Solver implementations.
	ErrSolverTimeout       = errors.New("solver timeout")
	ErrSolverCanceled      = errors.New("solver canceled")
	ErrSolverResourceLimit = errors.New("solver resource limit")
	ErrSolverUnknown       = errors.New("solver unknown error")

	// Verifier-level errors.
	ErrCounterExample = errors.New("counterexample found")
	ErrSlowVCGen      = errors.New("slow vcgen")
	ErrTypeMismatch   = errors.New("transformation does not type check")

	// Cache-level errors.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
