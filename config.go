package minotaur

import (
	"time"

	"github.com/xyproto/env/v2"
)

// Config holds the knobs for a synthesis run. The zero value is not
// useful; construct with DefaultConfig and adjust.
type Config struct {
	// Per-query SMT timeout.
	SMTTimeout time.Duration

	// Wall-clock budget for a single slice.
	SliceTimeout time.Duration

	// Return as soon as one verified, cost-improving rewrite is found.
	ReturnFirstSolution bool

	// Skip the machine-cost gate; accept any verified rewrite that
	// improves approximate cost.
	IgnoreMachineCost bool

	// Exclude 512-bit intrinsics from enumeration.
	DisableAVX512 bool

	// Skip the slicer and optimize the return value of single-return
	// functions directly.
	NoSlice bool

	// Directory for per-run reports; empty writes to stderr only.
	ReportDir string

	// Caching controls. See CacheMode for the three modes.
	EnableCaching bool
	CacheMode     CacheMode
	RedisAddr     string

	// Per-subsystem debug output.
	DebugSlicer     bool
	DebugEnumerator bool
	DebugVerifier   bool
	DebugCodegen    bool
	DebugParser     bool
}

// CacheMode selects how the result cache is consulted.
type CacheMode int

const (
	// CacheNormal reads the cache and writes on miss.
	CacheNormal CacheMode = iota

	// CacheForceInfer ignores reads and always runs the synthesizer,
	// writing the outcome back.
	CacheForceInfer

	// CacheNoInfer never runs the synthesizer; misses are recorded as
	// "<no-sol>".
	CacheNoInfer
)

// DefaultConfig returns the default configuration. Environment variables
// override the built-in defaults; flags are expected to override both.
func DefaultConfig() Config {
	return Config{
		SMTTimeout:          time.Duration(env.Int("MINOTAUR_SMT_TIMEOUT", 60)) * time.Second,
		SliceTimeout:        time.Duration(env.Int("MINOTAUR_SLICE_TIMEOUT", 300)) * time.Second,
		ReturnFirstSolution: true,
		RedisAddr:           env.Str("MINOTAUR_REDIS_ADDR", "127.0.0.1:6379"),
		DebugEnumerator:     env.Bool("MINOTAUR_DEBUG_ENUMERATOR"),
		DebugSlicer:         env.Bool("MINOTAUR_DEBUG_SLICER"),
		DebugVerifier:       env.Bool("MINOTAUR_DEBUG_VERIFIER"),
		DebugCodegen:        env.Bool("MINOTAUR_DEBUG_CODEGEN"),
		DebugParser:         env.Bool("MINOTAUR_DEBUG_PARSER"),
	}
}
