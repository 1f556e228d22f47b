package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/artagnon/minotaur"
	"github.com/artagnon/minotaur/ssa"
	"github.com/artagnon/minotaur/z3"
)

// OptCommand superoptimizes every function of a textual module.
type OptCommand struct{}

// NewOptCommand returns a new instance of OptCommand.
func NewOptCommand() *OptCommand {
	return &OptCommand{}
}

// Run executes the command.
func (c *OptCommand) Run(ctx context.Context, args []string) error {
	cfg := minotaur.DefaultConfig()

	fs := flag.NewFlagSet("minotaur-opt", flag.ContinueOnError)
	smtTo := fs.Uint("smt-to", uint(cfg.SMTTimeout/time.Second), "timeout for SMT queries (s)")
	sliceTo := fs.Uint("slice-to", uint(cfg.SliceTimeout/time.Second), "timeout per slice (s)")
	enableCaching := fs.Bool("enable-caching", false, "enable result caching")
	ignoreMachineCost := fs.Bool("ignore-machine-cost", false, "ignore the machine cost model")
	noInfer := fs.Bool("no-infer", false, "do not run the synthesizer")
	noSlice := fs.Bool("no-slice", false, "do not run the slicer")
	forceInfer := fs.Bool("force-infer", false, "force inference even if the cache hits")
	reportDir := fs.String("report-dir", "", "save reports to this directory")
	redisPort := fs.Uint("redis-port", 6379, "redis port number")
	debugEnum := fs.Bool("debug-enumerator", cfg.DebugEnumerator, "enumerator debug output")
	debugSlicer := fs.Bool("debug-slicer", cfg.DebugSlicer, "slicer debug output")
	debugVerifier := fs.Bool("debug-verifier", cfg.DebugVerifier, "verifier debug output")
	debugCodegen := fs.Bool("debug-codegen", cfg.DebugCodegen, "codegen debug output")
	debugParser := fs.Bool("debug-parser", cfg.DebugParser, "parser debug output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: minotaur opt [flags] <module file>")
	}

	cfg.SMTTimeout = time.Duration(*smtTo) * time.Second
	cfg.SliceTimeout = time.Duration(*sliceTo) * time.Second
	cfg.EnableCaching = *enableCaching
	cfg.IgnoreMachineCost = *ignoreMachineCost
	cfg.NoSlice = *noSlice
	cfg.ReportDir = *reportDir
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "redis-port" {
			cfg.RedisAddr = fmt.Sprintf("127.0.0.1:%d", *redisPort)
		}
	})
	cfg.DebugEnumerator = *debugEnum
	cfg.DebugSlicer = *debugSlicer
	cfg.DebugVerifier = *debugVerifier
	cfg.DebugCodegen = *debugCodegen
	cfg.DebugParser = *debugParser
	switch {
	case *noInfer:
		cfg.CacheMode = minotaur.CacheNoInfer
	case *forceInfer:
		cfg.CacheMode = minotaur.CacheForceInfer
	}

	src, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	mod, err := ssa.ParseModule(string(src))
	if err != nil {
		return err
	}

	solver := z3.NewSolver()
	solver.Timeout = cfg.SMTTimeout
	opt := minotaur.NewOptimizer(cfg, solver)
	defer opt.Close()

	changed := false
	for _, f := range mod.Funcs {
		if f.Decl {
			continue
		}
		c, err := opt.OptimizeFunction(ctx, f)
		if err != nil {
			return err
		}
		changed = changed || c
	}

	if changed {
		fmt.Fprintln(os.Stderr, "minotaur: changed the program")
	} else {
		fmt.Fprintln(os.Stderr, "minotaur: no change to the program")
	}
	fmt.Print(mod)
	return nil
}
