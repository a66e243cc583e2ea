// Command spiralctl is a standalone command-line evaluator for SPIRAL
// documents: no server, no network, just a file in and a value out.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/hybscloud/spiral/pkg/canon"
	"github.com/hybscloud/spiral/pkg/config"
	"github.com/hybscloud/spiral/pkg/efflog"
	"github.com/hybscloud/spiral/pkg/env"
	"github.com/hybscloud/spiral/pkg/ir"
	"github.com/hybscloud/spiral/pkg/logging"
	"github.com/hybscloud/spiral/pkg/orchestrator"
	"github.com/hybscloud/spiral/pkg/registry"
	"github.com/hybscloud/spiral/pkg/registry/exprops"
	"github.com/hybscloud/spiral/pkg/scheduler"
	"github.com/hybscloud/spiral/pkg/stepbudget"
	"github.com/hybscloud/spiral/pkg/value"
)

const usage = `spiralctl - evaluate SPIRAL intermediate-representation documents

USAGE:
    spiralctl <command> [options]

COMMANDS:
    eval    Evaluate a document and print its result
    digest  Print a document's canonical content digest
    version Show version information
    help    Show this help message

EVAL OPTIONS:
    -file <path>          Document to evaluate (required)
    -max-steps <n>        Step budget (default: config/env SPIRAL_MAX_STEPS)
    -concurrency <mode>   sequential, parallel, or speculative task scheduling
    -trace                Print the ordered effect log after evaluation

DIGEST OPTIONS:
    -file <path>          Document to digest (required)

ENVIRONMENT VARIABLES:
    SPIRAL_MAX_STEPS          Default step budget
    SPIRAL_MAX_PARALLELISM    Default task pool size
    SPIRAL_LOG_LEVEL, SPIRAL_LOG_FORMAT  Logging configuration
`

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	godotenv.Load()

	switch os.Args[1] {
	case "eval":
		runEval(os.Args[2:])
	case "digest":
		runDigest(os.Args[2:])
	case "version":
		fmt.Printf("spiralctl v%s\n", version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func loadDocument(path string) (*ir.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := ir.DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func runDigest(args []string) {
	fs := flag.NewFlagSet("digest", flag.ExitOnError)
	file := fs.String("file", "", "Document to digest")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: digest requires -file")
		os.Exit(1)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid JSON: %v\n", err)
		os.Exit(1)
	}
	if m, ok := parsed.(map[string]any); ok {
		parsed = canon.StripUnknownTopLevel(m, map[string]bool{
			"version": true, "capabilities": true, "functionSigs": true,
			"airDefs": true, "nodes": true, "result": true,
		})
	}
	digest, err := canon.Digest(parsed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(digest)
}

func runEval(args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading configuration: %v\n", err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	file := fs.String("file", "", "Document to evaluate")
	maxSteps := fs.Int64("max-steps", cfg.Eval.MaxSteps, "Step budget")
	concurrency := fs.String("concurrency", cfg.Eval.Concurrency, "sequential, parallel, or speculative")
	trace := fs.Bool("trace", cfg.Eval.Trace, "Print the ordered effect log after evaluation")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: eval requires -file")
		os.Exit(1)
	}
	if *concurrency != "sequential" && *concurrency != "parallel" && *concurrency != "speculative" {
		fmt.Fprintf(os.Stderr, "Error: invalid -concurrency %q\n", *concurrency)
		os.Exit(1)
	}

	logging.SetDefault(logging.New(cfg.Logging))

	doc, err := loadDocument(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	reg := registry.New()
	exprops.RegisterDefaults(reg)

	budget := stepbudget.New(*maxSteps)
	effects := efflog.New()
	maxInFlight := cfg.Scheduler.MaxParallelism
	if *concurrency == "sequential" {
		maxInFlight = 1
	}
	sched := scheduler.New(budget, maxInFlight)

	orch := orchestrator.New(doc, reg, env.NewCellStore(), budget, effects, sched)

	v, err := orch.Execute(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printResult(v)

	if *trace {
		printTrace(effects)
	}
}

func printResult(v value.Value) {
	rendered, err := value.ToAny(v)
	if err != nil {
		fmt.Printf("<%s value not representable as JSON: %v>\n", v.Kind(), err)
		return
	}
	out, err := json.MarshalIndent(rendered, "", "  ")
	if err != nil {
		fmt.Printf("<marshal error: %v>\n", err)
		return
	}
	fmt.Println(string(out))
}

func printTrace(effects *efflog.Log) {
	fmt.Fprintln(os.Stderr, "--- effect log ---")
	for _, e := range effects.Ordered() {
		fmt.Fprintf(os.Stderr, "[%d] task=%s op=%s\n", e.SeqNum, e.TaskID, e.Op)
	}
}
