// Command pw-dedup deduplicates line-delimited records across one or more
// large input files and writes a single output file containing one copy
// of each distinct line.
//
// Usage:
//
//	pw-dedup [flags] <output-path> <input-path>...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sys/unix"

	"pwdedup/internal/dedup"
	"pwdedup/internal/errs"
	"pwdedup/internal/metrics"
	"pwdedup/internal/metrics/ddstatsd"
	"pwdedup/internal/metrics/prompush"
	"pwdedup/internal/progress"
	"pwdedup/internal/runsummary"
	rsmssql "pwdedup/internal/runsummary/mssql"
	rspostgres "pwdedup/internal/runsummary/postgres"
	rssqlite "pwdedup/internal/runsummary/sqlite"
	"pwdedup/internal/strstore"
)

const defaultTempDir = "./.pw-dedup-temp/"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("pw-dedup", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: pw-dedup [flags] <output-path> <input-path>...")
		fs.PrintDefaults()
	}

	tempDir := fs.String("tmp-dir", defaultTempDir, "directory for the string store's slab files")
	sizeHint := fs.Int64("size-hint", 0, "block-stream size_hint in bytes (must be a multiple of the page size; 0 selects the default)")
	slabBytes := fs.Int64("slab-bytes", 0, "string store slab size in bytes (must be a multiple of the page size; 0 keeps the default)")
	workers := fs.Int("workers", 0, "number of parallel workers (0 selects one per logical CPU, bounded to 256)")

	metricsKind := fs.String("metrics", "none", `metrics backend: "prometheus", "datadog", or "none"`)
	metricsAddr := fs.String("metrics-addr", "", "address/URL for the metrics backend (Pushgateway URL or DogStatsD address)")

	summaryKind := fs.String("summary", "none", `run-summary backend: "sqlite", "postgres", "mssql", or "none"`)
	summaryDSN := fs.String("summary-dsn", "", "DSN for the run-summary backend")

	if err := fs.Parse(args); err != nil {
		return exitCodeFor(errs.Usage)
	}

	if fs.NArg() < 2 {
		fs.Usage()
		return exitCodeFor(errs.Usage)
	}
	outputPath := fs.Arg(0)
	inputs := fs.Args()[1:]

	if *slabBytes != 0 {
		if *slabBytes%int64(unix.Getpagesize()) != 0 {
			fmt.Fprintf(stderr, "pw-dedup: -slab-bytes must be a multiple of the page size (%d)\n", unix.Getpagesize())
			return exitCodeFor(errs.Usage)
		}
		strstore.SlabBytes = *slabBytes
	}

	ctx := context.Background()

	closeMetrics, err := setupMetrics(*metricsKind, *metricsAddr)
	if err != nil {
		fmt.Fprintf(stderr, "pw-dedup: metrics setup: %v\n", err)
		return 1
	}
	defer closeMetrics()

	reporter := progress.New(stderr, 500*time.Millisecond)
	fmt.Fprintf(stderr, "pw-dedup: %d logical CPUs, %d physical cores detected\n", cpuid.CPU.LogicalCores, cpuid.CPU.PhysicalCores)

	result, err := dedup.Run(ctx, inputs, outputPath, dedup.Options{
		TempDir:  *tempDir,
		SizeHint: *sizeHint,
		Workers:  *workers,
		Progress: reporter.Report,
	})
	if err != nil {
		fmt.Fprintf(stderr, "pw-dedup: %v\n", err)
		return exitCodeFor(errs.KindOf(err))
	}
	reporter.Final(result.RecordsSeen, result.Distinct, result.ElapsedSec)

	if err := saveSummary(ctx, *summaryKind, *summaryDSN, inputs, outputPath, *workers, *sizeHint, result); err != nil {
		fmt.Fprintf(stderr, "pw-dedup: run summary not saved: %v\n", err)
	}

	return 0
}

func exitCodeFor(kind errs.Kind) int {
	if kind == errs.Usage {
		return 2
	}
	return 1
}

func setupMetrics(kind, addr string) (func(), error) {
	switch kind {
	case "", "none":
		return func() {}, nil
	case "prometheus":
		backend, err := prompush.NewBackend("pwdedup", addr)
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(backend)
		return func() { _ = metrics.Flush() }, nil
	case "datadog":
		backend, err := ddstatsd.NewBackend(ddstatsd.Config{Addr: addr, Namespace: "pwdedup."})
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(backend)
		return func() { _ = metrics.Flush() }, nil
	default:
		return nil, fmt.Errorf("unknown -metrics=%q", kind)
	}
}

func saveSummary(ctx context.Context, kind, dsn string, inputs []string, outputPath string, workers int, sizeHint int64, result dedup.Result) error {
	if kind == "" || kind == "none" {
		return nil
	}
	if dsn == "" {
		return fmt.Errorf("-summary=%s requires -summary-dsn", kind)
	}

	var repo runsummary.Repository
	var closeFn func()
	var err error

	switch kind {
	case "sqlite":
		repo, closeFn, err = rssqlite.Open(ctx, dsn)
	case "postgres":
		repo, closeFn, err = rspostgres.Open(ctx, dsn)
	case "mssql":
		repo, closeFn, err = rsmssql.Open(ctx, dsn)
	default:
		return fmt.Errorf("unknown -summary=%q", kind)
	}
	if err != nil {
		return err
	}
	defer closeFn()

	s := runsummary.NewSummary()
	s.Inputs = inputs
	s.OutputPath = outputPath
	s.SlabBytes = strstore.SlabBytes
	s.SizeHint = sizeHint
	s.Workers = workers
	s.Distinct = result.Distinct
	s.Duplicates = result.Duplicates
	s.ElapsedSec = result.ElapsedSec

	return repo.Save(ctx, s)
}
