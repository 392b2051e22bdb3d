// Package dedup implements the driver that ties the block stream, the
// sharded set and the string store together: it spawns one worker per
// logical CPU, has each pull blocks and feed records into the set, joins
// the workers, and then streams the final dump to the output path.
package dedup

import (
	"bytes"
	"context"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"pwdedup/internal/blockstream"
	"pwdedup/internal/clock"
	"pwdedup/internal/errs"
	"pwdedup/internal/metrics"
	"pwdedup/internal/shardset"
	"pwdedup/internal/strstore"
)

// maxWorkers bounds the worker count regardless of how many logical CPUs
// runtime.NumCPU reports, per the reference design.
const maxWorkers = 256

// defaultSizeHintPages is the default block-stream size_hint, expressed as
// a multiple of the OS page size: 512 pages, matching the reference.
const defaultSizeHintPages = 512

// ProgressFunc is invoked periodically from a single worker's sampling
// point with the running totals; it must not block for long, since it
// briefly delays that worker's next block.
type ProgressFunc func(seen, distinct int64, elapsed float64)

// Options configures a Run.
type Options struct {
	// TempDir is the directory the string store uses for its slab files.
	TempDir string
	// SizeHint is the block-stream size_hint in bytes; it must be a
	// multiple of the page size. Zero selects the default.
	SizeHint int64
	// Workers overrides the worker count; zero selects
	// min(runtime.NumCPU(), maxWorkers).
	Workers int
	// Progress, if non-nil, is called periodically with running totals.
	Progress ProgressFunc
}

// Result reports the outcome of a completed Run.
type Result struct {
	RecordsSeen int64
	Distinct    int64
	Duplicates  int64
	ElapsedSec  float64
}

// Run deduplicates every record across inputs and writes the distinct set,
// one record per line, to outputPath. Any error from a worker, the block
// stream, or the store is fatal and aborts the remaining work.
func Run(ctx context.Context, inputs []string, outputPath string, opts Options) (Result, error) {
	start := clock.Now()

	sizeHint := opts.SizeHint
	if sizeHint == 0 {
		sizeHint = int64(defaultSizeHintPages) * pageSize()
	}

	store, err := strstore.Init(opts.TempDir)
	if err != nil {
		return Result{}, err
	}
	defer store.Deinit()

	set := shardset.New(store)

	iter, err := blockstream.New(inputs, sizeHint)
	if err != nil {
		return Result{}, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	var seen atomicCounter
	progressTick := newTicker(opts.Progress, 250*time.Millisecond)

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				block, err := iter.Next()
				if err != nil {
					return err
				}
				if block == nil {
					return nil
				}

				n, err := consumeBlock(block, set)
				unmapErr := block.Unmap()
				if err != nil {
					return err
				}
				if unmapErr != nil {
					return errs.New(errs.MapFailed, "dedup.Run", unmapErr)
				}

				total := seen.Add(n)
				progressTick.maybeReport(total, set.Count(), clock.Elapsed(start))
			}
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return Result{}, errs.New(errs.OpenFailed, "dedup.Run", err)
	}
	defer out.Close()
	if err := store.Dump(out); err != nil {
		return Result{}, err
	}
	if err := out.Sync(); err != nil {
		return Result{}, errs.New(errs.OpenFailed, "dedup.Run", err)
	}

	elapsed := clock.Elapsed(start)
	distinct := set.Count()
	totalSeen := seen.Load()

	metrics.IncCounter("pwdedup_records_total", float64(totalSeen), nil)
	metrics.IncCounter("pwdedup_distinct_total", float64(distinct), nil)
	metrics.IncCounter("pwdedup_duplicates_total", float64(totalSeen-distinct), nil)
	metrics.ObserveHistogram("pwdedup_run_duration_seconds", elapsed, nil)

	return Result{
		RecordsSeen: totalSeen,
		Distinct:    distinct,
		Duplicates:  totalSeen - distinct,
		ElapsedSec:  elapsed,
	}, nil
}

// consumeBlock tokenizes a block's text by newline, discards empty tokens,
// and feeds each non-empty token to set.Add. It returns the number of
// non-empty records seen in this block.
func consumeBlock(block *blockstream.Block, set *shardset.Set) (int64, error) {
	var n int64
	text := block.Text
	for len(text) > 0 {
		i := bytes.IndexByte(text, '\n')
		var line []byte
		if i < 0 {
			line = text
			text = nil
		} else {
			line = text[:i]
			text = text[i+1:]
		}
		if len(line) == 0 {
			continue
		}
		n++
		if _, err := set.Add(line); err != nil {
			return n, err
		}
	}
	return n, nil
}
