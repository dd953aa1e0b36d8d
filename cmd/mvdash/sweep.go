package main

import (
	"context"
	"os"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"mvdash/internal/catalog"
	"mvdash/internal/platform/config"
	"mvdash/internal/report"
)

// sweepRuns expands base into one run per algorithm and request mode.
// Simulation IDs count up from base.SimID so dumps do not collide.
func sweepRuns(base config.Run, algorithms, modes []string) []config.Run {
	runs := make([]config.Run, 0, len(algorithms)*len(modes))
	for _, alg := range algorithms {
		for _, mode := range modes {
			run := base
			run.SimID = base.SimID + len(runs)
			run.Algorithm = alg
			run.RequestMode = mode
			runs = append(runs, run)
		}
	}
	return runs
}

// sweep simulates runs on a pool of workers. Rows keep the order of runs;
// the first error is returned after every run finished.
func (e *env) sweep(ctx context.Context, runs []config.Run, cat *catalog.Catalog, workers int) ([]report.Summary, error) {
	if workers <= 0 {
		workers = 1
	}
	wp := workerpool.New(workers)

	results := make([][]report.Summary, len(runs))
	var (
		mu       sync.Mutex
		firstErr error
	)
	for i, run := range runs {
		i, run := i, run
		wp.Submit(func() {
			rows, err := e.simulate(ctx, run, cat)
			results[i] = rows
			if err != nil {
				e.log.Error("sweep run failed", "sim_id", run.SimID, "run", describe(run), "error", err)
				mu.Lock()
				if firstErr == nil {
					firstErr = errors.Wrap(err, describe(run))
				}
				mu.Unlock()
			}
		})
	}
	wp.StopWait()

	var rows []report.Summary
	for _, r := range results {
		rows = append(rows, r...)
	}
	return rows, firstErr
}

func sweepCommand(c *cli.Context) error {
	base, err := resolveRun(c)
	if err != nil {
		return err
	}
	e := newEnv(c)
	cat, err := loadCatalog(base)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(context.Background())
	defer stop()

	if addr := c.String("metrics-addr"); addr != "" {
		srv := e.startStatus(addr)
		defer e.shutdown(srv)
	}

	runs := sweepRuns(base, c.StringSlice("algorithms"), c.StringSlice("modes"))
	e.log.Info("sweep starting", "runs", len(runs), "workers", c.Int("workers"))
	rows, err := e.sweep(ctx, runs, cat, c.Int("workers"))
	report.WriteTable(os.Stdout, rows)
	return err
}
