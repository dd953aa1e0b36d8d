package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"mvdash/internal/abr"
	"mvdash/internal/catalog"
	"mvdash/internal/client"
	"mvdash/internal/platform/config"
	"mvdash/internal/platform/logger"
	"mvdash/internal/platform/metrics"
	"mvdash/internal/report"
	"mvdash/internal/session"
	"mvdash/internal/sim"
	"mvdash/internal/status"
)

// env is what every simulation of one invocation shares.
type env struct {
	log     *slog.Logger
	repo    *status.InMemoryRepository
	metrics *metrics.Metrics
	dump    bool
}

func newEnv(c *cli.Context) *env {
	return &env{
		log:     logger.New(c.String("log-level"), c.String("log-format")),
		repo:    status.NewInMemoryRepository(),
		metrics: metrics.New(),
		dump:    !c.Bool("no-dump"),
	}
}

// resolveRun layers the run file, then MVDASH_* variables and flags, over
// the defaults.
func resolveRun(c *cli.Context) (config.Run, error) {
	// a missing .env is fine
	_ = config.Load(c.String("env-file"))
	if err := applyEnv(c); err != nil {
		return config.Run{}, err
	}

	run := config.DefaultRun()
	if path := c.String("config"); path != "" {
		var err error
		if run, err = config.LoadFile(path, !c.Bool("disable-strict-config")); err != nil {
			return run, err
		}
	}

	if c.IsSet("sim-id") {
		run.SimID = c.Int("sim-id")
	}
	if c.IsSet("sim-time") {
		run.SimTime = c.Duration("sim-time")
	}
	if c.IsSet("clients") {
		run.Clients = c.Int("clients")
	}
	if c.IsSet("bandwidth") {
		run.Bandwidth = c.String("bandwidth")
	}
	if c.IsSet("bandwidth-trace") {
		run.BandwidthTrace = c.String("bandwidth-trace")
	}
	if c.IsSet("delay") {
		run.Delay = c.Duration("delay")
	}
	if c.IsSet("max-pending") {
		run.MaxPending = c.Int("max-pending")
	}
	if c.IsSet("catalog") {
		run.Catalog = c.String("catalog")
	}
	if c.IsSet("quality") {
		run.Quality = c.String("quality")
	}
	if c.IsSet("vp-model") {
		run.ViewpointModel = c.String("vp-model")
	}
	if c.IsSet("vp-trace") {
		run.ViewpointTrace = c.String("vp-trace")
	}
	if c.IsSet("seed") {
		run.Seed = c.Int64("seed")
	}
	if c.IsSet("algorithm") {
		run.Algorithm = c.String("algorithm")
	}
	if c.IsSet("request-mode") {
		run.RequestMode = c.String("request-mode")
	}
	if c.IsSet("forecast") {
		run.Forecast = c.String("forecast")
	}
	if c.IsSet("buffer-high") {
		run.BufferHigh = c.Duration("buffer-high")
	}
	if c.IsSet("out") {
		run.Out = c.String("out")
	}
	return run, nil
}

// applyEnv sets flags left unset from their MVDASH_* variables. Flags read
// the environment while parsing, before the .env file is loaded.
func applyEnv(c *cli.Context) error {
	for _, ctx := range c.Lineage() {
		if ctx.Command == nil {
			continue
		}
		for _, f := range ctx.Command.Flags {
			ef, ok := f.(interface{ GetEnvVars() []string })
			if !ok {
				continue
			}
			name := f.Names()[0]
			if c.IsSet(name) {
				continue
			}
			for _, key := range ef.GetEnvVars() {
				if v := os.Getenv(key); v != "" {
					if err := c.Set(name, v); err != nil {
						return errors.Wrapf(err, "%s=%q", key, v)
					}
					break
				}
			}
		}
	}
	return nil
}

// parseBandwidth reads an SI bit rate such as "5Mbps", "800 kb/s" or
// "2000000".
func parseBandwidth(s string) (float64, error) {
	v, unit, err := humanize.ParseSI(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "bandwidth %q", s)
	}
	switch unit {
	case "", "bps", "b/s", "bit/s":
	default:
		return 0, errors.Errorf("bandwidth %q: unknown unit %q", s, unit)
	}
	if v <= 0 {
		return 0, errors.Errorf("bandwidth %q must be positive", s)
	}
	return v, nil
}

// buildOptions turns a run description into simulator options over cat,
// loading the bandwidth trace it names.
func buildOptions(run config.Run, cat *catalog.Catalog) (sim.Options, error) {
	rate, err := parseBandwidth(run.Bandwidth)
	if err != nil {
		return sim.Options{}, err
	}
	mode, err := session.ParseMode(run.RequestMode)
	if err != nil {
		return sim.Options{}, err
	}
	forecast, err := abr.ParseForecast(run.Forecast)
	if err != nil {
		return sim.Options{}, err
	}

	link := sim.LinkSpec{
		Rate:       rate,
		Delay:      run.Delay.Microseconds(),
		MaxPending: run.MaxPending,
	}
	if run.BandwidthTrace != "" {
		if link.Trace, err = sim.LoadTraceFile(run.BandwidthTrace); err != nil {
			return sim.Options{}, err
		}
	}

	return sim.Options{
		SimID:          run.SimID,
		Clients:        run.Clients,
		Duration:       run.SimTime.Microseconds(),
		Link:           link,
		Catalog:        cat,
		ViewpointModel: run.ViewpointModel,
		ViewpointTrace: run.ViewpointTrace,
		Seed:           run.Seed,
		Algorithm:      run.Algorithm,
		Mode:           mode,
		Forecast:       forecast,
		BufferHigh:     run.BufferHigh.Microseconds(),
	}, nil
}

func loadCatalog(run config.Run) (*catalog.Catalog, error) {
	cat, err := catalog.LoadFile(run.Catalog)
	if err != nil {
		return nil, err
	}
	if run.Quality != "" {
		if err := cat.LoadScoresFile(run.Quality); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// simulate runs one configuration, feeding the status repository and
// metrics, and returns one summary per client.
func (e *env) simulate(ctx context.Context, run config.Run, cat *catalog.Catalog) ([]report.Summary, error) {
	opts, err := buildOptions(run, cat)
	if err != nil {
		return nil, err
	}
	opts.Logger = e.log
	opts.Tracer = client.Tracers(e.metrics.Observe, e.repo.Observe)
	if e.dump {
		rec := report.NewRecorder(run.Out)
		opts.Recorder = func(int) client.Recorder { return rec }
	}

	clients := opts.Clients
	if clients <= 0 {
		clients = 1
	}
	for i := 0; i < clients; i++ {
		e.repo.Register(status.SessionID(sim.SessionID(run.SimID, i)), status.Run{
			Sim:       run.SimID,
			Mode:      run.RequestMode,
			Algorithm: run.Algorithm,
			Model:     run.ViewpointModel,
		})
	}

	res, err := sim.Run(ctx, opts)
	rows := make([]report.Summary, 0, len(res.Sessions))
	for _, sess := range res.Sessions {
		s := report.Summarize(sess)
		rows = append(rows, s)
		if ferr := e.repo.Finish(status.SessionID(sess.ID), s); ferr != nil {
			e.log.Warn("finish session", "session", sess.ID, "error", ferr)
		}
	}
	return rows, err
}

func runCommand(c *cli.Context) error {
	run, err := resolveRun(c)
	if err != nil {
		return err
	}
	e := newEnv(c)
	cat, err := loadCatalog(run)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(context.Background())
	defer stop()

	if addr := c.String("metrics-addr"); addr != "" {
		srv := e.startStatus(addr)
		defer e.shutdown(srv)
	}

	e.log.Info("simulation starting",
		"sim_id", run.SimID,
		"clients", run.Clients,
		"bandwidth", run.Bandwidth,
		"algorithm", run.Algorithm,
		"request_mode", run.RequestMode,
		"vp_model", run.ViewpointModel,
	)
	rows, err := e.simulate(ctx, run, cat)
	report.WriteTable(os.Stdout, rows)
	return err
}

func describe(run config.Run) string {
	return fmt.Sprintf("%s/%s", run.Algorithm, run.RequestMode)
}
