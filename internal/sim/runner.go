package sim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"mvdash/internal/abr"
	"mvdash/internal/catalog"
	"mvdash/internal/client"
	"mvdash/internal/request"
	"mvdash/internal/session"
	"mvdash/internal/viewpoint"
)

// Client start times: the first at 0.1 s, then every 0.45 s.
const (
	FirstStart    int64 = 100000
	StartInterval int64 = 450000
)

// Options configures one simulation run.
type Options struct {
	SimID   int
	Clients int
	// Duration stops the run at this simulated time (µs); 0 runs until
	// every client finished.
	Duration int64
	Link     LinkSpec

	Catalog        *catalog.Catalog
	ViewpointModel string
	ViewpointTrace string
	Seed           int64

	Algorithm  string
	Mode       session.Mode
	Forecast   abr.Forecast
	BufferHigh int64

	// Tracer receives the traces of every client.
	Tracer client.Tracer
	// Recorder returns the recorder of client i; nil disables recording.
	Recorder func(i int) client.Recorder
	Logger   *slog.Logger
}

// Result is the outcome of a run.
type Result struct {
	SimID    int
	Sessions []*session.Session
	States   []client.State
	// End is the simulated time the run stopped at.
	End    int64
	Events int
}

// SessionID names client i of simulation simID.
func SessionID(simID, i int) string {
	return fmt.Sprintf("sim%d_cl%d", simID, i)
}

// Run simulates opts.Clients clients sharing one link. Configuration errors
// are returned before any event runs.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Catalog == nil {
		return Result{}, errors.New("sim: no catalog")
	}
	if opts.Clients <= 0 {
		opts.Clients = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("sim", opts.SimID)

	sched := NewScheduler()
	link := NewLink(sched, opts.Link, logger)

	res := Result{SimID: opts.SimID}
	ctrls := make([]*client.Controller, 0, opts.Clients)
	for i := 0; i < opts.Clients; i++ {
		ctrl, err := newClient(sched, link, opts, i, logger)
		if err != nil {
			return res, errors.Wrapf(err, "client %d", i)
		}
		ctrls = append(ctrls, ctrl)
		res.Sessions = append(res.Sessions, ctrl.Session())
		sched.At(FirstStart+int64(i)*StartInterval, ctrl.Start)
	}

	until := opts.Duration
	if until <= 0 {
		until = 1<<63 - 1
	}
	n, err := sched.Run(ctx, until)
	res.Events = n
	res.End = sched.Now()
	for _, c := range ctrls {
		if c.State() != client.StateTerminal {
			c.Stop()
		}
		res.States = append(res.States, c.State())
	}
	logger.Info("simulation finished", "clients", len(ctrls), "events", n, "end_us", res.End)
	return res, errors.Wrap(err, "simulation interrupted")
}

// clientSeed gives client i its own free-model stream, starting from the
// built-in seed when none is configured.
func clientSeed(seed int64, i int) int64 {
	if seed == 0 {
		seed = viewpoint.DefaultFreeSeed
	}
	return seed + int64(i)
}

func newClient(sched *Scheduler, link *Link, opts Options, i int, logger *slog.Logger) (*client.Controller, error) {
	c := opts.Catalog
	sess := session.New(SessionID(opts.SimID, i), c, opts.Mode)

	model, err := viewpoint.New(opts.ViewpointModel, viewpoint.Options{
		NumViews:  c.NumViewpoints(),
		TracePath: opts.ViewpointTrace,
		Seed:      clientSeed(opts.Seed, i),
	})
	if err != nil {
		return nil, err
	}
	if model.NumViews() != c.NumViewpoints() {
		return nil, errors.Errorf("viewpoint model has %d views, catalog has %d", model.NumViews(), c.NumViewpoints())
	}

	engine, err := abr.New(opts.Algorithm, sess, abr.Options{
		Forecast:   opts.Forecast,
		BufferHigh: opts.BufferHigh,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	conn := link.Dial()
	var rec client.Recorder
	if opts.Recorder != nil {
		rec = opts.Recorder(i)
	}
	ctrl := client.New(client.Config{
		Session:   sess,
		Model:     model,
		Shape:     request.New(sess, engine, logger),
		Scheduler: sched,
		Transport: conn,
		Tracer:    opts.Tracer,
		Recorder:  rec,
		Logger:    logger,
	})
	conn.Bind(ctrl, ctrl.Retry)
	return ctrl, nil
}
