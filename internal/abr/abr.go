// Package abr holds the rate-adaptation strategies. A strategy maps the
// next segment request onto a representation per viewpoint, an optional
// pause before the following request and a hint that an upgrade request
// is not worth sending.
package abr

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"mvdash/internal/catalog"
	"mvdash/internal/session"
)

// ErrUnknownAlgorithm is returned by New for an unsupported strategy name.
var ErrUnknownAlgorithm = errors.New("unknown adaptation algorithm")

// Strategy names accepted by New.
const (
	NameMPC     = "mpc"
	NamePANDA   = "panda"
	NameTOBASCO = "tobasco"
	NameQmetric = "qmetric"
	NameNaive   = "naive"
)

// DefaultBufferHigh is the buffer level (µs) above which the search-based
// strategies delay the next request.
const DefaultBufferHigh int64 = 5000000

// Request describes the request being prepared.
type Request struct {
	Segment   int
	Viewpoint int
	// Group is false for single-viewpoint requests, including hybrid upgrades.
	Group bool
	Mode  session.Mode
}

// fullGroup reports whether the request carries every viewpoint.
func (r Request) fullGroup() bool {
	return r.Group && r.Mode != session.ModeGroupSG
}

// Decision is the outcome of one Select call. Qualities is indexed by
// viewpoint; -1 marks a viewpoint that is not requested.
type Decision struct {
	Qualities []int
	Delay     int64
	Skip      bool
}

// Quality returns the representation chosen for vp.
func (d Decision) Quality(vp int) int {
	if vp < 0 || vp >= len(d.Qualities) {
		return -1
	}
	return d.Qualities[vp]
}

// Strategy picks representations for the next request. Calling Select again
// without new download history must return the same decision.
type Strategy interface {
	Select(now int64, req Request) Decision
}

// Options configures New.
type Options struct {
	Forecast   Forecast
	BufferHigh int64
	Logger     *slog.Logger
}

// New builds the strategy called name over sess. Names may carry an
// "adaptation_" prefix.
func New(name string, sess *session.Session, opts Options) (Strategy, error) {
	switch strings.TrimPrefix(strings.ToLower(name), "adaptation_") {
	case NameMPC:
		return NewMPC(sess, opts), nil
	case NameQmetric:
		return NewQmetric(sess, opts), nil
	case NamePANDA:
		return NewPANDA(sess, opts), nil
	case NameTOBASCO:
		return NewTOBASCO(sess, opts), nil
	case NameNaive, "test", "maximize_current":
		return NewNaive(sess, opts), nil
	default:
		return nil, errors.Wrap(ErrUnknownAlgorithm, name)
	}
}

func (o Options) withDefaults() Options {
	if o.BufferHigh <= 0 {
		o.BufferHigh = DefaultBufferHigh
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// base carries what every strategy reads: the session and a logger.
type base struct {
	sess *session.Session
	log  *slog.Logger
}

func newBase(name string, sess *session.Session, opts Options) base {
	return base{sess: sess, log: opts.Logger.With("algorithm", name, "session", sess.ID)}
}

func (b base) catalog() *catalog.Catalog { return b.sess.Catalog }

// lowest returns the decision used before any history exists.
func (b base) lowest(req Request) Decision {
	return b.decide(req, 0, 0)
}

// decide builds the decision for choice q on the current viewpoint.
func (b base) decide(req Request, q int, delay int64) Decision {
	return b.finish(req, Decision{Qualities: b.vector(req, q), Delay: max(delay, 0)})
}

// vector fills the per-viewpoint qualities for choice q on the current
// viewpoint: companions ride at representation 0 in full-group requests
// and are omitted otherwise.
func (b base) vector(req Request, q int) []int {
	qs := make([]int, b.sess.NumViewpoints())
	for v := range qs {
		switch {
		case v == req.Viewpoint:
			qs[v] = q
		case req.fullGroup():
			qs[v] = 0
		default:
			qs[v] = -1
		}
	}
	return qs
}

// finish marks non-group requests at the lowest representation as skippable.
func (b base) finish(req Request, d Decision) Decision {
	d.Skip = !req.Group && d.Quality(req.Viewpoint) < 1
	b.log.Debug("rate decision",
		"segment", req.Segment,
		"viewpoint", req.Viewpoint,
		"group", req.Group,
		"qualities", d.Qualities,
		"delay", d.Delay,
		"skip", d.Skip,
	)
	return d
}

// bufferLevel returns the playable buffer of vp at now, floored at 0.
func (b base) bufferLevel(vp int, now int64) int64 {
	return b.sess.Buffers[vp].Level(now)
}

// requestBytes predicts the bytes of a request carrying representation q
// on the current viewpoint for segment seg.
func (b base) requestBytes(req Request, seg, q int) int64 {
	c := b.catalog()
	size := c.Size(req.Viewpoint, q, seg)
	if req.fullGroup() {
		for v := 0; v < c.NumViewpoints(); v++ {
			if v != req.Viewpoint {
				size += c.Size(v, 0, seg)
			}
		}
	}
	return size
}

// requestRate is requestBytes expressed as average bitrates (bit/s).
func (b base) requestRate(req Request, q int) float64 {
	c := b.catalog()
	rate := c.Bitrate(req.Viewpoint, q)
	if req.fullGroup() {
		for v := 0; v < c.NumViewpoints(); v++ {
			if v != req.Viewpoint {
				rate += c.Bitrate(v, 0)
			}
		}
	}
	return rate
}

// bufferHighDelay returns the pause keeping the buffer under high after a
// download of predicted duration down (µs).
func bufferHighDelay(start, down, segmentDuration, high int64) int64 {
	if start <= high {
		return 0
	}
	return max(start-down+segmentDuration-high, 0)
}

// recordBytes returns the bytes actually requested by rec.
func recordBytes(c *catalog.Catalog, rec session.DownloadRecord) int64 {
	var n int64
	for v, q := range rec.Qualities {
		if q < 0 || v >= len(rec.Segments) || rec.Segments[v] < 0 {
			continue
		}
		n += c.Size(v, q, rec.Segments[v])
	}
	return n
}

// recordBits returns the bits of rec, for throughput in bit/s.
func recordBits(c *catalog.Catalog, rec session.DownloadRecord) float64 {
	return 8 * float64(recordBytes(c, rec))
}
