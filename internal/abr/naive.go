package abr

import (
	"mvdash/internal/session"
)

// Naive is the buffer-based baseline: it spends what the last measured
// throughput can deliver while the current buffer lasts.
type Naive struct {
	base
	est  *Estimator
	high int64
}

// NewNaive returns a Naive strategy over sess. It always forecasts with the
// last sample.
func NewNaive(sess *session.Session, opts Options) *Naive {
	opts = opts.withDefaults()
	return &Naive{
		base: newBase(NameNaive, sess, opts),
		est:  NewEstimator(ForecastLast),
		high: opts.BufferHigh,
	}
}

// Select implements Strategy.
func (n *Naive) Select(now int64, req Request) Decision {
	rec, ok := n.sess.Download.LastCompleted()
	if req.Segment == 0 || !ok {
		return n.lowest(req)
	}
	n.est.Observe(n.catalog(), rec)
	bw := n.est.Estimate()
	if bw <= 0 {
		return n.lowest(req)
	}

	buffer := n.bufferLevel(req.Viewpoint, now)
	q := n.choose(req, n.budget(req, bw, buffer))

	dur := n.sess.SegmentDuration()
	down := int64(float64(n.requestBytes(req, req.Segment, q)) * float64(dur) / bw)
	return n.decide(req, q, bufferHighDelay(buffer, down, dur, n.high))
}

// budget returns the bytes the watched viewpoint may use: bw (bytes per
// segment duration) over the available buffer, minus the companions of a
// full-group request at their lowest representation.
func (n *Naive) budget(req Request, bw float64, available int64) float64 {
	dur := n.sess.SegmentDuration()
	allowed := bw * float64(available) / float64(dur)
	return allowed - float64(n.requestBytes(req, req.Segment, 0)-n.catalog().Size(req.Viewpoint, 0, req.Segment))
}

// choose returns the highest representation above 0 whose segment fits
// budget, or 0.
func (n *Naive) choose(req Request, budget float64) int {
	c := n.catalog()
	for q := c.RepCount(req.Viewpoint) - 1; q > 0; q-- {
		if float64(c.Size(req.Viewpoint, q, req.Segment)) <= budget {
			return q
		}
	}
	return 0
}
