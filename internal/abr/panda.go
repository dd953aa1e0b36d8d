package abr

import (
	"mvdash/internal/session"
)

// PANDA parameters. Rates are in Mbit/s, times in seconds.
const (
	pandaKappa   = 0.28
	pandaOmega   = 0.3
	pandaAlpha   = 0.2
	pandaBeta    = 0.2
	pandaEpsilon = 0.15
	pandaBMin    = 26.0
)

type pandaState struct {
	initialized bool
	share       float64
	smooth      float64
	lastIndex   int
	lastTarget  float64
	lastBuffer  float64
}

// PANDA raises its bandwidth share estimate additively, smooths it and picks the
// representation with a dead zone between an up and a down margin. It
// paces requests towards a target inter-request time.
//
// Rates compared against the share are request rates: the watched
// viewpoint at the candidate representation plus, for full-group
// requests, every companion at representation 0. The measured throughput
// uses the bits actually requested by the last download.
type PANDA struct {
	base
	state  pandaState
	before pandaState
	seen   int
}

// NewPANDA returns a PANDA strategy over sess.
func NewPANDA(sess *session.Session, opts Options) *PANDA {
	opts = opts.withDefaults()
	p := &PANDA{base: newBase(NamePANDA, sess, opts), seen: -1}
	p.reset()
	return p
}

func (p *PANDA) reset() {
	p.state = pandaState{lastBuffer: float64(p.sess.SegmentDuration()) / 1e6}
	p.before = p.state
	p.seen = -1
}

// Select implements Strategy.
func (p *PANDA) Select(now int64, req Request) Decision {
	rec, ok := p.sess.Download.LastCompleted()
	if req.Segment == 0 || !ok {
		p.reset()
		return p.lowest(req)
	}
	if rec.ID != p.seen {
		p.before, p.seen = p.state, rec.ID
	} else {
		p.state = p.before
	}
	s := &p.state
	c := p.catalog()

	elapsed := float64(max(rec.DownloadTime(), minDownloadTime)) / 1e6
	measured := recordBits(c, rec) / elapsed / 1e6
	if !s.initialized {
		s.share, s.smooth = measured, measured
		s.initialized = true
	}

	interval := s.lastTarget
	if since := float64(now-rec.Sent) / 1e6; since > s.lastTarget {
		interval = since
	}

	s.share += pandaKappa * (pandaOmega - max(0, s.share-measured+pandaOmega)) * interval
	s.share = max(s.share, 0)
	s.smooth += -pandaAlpha * (s.smooth - s.share) * interval

	top := c.RepCount(req.Viewpoint) - 1
	rUp := p.largest(req, s.smooth-(pandaOmega+pandaEpsilon*s.smooth))
	rDown := p.largest(req, s.smooth-pandaOmega)
	last := min(s.lastIndex, top)

	rateLast := p.requestRate(req, last) / 1e6
	var idx int
	switch {
	case rateLast < p.requestRate(req, rUp)/1e6:
		idx = rUp
	case rateLast <= p.requestRate(req, rDown)/1e6:
		idx = last
	default:
		idx = rDown
	}
	s.lastIndex = idx

	var target float64
	if s.smooth > 0 {
		segSeconds := float64(p.sess.SegmentDuration()) / 1e6
		target = max(0, p.requestRate(req, idx)/1e6*segSeconds/s.smooth+pandaBeta*(s.lastBuffer-pandaBMin))
	}

	var delay int64
	if dl := rec.DownloadTime(); float64(dl) < s.lastTarget*1e6 {
		delay = int64(s.lastTarget*1e6) - dl
	}
	s.lastTarget = target
	s.lastBuffer = float64(p.bufferLevel(req.Viewpoint, now)) / 1e6

	return p.decide(req, idx, delay)
}

// largest returns the highest representation whose request rate fits
// under limit (Mbit/s), or 0.
func (p *PANDA) largest(req Request, limit float64) int {
	best := 0
	for q := 0; q < p.catalog().RepCount(req.Viewpoint); q++ {
		if p.requestRate(req, q)/1e6 <= limit {
			best = q
		}
	}
	return best
}
