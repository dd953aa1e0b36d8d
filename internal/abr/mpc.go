package abr

import (
	"math"

	"mvdash/internal/session"
)

const (
	mpcHorizon        = 5
	mpcRebufferWeight = 35.0
)

// MPC searches every representation sequence for the next few segments of
// the current viewpoint and keeps the first choice of the best sequence.
type MPC struct {
	base
	est  *Estimator
	high int64
}

// NewMPC returns an MPC strategy over sess.
func NewMPC(sess *session.Session, opts Options) *MPC {
	opts = opts.withDefaults()
	return &MPC{
		base: newBase(NameMPC, sess, opts),
		est:  NewEstimator(opts.Forecast),
		high: opts.BufferHigh,
	}
}

// mpcState is the starting point of one search.
type mpcState struct {
	segment   int
	viewpoint int
	prevView  int
	prevQ     int
	buffer    int64
	bandwidth float64
}

// Select implements Strategy.
func (m *MPC) Select(now int64, req Request) Decision {
	rec, ok := m.sess.Download.LastCompleted()
	if req.Segment == 0 || !ok {
		return m.lowest(req)
	}
	m.est.Observe(m.catalog(), rec)
	st, ok := m.start(now, req, rec)
	if !ok {
		return m.lowest(req)
	}

	best, _ := m.search(req, st)
	dur := m.sess.SegmentDuration()
	down := int64(float64(m.requestBytes(req, req.Segment, best[0])) * float64(dur) / st.bandwidth)
	return m.decide(req, best[0], bufferHighDelay(st.buffer, down, dur, m.high))
}

func (m *MPC) start(now int64, req Request, rec session.DownloadRecord) (mpcState, bool) {
	bw := m.est.Estimate()
	if bw <= 0 {
		return mpcState{}, false
	}
	prev := rec.Viewpoint
	q := rec.Qualities[prev]
	if q < 0 {
		q = max(rec.Qualities[req.Viewpoint], 0)
	}
	q = min(q, m.catalog().RepCount(prev)-1)
	// right after a switch the buffer still follows the old viewpoint
	return mpcState{
		segment:   req.Segment,
		viewpoint: req.Viewpoint,
		prevView:  prev,
		prevQ:     q,
		buffer:    m.bufferLevel(prev, now),
		bandwidth: bw,
	}, true
}

// horizon returns how many segments the search looks ahead from seg.
func (m *MPC) horizon(seg int) int {
	return max(min(mpcHorizon, m.catalog().Segments-seg), 1)
}

// search enumerates the sequences with a mixed-radix counter over the
// representation count of the current viewpoint and returns the best one.
func (m *MPC) search(req Request, st mpcState) ([]int, float64) {
	k := m.horizon(st.segment)
	radix := m.catalog().RepCount(st.viewpoint)
	total := int(math.Pow(float64(radix), float64(k)))

	combo := make([]int, k)
	best := make([]int, k)
	bestReward := math.Inf(-1)
	for idx := 0; idx < total; idx++ {
		j := idx
		for i := range combo {
			combo[i] = j % radix
			j /= radix
		}
		if r := m.reward(req, st, combo); r > bestReward {
			bestReward = r
			copy(best, combo)
		}
	}
	return best, bestReward
}

// reward scores one sequence: log-quality gain minus weighted rebuffering
// (seconds) minus quality switches.
func (m *MPC) reward(req Request, st mpcState, combo []int) float64 {
	c := m.catalog()
	dur := float64(m.sess.SegmentDuration())
	buffer := float64(st.buffer)
	var rebuffer, gain, smooth float64
	lastQ, lastView := st.prevQ, st.prevView

	for pos, q := range combo {
		seg := st.segment + pos
		if seg > c.LastSegment() {
			break
		}
		download := float64(m.requestBytes(req, seg, q)) * dur / st.bandwidth
		if buffer < download {
			rebuffer += download - buffer
			buffer = 0
		} else {
			buffer -= download
		}
		buffer += dur

		lq := m.logQuality(st.viewpoint, q)
		gain += lq
		smooth += math.Abs(lq - m.logQuality(lastView, lastQ))
		lastQ, lastView = q, st.viewpoint
	}
	return gain - mpcRebufferWeight*rebuffer/1e6 - smooth
}

func (m *MPC) logQuality(vp, q int) float64 {
	c := m.catalog()
	lowest := c.Bitrate(vp, 0)
	if lowest <= 0 {
		return 0
	}
	return math.Log2(c.Bitrate(vp, q) / lowest)
}
