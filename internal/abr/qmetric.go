package abr

import (
	"math"

	"mvdash/internal/session"
)

// Perceptual targets for the watched viewpoint and its companions, and the
// weight each one carries in the cost.
const (
	qmetricTarget    = 90.0
	qmetricSubTarget = 50.0
	qmetricMainW     = 1.0
	qmetricSubW      = 0.001
)

// Qmetric steers the perceptual score of the next segment towards a target
// instead of maximizing bitrate. Full-group requests search the joint
// representation of every viewpoint.
type Qmetric struct {
	base
	est  *Estimator
	high int64
}

// NewQmetric returns a Qmetric strategy over sess.
func NewQmetric(sess *session.Session, opts Options) *Qmetric {
	opts = opts.withDefaults()
	return &Qmetric{
		base: newBase(NameQmetric, sess, opts),
		est:  NewEstimator(opts.Forecast),
		high: opts.BufferHigh,
	}
}

// qmetricState is the starting point of one search.
type qmetricState struct {
	segment   int
	viewpoint int
	buffer    int64
	bandwidth float64
	// lastScore is the score last obtained per viewpoint.
	lastScore []float64
}

// Select implements Strategy.
func (q *Qmetric) Select(now int64, req Request) Decision {
	rec, ok := q.sess.Download.LastCompleted()
	if req.Segment == 0 || !ok {
		return q.lowest(req)
	}
	q.est.Observe(q.catalog(), rec)
	bw := q.est.Estimate()
	if bw <= 0 {
		return q.lowest(req)
	}
	st := qmetricState{
		segment:   req.Segment,
		viewpoint: req.Viewpoint,
		buffer:    q.bufferLevel(req.Viewpoint, now),
		bandwidth: bw,
		lastScore: q.lastScores(req, rec),
	}

	best, _ := q.search(req, st)
	dur := q.sess.SegmentDuration()
	down := int64(float64(q.comboBytes(st.segment, best)) * float64(dur) / bw)
	return q.finish(req, Decision{
		Qualities: best,
		Delay:     bufferHighDelay(st.buffer, down, dur, q.high),
	})
}

func (q *Qmetric) lastScores(req Request, rec session.DownloadRecord) []float64 {
	c := q.catalog()
	seg := rec.Segment()
	scores := make([]float64, c.NumViewpoints())
	for v := range scores {
		if v == req.Viewpoint && rec.Viewpoint != req.Viewpoint {
			scores[v] = c.Score(rec.Viewpoint, rec.Qualities[rec.Viewpoint], seg)
			continue
		}
		scores[v] = c.Score(v, max(rec.Qualities[v], 0), seg)
	}
	return scores
}

// candidates lists the vectors to evaluate. Full-group requests enumerate
// every viewpoint with a mixed-radix counter, dropping vectors that already
// meet the main target or lift a companion above its target without need.
// Other requests, or a fully filtered space, vary the watched viewpoint only.
func (q *Qmetric) candidates(req Request, seg int) [][]int {
	c := q.catalog()
	n := c.NumViewpoints()
	if req.fullGroup() {
		total := 1
		for v := 0; v < n; v++ {
			total *= c.RepCount(v)
		}
		var out [][]int
		for idx := 0; idx < total; idx++ {
			combo := make([]int, n)
			j := idx
			keep := true
			for v := 0; v < n; v++ {
				combo[v] = j % c.RepCount(v)
				j /= c.RepCount(v)
				score := c.Score(v, combo[v], seg)
				if v == req.Viewpoint && score >= qmetricTarget {
					keep = false
					break
				}
				if v != req.Viewpoint && score >= qmetricSubTarget && combo[v] != 0 {
					keep = false
					break
				}
			}
			if keep {
				out = append(out, combo)
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	out := make([][]int, 0, c.RepCount(req.Viewpoint))
	for r := 0; r < c.RepCount(req.Viewpoint); r++ {
		out = append(out, q.vector(req, r))
	}
	return out
}

// search returns the candidate with the lowest cost.
func (q *Qmetric) search(req Request, st qmetricState) ([]int, float64) {
	var best []int
	bestCost := math.Inf(1)
	for _, combo := range q.candidates(req, st.segment) {
		if cost := q.cost(st, combo); cost < bestCost {
			bestCost = cost
			best = combo
		}
	}
	return best, bestCost
}

// cost adds the squared distance to target, squared rebuffering (seconds)
// and squared score jitter. Viewpoints at -1 are not requested.
func (q *Qmetric) cost(st qmetricState, combo []int) float64 {
	c := q.catalog()
	var distance, jitter float64
	for v, r := range combo {
		if r < 0 {
			continue
		}
		score := c.Score(v, r, st.segment)
		target, w := qmetricSubTarget, qmetricSubW
		if v == st.viewpoint {
			target, w = qmetricTarget, qmetricMainW
		}
		distance += w * math.Pow(target-score, 2)
		jitter += w * math.Pow(score-st.lastScore[v], 2)
	}

	dur := float64(q.sess.SegmentDuration())
	download := float64(q.comboBytes(st.segment, combo)) * dur / st.bandwidth
	rebuffer := max(download-float64(st.buffer), 0) / 1e6

	return distance*distance + rebuffer*rebuffer + jitter*jitter
}

func (q *Qmetric) comboBytes(seg int, combo []int) int64 {
	var n int64
	for v, r := range combo {
		n += q.catalog().Size(v, r, seg)
	}
	return n
}
