package abr

import (
	"mvdash/internal/session"
)

// TOBASCO thresholds. Buffer levels and times are in µs.
const (
	tobascoA1 = 0.75
	tobascoA2 = 0.33
	tobascoA3 = 0.5
	tobascoA4 = 0.75
	tobascoA5 = 0.9

	tobascoBMin      int64 = 1000000
	tobascoBLow      int64 = 2000000
	tobascoBHigh     int64 = 4000000
	tobascoBOpt            = (tobascoBLow + tobascoBHigh) / 2
	tobascoDeltaBeta int64 = 1000000
	tobascoWindow    int64 = 10000000
)

type tobascoState struct {
	lastRep   int
	fastStart bool
}

// TOBASCO is a buffer-occupancy controller with a fast-start phase. All
// rates and throughputs are in bit/s.
type TOBASCO struct {
	base
	state  tobascoState
	before tobascoState
	seen   int
}

// NewTOBASCO returns a TOBASCO strategy over sess.
func NewTOBASCO(sess *session.Session, opts Options) *TOBASCO {
	opts = opts.withDefaults()
	t := &TOBASCO{base: newBase(NameTOBASCO, sess, opts)}
	t.reset()
	return t
}

func (t *TOBASCO) reset() {
	t.state = tobascoState{fastStart: true}
	t.before = t.state
	t.seen = -1
}

// Select implements Strategy.
func (t *TOBASCO) Select(now int64, req Request) Decision {
	rec, ok := t.sess.Download.LastCompleted()
	if req.Segment == 0 || !ok {
		t.reset()
		return t.lowest(req)
	}
	if rec.ID != t.seen {
		t.before, t.seen = t.state, rec.ID
	} else {
		t.state = t.before
	}
	s := &t.state

	if rec.Viewpoint != req.Viewpoint {
		s.fastStart = true
	}
	top := t.catalog().RepCount(req.Viewpoint) - 1
	last := min(s.lastRep, top)
	next := last
	dur := t.sess.SegmentDuration()

	buffer := t.sess.Buffers[req.Viewpoint].Level(now)
	avg := t.averageThroughput(now-tobascoWindow, now)
	nextHigher := t.requestRate(req, min(last+1, top))

	var bDelay int64
	delayed := false

	if s.fastStart && last != top && t.minimumBufferObserved() &&
		t.requestRate(req, last) <= tobascoA1*avg {
		switch {
		case buffer < tobascoBMin:
			if nextHigher <= tobascoA2*avg {
				next = last + 1
			}
		case buffer < tobascoBLow:
			if nextHigher <= tobascoA3*avg {
				next = last + 1
			}
		default:
			if nextHigher <= tobascoA4*avg {
				next = last + 1
			}
			if buffer > tobascoBHigh {
				delayed = true
				bDelay = tobascoBHigh - dur
			}
		}
	} else {
		s.fastStart = false
		switch {
		case buffer < tobascoBMin:
			next = 0
		case buffer < tobascoBLow:
			next = t.stepDown(req, rec, last)
		case buffer < tobascoBHigh:
			if last == top || nextHigher >= tobascoA5*avg {
				delayed = true
				bDelay = max(buffer-dur, tobascoBOpt)
			}
		default:
			if last == top || nextHigher >= tobascoA5*avg {
				delayed = true
				bDelay = max(buffer-dur, tobascoBOpt)
			} else {
				next = last + 1
			}
		}
	}

	var delay int64
	if delayed && bDelay <= buffer {
		delay = buffer - bDelay
	}
	s.lastRep = max(min(next, top), 0)
	return t.decide(req, s.lastRep, delay)
}

// stepDown drops below the last representation when the last segment took
// longer to arrive than its own playout rate allows.
func (t *TOBASCO) stepDown(req Request, rec session.DownloadRecord, last int) int {
	if last == 0 {
		return last
	}
	elapsed := float64(max(rec.DownloadTime(), minDownloadTime)) / 1e6
	throughput := recordBits(t.catalog(), rec) / elapsed
	seg := rec.Segment()
	segSeconds := float64(t.sess.SegmentDuration()) / 1e6
	rate := func(q int) float64 {
		return 8 * float64(t.requestBytes(req, seg, q)) / segSeconds
	}
	if rate(last) < throughput {
		return last
	}
	next := 0
	for q := t.catalog().RepCount(req.Viewpoint) - 1; q >= 0; q-- {
		if rate(q) < throughput {
			next = q
			break
		}
	}
	if next >= last {
		next = last - 1
	}
	return next
}

// minimumBufferObserved reports whether the last two downloads completed
// close together, which only happens while the buffer is being filled.
func (t *TOBASCO) minimumBufferObserved() bool {
	done := t.sess.Download.Completed(2)
	if len(done) < 2 {
		return true
	}
	gap := min(tobascoDeltaBeta, t.sess.SegmentDuration())
	return done[1].End-done[0].End < gap
}

// averageThroughput weights the throughput of every completed download by
// the time it overlaps [from, to].
func (t *TOBASCO) averageThroughput(from, to int64) float64 {
	from = max(from, 0)
	var sum, weight float64
	for _, rec := range t.sess.Download.Records() {
		if rec.Pending() || rec.End < from || rec.Sent > to {
			continue
		}
		overlap := float64(min(rec.End, to) - max(rec.Sent, from))
		if overlap <= 0 {
			continue
		}
		elapsed := float64(max(rec.DownloadTime(), minDownloadTime)) / 1e6
		sum += recordBits(t.catalog(), rec) / elapsed * overlap
		weight += overlap
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}
