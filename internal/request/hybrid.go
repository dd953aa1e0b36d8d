package request

import (
	"mvdash/internal/abr"
)

// Hybrid follows the group cadence and, after a viewpoint change,
// re-downloads already buffered segments of the new viewpoint at a higher
// representation. Upgrades do not grow the main buffers; they feed a
// temporary buffer on the upgraded viewpoint instead.
type Hybrid struct {
	Group
}

// Prepare implements Shape.
func (h *Hybrid) Prepare(now int64, p Params) Message {
	if !p.Upgrade {
		return h.Group.Prepare(now, p)
	}
	d := h.engine.Select(now, abr.Request{
		Segment:   p.Segment,
		Viewpoint: p.Viewpoint,
		Mode:      h.sess.Mode,
	})
	m := h.message(p, false, d)
	m.Upgrade = true
	return m
}

// Commit implements Shape. The segment table keeps the group quality
// until the upgrade arrives.
func (h *Hybrid) Commit(now int64, m Message) {
	if !m.Upgrade {
		h.Group.Commit(now, m)
		return
	}
	h.record(now, m)
}

// Complete implements Shape.
func (h *Hybrid) Complete(now int64, sub SubRequest) {
	if sub.Group {
		h.Group.Complete(now, sub)
		return
	}
	h.sess.Download.MarkEnd(sub.ID, now)

	for _, b := range h.sess.Buffers {
		level := b.Level(now)
		b.Add(now, level, level, -1)
	}

	dur := h.sess.SegmentDuration()
	target := h.sess.Buffers[sub.Viewpoint]
	var base int64
	if sub.ID > 0 && h.sess.Download.At(sub.ID-1).Group {
		// time left to play the segment that started with the group cadence
		if last, ok := h.sess.Playback.Last(); ok {
			base = max(dur-(now-last.Start), 0)
		}
	} else if tmp, ok := target.LastTemp(); ok {
		base = max(tmp.New-(now-tmp.Time), 0)
	}
	target.AddTemp(now, base, base+dur)

	h.sess.Segments.Upgrade(sub.Segment, sub.Viewpoint, sub.Quality)
}
