package request

import (
	"mvdash/internal/abr"
)

// Single requests only the watched viewpoint. The segment counts as
// delivered for every viewpoint, but only the watched one gains buffer.
type Single struct {
	shape
}

// Prepare implements Shape.
func (s *Single) Prepare(now int64, p Params) Message {
	d := s.engine.Select(now, abr.Request{
		Segment:   p.Segment,
		Viewpoint: p.Viewpoint,
		Mode:      s.sess.Mode,
	})
	return s.message(p, false, d)
}

// Commit implements Shape.
func (s *Single) Commit(now int64, m Message) {
	s.record(now, m)
	s.sess.Segments.Set(m.Segment, m.Decision.Qualities)
}

// Complete implements Shape.
func (s *Single) Complete(now int64, sub SubRequest) {
	s.sess.Download.MarkEnd(sub.ID, now)
	s.grow(now, sub.Segment, func(v int) bool { return v == sub.Viewpoint })
}

// GroupSG sends group requests that carry the watched viewpoint only.
type GroupSG struct {
	shape
}

// Prepare implements Shape.
func (g *GroupSG) Prepare(now int64, p Params) Message {
	d := g.engine.Select(now, abr.Request{
		Segment:   p.Segment,
		Viewpoint: p.Viewpoint,
		Group:     true,
		Mode:      g.sess.Mode,
	})
	return g.message(p, true, d)
}

// Commit implements Shape.
func (g *GroupSG) Commit(now int64, m Message) {
	g.record(now, m)
	g.sess.Segments.Set(m.Segment, m.Decision.Qualities)
}

// Complete implements Shape.
func (g *GroupSG) Complete(now int64, sub SubRequest) {
	g.sess.Download.MarkEnd(sub.ID, now)
	g.grow(now, sub.Segment, func(v int) bool { return v == sub.Viewpoint })
}
