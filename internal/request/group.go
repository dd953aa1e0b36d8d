package request

import (
	"mvdash/internal/abr"
)

// Group requests every viewpoint's segment at once. Companions of the
// watched viewpoint travel at the representation the engine picked for them.
type Group struct {
	shape
}

// Prepare implements Shape.
func (g *Group) Prepare(now int64, p Params) Message {
	d := g.engine.Select(now, abr.Request{
		Segment:   p.Segment,
		Viewpoint: p.Viewpoint,
		Group:     true,
		Mode:      g.sess.Mode,
	})
	return g.message(p, true, d)
}

// Commit implements Shape.
func (g *Group) Commit(now int64, m Message) {
	g.record(now, m)
	g.sess.Segments.Set(m.Segment, m.Decision.Qualities)
}

// Complete implements Shape. It is called once per request, after the last
// sub-request of the group arrived.
func (g *Group) Complete(now int64, sub SubRequest) {
	g.sess.Download.MarkEnd(sub.ID, now)
	g.grow(now, sub.Segment, func(int) bool { return true })
}
