// Package request builds the segment requests a client sends. A Shape
// decides which viewpoints a request carries, asks the adaptation engine for
// their representations, and books the request and its completion into the
// session.
package request

import (
	"log/slog"

	"mvdash/internal/abr"
	"mvdash/internal/session"
)

// SubRequest is one viewpoint's segment inside a request. Sub-requests of a
// group share the request ID.
type SubRequest struct {
	ID        int
	Group     bool
	Viewpoint int
	Segment   int
	Quality   int
	Size      int64
}

// Message is a prepared request.
type Message struct {
	ID        int
	Group     bool
	Segment   int
	Viewpoint int
	// Upgrade marks a hybrid re-download of an already buffered segment.
	Upgrade  bool
	Requests []SubRequest
	Decision abr.Decision
}

// Bytes returns the payload size the server will send back.
func (m Message) Bytes() int64 {
	var n int64
	for _, r := range m.Requests {
		n += r.Size
	}
	return n
}

// Params selects what to prepare.
type Params struct {
	Segment   int
	Viewpoint int
	// Upgrade asks a hybrid shape for a single-viewpoint re-download.
	Upgrade bool
}

// Shape prepares requests and books them. Prepare has no effect on the
// session, so it can be used to try out a decision; Commit records a request
// the transport accepted; Complete books a request whose last byte arrived.
type Shape interface {
	Prepare(now int64, p Params) Message
	Commit(now int64, m Message)
	Complete(now int64, sub SubRequest)
}

// New returns the shape for sess.Mode.
func New(sess *session.Session, engine abr.Strategy, logger *slog.Logger) Shape {
	if logger == nil {
		logger = slog.Default()
	}
	b := shape{sess: sess, engine: engine, log: logger.With("mode", sess.Mode.String(), "session", sess.ID)}
	switch sess.Mode {
	case session.ModeSingle:
		return &Single{shape: b}
	case session.ModeGroupSG:
		return &GroupSG{shape: b}
	case session.ModeHybrid:
		return &Hybrid{Group: Group{shape: b}}
	default:
		return &Group{shape: b}
	}
}

// shape holds what every request shape needs.
type shape struct {
	sess   *session.Session
	engine abr.Strategy
	log    *slog.Logger
}

// message turns a decision into sub-requests for every viewpoint it carries.
func (s shape) message(p Params, group bool, d abr.Decision) Message {
	id := s.sess.Download.NextID()
	m := Message{
		ID:        id,
		Group:     group,
		Segment:   p.Segment,
		Viewpoint: p.Viewpoint,
		Decision:  d,
	}
	for v, q := range d.Qualities {
		if q < 0 {
			continue
		}
		m.Requests = append(m.Requests, SubRequest{
			ID:        id,
			Group:     group,
			Viewpoint: v,
			Segment:   p.Segment,
			Quality:   q,
			Size:      s.sess.Catalog.Size(v, q, p.Segment),
		})
	}
	return m
}

// record appends the download record of m.
func (s shape) record(now int64, m Message) {
	segments := make([]int, s.sess.NumViewpoints())
	for v := range segments {
		segments[v] = -1
		if m.Decision.Quality(v) >= 0 {
			segments[v] = m.Segment
		}
	}
	s.sess.Download.Append(session.DownloadRecord{
		Group:     m.Group,
		Segments:  segments,
		Qualities: append([]int(nil), m.Decision.Qualities...),
		Viewpoint: m.Viewpoint,
		Sent:      now,
	})
	s.log.Debug("request committed",
		"id", m.ID,
		"segment", m.Segment,
		"viewpoint", m.Viewpoint,
		"qualities", m.Decision.Qualities,
		"upgrade", m.Upgrade,
	)
}

// grow books one downloaded segment into the buffer of every viewpoint.
// Viewpoints not in filled keep an empty buffer but mark the segment.
func (s shape) grow(now int64, seg int, filled func(v int) bool) {
	dur := s.sess.SegmentDuration()
	for v, b := range s.sess.Buffers {
		if !filled(v) {
			b.Add(now, 0, 0, seg)
			continue
		}
		level := b.Level(now)
		b.Add(now, level, level+dur, seg)
	}
}
