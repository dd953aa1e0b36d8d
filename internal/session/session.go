package session

import (
	"strings"

	"github.com/pkg/errors"

	"mvdash/internal/catalog"
)

// ErrUnknownMode is returned by ParseMode for an unsupported request mode.
var ErrUnknownMode = errors.New("unknown request mode")

// Mode is the configured request shape.
type Mode int

const (
	ModeGroup Mode = iota
	ModeSingle
	ModeGroupSG
	ModeHybrid
)

func (m Mode) String() string {
	switch m {
	case ModeGroup:
		return "group"
	case ModeSingle:
		return "single"
	case ModeGroupSG:
		return "group_sg"
	case ModeHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "group":
		return ModeGroup, nil
	case "single":
		return ModeSingle, nil
	case "group_sg":
		return ModeGroupSG, nil
	case "hybrid":
		return ModeHybrid, nil
	default:
		return 0, ErrUnknownMode
	}
}

// Session is the state of one streaming client: the catalog it plays and
// every record the controller and adaptation engine share. Records only
// grow; readers never copy them.
type Session struct {
	ID       string
	Catalog  *catalog.Catalog
	Mode     Mode
	Download *DownloadLog
	Segments *SegmentTable
	Playback *PlaybackLog
	Buffers  []*Buffer
}

// New returns an empty session for c.
func New(id string, c *catalog.Catalog, mode Mode) *Session {
	s := &Session{
		ID:       id,
		Catalog:  c,
		Mode:     mode,
		Download: &DownloadLog{},
		Segments: NewSegmentTable(),
		Playback: NewPlaybackLog(),
		Buffers:  make([]*Buffer, c.NumViewpoints()),
	}
	for v := range s.Buffers {
		s.Buffers[v] = NewBuffer()
	}
	return s
}

// NumViewpoints returns the number of viewpoints in the catalog.
func (s *Session) NumViewpoints() int { return s.Catalog.NumViewpoints() }

// SegmentDuration returns the shared segment duration in microseconds.
func (s *Session) SegmentDuration() int64 { return s.Catalog.SegmentDuration }
