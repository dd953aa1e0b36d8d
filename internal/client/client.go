// Package client implements the streaming client controller: the state
// machine that decides when to request the next segment, when playback
// starts or stalls, and how a hybrid client reacts to a viewpoint change.
//
// The controller is driven entirely by callbacks from a Scheduler and by
// OnReceive; it never blocks and never runs concurrently with itself.
package client

import (
	"log/slog"

	"mvdash/internal/request"
	"mvdash/internal/session"
	"mvdash/internal/viewpoint"
)

// State is a controller state.
type State int

const (
	StateInitial State = iota
	StateDownloading
	StateDownloadingPlaying
	StatePlaying
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateDownloading:
		return "downloading"
	case StateDownloadingPlaying:
		return "downloadingPlaying"
	case StatePlaying:
		return "playing"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Event drives the state machine.
type Event int

const (
	EventInit Event = iota
	EventDownloadFinished
	EventPlaybackFinished
	EventViewChange
	EventIRDFinished
)

func (e Event) String() string {
	switch e {
	case EventInit:
		return "init"
	case EventDownloadFinished:
		return "downloadFinished"
	case EventPlaybackFinished:
		return "playbackFinished"
	case EventViewChange:
		return "viewChange"
	case EventIRDFinished:
		return "irdFinished"
	default:
		return "unknown"
	}
}

// Scheduler delivers timed callbacks in time order. Times are µs.
type Scheduler interface {
	Now() int64
	Schedule(delay int64, fn func())
}

// Transport carries request payloads to the server. Send returns false when
// the payload cannot be accepted now; the caller retries through
// Controller.Retry. Response bytes are delivered with Controller.OnReceive.
type Transport interface {
	Send(payload []byte) bool
	Close()
}

// Recorder persists a finished session.
type Recorder interface {
	Record(sess *session.Session) error
}

// Config wires a Controller to its collaborators. Tracer and Recorder are
// optional.
type Config struct {
	Session   *session.Session
	Model     viewpoint.Model
	Shape     request.Shape
	Scheduler Scheduler
	Transport Transport
	Tracer    Tracer
	Recorder  Recorder
	Logger    *slog.Logger
}
