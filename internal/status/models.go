package status

import (
	"time"

	"mvdash/internal/report"
)

// SessionID identifies a simulated client session (sim{S}_cl{C}).
type SessionID string

// Run describes the configuration a session was started with.
type Run struct {
	Sim       int    `json:"sim"`
	Mode      string `json:"mode"`
	Algorithm string `json:"algorithm"`
	Model     string `json:"viewpoint_model"`
}

// SessionState is the live view of one session, updated from controller
// traces. Buffer is in seconds.
type SessionState struct {
	ID    SessionID `json:"id"`
	Run   Run       `json:"run"`
	State string    `json:"state"`

	Segment   int     `json:"segment"`
	Viewpoint int     `json:"viewpoint"`
	Quality   int     `json:"quality"`
	Buffer    float64 `json:"buffer_s"`

	Requests  int   `json:"requests"`
	Upgrades  int   `json:"upgrades"`
	Underruns int   `json:"underruns"`
	Switches  int   `json:"switches"`
	Bytes     int64 `json:"bytes"`

	Ended   bool            `json:"ended"`
	Summary *report.Summary `json:"summary,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}
