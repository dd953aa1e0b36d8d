package client

import "mvdash/internal/abr"

// TraceType identifies a controller trace event.
type TraceType int

const (
	TraceSendRequest TraceType = iota
	TraceDownloaded
	TraceAllDownloaded
	TraceStartPlayback
	TraceEndPlayback
	TraceBufferUnderrun
	TraceViewpointSwitch
	TraceTerminated
)

var traceNames = [...]string{
	TraceSendRequest:     "sendRequest",
	TraceDownloaded:      "downloaded",
	TraceAllDownloaded:   "allDownloaded",
	TraceStartPlayback:   "startPlayback",
	TraceEndPlayback:     "endPlayback",
	TraceBufferUnderrun:  "bufferUnderrun",
	TraceViewpointSwitch: "viewpointSwitch",
	TraceTerminated:      "terminated",
}

func (t TraceType) String() string {
	if int(t) < len(traceNames) {
		return traceNames[t]
	}
	return "unknown"
}

// Trace is one controller event. Quality is the representation of the
// watched viewpoint involved, or -1. Buffer is the watched viewpoint's
// buffer level (µs) at Time.
type Trace struct {
	Session   string
	Type      TraceType
	State     State
	Time      int64
	Segment   int
	Viewpoint int
	Quality   int
	Bytes     int64
	Buffer    int64
	Upgrade   bool
	// Decision is set on TraceSendRequest.
	Decision abr.Decision
}

// Tracer receives controller traces synchronously.
type Tracer func(Trace)

// Tracers fans a trace out to every non-nil tracer.
func Tracers(ts ...Tracer) Tracer {
	return func(tr Trace) {
		for _, t := range ts {
			if t != nil {
				t(tr)
			}
		}
	}
}
