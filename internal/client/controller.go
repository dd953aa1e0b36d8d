package client

import (
	"log/slog"

	"github.com/gammazero/deque"

	"mvdash/internal/request"
	"mvdash/internal/session"
)

// Controller is the client state machine of one session.
type Controller struct {
	cfg   Config
	sess  *session.Session
	log   *slog.Logger
	state State

	// outstanding sub-requests in the order the server sends them
	pending  deque.Deque[request.SubRequest]
	received int64
	recvID   int

	sent       int
	downloaded int

	// hybrid upgrade cadence
	single           bool
	singleSent       int
	singleDownloaded int

	playIndex int
	buffering bool
	ticking   bool

	// irdGen invalidates inter-request-delay timers that were superseded.
	irdGen uint64
	retry  bool
}

// New returns a controller in StateInitial.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:              cfg,
		sess:             cfg.Session,
		log:              logger.With("session", cfg.Session.ID),
		recvID:           -1,
		sent:             -1,
		downloaded:       -1,
		singleSent:       -1,
		singleDownloaded: -1,
	}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Session returns the session the controller writes to.
func (c *Controller) Session() *session.Session { return c.sess }

// PlayIndex returns the next segment to play.
func (c *Controller) PlayIndex() int { return c.playIndex }

// Start issues the first request.
func (c *Controller) Start() { c.dispatch(EventInit) }

// Retry resumes a request the transport rejected earlier.
func (c *Controller) Retry() {
	if !c.retry || c.state == StateTerminal {
		return
	}
	c.retry = false
	switch c.state {
	case StateInitial:
		c.dispatch(EventInit)
	case StateDownloading:
		if c.pending.Len() == 0 && c.issue() && c.ticking {
			c.state = StateDownloadingPlaying
		}
	case StateDownloadingPlaying:
		if c.pending.Len() == 0 {
			c.dispatch(EventDownloadFinished)
		}
	}
}

// Stop terminates the session from any state.
func (c *Controller) Stop() {
	if c.state != StateTerminal {
		c.terminate()
	}
}

func (c *Controller) now() int64 { return c.cfg.Scheduler.Now() }

func (c *Controller) lastSegment() int { return c.sess.Catalog.LastSegment() }

func (c *Controller) dispatch(ev Event) {
	c.log.Debug("controller event", "state", c.state.String(), "event", ev.String(), "play", c.playIndex)

	if ev == EventPlaybackFinished {
		c.ticking = false
		if c.state != StateTerminal && c.state != StateInitial {
			c.playbackFinished()
		}
		return
	}

	switch c.state {
	case StateInitial:
		if ev == EventInit && c.issue() {
			c.state = StateDownloading
		}

	case StateDownloading:
		if ev != EventDownloadFinished {
			return
		}
		playing := c.startPlayback()
		if playing && c.allDownloaded() {
			c.emit(TraceAllDownloaded, c.lastSegment(), -1, 0)
			c.state = StatePlaying
			return
		}
		c.refreshUpgrade()
		if c.allDownloaded() {
			return
		}
		if c.issue() && playing {
			c.state = StateDownloadingPlaying
		}

	case StateDownloadingPlaying:
		if ev != EventDownloadFinished && ev != EventViewChange {
			return
		}
		c.refreshUpgrade()
		c.next()

	case StatePlaying:
		if ev != EventIRDFinished {
			return
		}
		c.state = StateDownloadingPlaying
		c.refreshUpgrade()
		if c.allDownloaded() {
			c.emit(TraceAllDownloaded, c.lastSegment(), -1, 0)
			c.state = StatePlaying
			return
		}
		c.issue()
	}
}

// next issues the following request from StateDownloadingPlaying, or pauses
// when the engine asks for a delay or nothing is left to fetch.
func (c *Controller) next() {
	if c.allDownloaded() {
		c.emit(TraceAllDownloaded, c.lastSegment(), -1, 0)
		c.state = StatePlaying
		return
	}
	m := c.prepare()
	if m.Decision.Delay > 0 {
		c.state = StatePlaying
		c.scheduleIRD(m.Decision.Delay)
		return
	}
	c.send(m)
}

func (c *Controller) scheduleIRD(delay int64) {
	c.irdGen++
	gen := c.irdGen
	c.log.Debug("inter-request delay", "delay", delay)
	c.cfg.Scheduler.Schedule(delay, func() {
		if gen == c.irdGen {
			c.dispatch(EventIRDFinished)
		}
	})
}

// allDownloaded reports whether the cadence in use has fetched the final
// segment.
func (c *Controller) allDownloaded() bool {
	if c.single {
		return c.singleDownloaded >= c.lastSegment()
	}
	return c.downloaded >= c.lastSegment()
}

func (c *Controller) prepare() request.Message {
	p := request.Params{Segment: c.sent + 1, Viewpoint: c.cfg.Model.Current()}
	if c.single {
		p.Segment = c.singleSent + 1
		p.Upgrade = true
	}
	return c.cfg.Shape.Prepare(c.now(), p)
}

func (c *Controller) issue() bool { return c.send(c.prepare()) }

// send hands m to the transport and books it once accepted.
func (c *Controller) send(m request.Message) bool {
	if !c.cfg.Transport.Send(request.Encode(m.Requests)) {
		c.retry = true
		c.log.Debug("transport rejected request", "id", m.ID, "segment", m.Segment)
		return false
	}
	c.retry = false
	c.cfg.Shape.Commit(c.now(), m)
	for _, r := range m.Requests {
		c.pending.PushBack(r)
	}
	if m.Upgrade {
		c.singleSent = max(c.singleSent, m.Segment)
		if m.Segment >= c.downloaded {
			c.single = false
		}
	} else {
		c.sent = max(c.sent, m.Segment)
	}
	c.emitRequest(m)
	return true
}

// OnReceive accounts n response bytes against the oldest outstanding
// sub-requests, completing each one whose size is exhausted.
func (c *Controller) OnReceive(n int64) {
	for c.state != StateTerminal && c.pending.Len() > 0 {
		front := c.pending.Front()
		if n == 0 && front.Size > c.received {
			return
		}
		if front.ID > c.recvID {
			c.recvID = front.ID
			c.sess.Download.MarkStart(front.ID, c.now())
		}
		need := front.Size - c.received
		if n < need {
			c.received += n
			return
		}
		n -= need
		c.received = 0
		c.pending.PopFront()
		c.complete(front)
	}
	if n > 0 && c.state != StateTerminal {
		c.log.Warn("bytes received without outstanding request", "bytes", n)
	}
}

// complete books sub once its request finished: a group finishes with its
// last sub-request, i.e. when the next outstanding one belongs to a later
// request.
func (c *Controller) complete(sub request.SubRequest) {
	if sub.Group && c.pending.Len() > 0 && c.pending.Front().ID <= sub.ID {
		return
	}
	now := c.now()
	c.cfg.Shape.Complete(now, sub)

	upgrade := c.sess.Mode == session.ModeHybrid && !sub.Group
	if upgrade {
		c.singleDownloaded = max(c.singleDownloaded, sub.Segment)
	} else {
		c.downloaded = max(c.downloaded, sub.Segment)
	}
	rec := c.sess.Download.At(sub.ID)
	c.emit(TraceDownloaded, sub.Segment, rec.Qualities[rec.Viewpoint], bytesOf(c.sess, rec))
	c.dispatch(EventDownloadFinished)
}

// startPlayback plays the next segment if the watched viewpoint has it.
func (c *Controller) startPlayback() bool {
	now := c.now()
	model := c.cfg.Model
	if c.playIndex > c.sess.Buffers[model.Current()].LastSegment() {
		c.emit(TraceBufferUnderrun, c.playIndex, -1, 0)
		c.log.Info("buffer underrun", "segment", c.playIndex, "viewpoint", model.Current())
		c.buffering = true
		return false
	}

	before := model.Current()
	vp := model.Advance(c.playIndex, now)
	changed := c.playIndex > 0 && vp != before

	var qualities []int
	if e, ok := c.sess.Segments.Get(c.playIndex); ok {
		qualities = append(qualities, e.Qualities...)
	}
	c.sess.Playback.Append(session.PlaybackRecord{
		Segment:   c.playIndex,
		Viewpoint: vp,
		Start:     now,
		Buffering: c.buffering,
		Qualities: qualities,
	})
	c.buffering = false
	c.ticking = true
	c.cfg.Scheduler.Schedule(c.sess.SegmentDuration(), func() { c.dispatch(EventPlaybackFinished) })
	c.emit(TraceStartPlayback, c.playIndex, c.sess.Segments.Quality(c.playIndex, vp), 0)
	played := c.playIndex
	c.playIndex++

	if changed {
		c.emit(TraceViewpointSwitch, played, -1, 0)
		if c.sess.Mode == session.ModeHybrid {
			c.single = true
			c.singleSent = played
			if c.state == StatePlaying {
				c.irdGen++
				c.state = StateDownloadingPlaying
				c.dispatch(EventViewChange)
			}
		}
	}
	return true
}

func (c *Controller) playbackFinished() {
	c.emit(TraceEndPlayback, c.playIndex-1, -1, 0)
	if c.playIndex > c.lastSegment() {
		c.terminate()
		return
	}
	if c.startPlayback() {
		return
	}
	switch c.state {
	case StateDownloadingPlaying:
		c.state = StateDownloading
	case StatePlaying:
		// stalled during an inter-request delay: fetch right away
		c.irdGen++
		c.state = StateDownloading
		if c.pending.Len() == 0 && !c.allDownloaded() {
			c.issue()
		}
	}
}

// refreshUpgrade re-evaluates a pending hybrid upgrade run: it ends once
// its counter passes the last buffered segment of the watched viewpoint,
// otherwise the next segment worth upgrading is selected.
func (c *Controller) refreshUpgrade() {
	if c.sess.Mode != session.ModeHybrid || !c.single {
		return
	}
	vp := c.cfg.Model.Current()
	last := c.sess.Buffers[vp].LastSegment()
	if c.singleSent+1 > last {
		c.cancelUpgrade()
		return
	}

	for c.singleSent+1 <= last && c.sess.Segments.Quality(c.singleSent+1, vp) >= 1 {
		c.singleSent++
	}
	for c.sess.Playback.Played(c.singleSent + 1) {
		c.singleSent++
	}
	for {
		if c.singleSent+1 > last {
			c.cancelUpgrade()
			return
		}
		trial := c.cfg.Shape.Prepare(c.now(), request.Params{
			Segment:   c.singleSent + 1,
			Viewpoint: vp,
			Upgrade:   true,
		})
		if !trial.Decision.Skip {
			return
		}
		c.singleSent++
	}
}

func (c *Controller) cancelUpgrade() {
	c.single = false
	c.log.Debug("upgrade run ended", "segment", c.singleSent+1)
}

func (c *Controller) terminate() {
	c.state = StateTerminal
	c.irdGen++
	c.emit(TraceTerminated, c.playIndex-1, -1, 0)
	if c.cfg.Recorder != nil {
		if err := c.cfg.Recorder.Record(c.sess); err != nil {
			c.log.Error("failed to record session", "error", err)
		}
	}
	c.cfg.Transport.Close()
	c.log.Info("session finished", "played", c.sess.Playback.Len(), "requests", c.sess.Download.Len())
}

func (c *Controller) emit(t TraceType, seg, quality int, bytes int64) {
	if c.cfg.Tracer == nil {
		return
	}
	vp := c.cfg.Model.Current()
	c.cfg.Tracer(Trace{
		Session:   c.sess.ID,
		Type:      t,
		State:     c.state,
		Time:      c.now(),
		Segment:   seg,
		Viewpoint: vp,
		Quality:   quality,
		Bytes:     bytes,
		Buffer:    c.sess.Buffers[vp].Level(c.now()),
	})
}

func (c *Controller) emitRequest(m request.Message) {
	if c.cfg.Tracer == nil {
		return
	}
	c.cfg.Tracer(Trace{
		Session:   c.sess.ID,
		Type:      TraceSendRequest,
		State:     c.state,
		Time:      c.now(),
		Segment:   m.Segment,
		Viewpoint: m.Viewpoint,
		Quality:   m.Decision.Quality(m.Viewpoint),
		Bytes:     m.Bytes(),
		Buffer:    c.sess.Buffers[m.Viewpoint].Level(c.now()),
		Upgrade:   m.Upgrade,
		Decision:  m.Decision,
	})
}

func bytesOf(sess *session.Session, rec session.DownloadRecord) int64 {
	var n int64
	for v, q := range rec.Qualities {
		if q >= 0 && rec.Segments[v] >= 0 {
			n += sess.Catalog.Size(v, q, rec.Segments[v])
		}
	}
	return n
}
