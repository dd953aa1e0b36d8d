package sim

import (
	"bufio"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gammazero/deque"
	"github.com/pkg/errors"

	"mvdash/internal/request"
)

// PacketSize is the largest payload the server writes per packet.
const PacketSize = 1446

// RatePoint changes the bottleneck rate (bit/s) at time At (µs).
type RatePoint struct {
	At   int64
	Rate float64
}

// LinkSpec describes the bottleneck between the server and all clients.
type LinkSpec struct {
	// Rate is the initial bottleneck rate in bit/s.
	Rate float64
	// Delay is the one-way propagation delay in µs, applied to requests and
	// to response packets.
	Delay int64
	// Trace replaces Rate at the listed times.
	Trace []RatePoint
	// MaxPending caps the sub-requests a client may have outstanding; a
	// Send beyond it is rejected until the server drains one. 0 disables it.
	MaxPending int
}

// ParseTrace reads a bandwidth trace of "time_us bps" lines. Parsing stops
// at the first empty line.
func ParseTrace(r io.Reader) ([]RatePoint, error) {
	var points []RatePoint
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			break
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, errors.Errorf("bandwidth trace line %d: want 2 fields", line)
		}
		at, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bandwidth trace line %d", line)
		}
		rate, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bandwidth trace line %d", line)
		}
		points = append(points, RatePoint{At: at, Rate: rate})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read bandwidth trace")
	}
	return points, nil
}

// LoadTraceFile reads a bandwidth trace from path.
func LoadTraceFile(path string) ([]RatePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open bandwidth trace %s", path)
	}
	defer f.Close()
	return ParseTrace(f)
}

// Receiver consumes response bytes in arrival order.
type Receiver interface {
	OnReceive(n int64)
}

// Link is the shared bottleneck plus the segment server behind it. The
// server keeps a FIFO of sub-requests per connection and writes packets of
// at most PacketSize bytes, serving connections round-robin.
type Link struct {
	sched *Scheduler
	spec  LinkSpec
	rate  float64
	log   *slog.Logger

	conns []*Conn
	next  int
	busy  bool

	sentBytes int64
}

// NewLink attaches a link to sched and schedules the rate changes of
// spec.Trace.
func NewLink(sched *Scheduler, spec LinkSpec, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Link{sched: sched, spec: spec, rate: spec.Rate, log: logger}
	for _, p := range spec.Trace {
		p := p
		sched.At(p.At, func() { l.SetRate(p.Rate) })
	}
	return l
}

// Rate returns the current bottleneck rate in bit/s.
func (l *Link) Rate() float64 { return l.rate }

// SentBytes returns the response bytes put on the wire so far.
func (l *Link) SentBytes() int64 { return l.sentBytes }

// SetRate changes the bottleneck rate. A rate of 0 pauses the server.
func (l *Link) SetRate(bps float64) {
	l.log.Debug("bottleneck rate", "bps", bps, "at", l.sched.Now())
	l.rate = max(bps, 0)
	l.kick()
}

// Dial opens a connection for one client. Bind must be called before the
// first Send.
func (l *Link) Dial() *Conn {
	c := &Conn{link: l, id: len(l.conns)}
	l.conns = append(l.conns, c)
	return c
}

// kick starts transmitting the next packet if the wire is idle.
func (l *Link) kick() {
	if l.busy || l.rate <= 0 {
		return
	}
	c := l.pick()
	if c == nil {
		return
	}
	front := c.queue.Front()
	n := min(int64(PacketSize), front.remaining)
	tx := int64(math.Ceil(float64(n) * 8e6 / l.rate))
	l.busy = true
	l.sched.Schedule(max(tx, 1), func() { l.transmitted(c, n) })
}

// pick returns the next connection with queued data, round-robin.
func (l *Link) pick() *Conn {
	for i := range l.conns {
		c := l.conns[(l.next+i)%len(l.conns)]
		if !c.closed && c.queue.Len() > 0 {
			l.next = (c.id + 1) % len(l.conns)
			return c
		}
	}
	return nil
}

func (l *Link) transmitted(c *Conn, n int64) {
	l.busy = false
	if !c.closed && c.queue.Len() > 0 {
		l.sentBytes += n
		front := c.queue.Front()
		front.remaining -= n
		if front.remaining <= 0 {
			c.queue.PopFront()
			c.served()
		}
		l.sched.Schedule(l.spec.Delay, func() { c.deliver(n) })
	}
	l.kick()
}

// Conn is one client's connection. It implements client.Transport.
type Conn struct {
	link *Link
	id   int

	recv  Receiver
	ready func()

	queue       deque.Deque[*job]
	outstanding int
	blocked     bool
	closed      bool

	received int64
}

type job struct {
	sub       request.SubRequest
	remaining int64
}

// Bind sets the receiver of response bytes and the callback run when a
// previously rejected Send may be retried.
func (c *Conn) Bind(recv Receiver, ready func()) {
	c.recv = recv
	c.ready = ready
}

// Received returns the response bytes delivered to the receiver.
func (c *Conn) Received() int64 { return c.received }

// Send forwards an encoded request to the server. It returns false when the
// connection is closed, the payload is malformed or the pending cap would
// be exceeded.
func (c *Conn) Send(payload []byte) bool {
	if c.closed {
		return false
	}
	subs, err := request.Decode(payload)
	if err != nil {
		c.link.log.Warn("dropping malformed request", "conn", c.id, "error", err)
		return false
	}
	if limit := c.link.spec.MaxPending; limit > 0 && c.outstanding+len(subs) > limit {
		c.blocked = true
		return false
	}
	c.outstanding += len(subs)
	c.link.sched.Schedule(c.link.spec.Delay, func() { c.enqueue(subs) })
	return true
}

// Close drops everything still queued for the connection.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.queue.Clear()
	c.outstanding = 0
}

func (c *Conn) enqueue(subs []request.SubRequest) {
	if c.closed {
		return
	}
	for _, s := range subs {
		if s.Size <= 0 {
			c.served()
			continue
		}
		c.queue.PushBack(&job{sub: s, remaining: s.Size})
	}
	c.link.kick()
}

// served releases one pending slot and wakes a blocked sender.
func (c *Conn) served() {
	c.outstanding--
	if c.blocked && c.ready != nil {
		c.blocked = false
		c.link.sched.Schedule(0, c.ready)
	}
}

func (c *Conn) deliver(n int64) {
	if c.closed || c.recv == nil {
		return
	}
	c.received += n
	c.recv.OnReceive(n)
}
