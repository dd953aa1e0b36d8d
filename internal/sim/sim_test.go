package sim

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvdash/internal/request"
)

func TestScheduler_Run_order(t *testing.T) {
	s := NewScheduler()
	var got []string
	s.Schedule(20, func() { got = append(got, "b") })
	s.Schedule(10, func() { got = append(got, "a") })
	s.Schedule(20, func() { got = append(got, "c") })
	s.Schedule(10, func() {
		s.Schedule(0, func() { got = append(got, "a2") })
	})

	n, err := s.Run(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []string{"a", "a2", "b", "c"}, got)
	assert.Equal(t, int64(20), s.Now())
}

func TestScheduler_Run_until(t *testing.T) {
	s := NewScheduler()
	fired := false
	s.Schedule(500, func() { fired = true })

	_, err := s.Run(context.Background(), 100)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, int64(100), s.Now())
	assert.Equal(t, 1, s.Pending())

	_, err = s.Run(context.Background(), 1000)
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestScheduler_Run_canceled(t *testing.T) {
	s := NewScheduler()
	s.Schedule(1, func() {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx, 100)
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseTrace(t *testing.T) {
	points, err := ParseTrace(strings.NewReader("0 5000000\n2000000 1000000\n\n9 9\n"))
	require.NoError(t, err)
	assert.Equal(t, []RatePoint{{At: 0, Rate: 5e6}, {At: 2000000, Rate: 1e6}}, points)

	_, err = ParseTrace(strings.NewReader("10\n"))
	require.Error(t, err)
}

type receiverFunc func(n int64)

func (f receiverFunc) OnReceive(n int64) { f(n) }

func payload(id int, size int64) []byte {
	return request.Encode([]request.SubRequest{{ID: id, Segment: 0, Quality: 0, Size: size}})
}

func TestLink_roundRobin(t *testing.T) {
	s := NewScheduler()
	// one packet per millisecond
	link := NewLink(s, LinkSpec{Rate: PacketSize * 8 * 1000}, nil)

	var order []int
	for i := 0; i < 2; i++ {
		i := i
		c := link.Dial()
		c.Bind(receiverFunc(func(int64) { order = append(order, i) }), nil)
		require.True(t, c.Send(payload(0, 2*PacketSize+10)))
	}

	_, err := s.Run(context.Background(), 1<<40)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0, 1, 0, 1}, order)
	assert.Equal(t, int64(2*(2*PacketSize+10)), link.SentBytes())
}

func TestLink_rateAndDelay(t *testing.T) {
	s := NewScheduler()
	link := NewLink(s, LinkSpec{Rate: 8e6, Delay: 1000}, nil)
	c := link.Dial()
	var at []int64
	c.Bind(receiverFunc(func(int64) { at = append(at, s.Now()) }), nil)
	require.True(t, c.Send(payload(0, PacketSize)))

	_, err := s.Run(context.Background(), 1<<40)
	require.NoError(t, err)
	// request delay + 1446 µs on the wire + response delay
	assert.Equal(t, []int64{1000 + PacketSize + 1000}, at)
	assert.Equal(t, int64(PacketSize), c.Received())
}

func TestLink_trace(t *testing.T) {
	s := NewScheduler()
	link := NewLink(s, LinkSpec{Rate: 0, Trace: []RatePoint{{At: 5000, Rate: 8e6}}}, nil)
	c := link.Dial()
	var at int64
	c.Bind(receiverFunc(func(int64) { at = s.Now() }), nil)
	require.True(t, c.Send(payload(0, 1000)))

	_, err := s.Run(context.Background(), 1<<40)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), at, "paused until the trace raises the rate")
	assert.Equal(t, 8e6, link.Rate())
}

func TestConn_Send_maxPending(t *testing.T) {
	s := NewScheduler()
	link := NewLink(s, LinkSpec{Rate: 8e6, MaxPending: 1}, nil)
	c := link.Dial()
	ready := 0
	c.Bind(receiverFunc(func(int64) {}), func() { ready++ })

	require.True(t, c.Send(payload(0, 100)))
	assert.False(t, c.Send(payload(1, 100)))

	_, err := s.Run(context.Background(), 1<<40)
	require.NoError(t, err)
	assert.Equal(t, 1, ready)
	assert.True(t, c.Send(payload(1, 100)))

	c.Close()
	assert.False(t, c.Send(payload(2, 100)))
}

func TestConn_Send_malformed(t *testing.T) {
	s := NewScheduler()
	c := NewLink(s, LinkSpec{Rate: 8e6}, nil).Dial()
	assert.False(t, c.Send([]byte{1, 2, 3}))
}
