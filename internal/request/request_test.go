package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvdash/internal/abr"
	"mvdash/internal/catalog"
	"mvdash/internal/session"
)

const dur = 1000000

type fixedEngine struct{ q int }

func (f fixedEngine) Select(_ int64, req abr.Request) abr.Decision {
	qs := make([]int, 2)
	for v := range qs {
		switch {
		case v == req.Viewpoint:
			qs[v] = f.q
		case req.Group && req.Mode != session.ModeGroupSG:
			qs[v] = 0
		default:
			qs[v] = -1
		}
	}
	return abr.Decision{Qualities: qs, Skip: !req.Group && f.q < 1}
}

func newSession(t *testing.T, mode session.Mode) *session.Session {
	t.Helper()
	c, err := catalog.New(dur, [][][]int64{
		{{100, 100, 100}, {200, 200, 200}},
		{{110, 110, 110}, {220, 220, 220}},
	})
	require.NoError(t, err)
	return session.New("t", c, mode)
}

func TestGroup_roundTrip(t *testing.T) {
	sess := newSession(t, session.ModeGroup)
	sh := New(sess, fixedEngine{q: 1}, nil)

	m := sh.Prepare(10, Params{Segment: 0, Viewpoint: 1})
	require.True(t, m.Group)
	require.Len(t, m.Requests, 2)
	assert.Equal(t, int64(100+220), m.Bytes())
	assert.Equal(t, 0, sess.Download.Len(), "prepare must not book anything")

	sh.Commit(10, m)
	rec := sess.Download.At(m.ID)
	assert.Equal(t, []int{0, 0}, rec.Segments)
	assert.Equal(t, []int{0, 1}, rec.Qualities)
	assert.Equal(t, 1, sess.Segments.Quality(0, 1))

	sh.Complete(500000, m.Requests[1])
	assert.Equal(t, int64(500000), sess.Download.At(m.ID).End)
	for _, b := range sess.Buffers {
		last, ok := b.Last()
		require.True(t, ok)
		assert.Equal(t, int64(0), last.Old)
		assert.Equal(t, int64(dur), last.New)
		assert.Equal(t, 0, b.LastSegment())
	}

	m = sh.Prepare(500000, Params{Segment: 1, Viewpoint: 1})
	sh.Commit(500000, m)
	sh.Complete(800000, m.Requests[0])
	last, _ := sess.Buffers[0].Last()
	assert.Equal(t, int64(700000), last.Old)
	assert.Equal(t, int64(1700000), last.New)
}

func TestSingle_Complete(t *testing.T) {
	sess := newSession(t, session.ModeSingle)
	sh := New(sess, fixedEngine{q: 1}, nil)

	m := sh.Prepare(0, Params{Segment: 0, Viewpoint: 0})
	require.False(t, m.Group)
	require.Len(t, m.Requests, 1)
	assert.False(t, m.Decision.Skip)

	sh.Commit(0, m)
	assert.Equal(t, []int{0, -1}, sess.Download.At(0).Segments)
	assert.Equal(t, -1, sess.Segments.Quality(0, 1))

	sh.Complete(100, m.Requests[0])
	watched, _ := sess.Buffers[0].Last()
	other, _ := sess.Buffers[1].Last()
	assert.Equal(t, int64(dur), watched.New)
	assert.Equal(t, int64(0), other.New)
	assert.Equal(t, 0, sess.Buffers[1].LastSegment())
}

func TestGroupSG_Prepare(t *testing.T) {
	sess := newSession(t, session.ModeGroupSG)
	sh := New(sess, fixedEngine{q: 1}, nil)

	m := sh.Prepare(0, Params{Segment: 2, Viewpoint: 1})
	require.True(t, m.Group)
	require.Len(t, m.Requests, 1)
	assert.Equal(t, 1, m.Requests[0].Viewpoint)
	assert.Equal(t, int64(220), m.Bytes())

	sh.Commit(0, m)
	sh.Complete(100, m.Requests[0])
	other, _ := sess.Buffers[0].Last()
	assert.Equal(t, int64(0), other.New)
	assert.Equal(t, 2, sess.Buffers[0].LastSegment())
}

func TestHybrid_upgrade(t *testing.T) {
	sess := newSession(t, session.ModeHybrid)
	engine := &switchEngine{q: 0}
	sh := New(sess, engine, nil)

	for seg := 0; seg < 2; seg++ {
		m := sh.Prepare(int64(seg)*100000, Params{Segment: seg, Viewpoint: 0})
		sh.Commit(int64(seg)*100000, m)
		sh.Complete(int64(seg)*100000+50000, m.Requests[len(m.Requests)-1])
	}
	sess.Playback.Append(session.PlaybackRecord{Segment: 0, Viewpoint: 0, Start: 150000})

	engine.q = 1
	trial := sh.Prepare(200000, Params{Segment: 1, Viewpoint: 1, Upgrade: true})
	require.True(t, trial.Upgrade)
	require.False(t, trial.Group)
	require.Len(t, trial.Requests, 1)
	assert.False(t, trial.Decision.Skip)

	sh.Commit(200000, trial)
	assert.Equal(t, 0, sess.Segments.Quality(1, 1), "upgrade is not playable before it arrives")

	before, _ := sess.Buffers[1].Last()
	sh.Complete(450000, trial.Requests[0])

	after, _ := sess.Buffers[1].Last()
	assert.Equal(t, after.Old, after.New, "main buffer does not grow")
	assert.Equal(t, before.New-(450000-before.Time), after.New)
	assert.Equal(t, 1, sess.Buffers[1].LastSegment())

	tmp, ok := sess.Buffers[1].LastTemp()
	require.True(t, ok)
	assert.Equal(t, int64(dur-300000), tmp.Old)
	assert.Equal(t, int64(2*dur-300000), tmp.New)

	e, _ := sess.Segments.Get(1)
	assert.True(t, e.Redownloaded)
	assert.Equal(t, 1, sess.Segments.Quality(1, 1))
}

type switchEngine struct{ q int }

func (s *switchEngine) Select(now int64, req abr.Request) abr.Decision {
	return fixedEngine{q: s.q}.Select(now, req)
}

func TestCodec_roundTrip(t *testing.T) {
	subs := []SubRequest{
		{ID: 7, Group: true, Viewpoint: 0, Segment: 12, Quality: 0, Size: 125000},
		{ID: 7, Group: true, Viewpoint: 1, Segment: 12, Quality: 2, Size: 500000},
	}
	b := Encode(subs)
	require.Len(t, b, 2*RecordSize)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, subs, got)
}

func TestCodec_Decode_malformed(t *testing.T) {
	_, err := Decode(make([]byte, RecordSize+3))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(nil)
	require.ErrorIs(t, err, ErrMalformed)
}
