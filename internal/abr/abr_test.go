package abr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvdash/internal/catalog"
	"mvdash/internal/session"
)

const testSegments = 10

// testCatalog has two viewpoints with 1, 2 and 4 Mbit/s representations of
// 1 s segments, scored 60, 80 and 95.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	sizes := make([][][]int64, 2)
	for v := range sizes {
		for _, b := range []int64{125000, 250000, 500000} {
			row := make([]int64, testSegments)
			for s := range row {
				row[s] = b
			}
			sizes[v] = append(sizes[v], row)
		}
	}
	c, err := catalog.New(1000000, sizes)
	require.NoError(t, err)
	for v := range c.Viewpoints {
		for q, score := range []float64{60, 80, 95} {
			row := make([]float64, testSegments)
			for s := range row {
				row[s] = score
			}
			c.Viewpoints[v].Reps[q].Scores = row
		}
	}
	return c
}

// testSession returns a group session whose segment 0 took 100 ms to
// arrive at 0.2 s.
func testSession(t *testing.T, mode session.Mode) *session.Session {
	t.Helper()
	s := session.New("t", testCatalog(t), mode)
	id := s.Download.Append(session.DownloadRecord{
		Group:     true,
		Segments:  []int{0, 0},
		Qualities: []int{0, 0},
		Viewpoint: 0,
		Sent:      100000,
	})
	s.Download.MarkStart(id, 150000)
	s.Download.MarkEnd(id, 200000)
	s.Segments.Set(0, []int{0, 0})
	for _, b := range s.Buffers {
		b.Add(200000, 0, 1000000, 0)
	}
	return s
}

func TestNew_unknown(t *testing.T) {
	_, err := New("bola", testSession(t, session.ModeGroup), Options{})
	require.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestNew_aliases(t *testing.T) {
	sess := testSession(t, session.ModeGroup)
	for _, name := range []string{"adaptation_mpc", "panda", "TOBASCO", "adaptation_qmetric", "adaptation_test", "naive"} {
		s, err := New(name, sess, Options{})
		require.NoError(t, err, name)
		require.NotNil(t, s)
	}

	s, err := New("maximize_current", sess, Options{})
	require.NoError(t, err)
	assert.IsType(t, &Naive{}, s)
}

func TestStrategy_Select_firstSegment(t *testing.T) {
	for _, name := range []string{NameMPC, NamePANDA, NameTOBASCO, NameQmetric, NameNaive} {
		sess := session.New("t", testCatalog(t), session.ModeGroup)
		s, err := New(name, sess, Options{})
		require.NoError(t, err)

		d := s.Select(0, Request{Segment: 0, Viewpoint: 1, Group: true, Mode: session.ModeGroup})
		assert.Equal(t, []int{0, 0}, d.Qualities, name)
		assert.Zero(t, d.Delay, name)
		assert.False(t, d.Skip, name)

		d = s.Select(0, Request{Segment: 0, Viewpoint: 1, Mode: session.ModeSingle})
		assert.Equal(t, []int{-1, 0}, d.Qualities, name)
		assert.True(t, d.Skip, name)
	}
}

func TestStrategy_Select_idempotent(t *testing.T) {
	reqs := []Request{
		{Segment: 1, Viewpoint: 0, Group: true, Mode: session.ModeGroup},
		{Segment: 1, Viewpoint: 1, Mode: session.ModeHybrid},
		{Segment: 2, Viewpoint: 1, Mode: session.ModeHybrid},
	}
	for _, name := range []string{NameMPC, NamePANDA, NameTOBASCO, NameQmetric, NameNaive} {
		sess := testSession(t, session.ModeHybrid)
		s, err := New(name, sess, Options{})
		require.NoError(t, err)
		for _, req := range reqs {
			first := s.Select(300000, req)
			again := s.Select(300000, req)
			assert.Equal(t, first, again, "%s %+v", name, req)
		}
	}
}

func TestMPC_Select_optimal(t *testing.T) {
	sess := testSession(t, session.ModeGroup)
	m := NewMPC(sess, Options{})
	req := Request{Segment: 1, Viewpoint: 0, Group: true, Mode: session.ModeGroup}

	d := m.Select(200000, req)
	assert.Equal(t, []int{2, 0}, d.Qualities)

	rec, _ := sess.Download.LastCompleted()
	st, ok := m.start(200000, req, rec)
	require.True(t, ok)
	best, bestReward := m.search(req, st)
	assert.Equal(t, best[0], d.Quality(0))

	k := m.horizon(req.Segment)
	combo := make([]int, k)
	total := int(math.Pow(3, float64(k)))
	for idx := 0; idx < total; idx++ {
		j := idx
		for i := range combo {
			combo[i] = j % 3
			j /= 3
		}
		assert.LessOrEqual(t, m.reward(req, st, combo), bestReward, "%v", combo)
	}
}

func TestMPC_horizon(t *testing.T) {
	m := NewMPC(testSession(t, session.ModeGroup), Options{})
	assert.Equal(t, 5, m.horizon(1))
	assert.Equal(t, 2, m.horizon(testSegments-2))
	assert.Equal(t, 1, m.horizon(testSegments-1))
}

func TestMPC_Select_bufferHighDelay(t *testing.T) {
	sess := testSession(t, session.ModeGroup)
	for _, b := range sess.Buffers {
		b.Add(200000, 1000000, 9000000, 5)
	}
	m := NewMPC(sess, Options{})
	d := m.Select(200000, Request{Segment: 6, Viewpoint: 0, Group: true, Mode: session.ModeGroup})
	assert.Positive(t, d.Delay)
	assert.Less(t, d.Delay, int64(9000000))
}

func TestQmetric_Select_minimal(t *testing.T) {
	sess := testSession(t, session.ModeGroup)
	q := NewQmetric(sess, Options{})
	req := Request{Segment: 1, Viewpoint: 1, Group: true, Mode: session.ModeGroup}

	d := q.Select(200000, req)
	assert.Equal(t, []int{0, 1}, d.Qualities)

	rec, _ := sess.Download.LastCompleted()
	st := qmetricState{
		segment:   req.Segment,
		viewpoint: req.Viewpoint,
		buffer:    q.bufferLevel(req.Viewpoint, 200000),
		bandwidth: q.est.Estimate(),
		lastScore: q.lastScores(req, rec),
	}
	_, bestCost := q.search(req, st)
	for _, combo := range q.candidates(req, req.Segment) {
		assert.GreaterOrEqual(t, q.cost(st, combo), bestCost, "%v", combo)
	}
}

func TestQmetric_candidates_filter(t *testing.T) {
	q := NewQmetric(testSession(t, session.ModeGroup), Options{})
	group := q.candidates(Request{Segment: 1, Viewpoint: 0, Group: true, Mode: session.ModeGroup}, 1)
	assert.ElementsMatch(t, [][]int{{0, 0}, {1, 0}}, group)

	single := q.candidates(Request{Segment: 1, Viewpoint: 0, Mode: session.ModeSingle}, 1)
	assert.Equal(t, [][]int{{0, -1}, {1, -1}, {2, -1}}, single)
}

func TestQmetric_candidates_fallback(t *testing.T) {
	sess := testSession(t, session.ModeGroup)
	for _, r := range sess.Catalog.Viewpoints[0].Reps {
		for s := range r.Scores {
			r.Scores[s] = 99
		}
	}
	q := NewQmetric(sess, Options{})
	got := q.candidates(Request{Segment: 1, Viewpoint: 0, Group: true, Mode: session.ModeGroup}, 1)
	assert.Equal(t, [][]int{{0, 0}, {1, 0}, {2, 0}}, got)
}

func TestNaive_Select_budget(t *testing.T) {
	sess := testSession(t, session.ModeGroup)
	n := NewNaive(sess, Options{})
	req := Request{Segment: 1, Viewpoint: 0, Group: true, Mode: session.ModeGroup}

	d := n.Select(200000, req)
	assert.Equal(t, []int{2, 0}, d.Qualities)

	bw := n.est.Estimate()
	prev := math.MaxInt
	for level := int64(1000000); level >= 0; level -= 50000 {
		budget := n.budget(req, bw, level)
		q := n.choose(req, budget)
		if q > 0 {
			assert.LessOrEqual(t, float64(sess.Catalog.Size(0, q, 1)), budget, "level %d", level)
		}
		assert.LessOrEqual(t, q, prev, "level %d", level)
		prev = q
	}
}

func TestNaive_Select_skip(t *testing.T) {
	sess := testSession(t, session.ModeHybrid)
	n := NewNaive(sess, Options{})

	d := n.Select(1200000, Request{Segment: 1, Viewpoint: 1, Mode: session.ModeHybrid})
	assert.Equal(t, []int{-1, 0}, d.Qualities)
	assert.True(t, d.Skip)

	d = n.Select(1200000, Request{Segment: 1, Viewpoint: 1, Group: true, Mode: session.ModeHybrid})
	assert.Equal(t, []int{0, 0}, d.Qualities)
	assert.False(t, d.Skip)
}

func TestPANDA_Select_firstRequest(t *testing.T) {
	sess := testSession(t, session.ModeGroup)
	p := NewPANDA(sess, Options{})
	d := p.Select(200000, Request{Segment: 1, Viewpoint: 0, Group: true, Mode: session.ModeGroup})
	assert.Equal(t, []int{2, 0}, d.Qualities)
	assert.Zero(t, d.Delay)
	assert.True(t, p.state.initialized)
}

func TestTOBASCO_Select_fastStart(t *testing.T) {
	sess := testSession(t, session.ModeGroup)
	tb := NewTOBASCO(sess, Options{})
	d := tb.Select(200000, Request{Segment: 1, Viewpoint: 0, Group: true, Mode: session.ModeGroup})
	assert.Equal(t, []int{1, 0}, d.Qualities)
	assert.True(t, tb.state.fastStart)
}

func TestTOBASCO_averageThroughput(t *testing.T) {
	sess := testSession(t, session.ModeGroup)
	tb := NewTOBASCO(sess, Options{})
	// 250000 bytes in 100 ms
	assert.InDelta(t, 20e6, tb.averageThroughput(0, 300000), 1)
	assert.Zero(t, tb.averageThroughput(250000, 300000))
}

// A full-group request pays for its companions, so the same measured
// throughput buys a lower watched representation than a single request.
func TestPANDA_Select_requestRate(t *testing.T) {
	newSession := func(mode session.Mode) *session.Session {
		s := session.New("t", testCatalog(t), mode)
		// 2 Mbit in 350 ms, about 5.7 Mbit/s
		id := s.Download.Append(session.DownloadRecord{
			Group:     true,
			Segments:  []int{0, 0},
			Qualities: []int{0, 0},
			Sent:      100000,
		})
		s.Download.MarkStart(id, 150000)
		s.Download.MarkEnd(id, 450000)
		s.Segments.Set(0, []int{0, 0})
		return s
	}

	group := NewPANDA(newSession(session.ModeGroup), Options{})
	d := group.Select(500000, Request{Segment: 1, Viewpoint: 0, Group: true, Mode: session.ModeGroup})
	assert.Equal(t, []int{1, 0}, d.Qualities)

	single := NewPANDA(newSession(session.ModeSingle), Options{})
	d = single.Select(500000, Request{Segment: 1, Viewpoint: 0, Mode: session.ModeSingle})
	assert.Equal(t, []int{2, -1}, d.Qualities)
	assert.False(t, d.Skip)
}
