package viewpoint

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const cycleTrace = `0 2 1 10 7
0 1
1 0
0 0
0 0
`

func TestMarkov_Advance_cycle(t *testing.T) {
	m, err := LoadMarkov(strings.NewReader(cycleTrace))
	require.NoError(t, err)

	require.Equal(t, 0, m.Advance(0, 0))
	_, ok := m.Previous()
	require.False(t, ok)

	// initial dwell is twice the minimum, so segment 1 stays
	require.Equal(t, 0, m.Advance(1, 10))

	require.Equal(t, 1, m.Advance(2, 20))
	prev, ok := m.Previous()
	require.True(t, ok)
	require.Equal(t, 0, prev)
	require.Equal(t, 1, m.Current())

	require.Equal(t, 0, m.Advance(3, 30))
	prev, _ = m.Previous()
	require.Equal(t, 1, prev)
	require.Equal(t, 0, m.Current())

	require.Len(t, m.History(), 4)
	require.InDelta(t, 0.75, m.Ratio(0), 1e-9)
	require.InDelta(t, 0.25, m.Ratio(1), 1e-9)
}

func TestMarkov_Advance_dwell_is_idempotent(t *testing.T) {
	m, err := NewMarkov(
		[][]float64{{0.5, 0.5}, {0.5, 0.5}},
		[][]float64{{2, 2}, {2, 2}},
		4, 10, 3,
	)
	require.NoError(t, err)

	m.Advance(0, 0)
	for seg := 1; seg < 200; seg++ {
		before := m.Current()
		remaining := m.remaining
		got := m.Advance(seg, int64(seg))
		if remaining > 1 {
			require.Equal(t, before, got, "segment %d switched with dwell %d left", seg, remaining)
		}
	}
}

func TestMarkov_Advance_segment_zero_resets(t *testing.T) {
	m, err := LoadMarkov(strings.NewReader(cycleTrace))
	require.NoError(t, err)

	m.Advance(0, 0)
	m.Advance(1, 1)
	m.Advance(2, 2)
	require.Equal(t, 0, m.Advance(0, 3))
	require.Len(t, m.History(), 1)
	require.Equal(t, 1.0, m.Ratio(0))
}

func TestLoadMarkov_short(t *testing.T) {
	_, err := LoadMarkov(strings.NewReader("0 2 1 10 7\n0 1\n"))
	require.Error(t, err)
}

func TestFree_Advance(t *testing.T) {
	f := NewFree(DefaultFreeViews, DefaultFreeSeed)
	f.SetMinDwell(1)

	require.Equal(t, 0, f.Advance(0, 0))
	for seg := 1; seg < 500; seg++ {
		vp := f.Advance(seg, int64(seg))
		require.GreaterOrEqual(t, vp, 0)
		require.Less(t, vp, DefaultFreeViews)
	}

	var total float64
	for vp := 0; vp < DefaultFreeViews; vp++ {
		total += f.Ratio(vp)
	}
	require.InDelta(t, 1.0, total, 1e-9)
}

func TestFree_Advance_deterministic_for_seed(t *testing.T) {
	a := NewFree(3, 11)
	b := NewFree(3, 11)
	a.SetMinDwell(1)
	b.SetMinDwell(1)

	for seg := 0; seg < 100; seg++ {
		require.Equal(t, a.Advance(seg, 0), b.Advance(seg, 0))
	}
}

func TestNew_unknown(t *testing.T) {
	_, err := New("teleport", Options{NumViews: 2})
	require.True(t, errors.Is(err, ErrUnknownModel))
	require.Contains(t, err.Error(), "teleport")
}

func TestNew_free(t *testing.T) {
	m, err := New(NameFree, Options{NumViews: 2})
	require.NoError(t, err)
	require.Equal(t, 2, m.NumViews())
}
