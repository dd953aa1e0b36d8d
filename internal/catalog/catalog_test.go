package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleTable = `2 3 1000000 3 2
100 200 300 110 220
100 200 300 110 220
400 500 600 130 260
`

func TestParse(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleTable))
	require.NoError(t, err)

	require.Equal(t, 2, c.NumViewpoints())
	require.Equal(t, 3, c.Segments)
	require.Equal(t, 2, c.LastSegment())
	require.Equal(t, int64(1000000), c.SegmentDuration)
	require.Equal(t, 3, c.RepCount(0))
	require.Equal(t, 2, c.RepCount(1))

	require.Equal(t, int64(400), c.Size(0, 0, 2))
	require.Equal(t, int64(600), c.Size(0, 2, 2))
	require.Equal(t, int64(260), c.Size(1, 1, 2))
	require.Equal(t, int64(0), c.Size(1, -1, 2))

	// (100+100+400)/3 = 200 bytes per 1 s segment
	require.InDelta(t, 1600.0, c.Bitrate(0, 0), 1e-9)
}

func TestParse_short_table(t *testing.T) {
	_, err := Parse(strings.NewReader("2 3 1000000 3 2\n100 200 300 110 220\n"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformed))
}

func TestParse_bad_number(t *testing.T) {
	_, err := Parse(strings.NewReader("1 1 1000000 1\nabc\n"))
	require.True(t, errors.Is(err, ErrMalformed))
}

func TestParse_empty(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	require.True(t, errors.Is(err, ErrMalformed))
}

func TestCatalog_ParseScores(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleTable))
	require.NoError(t, err)
	require.False(t, c.HasScores())

	scores := "10 20 30 40 50\n11 21 31 41 51\n12 22 32 42 52\n"
	require.NoError(t, c.ParseScores(strings.NewReader(scores)))
	require.True(t, c.HasScores())
	require.Equal(t, 30.0, c.Score(0, 2, 0))
	require.Equal(t, 51.0, c.Score(1, 1, 1))
	require.Equal(t, 0.0, c.Score(1, -1, 1))
}

func TestCatalog_ParseScores_shared_line(t *testing.T) {
	c, err := New(1000000, [][][]int64{
		{{1, 1}, {2, 2}},
		{{1, 1}, {2, 2}},
	})
	require.NoError(t, err)

	require.NoError(t, c.ParseScores(strings.NewReader("30 80\n35 85\n")))
	require.Equal(t, 80.0, c.Score(0, 1, 0))
	require.Equal(t, 80.0, c.Score(1, 1, 0))
	require.Equal(t, 35.0, c.Score(1, 0, 1))
}

func TestNew_mismatched_segments(t *testing.T) {
	_, err := New(1000000, [][][]int64{{{1, 2}}, {{1}}})
	require.True(t, errors.Is(err, ErrMalformed))
}
