package abr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvdash/internal/session"
)

func TestEstimator_Add_floorsDownloadTime(t *testing.T) {
	e := NewEstimator(ForecastRobust)
	e.Add(1000, 0, 1000000)
	assert.InDelta(t, 1e6, e.Last(), 1e-9)
	assert.InDelta(t, 1e6, e.Estimate(), 1e-9)
}

func TestEstimator_Add_robust(t *testing.T) {
	e := NewEstimator(ForecastRobust)
	e.Add(100, 1000000, 1000000)
	e.Add(200, 1000000, 1000000)

	harmonic := 2 / (1.0/100 + 1.0/200)
	assert.InDelta(t, harmonic/1.5, e.Estimate(), 1e-9)
	assert.InDelta(t, 200, e.Last(), 1e-9)
}

func TestEstimator_Add_last(t *testing.T) {
	e := NewEstimator(ForecastLast)
	e.Add(100, 1000000, 1000000)
	e.Add(200, 1000000, 1000000)
	assert.InDelta(t, 200, e.Estimate(), 1e-9)
}

func TestEstimator_Add_window(t *testing.T) {
	e := NewEstimator(ForecastLast)
	for i := 1; i <= 8; i++ {
		e.Add(float64(i), 1000000, 1000000)
	}
	assert.Equal(t, estimatorWindow, e.Len())
	assert.InDelta(t, 8, e.Last(), 1e-9)
}

func TestEstimator_Observe_once(t *testing.T) {
	c := testCatalog(t)
	e := NewEstimator(ForecastRobust)
	rec := session.DownloadRecord{
		ID:        0,
		Segments:  []int{0, 0},
		Qualities: []int{0, 0},
		Sent:      100000,
		End:       200000,
	}
	e.Observe(c, rec)
	e.Observe(c, rec)
	require.Equal(t, 1, e.Len())
	assert.InDelta(t, 250000*10.0, e.Last(), 1e-6)

	pending := rec
	pending.ID = 1
	pending.End = 0
	e.Observe(c, pending)
	require.Equal(t, 1, e.Len())
}

func TestParseForecast(t *testing.T) {
	f, err := ParseForecast("last")
	require.NoError(t, err)
	assert.Equal(t, ForecastLast, f)

	f, err = ParseForecast("")
	require.NoError(t, err)
	assert.Equal(t, ForecastRobust, f)

	_, err = ParseForecast("oracle")
	require.ErrorIs(t, err, ErrUnknownForecast)
}
