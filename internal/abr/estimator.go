package abr

import (
	"math"

	"github.com/gammazero/deque"
	"github.com/pkg/errors"

	"mvdash/internal/catalog"
	"mvdash/internal/session"
)

// ErrUnknownForecast is returned by ParseForecast.
var ErrUnknownForecast = errors.New("unknown bandwidth forecast")

// Forecast selects how the next-download bandwidth is predicted.
type Forecast int

const (
	// ForecastRobust divides the harmonic mean of the window by
	// (1 + largest relative prediction error).
	ForecastRobust Forecast = iota
	// ForecastLast uses the most recent sample unchanged.
	ForecastLast
)

func (f Forecast) String() string {
	if f == ForecastLast {
		return "last"
	}
	return "robust"
}

// ParseForecast maps a configuration string to a Forecast.
func ParseForecast(s string) (Forecast, error) {
	switch s {
	case "", "robust":
		return ForecastRobust, nil
	case "last":
		return ForecastLast, nil
	default:
		return 0, errors.Wrap(ErrUnknownForecast, s)
	}
}

const (
	estimatorWindow = 5
	// minDownloadTime floors measured download times (µs).
	minDownloadTime = 1000
)

// Estimator keeps a sliding window of throughput samples, expressed in bytes
// per segment duration, and the relative error of each previous forecast.
type Estimator struct {
	policy   Forecast
	samples  deque.Deque[float64]
	errs     deque.Deque[float64]
	estimate float64
	seen     int
}

// NewEstimator returns an empty estimator.
func NewEstimator(policy Forecast) *Estimator {
	return &Estimator{policy: policy, seen: -1}
}

// Observe ingests rec if it has not been seen yet. Records are identified by
// ID so repeated observation of the same history is a no-op.
func (e *Estimator) Observe(c *catalog.Catalog, rec session.DownloadRecord) {
	if rec.Pending() || rec.ID == e.seen {
		return
	}
	e.seen = rec.ID
	e.Add(float64(recordBytes(c, rec)), rec.DownloadTime(), c.SegmentDuration)
}

// Add appends one sample of size bytes downloaded in elapsed µs.
func (e *Estimator) Add(size float64, elapsed, segmentDuration int64) {
	sample := size * float64(segmentDuration) / float64(max(elapsed, minDownloadTime))

	if e.samples.Len() >= estimatorWindow {
		e.samples.PopFront()
	}
	if e.errs.Len() >= estimatorWindow {
		e.errs.PopFront()
	}

	var relErr float64
	if e.estimate > 0 && sample > 0 {
		relErr = math.Abs(e.estimate-sample) / sample
	}
	e.samples.PushBack(sample)
	e.errs.PushBack(relErr)
	e.estimate = e.forecast()
}

func (e *Estimator) forecast() float64 {
	n := e.samples.Len()
	if n == 0 {
		return 0
	}
	if e.policy == ForecastLast {
		return e.samples.Back()
	}
	var inv, worst float64
	for i := 0; i < n; i++ {
		s := e.samples.At(i)
		if s <= 0 {
			return 0
		}
		inv += 1 / s
	}
	for i := 0; i < e.errs.Len(); i++ {
		worst = math.Max(worst, e.errs.At(i))
	}
	return float64(n) / inv / (1 + worst)
}

// Estimate returns the current forecast in bytes per segment duration.
func (e *Estimator) Estimate() float64 { return e.estimate }

// Last returns the most recent sample.
func (e *Estimator) Last() float64 {
	if e.samples.Len() == 0 {
		return 0
	}
	return e.samples.Back()
}

// Len returns the number of samples in the window.
func (e *Estimator) Len() int { return e.samples.Len() }
