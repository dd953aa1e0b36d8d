package viewpoint

import "math/rand"

// Defaults of the free viewpoint model.
const (
	DefaultFreeViews    = 5
	DefaultFreeMinDwell = 300
	DefaultFreeExpBound = 10.0
	DefaultFreeSeed     = 2

	fallbackAvgDwell = 3.0
)

var (
	defaultCumulative = []float64{0.4, 0.6, 0.8, 0.9, 1.0}
	defaultAvgDwell   = []float64{4, 2, 2, 3, 3}
)

// Free is a viewpoint model with a single switching distribution that does
// not depend on the viewpoint being left.
type Free struct {
	dwell
	cumulativeProb []float64
	avgDwellTime   []float64
}

// NewFree returns a free model for numViews viewpoints. Five viewpoints use
// the reference distribution; any other count switches uniformly.
func NewFree(numViews int, seed int64) *Free {
	if numViews <= 0 {
		numViews = DefaultFreeViews
	}

	f := &Free{}
	if numViews == DefaultFreeViews {
		f.cumulativeProb = append([]float64(nil), defaultCumulative...)
		f.avgDwellTime = append([]float64(nil), defaultAvgDwell...)
	} else {
		f.cumulativeProb = make([]float64, numViews)
		f.avgDwellTime = make([]float64, numViews)
		for i := range f.cumulativeProb {
			f.cumulativeProb[i] = float64(i+1) / float64(numViews)
			f.avgDwellTime[i] = fallbackAvgDwell
		}
	}

	f.dwell = dwell{
		numViews: numViews,
		minDwell: DefaultFreeMinDwell,
		expBound: DefaultFreeExpBound,
		uniform:  rand.New(rand.NewSource(seed)),
		cumulative: func(int) []float64 {
			return f.cumulativeProb
		},
		avgDwell: func(_, next int) float64 {
			return f.avgDwellTime[next]
		},
	}
	return f
}

// SetMinDwell overrides the minimum dwell time in segments.
func (f *Free) SetMinDwell(n int) { f.minDwell = n }
