package viewpoint

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// ErrUnknownModel is returned by New for an unsupported model name.
var ErrUnknownModel = errors.New("unknown viewpoint model")

// Model names accepted by New.
const (
	NameFree      = "free"
	NameMarkovian = "markovian"
)

// Selection is one entry of the viewpoint history.
type Selection struct {
	Viewpoint int
	Time      int64
}

// Model produces the viewer's viewpoint as playback advances.
type Model interface {
	// Advance is called once per played segment and returns the viewpoint
	// for that segment. Segment 0 resets the model.
	Advance(segment int, now int64) int
	Current() int
	// Previous returns the viewpoint before the current one; ok is false
	// until two selections exist.
	Previous() (vp int, ok bool)
	Ratio(vp int) float64
	History() []Selection
	NumViews() int
}

// dwell holds the dwell-time mechanics shared by the free and Markov models.
// The transition and dwell tables are looked up through row, which returns
// the row for the viewpoint being left.
type dwell struct {
	numViews  int
	minDwell  int
	expBound  float64
	remaining int

	uniform *rand.Rand

	cumulative func(old int) []float64
	avgDwell   func(old, next int) float64

	history  []Selection
	selected []int
}

func (d *dwell) Advance(segment int, now int64) int {
	var vp int
	if segment == 0 {
		vp = 0
		d.remaining = 2 * d.minDwell
		d.selected = make([]int, d.numViews)
		d.history = d.history[:0]
	} else {
		vp = d.next()
	}

	d.history = append(d.history, Selection{Viewpoint: vp, Time: now})
	d.selected[vp]++
	return vp
}

func (d *dwell) next() int {
	vp := d.Current()
	d.remaining--
	if d.remaining > 0 {
		return vp
	}

	old := vp
	u := d.uniform.Float64()
	vp = 0
	for _, p := range d.cumulative(old) {
		if u <= p {
			break
		}
		vp++
	}
	if vp >= d.numViews {
		vp = d.numViews - 1
	}
	d.remaining = d.minDwell + int(math.Ceil(d.exponential(d.avgDwell(old, vp))))
	return vp
}

// exponential draws from an exponential distribution with the given mean,
// redrawing values above the bound.
func (d *dwell) exponential(mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	for {
		x := d.uniform.ExpFloat64() * mean
		if d.expBound <= 0 || x <= d.expBound {
			return x
		}
	}
}

func (d *dwell) Current() int {
	if len(d.history) == 0 {
		return 0
	}
	return d.history[len(d.history)-1].Viewpoint
}

func (d *dwell) Previous() (int, bool) {
	if len(d.history) < 2 {
		return d.Current(), false
	}
	return d.history[len(d.history)-2].Viewpoint, true
}

func (d *dwell) Ratio(vp int) float64 {
	if len(d.history) == 0 || vp < 0 || vp >= len(d.selected) {
		return 0
	}
	return float64(d.selected[vp]) / float64(len(d.history))
}

func (d *dwell) History() []Selection { return d.history }

func (d *dwell) NumViews() int { return d.numViews }

// Options configures New.
type Options struct {
	NumViews  int
	TracePath string
	Seed      int64
}

// New returns the model registered under name. The Markov model reads its
// transition table from opts.TracePath.
func New(name string, opts Options) (Model, error) {
	switch name {
	case NameFree:
		seed := opts.Seed
		if seed == 0 {
			seed = DefaultFreeSeed
		}
		return NewFree(opts.NumViews, seed), nil
	case NameMarkovian:
		m, err := LoadMarkovFile(opts.TracePath)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errors.Wrap(ErrUnknownModel, name)
	}
}
