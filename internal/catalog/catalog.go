package catalog

import (
	"github.com/pkg/errors"
)

// ErrMalformed is returned when a catalog table is inconsistent.
var ErrMalformed = errors.New("malformed catalog")

// Representation is one encoding of a viewpoint: its per-segment byte sizes,
// its average bitrate in bits per second and its per-segment perceptual
// quality scores.
type Representation struct {
	Sizes          []int64
	AverageBitrate float64
	Scores         []float64
}

// Viewpoint holds the representations available for one camera view,
// ordered from lowest to highest bitrate.
type Viewpoint struct {
	Reps []Representation
}

// Catalog is the immutable table of segment sizes and scores for every
// viewpoint. All viewpoints share the segment count and duration.
type Catalog struct {
	Viewpoints      []Viewpoint
	Segments        int
	SegmentDuration int64 // microseconds
}

// New builds a catalog from sizes indexed [viewpoint][representation][segment]
// and computes the average bitrate of every representation.
func New(segmentDuration int64, sizes [][][]int64) (*Catalog, error) {
	if segmentDuration <= 0 {
		return nil, errors.Wrapf(ErrMalformed, "segment duration %d", segmentDuration)
	}
	if len(sizes) == 0 {
		return nil, errors.Wrap(ErrMalformed, "no viewpoints")
	}

	c := &Catalog{
		Viewpoints:      make([]Viewpoint, len(sizes)),
		Segments:        -1,
		SegmentDuration: segmentDuration,
	}
	for v, reps := range sizes {
		if len(reps) == 0 {
			return nil, errors.Wrapf(ErrMalformed, "viewpoint %d has no representations", v)
		}
		c.Viewpoints[v].Reps = make([]Representation, len(reps))
		for q, segs := range reps {
			if c.Segments < 0 {
				c.Segments = len(segs)
			}
			if len(segs) != c.Segments {
				return nil, errors.Wrapf(ErrMalformed, "viewpoint %d rep %d has %d segments, want %d",
					v, q, len(segs), c.Segments)
			}
			c.Viewpoints[v].Reps[q] = Representation{
				Sizes:          segs,
				AverageBitrate: averageBitrate(segs, segmentDuration),
			}
		}
	}
	if c.Segments == 0 {
		return nil, errors.Wrap(ErrMalformed, "no segments")
	}
	return c, nil
}

func averageBitrate(sizes []int64, duration int64) float64 {
	if len(sizes) == 0 {
		return 0
	}
	var sum int64
	for _, s := range sizes {
		sum += s
	}
	avg := sum / int64(len(sizes))
	return 8.0 * float64(avg) / float64(duration) * 1e6
}

// NumViewpoints returns the number of viewpoints.
func (c *Catalog) NumViewpoints() int { return len(c.Viewpoints) }

// RepCount returns the number of representations of viewpoint v.
func (c *Catalog) RepCount(v int) int { return len(c.Viewpoints[v].Reps) }

// LastSegment returns the index of the final segment.
func (c *Catalog) LastSegment() int { return c.Segments - 1 }

// Size returns the byte size of segment seg of viewpoint v at representation q.
// A negative q means the viewpoint was not requested and has size 0.
func (c *Catalog) Size(v, q, seg int) int64 {
	if q < 0 {
		return 0
	}
	return c.Viewpoints[v].Reps[q].Sizes[seg]
}

// Bitrate returns the average bitrate in bits per second of viewpoint v at q.
func (c *Catalog) Bitrate(v, q int) float64 {
	if q < 0 {
		return 0
	}
	return c.Viewpoints[v].Reps[q].AverageBitrate
}

// Score returns the perceptual quality of segment seg of viewpoint v at q,
// or 0 when q is negative or no scores were loaded.
func (c *Catalog) Score(v, q, seg int) float64 {
	if q < 0 {
		return 0
	}
	scores := c.Viewpoints[v].Reps[q].Scores
	if seg >= len(scores) {
		return 0
	}
	return scores[seg]
}

// HasScores reports whether perceptual scores are attached.
func (c *Catalog) HasScores() bool {
	return len(c.Viewpoints[0].Reps[0].Scores) > 0
}
