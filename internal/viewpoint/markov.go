package viewpoint

import (
	"bufio"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MarkovSimple is the only switching model type the trace header may declare.
const MarkovSimple = 0

// Markov is a viewpoint model whose switching distribution and dwell times
// depend on the viewpoint being left.
type Markov struct {
	dwell
	transitions [][]float64 // cumulative, [old][new]
	avgDwells   [][]float64 // [old][new]
}

// NewMarkov builds a model from a transition matrix of independent
// probabilities, which are converted to cumulative form per row.
func NewMarkov(transitions, avgDwells [][]float64, minDwell int, expBound float64, seed int64) (*Markov, error) {
	n := len(transitions)
	if n == 0 || len(avgDwells) != n {
		return nil, errors.Errorf("markov model needs %d dwell rows, got %d", n, len(avgDwells))
	}

	m := &Markov{
		transitions: make([][]float64, n),
		avgDwells:   make([][]float64, n),
	}
	for i := range transitions {
		if len(transitions[i]) != n || len(avgDwells[i]) != n {
			return nil, errors.Errorf("markov row %d: want %d columns", i, n)
		}
		row := append([]float64(nil), transitions[i]...)
		for j := 1; j < n; j++ {
			row[j] += row[j-1]
		}
		m.transitions[i] = row
		m.avgDwells[i] = append([]float64(nil), avgDwells[i]...)
	}

	m.dwell = dwell{
		numViews: n,
		minDwell: minDwell,
		expBound: expBound,
		uniform:  rand.New(rand.NewSource(seed)),
		cumulative: func(old int) []float64 {
			return m.transitions[old]
		},
		avgDwell: func(old, next int) float64 {
			return m.avgDwells[old][next]
		},
	}
	return m, nil
}

// LoadMarkov reads a viewpoint trace: a header line
// "modelType numViews minDwell expBound seed", numViews rows of transition
// probabilities and numViews rows of average dwell times.
func LoadMarkov(r io.Reader) (*Markov, error) {
	sc := bufio.NewScanner(r)
	next := func() ([]float64, error) {
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			fields := strings.Fields(line)
			out := make([]float64, len(fields))
			for i, f := range fields {
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return nil, errors.Wrapf(err, "parse %q", f)
				}
				out[i] = v
			}
			return out, nil
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.ErrUnexpectedEOF
	}

	header, err := next()
	if err != nil {
		return nil, errors.Wrap(err, "viewpoint trace header")
	}
	if len(header) < 5 {
		return nil, errors.Errorf("viewpoint trace header has %d fields, want 5", len(header))
	}
	if int(header[0]) != MarkovSimple {
		return nil, errors.Errorf("unsupported switching model type %d", int(header[0]))
	}
	n := int(header[1])
	if n <= 0 {
		return nil, errors.Errorf("viewpoint trace declares %d views", n)
	}

	transitions := make([][]float64, n)
	for i := range transitions {
		if transitions[i], err = next(); err != nil {
			return nil, errors.Wrapf(err, "transition row %d", i)
		}
	}
	avgDwells := make([][]float64, n)
	for i := range avgDwells {
		if avgDwells[i], err = next(); err != nil {
			return nil, errors.Wrapf(err, "dwell row %d", i)
		}
	}

	return NewMarkov(transitions, avgDwells, int(header[2]), header[3], int64(header[4]))
}

// LoadMarkovFile reads the viewpoint trace at path.
func LoadMarkovFile(path string) (*Markov, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open viewpoint trace %s", path)
	}
	defer f.Close()
	return LoadMarkov(f)
}
