package catalog

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Parse reads a whitespace separated size table. The header line is
// "numViewpoints numSegments segmentDuration repCount[0] ... repCount[n-1]"
// and each following line lists, for one segment, the byte size of every
// representation of every viewpoint in viewpoint-major order.
func Parse(r io.Reader) (*Catalog, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, errors.Wrap(err, "read catalog header")
		}
		return nil, errors.Wrap(ErrMalformed, "empty catalog")
	}
	header, err := parseInts(sc.Text())
	if err != nil {
		return nil, errors.Wrap(err, "catalog header")
	}
	if len(header) < 4 {
		return nil, errors.Wrapf(ErrMalformed, "header has %d fields", len(header))
	}
	nViews, nSegments, duration := int(header[0]), int(header[1]), header[2]
	if nViews <= 0 || nSegments <= 0 || len(header) < 3+nViews {
		return nil, errors.Wrapf(ErrMalformed, "header %v", header)
	}

	sizes := make([][][]int64, nViews)
	width := 0
	for v := 0; v < nViews; v++ {
		reps := int(header[3+v])
		if reps <= 0 {
			return nil, errors.Wrapf(ErrMalformed, "viewpoint %d has %d representations", v, reps)
		}
		sizes[v] = make([][]int64, reps)
		for q := range sizes[v] {
			sizes[v][q] = make([]int64, nSegments)
		}
		width += reps
	}

	seg := 0
	for seg < nSegments && sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			break
		}
		vals, err := parseInts(line)
		if err != nil {
			return nil, errors.Wrapf(err, "segment %d", seg)
		}
		if len(vals) < width {
			return nil, errors.Wrapf(ErrMalformed, "segment %d has %d sizes, want %d", seg, len(vals), width)
		}
		i := 0
		for v := range sizes {
			for q := range sizes[v] {
				sizes[v][q][seg] = vals[i]
				i++
			}
		}
		seg++
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	if seg < nSegments {
		return nil, errors.Wrapf(ErrMalformed, "found %d segments, header declares %d", seg, nSegments)
	}

	return New(duration, sizes)
}

// LoadFile parses the size table at path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog %s", path)
	}
	defer f.Close()
	return Parse(f)
}

// ParseScores attaches perceptual quality scores to c. Each line holds the
// scores of one segment in viewpoint-major order. A line that holds only as
// many values as a single viewpoint has representations is shared by every
// viewpoint.
func (c *Catalog) ParseScores(r io.Reader) error {
	width := 0
	for v := range c.Viewpoints {
		width += c.RepCount(v)
		for q := range c.Viewpoints[v].Reps {
			c.Viewpoints[v].Reps[q].Scores = make([]float64, c.Segments)
		}
	}

	sc := bufio.NewScanner(r)
	seg := 0
	for seg < c.Segments && sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		vals, err := parseFloats(line)
		if err != nil {
			return errors.Wrapf(err, "score segment %d", seg)
		}
		shared := len(vals) < width
		i := 0
		for v := range c.Viewpoints {
			if shared {
				i = 0
			}
			for q := range c.Viewpoints[v].Reps {
				if i >= len(vals) {
					return errors.Wrapf(ErrMalformed, "score segment %d has %d values", seg, len(vals))
				}
				c.Viewpoints[v].Reps[q].Scores[seg] = vals[i]
				i++
			}
		}
		seg++
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(err, "read scores")
	}
	if seg < c.Segments {
		return errors.Wrapf(ErrMalformed, "found scores for %d of %d segments", seg, c.Segments)
	}
	return nil
}

// LoadScoresFile attaches the score table at path to c.
func (c *Catalog) LoadScoresFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open scores %s", path)
	}
	defer f.Close()
	return c.ParseScores(f)
}

func parseInts(line string) ([]int64, error) {
	fields := strings.Fields(line)
	out := make([]int64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "bad integer %q", f)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseFloats(line string) ([]float64, error) {
	fields := strings.Fields(line)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "bad number %q", f)
		}
		out = append(out, n)
	}
	return out, nil
}
