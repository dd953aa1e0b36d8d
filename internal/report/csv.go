// Package report turns a finished session into tab-separated history dumps
// and a per-session summary.
package report

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"mvdash/internal/session"
)

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

func itoa(v int) string    { return strconv.Itoa(v) }
func i64(v int64) string   { return strconv.FormatInt(v, 10) }
func f64(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// WriteDownloads dumps the request history: id, group flag, segment, sent,
// first byte and last byte times, then the quality per viewpoint.
func WriteDownloads(w io.Writer, sess *session.Session) error {
	cw := newWriter(w)
	hdr := []string{"id", "group", "segment", "viewpoint", "sent", "down_start", "down_end"}
	for v := 0; v < sess.NumViewpoints(); v++ {
		hdr = append(hdr, "q_v"+itoa(v+1))
	}
	if err := cw.Write(hdr); err != nil {
		return err
	}
	for _, rec := range sess.Download.Records() {
		row := []string{
			itoa(rec.ID),
			flag(rec.Group),
			itoa(rec.Segment()),
			itoa(rec.Viewpoint),
			i64(rec.Sent),
			i64(rec.Start),
			i64(rec.End),
		}
		for _, q := range rec.Qualities {
			row = append(row, itoa(q))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePlayback dumps the playback history: segment, viewpoint, start,
// buffering flag, then quality and perceptual score per viewpoint. Missing
// viewpoints have quality -1 and score 0.
func WritePlayback(w io.Writer, sess *session.Session) error {
	c := sess.Catalog
	cw := newWriter(w)
	hdr := []string{"segment", "viewpoint", "start", "buffering"}
	for v := 0; v < sess.NumViewpoints(); v++ {
		hdr = append(hdr, "q_v"+itoa(v+1))
	}
	for v := 0; v < sess.NumViewpoints(); v++ {
		hdr = append(hdr, "score_v"+itoa(v+1))
	}
	if err := cw.Write(hdr); err != nil {
		return err
	}
	for _, rec := range sess.Playback.Records() {
		row := []string{itoa(rec.Segment), itoa(rec.Viewpoint), i64(rec.Start), flag(rec.Buffering)}
		for v := 0; v < sess.NumViewpoints(); v++ {
			row = append(row, itoa(playedQuality(rec, v)))
		}
		for v := 0; v < sess.NumViewpoints(); v++ {
			row = append(row, f64(c.Score(v, playedQuality(rec, v), rec.Segment)))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBuffers dumps every viewpoint's buffer series: viewpoint, time,
// level before and after the update.
func WriteBuffers(w io.Writer, sess *session.Session) error {
	cw := newWriter(w)
	if err := cw.Write([]string{"viewpoint", "now", "buffer_old", "buffer_new"}); err != nil {
		return err
	}
	for v, b := range sess.Buffers {
		for _, e := range b.Entries() {
			if err := cw.Write([]string{itoa(v), i64(e.Time), i64(e.Old), i64(e.New)}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func playedQuality(rec session.PlaybackRecord, v int) int {
	if v >= len(rec.Qualities) {
		return -1
	}
	return rec.Qualities[v]
}

// Recorder writes the three dumps of a session into Dir as
// downlog_<id>.csv, playback_<id>.csv and buffer_<id>.csv, where <id> is
// the session ID (sim{S}_cl{C} for simulated clients).
type Recorder struct {
	Dir string
}

// NewRecorder returns a Recorder writing into dir.
func NewRecorder(dir string) *Recorder {
	return &Recorder{Dir: dir}
}

// Record implements client.Recorder.
func (r *Recorder) Record(sess *session.Session) error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "create log directory %s", r.Dir)
	}
	dumps := []struct {
		prefix string
		write  func(io.Writer, *session.Session) error
	}{
		{"downlog_", WriteDownloads},
		{"playback_", WritePlayback},
		{"buffer_", WriteBuffers},
	}
	for _, d := range dumps {
		path := filepath.Join(r.Dir, d.prefix+sess.ID+".csv")
		if err := writeFile(path, sess, d.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, sess *session.Session, write func(io.Writer, *session.Session) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := write(f, sess); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
