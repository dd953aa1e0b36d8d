package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"mvdash/internal/session"
)

// Summary condenses one session.
type Summary struct {
	Session  string        `json:"session"`
	Mode     string        `json:"mode"`
	Played   int           `json:"played"`
	Segments int           `json:"segments"`
	Startup  time.Duration `json:"startup"`
	// Underruns counts playbacks that resumed after a stall.
	Underruns int           `json:"underruns"`
	Stall     time.Duration `json:"stall"`
	// AvgQuality and AvgScore describe the watched viewpoint.
	AvgQuality float64 `json:"avg_quality"`
	AvgScore   float64 `json:"avg_score"`
	Switches   int     `json:"switches"`
	Requests   int     `json:"requests"`
	Upgrades   int     `json:"upgrades"`
	Bytes      int64   `json:"bytes"`
}

// Summarize computes the summary of sess.
func Summarize(sess *session.Session) Summary {
	c := sess.Catalog
	dur := sess.SegmentDuration()
	s := Summary{
		Session:  sess.ID,
		Mode:     sess.Mode.String(),
		Played:   sess.Playback.Len(),
		Segments: c.Segments,
		Requests: sess.Download.Len(),
		Upgrades: sess.Segments.Upgrades(),
	}

	var quality, score float64
	var prev session.PlaybackRecord
	for i, rec := range sess.Playback.Records() {
		q := playedQuality(rec, rec.Viewpoint)
		quality += float64(max(q, 0))
		score += c.Score(rec.Viewpoint, q, rec.Segment)
		if i > 0 {
			if rec.Viewpoint != prev.Viewpoint {
				s.Switches++
			}
			if gap := rec.Start - (prev.Start + dur); rec.Buffering && gap > 0 {
				s.Underruns++
				s.Stall += time.Duration(gap) * time.Microsecond
			}
		}
		prev = rec
	}
	if s.Played > 0 {
		s.AvgQuality = quality / float64(s.Played)
		s.AvgScore = score / float64(s.Played)
	}

	for _, rec := range sess.Download.Records() {
		if rec.Pending() {
			continue
		}
		for v, q := range rec.Qualities {
			if q >= 0 && rec.Segments[v] >= 0 {
				s.Bytes += c.Size(v, q, rec.Segments[v])
			}
		}
	}

	if first, ok := firstPlayback(sess); ok && sess.Download.Len() > 0 {
		s.Startup = time.Duration(first.Start-sess.Download.At(0).Sent) * time.Microsecond
	}
	return s
}

func firstPlayback(sess *session.Session) (session.PlaybackRecord, bool) {
	recs := sess.Playback.Records()
	if len(recs) == 0 {
		return session.PlaybackRecord{}, false
	}
	return recs[0], true
}

// WriteTable renders summaries as a table.
func WriteTable(w io.Writer, rows []Summary) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{
		"Session", "Mode", "Played", "Startup", "Underruns", "Stall",
		"Avg Q", "Avg Score", "Switches", "Requests", "Upgrades", "Bytes",
	})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})
	for _, s := range rows {
		table.Append([]string{
			s.Session,
			s.Mode,
			fmt.Sprintf("%d/%d", s.Played, s.Segments),
			s.Startup.String(),
			humanize.Comma(int64(s.Underruns)),
			s.Stall.String(),
			fmt.Sprintf("%.2f", s.AvgQuality),
			fmt.Sprintf("%.2f", s.AvgScore),
			humanize.Comma(int64(s.Switches)),
			humanize.Comma(int64(s.Requests)),
			humanize.Comma(int64(s.Upgrades)),
			humanize.Bytes(uint64(s.Bytes)),
		})
	}
	table.Render()
}
