package session

// PlaybackRecord is one played segment.
type PlaybackRecord struct {
	Segment   int
	Viewpoint int
	Start     int64
	Buffering bool
	Qualities []int
}

// PlaybackLog is the ordered list of played segments.
type PlaybackLog struct {
	records []PlaybackRecord
	played  map[int]struct{}
}

// NewPlaybackLog returns an empty log.
func NewPlaybackLog() *PlaybackLog {
	return &PlaybackLog{played: make(map[int]struct{})}
}

// Append records a played segment.
func (l *PlaybackLog) Append(rec PlaybackRecord) {
	l.records = append(l.records, rec)
	l.played[rec.Segment] = struct{}{}
}

// Played reports whether seg has started playing.
func (l *PlaybackLog) Played(seg int) bool {
	_, ok := l.played[seg]
	return ok
}

// Last returns the most recent playback.
func (l *PlaybackLog) Last() (PlaybackRecord, bool) {
	if len(l.records) == 0 {
		return PlaybackRecord{}, false
	}
	return l.records[len(l.records)-1], true
}

// Len returns the number of played segments.
func (l *PlaybackLog) Len() int { return len(l.records) }

// Records returns the backing slice. Callers must not modify it.
func (l *PlaybackLog) Records() []PlaybackRecord { return l.records }
