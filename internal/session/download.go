package session

// DownloadRecord is one request sent to the server. Segments and Qualities
// are indexed by viewpoint; a quality of -1 marks a viewpoint that was not
// requested. The record is pending while End is not set.
type DownloadRecord struct {
	ID        int
	Group     bool
	Segments  []int
	Qualities []int
	Viewpoint int
	Sent      int64
	Start     int64
	End       int64
}

// Pending reports whether the last byte has not arrived yet.
func (r DownloadRecord) Pending() bool { return r.End <= 0 }

// DownloadTime returns End - Sent, or 0 while pending.
func (r DownloadRecord) DownloadTime() int64 {
	if r.Pending() {
		return 0
	}
	return r.End - r.Sent
}

// Segment returns the segment index requested for the triggering viewpoint,
// falling back to the first requested one.
func (r DownloadRecord) Segment() int {
	if r.Viewpoint >= 0 && r.Viewpoint < len(r.Segments) && r.Segments[r.Viewpoint] >= 0 {
		return r.Segments[r.Viewpoint]
	}
	for _, s := range r.Segments {
		if s >= 0 {
			return s
		}
	}
	return -1
}

// DownloadLog is the append-only request history. Record IDs equal their
// position in the log.
type DownloadLog struct {
	records []DownloadRecord
}

// Append stores rec under the next ID and returns it.
func (l *DownloadLog) Append(rec DownloadRecord) int {
	rec.ID = len(l.records)
	l.records = append(l.records, rec)
	return rec.ID
}

// NextID returns the ID the next appended record will get.
func (l *DownloadLog) NextID() int { return len(l.records) }

// MarkStart records the arrival of the first byte of request id.
func (l *DownloadLog) MarkStart(id int, now int64) {
	if id >= 0 && id < len(l.records) && l.records[id].Start == 0 {
		l.records[id].Start = now
	}
}

// MarkEnd records the arrival of the last byte of request id.
func (l *DownloadLog) MarkEnd(id int, now int64) {
	if id >= 0 && id < len(l.records) {
		l.records[id].End = now
	}
}

// Len returns the number of records.
func (l *DownloadLog) Len() int { return len(l.records) }

// At returns record id.
func (l *DownloadLog) At(id int) DownloadRecord { return l.records[id] }

// Last returns the most recent record.
func (l *DownloadLog) Last() (DownloadRecord, bool) {
	if len(l.records) == 0 {
		return DownloadRecord{}, false
	}
	return l.records[len(l.records)-1], true
}

// LastCompleted returns the most recent record whose last byte arrived.
func (l *DownloadLog) LastCompleted() (DownloadRecord, bool) {
	for i := len(l.records) - 1; i >= 0; i-- {
		if !l.records[i].Pending() {
			return l.records[i], true
		}
	}
	return DownloadRecord{}, false
}

// Completed returns up to n most recent completed records, oldest first.
func (l *DownloadLog) Completed(n int) []DownloadRecord {
	out := make([]DownloadRecord, 0, n)
	for i := len(l.records) - 1; i >= 0 && len(out) < n; i-- {
		if !l.records[i].Pending() {
			out = append(out, l.records[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Records returns the backing slice. Callers must not modify it.
func (l *DownloadLog) Records() []DownloadRecord { return l.records }
