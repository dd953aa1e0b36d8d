package session

// BufferEntry is one update of a viewpoint's buffer, in microseconds.
type BufferEntry struct {
	Time int64
	Old  int64
	New  int64
}

// Buffer is the playable-buffer series of one viewpoint plus the temporary
// series maintained by hybrid upgrade downloads.
type Buffer struct {
	entries     []BufferEntry
	temp        []BufferEntry
	lastSegment int
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{lastSegment: -1}
}

// Add appends an update. A segment index >= 0 marks that segment as
// buffered for this viewpoint.
func (b *Buffer) Add(now, before, after int64, segment int) {
	if before < 0 {
		before = 0
	}
	if after < before {
		after = before
	}
	b.entries = append(b.entries, BufferEntry{Time: now, Old: before, New: after})
	if segment > b.lastSegment {
		b.lastSegment = segment
	}
}

// AddTemp appends an update of the temporary series.
func (b *Buffer) AddTemp(now, before, after int64) {
	if before < 0 {
		before = 0
	}
	if after < before {
		after = before
	}
	b.temp = append(b.temp, BufferEntry{Time: now, Old: before, New: after})
}

// Last returns the most recent update.
func (b *Buffer) Last() (BufferEntry, bool) {
	if len(b.entries) == 0 {
		return BufferEntry{}, false
	}
	return b.entries[len(b.entries)-1], true
}

// LastTemp returns the most recent temporary update.
func (b *Buffer) LastTemp() (BufferEntry, bool) {
	if len(b.temp) == 0 {
		return BufferEntry{}, false
	}
	return b.temp[len(b.temp)-1], true
}

// LevelSince returns the buffer level after draining it from since to now.
// The result may be negative when the buffer ran dry.
func (b *Buffer) LevelSince(now, since int64) int64 {
	last, ok := b.Last()
	if !ok {
		return 0
	}
	return last.New - (now - since)
}

// Level returns the buffer drained from its last update to now, floored at 0.
func (b *Buffer) Level(now int64) int64 {
	last, ok := b.Last()
	if !ok {
		return 0
	}
	return max(last.New-(now-last.Time), 0)
}

// LastSegment returns the highest segment buffered for this viewpoint, or -1.
func (b *Buffer) LastSegment() int { return b.lastSegment }

// Entries returns the backing slice. Callers must not modify it.
func (b *Buffer) Entries() []BufferEntry { return b.entries }

// TempEntries returns the temporary series.
func (b *Buffer) TempEntries() []BufferEntry { return b.temp }
