package session

import "github.com/elliotchance/orderedmap/v2"

// SegmentEntry is the playable state of one segment: the best quality
// obtained per viewpoint and whether an upgrade replaced it.
type SegmentEntry struct {
	Qualities    []int
	Redownloaded bool
}

// SegmentTable holds the playable quality of every requested segment,
// keyed by segment index in request order.
type SegmentTable struct {
	entries *orderedmap.OrderedMap[int, *SegmentEntry]
}

// NewSegmentTable returns an empty table.
func NewSegmentTable() *SegmentTable {
	return &SegmentTable{entries: orderedmap.NewOrderedMap[int, *SegmentEntry]()}
}

// Set records the qualities requested for segment seg.
func (t *SegmentTable) Set(seg int, qualities []int) {
	t.entries.Set(seg, &SegmentEntry{Qualities: append([]int(nil), qualities...)})
}

// Upgrade replaces the quality of viewpoint vp for seg and marks the segment
// as re-downloaded. Unknown segments are ignored.
func (t *SegmentTable) Upgrade(seg, vp, quality int) bool {
	e, ok := t.entries.Get(seg)
	if !ok || vp < 0 || vp >= len(e.Qualities) {
		return false
	}
	e.Qualities[vp] = quality
	e.Redownloaded = true
	return true
}

// Quality returns the playable quality of viewpoint vp for seg, or -1.
func (t *SegmentTable) Quality(seg, vp int) int {
	e, ok := t.entries.Get(seg)
	if !ok || vp < 0 || vp >= len(e.Qualities) {
		return -1
	}
	return e.Qualities[vp]
}

// Get returns the entry for seg.
func (t *SegmentTable) Get(seg int) (SegmentEntry, bool) {
	e, ok := t.entries.Get(seg)
	if !ok {
		return SegmentEntry{}, false
	}
	return *e, true
}

// Len returns the number of segments recorded.
func (t *SegmentTable) Len() int { return t.entries.Len() }

// Upgrades returns the number of re-downloaded segments.
func (t *SegmentTable) Upgrades() int {
	n := 0
	for el := t.entries.Front(); el != nil; el = el.Next() {
		if el.Value.Redownloaded {
			n++
		}
	}
	return n
}
