package request

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// RecordSize is the wire size of one sub-request.
const RecordSize = 32

// ErrMalformed is returned by Decode for a payload that is not a whole
// number of records.
var ErrMalformed = errors.New("malformed request payload")

const flagGroup = 1

// Encode serializes subs as fixed-size little-endian records:
//
//	id u32 | flags u32 | viewpoint i32 | segment i32 | quality i32 | reserved u32 | size i64
func Encode(subs []SubRequest) []byte {
	buf := make([]byte, 0, len(subs)*RecordSize)
	for _, s := range subs {
		var flags uint32
		if s.Group {
			flags |= flagGroup
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(s.ID))
		buf = binary.LittleEndian.AppendUint32(buf, flags)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(s.Viewpoint)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(s.Segment)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(s.Quality)))
		buf = binary.LittleEndian.AppendUint32(buf, 0)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Size))
	}
	return buf
}

// Decode parses a payload produced by Encode.
func Decode(b []byte) ([]SubRequest, error) {
	if len(b) == 0 || len(b)%RecordSize != 0 {
		return nil, errors.Wrapf(ErrMalformed, "%d bytes", len(b))
	}
	subs := make([]SubRequest, 0, len(b)/RecordSize)
	for off := 0; off < len(b); off += RecordSize {
		r := b[off : off+RecordSize]
		size := int64(binary.LittleEndian.Uint64(r[24:]))
		if size < 0 {
			return nil, errors.Wrapf(ErrMalformed, "negative size at record %d", off/RecordSize)
		}
		subs = append(subs, SubRequest{
			ID:        int(binary.LittleEndian.Uint32(r[0:])),
			Group:     binary.LittleEndian.Uint32(r[4:])&flagGroup != 0,
			Viewpoint: int(int32(binary.LittleEndian.Uint32(r[8:]))),
			Segment:   int(int32(binary.LittleEndian.Uint32(r[12:]))),
			Quality:   int(int32(binary.LittleEndian.Uint32(r[16:]))),
			Size:      size,
		})
	}
	return subs, nil
}
