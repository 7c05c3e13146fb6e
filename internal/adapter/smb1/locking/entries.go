package locking

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrOffsetOverflow is returned when a range cannot be represented:
	// a 64-bit value on a share without large-file support, or an offset
	// plus length that wraps past 2^64.
	ErrOffsetOverflow = errors.New("locking: lock range overflows offset width")

	// ErrShortEntries is returned when the byte block is shorter than the
	// declared entry counts.
	ErrShortEntries = errors.New("locking: lock range block truncated")
)

// Entry sizes in LOCKING_ANDX.
const (
	EntrySize      = 10
	LargeEntrySize = 20
)

// Entry is one LOCKING_ANDX_RANGE.
type Entry struct {
	PID    uint32
	Offset uint64
	Length uint64
}

func (e Entry) String() string {
	return fmt.Sprintf("pid=%d [%d,+%d)", e.PID, e.Offset, e.Length)
}

// DecodeEntries decodes count entries from data. large selects the 20-byte
// LARGE_FILES layout; largeAllowed is false on shares limited to 32-bit
// offsets. pidHigh supplies the upper half of each entry's 32-bit PID.
func DecodeEntries(data []byte, count int, large, largeAllowed bool, pidHigh uint16) ([]Entry, int, error) {
	size := EntrySize
	if large {
		size = LargeEntrySize
	}
	if count < 0 || len(data) < count*size {
		return nil, 0, ErrShortEntries
	}

	entries := make([]Entry, count)
	for i := range entries {
		b := data[i*size : (i+1)*size]
		e := Entry{PID: uint32(pidHigh)<<16 | uint32(binary.LittleEndian.Uint16(b[0:2]))}
		if large {
			// PID(2) Pad(2) OffsetHigh(4) OffsetLow(4) LengthHigh(4) LengthLow(4)
			e.Offset = uint64(binary.LittleEndian.Uint32(b[4:8]))<<32 | uint64(binary.LittleEndian.Uint32(b[8:12]))
			e.Length = uint64(binary.LittleEndian.Uint32(b[12:16]))<<32 | uint64(binary.LittleEndian.Uint32(b[16:20]))
			if !largeAllowed && (e.Offset > math.MaxUint32 || e.Length > math.MaxUint32) {
				return nil, 0, fmt.Errorf("%w: entry %d %s", ErrOffsetOverflow, i, e)
			}
		} else {
			e.Offset = uint64(binary.LittleEndian.Uint32(b[2:6]))
			e.Length = uint64(binary.LittleEndian.Uint32(b[6:10]))
		}
		if e.Length > 0 && e.Offset > math.MaxUint64-e.Length {
			return nil, 0, fmt.Errorf("%w: entry %d %s", ErrOffsetOverflow, i, e)
		}
		entries[i] = e
	}
	return entries, count * size, nil
}

// EncodeEntries is the inverse of DecodeEntries.
func EncodeEntries(entries []Entry, large bool) []byte {
	size := EntrySize
	if large {
		size = LargeEntrySize
	}
	out := make([]byte, len(entries)*size)
	for i, e := range entries {
		b := out[i*size : (i+1)*size]
		binary.LittleEndian.PutUint16(b[0:2], uint16(e.PID))
		if large {
			binary.LittleEndian.PutUint32(b[4:8], uint32(e.Offset>>32))
			binary.LittleEndian.PutUint32(b[8:12], uint32(e.Offset))
			binary.LittleEndian.PutUint32(b[12:16], uint32(e.Length>>32))
			binary.LittleEndian.PutUint32(b[16:20], uint32(e.Length))
		} else {
			binary.LittleEndian.PutUint32(b[2:6], uint32(e.Offset))
			binary.LittleEndian.PutUint32(b[6:10], uint32(e.Length))
		}
	}
	return out
}
