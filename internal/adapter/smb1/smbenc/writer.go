package smbenc

import (
	"encoding/binary"
	"fmt"
)

// Writer provides sequential writing of little-endian encoded SMB wire data
// with append-based growth and pre-allocated capacity.
type Writer struct {
	buf  []byte
	base int // offset of buf[0] from the start of the SMB header
	err  error
}

// NewWriter creates a new Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{
		buf: make([]byte, 0, capacity),
	}
}

// NewWriterAt creates a Writer for a block that will start base bytes after
// the SMB header.
func NewWriterAt(capacity, base int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity), base: base}
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, v)
}

// WriteUint16 appends a little-endian uint16.
func (w *Writer) WriteUint16(v uint16) {
	if w.err != nil {
		return
	}
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint32 appends a little-endian uint32.
func (w *Writer) WriteUint32(v uint32) {
	if w.err != nil {
		return
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint64 appends a little-endian uint64.
func (w *Writer) WriteUint64(v uint64) {
	if w.err != nil {
		return
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(data []byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, data...)
}

// WriteZeros appends n zero bytes.
func (w *Writer) WriteZeros(n int) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, make([]byte, n)...)
}

// WriteAt overwrites bytes at the specified offset. Used to backpatch
// AndX offsets and byte counts once the block length is known.
// Sets error if the write extends beyond the current buffer length.
func (w *Writer) WriteAt(offset int, data []byte) {
	if w.err != nil {
		return
	}
	if offset+len(data) > len(w.buf) {
		w.err = fmt.Errorf("smbenc: WriteAt out of bounds: offset %d + %d > %d", offset, len(data), len(w.buf))
		return
	}
	copy(w.buf[offset:], data)
}

// PutUint16At overwrites a little-endian uint16 at offset.
func (w *Writer) PutUint16At(offset int, v uint16) {
	w.WriteAt(offset, []byte{byte(v), byte(v >> 8)})
}

// Align2 pads to an even absolute offset.
func (w *Writer) Align2() {
	if w.err == nil && (w.base+len(w.buf))%2 != 0 {
		w.buf = append(w.buf, 0)
	}
}

// WriteString writes s null-terminated, as aligned UTF-16LE when unicode is
// set and as OEM otherwise.
func (w *Writer) WriteString(s string, unicode bool) {
	if w.err != nil {
		return
	}
	if unicode {
		w.Align2()
		w.buf = append(w.buf, EncodeUTF16(s)...)
		w.buf = append(w.buf, 0, 0)
		return
	}
	w.buf = append(w.buf, EncodeOEM(s)...)
	w.buf = append(w.buf, 0)
}

// WriteFixedString writes s as OEM into an n-byte field, truncated or
// padded with pad.
func (w *Writer) WriteFixedString(s string, n int, pad byte) {
	if w.err != nil {
		return
	}
	b := EncodeOEM(s)
	if len(b) > n {
		b = b[:n]
	}
	w.buf = append(w.buf, b...)
	for i := len(b); i < n; i++ {
		w.buf = append(w.buf, pad)
	}
}

// Bytes returns the accumulated bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current length of the buffer.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Err returns the first error encountered, or nil.
func (w *Writer) Err() error {
	return w.err
}
