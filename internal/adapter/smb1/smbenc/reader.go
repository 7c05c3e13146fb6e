package smbenc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortRead is returned when there are insufficient bytes to complete a read.
var ErrShortRead = errors.New("smbenc: short read")

// ErrExpectMismatch is returned when ExpectUint8 finds a different value than expected.
var ErrExpectMismatch = errors.New("smbenc: expect mismatch")

// ErrUnterminated is returned when a string has no terminating null.
var ErrUnterminated = errors.New("smbenc: unterminated string")

// Reader provides sequential reading of little-endian encoded SMB wire data
// with error accumulation. Once an error occurs, all subsequent reads become
// no-ops returning zero values.
type Reader struct {
	data []byte
	base int // offset of data[0] from the start of the SMB header
	pos  int
	err  error
}

// NewReader creates a Reader over data with position at 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// NewReaderAt creates a Reader over a block that starts base bytes after the
// SMB header, for UTF-16 alignment.
func NewReaderAt(data []byte, base int) *Reader {
	return &Reader{data: data, base: base}
}

// require checks that n bytes are available at the current position.
// Returns false and sets the error if insufficient data remains.
func (r *Reader) require(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortRead, n, r.pos, len(r.data)-r.pos)
		return false
	}
	return true
}

// ReadUint8 reads a single byte and advances the position by 1.
// Returns 0 and sets error on short read.
func (r *Reader) ReadUint8() uint8 {
	if !r.require(1) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

// ReadUint16 reads a little-endian uint16 and advances the position by 2.
// Returns 0 and sets error on short read.
func (r *Reader) ReadUint16() uint16 {
	if !r.require(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

// ReadUint32 reads a little-endian uint32 and advances the position by 4.
// Returns 0 and sets error on short read.
func (r *Reader) ReadUint32() uint32 {
	if !r.require(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

// ReadUint64 reads a little-endian uint64 and advances the position by 8.
// Returns 0 and sets error on short read.
func (r *Reader) ReadUint64() uint64 {
	if !r.require(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

// ReadBytes reads a copy of n bytes and advances the position.
// Returns nil and sets error if insufficient data.
func (r *Reader) ReadBytes(n int) []byte {
	if !r.require(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+n])
	r.pos += n
	return b
}

// Skip advances the position by n bytes without reading.
// Sets error if insufficient data.
func (r *Reader) Skip(n int) {
	if !r.require(n) {
		return
	}
	r.pos += n
}

// ExpectUint8 reads a byte and sets error if it does not match expected.
// Used for the buffer-format prefixes of byte-block fields.
func (r *Reader) ExpectUint8(expected uint8) {
	v := r.ReadUint8()
	if r.err != nil {
		return
	}
	if v != expected {
		r.err = fmt.Errorf("%w: expected 0x%02X, got 0x%02X at offset %d", ErrExpectMismatch, expected, v, r.pos-1)
	}
}

// Align2 skips one pad byte when the absolute position is odd.
func (r *Reader) Align2() {
	if r.err == nil && (r.base+r.pos)%2 != 0 && r.pos < len(r.data) {
		r.pos++
	}
}

// ReadString reads a null-terminated string, UTF-16LE when unicode is set
// (aligned first) and OEM otherwise. A string running to the end of the
// block without a terminator is accepted, as clients often omit it.
func (r *Reader) ReadString(unicode bool) string {
	if r.err != nil {
		return ""
	}
	if unicode {
		r.Align2()
		rest := r.data[r.pos:]
		end := len(rest) &^ 1
		for i := 0; i+1 < len(rest); i += 2 {
			if rest[i] == 0 && rest[i+1] == 0 {
				end = i
				break
			}
		}
		s := DecodeUTF16(rest[:end])
		r.pos += min(end+2, len(rest))
		return s
	}

	rest := r.data[r.pos:]
	end := len(rest)
	for i, b := range rest {
		if b == 0 {
			end = i
			break
		}
	}
	s := DecodeOEM(rest[:end])
	r.pos += min(end+1, len(rest))
	return s
}

// ReadFixedString reads an n-byte OEM field, trimming trailing nulls and
// spaces.
func (r *Reader) ReadFixedString(n int) string {
	if !r.require(n) {
		return ""
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	for len(b) > 0 && (b[len(b)-1] == 0 || b[len(b)-1] == ' ') {
		b = b[:len(b)-1]
	}
	return DecodeOEM(b)
}

// Rest returns the unread bytes without copying and consumes them.
func (r *Reader) Rest() []byte {
	if r.err != nil {
		return nil
	}
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}

// EnsureRemaining sets error if fewer than n bytes remain. Does not consume bytes.
func (r *Reader) EnsureRemaining(n int) {
	r.require(n)
}

// Err returns the first error encountered, or nil.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return max(len(r.data)-r.pos, 0)
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}
