package smbenc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderIntegers(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07})
	assert.Equal(t, uint8(0x01), r.ReadUint8())
	assert.Equal(t, uint16(0x0302), r.ReadUint16())
	assert.Equal(t, uint32(0x07060504), r.ReadUint32())
	require.NoError(t, r.Err())
	assert.Equal(t, 0, r.Remaining())
}

func TestReaderShortReadSticks(t *testing.T) {
	r := NewReader([]byte{0x01})
	assert.Equal(t, uint16(0), r.ReadUint16())
	assert.True(t, errors.Is(r.Err(), ErrShortRead))

	// Subsequent reads are no-ops.
	assert.Equal(t, uint8(0), r.ReadUint8())
	assert.Equal(t, 0, r.Position())
}

func TestReaderExpectUint8(t *testing.T) {
	r := NewReader([]byte{0x04, 'a', 0})
	r.ExpectUint8(0x04)
	require.NoError(t, r.Err())
	assert.Equal(t, "a", r.ReadString(false))

	r = NewReader([]byte{0x05})
	r.ExpectUint8(0x04)
	assert.ErrorIs(t, r.Err(), ErrExpectMismatch)
}

func TestReaderStrings(t *testing.T) {
	t.Run("OEM", func(t *testing.T) {
		r := NewReader([]byte{'A', 'B', 0, 'C', 0})
		assert.Equal(t, "AB", r.ReadString(false))
		assert.Equal(t, "C", r.ReadString(false))
		assert.Equal(t, 0, r.Remaining())
	})

	t.Run("OEMUnterminated", func(t *testing.T) {
		r := NewReader([]byte{'A', 'B'})
		assert.Equal(t, "AB", r.ReadString(false))
		require.NoError(t, r.Err())
	})

	t.Run("OEMHighByte", func(t *testing.T) {
		// 0x81 is u-umlaut in code page 850.
		r := NewReader([]byte{0x81, 0})
		assert.Equal(t, "ü", r.ReadString(false))
	})

	t.Run("UnicodeAligned", func(t *testing.T) {
		// Block starts at an odd absolute offset, so one pad byte precedes
		// the string.
		data := []byte{0x00, 'h', 0, 'i', 0, 0, 0}
		r := NewReaderAt(data, 1)
		assert.Equal(t, "hi", r.ReadString(true))
		assert.Equal(t, 0, r.Remaining())
	})

	t.Run("UnicodeEvenBase", func(t *testing.T) {
		data := []byte{'x', 0, 0, 0}
		r := NewReaderAt(data, 2)
		assert.Equal(t, "x", r.ReadString(true))
	})

	t.Run("Fixed", func(t *testing.T) {
		r := NewReader([]byte{'F', 'O', 'O', ' ', ' ', 0, 'Z'})
		assert.Equal(t, "FOO", r.ReadFixedString(6))
		assert.Equal(t, 1, r.Remaining())
	})
}

func TestReaderRest(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	r.Skip(1)
	assert.Equal(t, []byte{2, 3}, r.Rest())
	assert.Equal(t, 0, r.Remaining())
}

func TestWriterIntegers(t *testing.T) {
	w := NewWriter(16)
	w.WriteUint8(0xAA)
	w.WriteUint16(0x0102)
	w.WriteUint32(0x03040506)
	w.WriteUint64(0x0708090A0B0C0D0E)
	require.NoError(t, w.Err())
	assert.Equal(t, []byte{
		0xAA,
		0x02, 0x01,
		0x06, 0x05, 0x04, 0x03,
		0x0E, 0x0D, 0x0C, 0x0B, 0x0A, 0x09, 0x08, 0x07,
	}, w.Bytes())
}

func TestWriterStrings(t *testing.T) {
	w := NewWriterAt(8, 1)
	w.WriteString("hi", true)
	assert.Equal(t, []byte{0, 'h', 0, 'i', 0, 0, 0}, w.Bytes())

	w = NewWriter(8)
	w.WriteString("hi", false)
	assert.Equal(t, []byte{'h', 'i', 0}, w.Bytes())

	w = NewWriter(8)
	w.WriteFixedString("AB", 4, ' ')
	w.WriteFixedString("TOOLONG", 3, 0)
	assert.Equal(t, []byte{'A', 'B', ' ', ' ', 'T', 'O', 'O'}, w.Bytes())
}

func TestWriterBackpatch(t *testing.T) {
	w := NewWriter(4)
	w.WriteUint16(0)
	w.WriteUint16(0xFFFF)
	w.PutUint16At(0, 0x1234)
	assert.Equal(t, []byte{0x34, 0x12, 0xFF, 0xFF}, w.Bytes())

	w.PutUint16At(3, 1)
	assert.Error(t, w.Err())
}

func TestOEMRoundTripUnmappable(t *testing.T) {
	assert.Equal(t, []byte("a_b"), EncodeOEM("a中b"))
	assert.Equal(t, "über", DecodeOEM(EncodeOEM("über")))
}
