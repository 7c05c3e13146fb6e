package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource struct {
	data []byte
	fd   bool
}

func (m *memSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memSource) Fd() (uintptr, bool) { return 3, m.fd }

// fakeCopier copies from src directly, simulating sendfile behavior.
type fakeCopier struct {
	src   *memSource
	w     io.Writer
	limit int
	err   error
	calls int
}

func (f *fakeCopier) SendFile(_ uintptr, offset int64, count int) (int, error) {
	f.calls++
	if f.err != nil && f.limit == 0 {
		return 0, f.err
	}
	n := min(count, f.limit)
	_, _ = f.w.Write(f.src.data[offset : offset+int64(n)])
	return n, f.err
}

type failWriter struct{ after int }

func (w *failWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("broken pipe")
	}
	w.after--
	return len(p), nil
}

func header(n int) []byte { return []byte{'H', byte(n)} }

func TestClamp(t *testing.T) {
	assert.Equal(t, 10, Clamp(0, 10, 100))
	assert.Equal(t, 5, Clamp(95, 10, 100))
	assert.Equal(t, 0, Clamp(100, 10, 100))
	assert.Equal(t, 0, Clamp(200, 10, 100))
	assert.Equal(t, 0, Clamp(0, 0, 100))
}

func TestSendBuffered(t *testing.T) {
	src := &memSource{data: []byte("hello world")}
	e := New(Config{}, nil)
	var out bytes.Buffer

	n, err := e.Send(context.Background(), &out, nil, ReadRequest{Source: src, Offset: 6, Count: 5}, header)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "H\x05world", out.String())
}

func TestSendZeroFillsShortRead(t *testing.T) {
	// The file shrank after the count was computed.
	src := &memSource{data: []byte("abc")}
	e := New(Config{}, nil)
	var out bytes.Buffer

	n, err := e.Send(context.Background(), &out, nil, ReadRequest{Source: src, Offset: 0, Count: 6}, header)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte{'H', 6, 'a', 'b', 'c', 0, 0, 0}, out.Bytes())
}

func TestSendZeroCopy(t *testing.T) {
	src := &memSource{data: []byte("0123456789"), fd: true}
	var out bytes.Buffer
	zc := &fakeCopier{src: src, w: &out, limit: 100}
	e := New(Config{ZeroCopy: true}, nil)

	n, err := e.Send(context.Background(), &out, zc, ReadRequest{Source: src, Offset: 2, Count: 4}, header)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "H\x042345", out.String())
	assert.Equal(t, 1, zc.calls)
}

func TestSendZeroCopyUnsupportedFallsBack(t *testing.T) {
	src := &memSource{data: []byte("0123456789"), fd: true}
	var out bytes.Buffer
	zc := &fakeCopier{src: src, w: &out, err: ErrZeroCopyUnsupported}
	e := New(Config{ZeroCopy: true}, nil)

	n, err := e.Send(context.Background(), &out, zc, ReadRequest{Source: src, Offset: 0, Count: 3}, header)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "H\x03012", out.String())
}

func TestSendZeroCopyShortContinues(t *testing.T) {
	src := &memSource{data: []byte("0123456789"), fd: true}
	var out bytes.Buffer
	zc := &fakeCopier{src: src, w: &out, limit: 2, err: syscall.EINTR}
	e := New(Config{ZeroCopy: true}, nil)

	n, err := e.Send(context.Background(), &out, zc, ReadRequest{Source: src, Offset: 0, Count: 6}, header)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "H\x06012345", out.String())
}

func TestSendZeroCopyFatal(t *testing.T) {
	src := &memSource{data: []byte("0123456789"), fd: true}
	var out bytes.Buffer
	zc := &fakeCopier{src: src, w: &out, err: syscall.EPIPE}
	e := New(Config{ZeroCopy: true}, nil)

	_, err := e.Send(context.Background(), &out, zc, ReadRequest{Source: src, Offset: 0, Count: 6}, header)
	assert.ErrorIs(t, err, ErrFatal)
}

func TestSendChainedSkipsZeroCopy(t *testing.T) {
	src := &memSource{data: []byte("0123456789"), fd: true}
	var out bytes.Buffer
	zc := &fakeCopier{src: src, w: &out, limit: 100}
	e := New(Config{ZeroCopy: true}, nil)

	_, err := e.Send(context.Background(), &out, zc, ReadRequest{Source: src, Count: 2, Chained: true}, header)
	require.NoError(t, err)
	assert.Zero(t, zc.calls)
	assert.Equal(t, "H\x0201", out.String())
}

func TestSendWriteFailureIsFatal(t *testing.T) {
	src := &memSource{data: []byte("0123456789")}
	e := New(Config{}, nil)

	_, err := e.Send(context.Background(), &failWriter{after: 0}, nil, ReadRequest{Source: src, Count: 2}, header)
	assert.ErrorIs(t, err, ErrFatal)

	_, err = e.Send(context.Background(), &failWriter{after: 1}, nil, ReadRequest{Source: src, Count: 2}, header)
	assert.ErrorIs(t, err, ErrFatal)
}

func TestReadFull(t *testing.T) {
	src := &memSource{data: []byte("abcdef")}
	e := New(Config{}, nil)

	b, err := e.ReadFull(src, 4, 10)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(b))

	b, err = e.ReadFull(src, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, b)
}

type memTarget struct {
	data   []byte
	synced int
}

func (m *memTarget) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(m.data) {
		m.data = append(m.data, make([]byte, end-len(m.data))...)
	}
	return copy(m.data[off:], p), nil
}

func (m *memTarget) Truncate(size int64) error {
	if int(size) <= len(m.data) {
		m.data = m.data[:size]
		return nil
	}
	m.data = append(m.data, make([]byte, int(size)-len(m.data))...)
	return nil
}

func (m *memTarget) Sync() error {
	m.synced++
	return nil
}

func TestWrite(t *testing.T) {
	e := New(Config{}, nil)
	f := &memTarget{}

	n, err := e.Write(context.Background(), f, WriteRequest{Offset: 2, Data: []byte("xy")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0, 0, 'x', 'y'}, f.data)
	assert.Zero(t, f.synced)

	_, err = e.Write(context.Background(), f, WriteRequest{Offset: 0, Data: []byte("a"), WriteThrough: true})
	require.NoError(t, err)
	assert.Equal(t, 1, f.synced)
}

func TestZeroLengthWriteSetsSize(t *testing.T) {
	e := New(Config{}, nil)
	f := &memTarget{data: []byte("0123456789")}

	n, err := e.Write(context.Background(), f, WriteRequest{Offset: 4, Truncate: true})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "0123", string(f.data))

	_, err = e.Write(context.Background(), f, WriteRequest{Offset: 6, Truncate: true})
	require.NoError(t, err)
	assert.Equal(t, []byte{'0', '1', '2', '3', 0, 0}, f.data)
}

func TestZeroLengthWriteWithoutTruncateIsNoop(t *testing.T) {
	e := New(Config{}, nil)
	f := &memTarget{data: []byte("0123456789")}

	n, err := e.Write(context.Background(), f, WriteRequest{Offset: 4})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "0123456789", string(f.data))
}

func TestWrapState(t *testing.T) {
	var s WrapState
	assert.Equal(t, uint64(0x1000), s.Resolve(0x1000))

	// A write crossing 4 GiB moves later 32-bit offsets into the next epoch.
	s.Observe(0xFFFFF000, 0x2000)
	assert.Equal(t, uint64(0x1_00001000), s.Resolve(0x1000))

	// A write ending back below 4 GiB resets it.
	s.Observe(0, 10)
	assert.Equal(t, uint64(0x1000), s.Resolve(0x1000))
}
