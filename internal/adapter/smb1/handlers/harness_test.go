package handlers

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/transfer"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/pkg/access"
	"github.com/marmos91/dittosmb/pkg/vfs"
)

// =============================================================================
// Test Helpers
// =============================================================================

// recordingTransport keeps every message written to it.
type recordingTransport struct {
	mu   sync.Mutex
	msgs [][]byte
	sent chan struct{}
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{sent: make(chan struct{}, 64)}
}

func (t *recordingTransport) WriteMessage(msg []byte) error {
	t.mu.Lock()
	t.msgs = append(t.msgs, append([]byte(nil), msg...))
	t.mu.Unlock()
	select {
	case t.sent <- struct{}{}:
	default:
	}
	return nil
}

func (t *recordingTransport) Stream(fn func(w io.Writer, zc transfer.ZeroCopier) error) error {
	var buf bytes.Buffer
	if err := fn(&buf, nil); err != nil {
		return err
	}
	return t.WriteMessage(buf.Bytes())
}

func (t *recordingTransport) messages() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.msgs...)
}

// testEnv is a handler with one connection, session and disk tree.
type testEnv struct {
	t     *testing.T
	h     *Handler
	fs    vfs.FS
	share *Share
	conn  *Conn
	tr    *recordingTransport
	sess  *Session
	tree  *TreeConnect
	mid   uint16
	pid   uint16
}

func newTestEnv(t *testing.T, opts ...func(*Share)) *testEnv {
	t.Helper()
	h := NewHandler(Options{})
	t.Cleanup(h.Shutdown)

	share := &Share{Name: "data", FS: vfs.NewMemFS(), Oplocks: true, LargeFiles: true}
	for _, o := range opts {
		o(share)
	}
	h.AddShare(share)

	e := &testEnv{t: t, h: h, fs: share.FS, share: share, tr: newRecordingTransport(), pid: 100}
	e.conn = h.NewConn("127.0.0.1:445", e.tr)
	e.sess = e.login(e.conn)
	e.tree = e.mount(e.conn, e.sess, share)
	return e
}

func (e *testEnv) login(c *Conn) *Session {
	s := &Session{
		Identity:   access.Identity{Account: "alice"},
		ClientCaps: types.CapLevel2Oplocks | types.CapLargeReadX | types.CapLargeWriteX,
	}
	require.NoError(e.t, c.addSession(s))
	return s
}

func (e *testEnv) mount(c *Conn, s *Session, share *Share) *TreeConnect {
	tree := &TreeConnect{UID: s.UID, Share: share}
	require.NoError(e.t, c.addTree(tree))
	return tree
}

// peer is a second client connected to the same handler.
func (e *testEnv) peer() *testEnv {
	p := &testEnv{t: e.t, h: e.h, fs: e.fs, share: e.share, tr: newRecordingTransport(), pid: 200}
	p.conn = e.h.NewConn("127.0.0.2:445", p.tr)
	p.sess = p.login(p.conn)
	p.tree = p.mount(p.conn, p.sess, e.share)
	return p
}

// request builds a single-command request with the given words and bytes.
func (e *testEnv) request(cmd types.Command, words, data []byte) *Request {
	e.mid++
	hdr := &header.SMB1Header{
		Command: cmd,
		PIDLow:  e.pid,
		UID:     e.sess.UID,
		TID:     e.tree.TID,
		MID:     e.mid,
	}

	msg := hdr.Encode()
	msg = append(msg, byte(len(words)/2))
	msg = append(msg, words...)
	msg = binary.LittleEndian.AppendUint16(msg, uint16(len(data)))
	bytesOffset := len(msg)
	msg = append(msg, data...)

	return &Request{
		Header:      hdr,
		Command:     cmd,
		Words:       words,
		Bytes:       data,
		BytesOffset: bytesOffset,
		Message:     msg,
		ReplyOffset: types.HeaderSize,
		Last:        true,
		Chain:       NewChain(hdr),
		Conn:        e.conn,
		Session:     e.sess,
		Tree:        e.tree,
	}
}

func (e *testEnv) writeFile(name, content string) {
	e.t.Helper()
	f, err := e.fs.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(e.t, err)
	_, err = f.WriteAt([]byte(content), 0)
	require.NoError(e.t, err)
	require.NoError(e.t, f.Close())
}

func (e *testEnv) readFile(name string) string {
	e.t.Helper()
	f, err := e.fs.OpenFile(name, os.O_RDONLY, 0)
	require.NoError(e.t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(e.t, err)
	buf := make([]byte, info.Size())
	if len(buf) > 0 {
		_, err = f.ReadAt(buf, 0)
		require.NoError(e.t, err)
	}
	return string(buf)
}

func (e *testEnv) exists(name string) bool {
	_, err := e.fs.Stat(name)
	return err == nil
}

// params encodes parameter words.
func params(vals ...uint16) []byte {
	w := smbenc.NewWriter(len(vals) * 2)
	for _, v := range vals {
		w.WriteUint16(v)
	}
	return w.Bytes()
}

// paths encodes 0x04-prefixed OEM path.
func paths(names ...string) []byte {
	w := smbenc.NewWriter(64)
	for _, n := range names {
		w.WriteUint8(types.BufferFormatASCII)
		w.WriteString(n, false)
	}
	return w.Bytes()
}

// dataBlock encodes a 0x01-prefixed data block.
func dataBlock(data string) []byte {
	w := smbenc.NewWriter(3 + len(data))
	w.WriteUint8(types.BufferFormatDataBlock)
	w.WriteUint16(uint16(len(data)))
	w.WriteBytes([]byte(data))
	return w.Bytes()
}

func requireStatus(t *testing.T, want types.Status, res *HandlerResult) {
	t.Helper()
	require.NotNil(t, res)
	require.Equal(t, want.String(), res.Status.String())
}

func word(res *HandlerResult, i int) uint16 {
	return binary.LittleEndian.Uint16(res.Words[i*2:])
}

// open opens name read-write with deny-none sharing and returns the FID.
func (e *testEnv) open(name string) uint16 {
	e.t.Helper()
	res := e.h.Open(context.Background(), e.request(types.SMBOpen,
		params(types.AccessReadWrite|types.SharingDenyNone, 0), paths(name)))
	requireStatus(e.t, types.StatusSuccess, res)
	return word(res, 0)
}

// create creates or truncates name and returns the FID.
func (e *testEnv) create(name string) uint16 {
	e.t.Helper()
	res := e.h.Create(context.Background(), e.request(types.SMBCreate, params(0, 0, 0), paths(name)))
	requireStatus(e.t, types.StatusSuccess, res)
	return word(res, 0)
}

func (e *testEnv) close(fid uint16) {
	e.t.Helper()
	res := e.h.Close(context.Background(), e.request(types.SMBClose, params(fid, 0, 0), nil))
	requireStatus(e.t, types.StatusSuccess, res)
}

func (e *testEnv) write(fid uint16, offset uint32, data string) *HandlerResult {
	return e.h.Write(context.Background(), e.request(types.SMBWrite,
		params(fid, uint16(len(data)), uint16(offset), uint16(offset>>16), 0), dataBlock(data)))
}

// payload materializes the data a read result carries.
func payload(t *testing.T, res *HandlerResult) []byte {
	t.Helper()
	if res.Payload == nil {
		return nil
	}
	buf := make([]byte, res.Payload.Count)
	_, err := res.Payload.Source.ReadAt(buf, int64(res.Payload.Offset))
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	return buf
}
