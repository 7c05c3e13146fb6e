package smb1

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/handlers"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/pkg/vfs"
)

func startAdapter(t *testing.T, cfg Config) *Adapter {
	t.Helper()

	h := handlers.NewHandler(handlers.Options{ServerName: "TESTSRV"})
	t.Cleanup(h.Shutdown)
	h.AddShare(&handlers.Share{Name: "data", FS: vfs.NewMemFS(), GuestOK: true})

	cfg.ListenAddress = "127.0.0.1:0"
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}
	a := New(cfg, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("adapter did not stop")
		}
	})
	return a
}

func negotiateFrame(mid uint16) []byte {
	hdr := &header.SMB1Header{
		Command: types.SMBNegotiate,
		Flags2:  types.Flags2NTStatus,
		MID:     mid,
	}
	dialects := append([]byte{byte(types.BufferFormatDialect)}, "NT LM 0.12\x00"...)

	msg := hdr.Encode()
	msg = append(msg, 0)
	msg = binary.LittleEndian.AppendUint16(msg, uint16(len(dialects)))
	msg = append(msg, dialects...)

	frame := []byte{0, byte(len(msg) >> 16), byte(len(msg) >> 8), byte(len(msg))}
	return append(frame, msg...)
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var nb [4]byte
	_, err := io.ReadFull(conn, nb[:])
	require.NoError(t, err)
	require.Equal(t, byte(0), nb[0])

	msg := make([]byte, int(nb[1])<<16|int(nb[2])<<8|int(nb[3]))
	_, err = io.ReadFull(conn, msg)
	require.NoError(t, err)
	return msg
}

func TestAdapterServesNegotiate(t *testing.T) {
	a := startAdapter(t, Config{})

	conn, err := net.Dial("tcp", a.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write(negotiateFrame(9))
	require.NoError(t, err)

	msg := readFrame(t, conn)
	hdr, err := header.Parse(msg)
	require.NoError(t, err)
	assert.True(t, hdr.IsReply())
	assert.Equal(t, types.SMBNegotiate, hdr.Command)
	assert.Equal(t, types.StatusSuccess, hdr.Status)
	assert.Equal(t, uint16(9), hdr.MID)
	assert.Equal(t, byte(17), msg[header.HeaderSize], "NT LM 0.12 negotiate response has 17 words")

	assert.Equal(t, "SMB1", a.Protocol())
	assert.Eventually(t, func() bool { return a.GetActiveConnections() == 1 }, time.Second, 10*time.Millisecond)
}

func TestAdapterAnswersSessionRequest(t *testing.T) {
	a := startAdapter(t, Config{})

	conn, err := net.Dial("tcp", a.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	names := make([]byte, 68)
	_, err = conn.Write(append([]byte{0x81, 0, 0, byte(len(names))}, names...))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var resp [4]byte
	_, err = io.ReadFull(conn, resp[:])
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0x82, 0, 0, 0}, resp)

	_, err = conn.Write(negotiateFrame(1))
	require.NoError(t, err)
	hdr, err := header.Parse(readFrame(t, conn))
	require.NoError(t, err)
	assert.Equal(t, types.SMBNegotiate, hdr.Command)
}

func TestAdapterClosesOnFatalError(t *testing.T) {
	a := startAdapter(t, Config{})

	conn, err := net.Dial("tcp", a.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	// An ECHO before NEGOTIATE is connection-fatal.
	hdr := &header.SMB1Header{Command: types.SMBEcho}
	msg := append(hdr.Encode(), 0, 0, 0)
	_, err = conn.Write(append([]byte{0, 0, 0, byte(len(msg))}, msg...))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestAdapterIdleTimeout(t *testing.T) {
	a := startAdapter(t, Config{IdleTimeout: 100 * time.Millisecond})

	conn, err := net.Dial("tcp", a.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Eventually(t, func() bool { return a.GetActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestAdapterStop(t *testing.T) {
	a := startAdapter(t, Config{})

	conn, err := net.Dial("tcp", a.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	assert.Eventually(t, func() bool { return a.GetActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))
	assert.Equal(t, int32(0), a.GetActiveConnections())
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	require.NoError(t, cfg.validate())
	assert.Equal(t, ":445", cfg.ListenAddress)
	assert.Equal(t, DefaultMaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)

	cfg.MaxMessageSize = 8
	assert.Error(t, cfg.validate())
}

func TestAdapterStatus(t *testing.T) {
	a := startAdapter(t, Config{})
	_ = a.Addr()

	assert.True(t, a.Ready())

	names := make([]string, 0)
	for _, s := range a.Shares() {
		names = append(names, s.Name+"="+s.Service)
	}
	assert.ElementsMatch(t, []string{"IPC$=IPC", "data=A:"}, names)

	st := a.Stats()
	assert.Equal(t, "TESTSRV", st.ServerName)
	assert.Zero(t, st.OpenFiles)
	assert.Zero(t, st.PendingLocks)
}
