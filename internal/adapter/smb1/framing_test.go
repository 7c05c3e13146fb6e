package smb1

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
)

// pipe returns the server end of an in-memory connection and feeds frames
// into it from the client end.
func pipe(t *testing.T, frames ...[]byte) net.Conn {
	t.Helper()
	server, clientEnd := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = clientEnd.Close()
	})
	go func() {
		for _, f := range frames {
			if _, err := clientEnd.Write(f); err != nil {
				return
			}
		}
	}()
	return server
}

func smbMessage(t *testing.T) []byte {
	t.Helper()
	hdr := &header.SMB1Header{Command: types.SMBNegotiate, MID: 7}
	return buildMessage(hdr, negotiateBlock())
}

func TestReadMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("SkipsKeepalive", func(t *testing.T) {
		msg := smbMessage(t)
		frame, err := EncodeFrame(msg)
		require.NoError(t, err)

		conn := pipe(t, []byte{nbssKeepAlive, 0, 0, 0}, frame)
		got, err := ReadMessage(ctx, conn, 1<<16, time.Second, newRecordingTransport())
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	})

	t.Run("AnswersSessionRequest", func(t *testing.T) {
		msg := smbMessage(t)
		frame, err := EncodeFrame(msg)
		require.NoError(t, err)

		names := make([]byte, 68)
		request := append([]byte{nbssSessionRequest, 0, 0, byte(len(names))}, names...)
		tr := newRecordingTransport()

		conn := pipe(t, request, frame)
		got, err := ReadMessage(ctx, conn, 1<<16, time.Second, tr)
		require.NoError(t, err)
		assert.Equal(t, msg, got)

		// The positive response is not a message frame, so it is recorded whole.
		require.Len(t, tr.messages(), 1)
		assert.Equal(t, []byte{nbssPositiveResponse, 0, 0, 0}, tr.messages()[0])
	})

	t.Run("RejectsUnknownType", func(t *testing.T) {
		conn := pipe(t, []byte{0x42, 0, 0, 0})
		_, err := ReadMessage(ctx, conn, 1<<16, time.Second, newRecordingTransport())
		require.Error(t, err)
	})

	t.Run("RejectsOversized", func(t *testing.T) {
		conn := pipe(t, []byte{nbssMessage, 0x01, 0, 0})
		_, err := ReadMessage(ctx, conn, 1<<10, time.Second, newRecordingTransport())
		require.Error(t, err)
	})

	t.Run("RejectsShorterThanHeader", func(t *testing.T) {
		conn := pipe(t, []byte{nbssMessage, 0, 0, 4, 0xFF, 'S', 'M', 'B'})
		_, err := ReadMessage(ctx, conn, 1<<10, time.Second, newRecordingTransport())
		require.Error(t, err)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := ReadMessage(cctx, pipe(t), 1<<10, time.Second, newRecordingTransport())
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestEncodeFrame(t *testing.T) {
	frame, err := EncodeFrame(make([]byte, 0x012345))
	require.NoError(t, err)
	assert.Equal(t, []byte{nbssMessage, 0x01, 0x23, 0x45}, frame[:NBSSHeaderSize])
	assert.Len(t, frame, NBSSHeaderSize+0x012345)

	_, err = EncodeFrame(make([]byte, MaxFrameLength+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}
