package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer and restores stdout on
// cleanup.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	InitWithWriter(buf, "", "", false)

	t.Cleanup(func() {
		setSink(sink{w: os.Stdout})
		SetLevel("INFO")
		SetFormat("text")
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	t.Run("InfoHidesDebug", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")

		Debug("debug message")
		Info("info message")

		assert.NotContains(t, buf.String(), "debug message")
		assert.Contains(t, buf.String(), "info message")
	})

	t.Run("ErrorAlwaysLogged", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("ERROR")

		Warn("warn message")
		Error("error message")

		assert.NotContains(t, buf.String(), "warn message")
		assert.Contains(t, buf.String(), "error message")
	})

	t.Run("InvalidLevelIgnored", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("DEBUG")
		SetLevel("VERBOSE")

		Debug("still debug")
		assert.Contains(t, buf.String(), "still debug")
	})
}

func TestTextFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("DEBUG")

	Debug("LOCKING_ANDX: granted", KeyFID, 7, KeyLockOffset, 100)

	line := buf.String()
	assert.Contains(t, line, "[DEBUG]")
	assert.Contains(t, line, "fid=7")
	assert.Contains(t, line, "lock_offset=100")
}

func TestJSONFormatWithContext(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("DEBUG")
	SetFormat("json")

	lc := NewLogContext("10.0.0.5").WithCommand("READ_ANDX", 3, 100, 4242, 17).WithShare("public")
	ctx := WithContext(context.Background(), lc)
	InfoCtx(ctx, "read complete", KeyBytesRead, 512)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "read complete", entry["msg"])
	assert.Equal(t, "READ_ANDX", entry[KeyCommand])
	assert.Equal(t, "public", entry[KeyShare])
	assert.Equal(t, "10.0.0.5", entry[KeyClientIP])
	assert.EqualValues(t, 3, entry[KeyTID])
	assert.EqualValues(t, 17, entry[KeyMID])
	assert.EqualValues(t, 512, entry[KeyBytesRead])
}

func TestLogContextClone(t *testing.T) {
	var nilCtx *LogContext
	assert.Nil(t, nilCtx.Clone())
	assert.Zero(t, nilCtx.DurationMs())
	assert.Nil(t, FromContext(context.Background()))

	base := NewLogContext("127.0.0.1")
	derived := base.WithShare("docs")
	assert.Empty(t, base.Share)
	assert.Equal(t, "docs", derived.Share)
}

func TestStatusAttr(t *testing.T) {
	attr := Status(0xC0000054)
	assert.Equal(t, KeyStatus, attr.Key)
	assert.Equal(t, "0xc0000054", attr.Value.String())
	assert.Equal(t, "2/1", DOSError(2, 1).Value.String())
}

func TestTextHandlerGroups(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("DEBUG")

	With("conn", 9).WithGroup("lock").Info("parked", "offset", 10)

	line := buf.String()
	assert.Contains(t, line, "conn=9")
	assert.Contains(t, line, "lock.offset=10")
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel(" warning ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestInitFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smb.log")
	t.Cleanup(func() {
		setSink(sink{w: os.Stdout})
		SetLevel("INFO")
		SetFormat("text")
	})

	require.NoError(t, Init(Config{Level: "debug", Format: "json", Output: path}))
	Debug("tree connect", KeyShare, "public")
	setSink(sink{w: os.Stdout})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"share":"public"`)
}

func TestTextHandlerBoundAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)
	l := slog.New(h).With(KeyConnectionID, 4).WithGroup("oplock").With("level", "batch")

	l.Debug("break sent", "fid", 2)

	line := buf.String()
	assert.Contains(t, line, "[DEBUG] break sent")
	assert.Contains(t, line, "connection_id=4")
	assert.Contains(t, line, "oplock.level=batch")
	assert.Contains(t, line, "oplock.fid=2")
}
