package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently so log lines can be aggregated by command,
// tree, and handle.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// SMB1 Header Identifiers
	// ========================================================================
	KeyCommand = "command" // SMB1 command name: OPEN_ANDX, LOCKING_ANDX, ...
	KeyTID     = "tid"     // Tree identifier
	KeyUID     = "uid"     // Session (virtual user) identifier
	KeyPID     = "pid"     // Client process identifier
	KeyMID     = "mid"     // Multiplex identifier
	KeyFID     = "fid"     // File identifier
	KeyAndX    = "andx"    // Position within an AndX chain
	KeyStatus  = "status"  // NT status code
	KeyDOSErr  = "dos_err" // DOS error class/code

	// ========================================================================
	// File System Operations
	// ========================================================================
	KeyShare   = "share"
	KeyPath    = "path"
	KeyOldPath = "old_path"
	KeyNewPath = "new_path"
	KeyMask    = "mask"
	KeySize    = "size"
	KeyAttrs   = "attrs"

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyOffset       = "offset"
	KeyCount        = "count"
	KeyBytesRead    = "bytes_read"
	KeyBytesWritten = "bytes_written"
	KeyZeroCopy     = "zero_copy"
	KeyWriteThrough = "write_through"

	// ========================================================================
	// Locking & Oplocks
	// ========================================================================
	KeyLockOffset = "lock_offset"
	KeyLockLength = "lock_length"
	KeyLockOwner  = "lock_owner"
	KeyTimeout    = "timeout"
	KeyOplock     = "oplock"

	// ========================================================================
	// Connection
	// ========================================================================
	KeyClientIP     = "client_ip"
	KeyConnectionID = "connection_id"
	KeyDurationMs   = "duration_ms"
	KeyError        = "error"
	KeyMatched      = "matched"
	KeySucceeded    = "succeeded"
)

// ============================================================================
// Typed attribute helpers
// ============================================================================

func Command(name string) slog.Attr { return slog.String(KeyCommand, name) }

func TID(tid uint16) slog.Attr { return slog.Int(KeyTID, int(tid)) }

func UID(uid uint16) slog.Attr { return slog.Int(KeyUID, int(uid)) }

func PID(pid uint32) slog.Attr { return slog.Uint64(KeyPID, uint64(pid)) }

func MID(mid uint16) slog.Attr { return slog.Int(KeyMID, int(mid)) }

func FID(fid uint16) slog.Attr { return slog.Int(KeyFID, int(fid)) }

// Status renders an NT status code as hex, matching packet captures.
func Status(code uint32) slog.Attr {
	return slog.String(KeyStatus, fmt.Sprintf("0x%08x", code))
}

func DOSError(class uint8, code uint16) slog.Attr {
	return slog.String(KeyDOSErr, fmt.Sprintf("%d/%d", class, code))
}

func Share(name string) slog.Attr { return slog.String(KeyShare, name) }

func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

func OldPath(p string) slog.Attr { return slog.String(KeyOldPath, p) }

func NewPath(p string) slog.Attr { return slog.String(KeyNewPath, p) }

func Offset(off uint64) slog.Attr { return slog.Uint64(KeyOffset, off) }

func Count(c uint32) slog.Attr { return slog.Uint64(KeyCount, uint64(c)) }

func BytesRead(n int) slog.Attr { return slog.Int(KeyBytesRead, n) }

func BytesWritten(n int) slog.Attr { return slog.Int(KeyBytesWritten, n) }

func LockRange(off, length uint64) []any {
	return []any{KeyLockOffset, off, KeyLockLength, length}
}

func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }

func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
