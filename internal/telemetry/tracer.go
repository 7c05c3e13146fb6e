package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys for SMB1 commands.
const (
	AttrClientIP = "client.ip"

	AttrSMBCommand  = "smb.command"
	AttrSMBMID      = "smb.mid"
	AttrSMBPID      = "smb.pid"
	AttrSMBUID      = "smb.uid"
	AttrSMBTID      = "smb.tid"
	AttrSMBFID      = "smb.fid"
	AttrSMBAndX     = "smb.andx_index"
	AttrSMBStatus   = "smb.status"
	AttrSMBDeferred = "smb.deferred"

	AttrShare        = "fs.share"
	AttrPath         = "fs.path"
	AttrOffset       = "fs.offset"
	AttrCount        = "fs.count"
	AttrBytesRead    = "fs.bytes_read"
	AttrBytesWritten = "fs.bytes_written"
	AttrZeroCopy     = "fs.zero_copy"
	AttrMatched      = "fs.matched"
)

func ClientIP(ip string) attribute.KeyValue { return attribute.String(AttrClientIP, ip) }

func SMBCommand(name string) attribute.KeyValue { return attribute.String(AttrSMBCommand, name) }

func SMBMID(mid uint16) attribute.KeyValue { return attribute.Int(AttrSMBMID, int(mid)) }

func SMBTID(tid uint16) attribute.KeyValue { return attribute.Int(AttrSMBTID, int(tid)) }

func SMBFID(fid uint16) attribute.KeyValue { return attribute.Int(AttrSMBFID, int(fid)) }

func SMBAndX(i int) attribute.KeyValue { return attribute.Int(AttrSMBAndX, i) }

func Share(name string) attribute.KeyValue { return attribute.String(AttrShare, name) }

func Path(p string) attribute.KeyValue { return attribute.String(AttrPath, p) }

func Offset(off uint64) attribute.KeyValue { return attribute.Int64(AttrOffset, int64(off)) }

func Count(n uint32) attribute.KeyValue { return attribute.Int64(AttrCount, int64(n)) }

func BytesRead(n int) attribute.KeyValue { return attribute.Int(AttrBytesRead, n) }

func BytesWritten(n int) attribute.KeyValue { return attribute.Int(AttrBytesWritten, n) }

func ZeroCopy(on bool) attribute.KeyValue { return attribute.Bool(AttrZeroCopy, on) }

func Matched(n int) attribute.KeyValue { return attribute.Int(AttrMatched, n) }

// StartCommandSpan starts a span named "smb1.<COMMAND>" for one command of a
// request, tagged with its header identifiers.
func StartCommandSpan(ctx context.Context, command string, mid, tid uint16, andx int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, 4+len(attrs))
	all = append(all, SMBCommand(command), SMBMID(mid), SMBTID(tid), SMBAndX(andx))
	all = append(all, attrs...)
	return StartSpan(ctx, "smb1."+command, trace.WithAttributes(all...), trace.WithSpanKind(trace.SpanKindServer))
}

// EndCommandSpan records the wire status and whether the command was
// deferred, then ends the span. Non-success statuses mark the span failed.
func EndCommandSpan(span trace.Span, status uint32, deferred bool) {
	span.SetAttributes(
		attribute.String(AttrSMBStatus, fmt.Sprintf("0x%08x", status)),
		attribute.Bool(AttrSMBDeferred, deferred),
	)
	if status>>30 == 3 {
		span.SetStatus(codes.Error, fmt.Sprintf("status 0x%08x", status))
	}
	span.End()
}
