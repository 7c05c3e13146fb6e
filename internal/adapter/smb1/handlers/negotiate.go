package handlers

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
)

// ServerCapabilities are the capabilities advertised in NEGOTIATE.
const ServerCapabilities = types.CapUnicode |
	types.CapLargeFiles |
	types.CapNTStatus |
	types.CapLevel2Oplocks |
	types.CapLockAndRead |
	types.CapLargeReadX |
	types.CapLargeWriteX

// Security mode bits.
const (
	securityUserLevel       uint8 = 0x01
	securityEncryptPassword uint8 = 0x02
)

// maxRawSize is advertised for completeness; raw mode is not offered.
const maxRawSize = 65536

// noDialect is the DialectIndex reply when no offered dialect is supported.
const noDialect uint16 = 0xFFFF

// Negotiate handles SMB_COM_NEGOTIATE (0x72).
//
// The client offers a list of dialect strings; only "NT LM 0.12" is
// accepted. The reply carries the server limits, capabilities and an
// 8-byte challenge.
//
// **Request:**
//
//	WordCount  0
//	Bytes      { 0x02 DialectString\0 } ...
//
// **Response (17 words):**
//
//	DialectIndex(2) SecurityMode(1) MaxMpxCount(2) MaxNumberVcs(2)
//	MaxBufferSize(4) MaxRawSize(4) SessionKey(4) Capabilities(4)
//	SystemTime(8) ServerTimeZone(2) ChallengeLength(1)
//	Bytes: Challenge(8) DomainName\0 ServerName\0
func (h *Handler) Negotiate(ctx context.Context, req *Request) *HandlerResult {
	if req.Conn.Negotiated() {
		logger.WarnCtx(ctx, "NEGOTIATE: repeated on connection")
		return NewErrorResult(types.StatusInvalidSMB)
	}

	r := req.ByteReader()
	index := noDialect
	for i := 0; r.Remaining() > 0; i++ {
		r.ExpectUint8(types.BufferFormatDialect)
		dialect := r.ReadString(false)
		if r.Err() != nil {
			return NewErrorResult(types.StatusInvalidParameter)
		}
		if dialect == types.DialectNTLM012 {
			index = uint16(i)
		}
	}

	if index == noDialect {
		logger.DebugCtx(ctx, "NEGOTIATE: no supported dialect offered")
		w := smbenc.NewWriter(2)
		w.WriteUint16(noDialect)
		return NewResult(types.StatusSuccess, w.Bytes(), nil)
	}

	var challenge [8]byte
	_, _ = rand.Read(challenge[:])

	c := req.Conn
	c.mu.Lock()
	c.negotiated = true
	c.challenge = challenge
	c.mu.Unlock()

	now := time.Now()
	_, offset := now.Zone()

	w := smbenc.NewWriter(34)
	w.WriteUint16(index)
	w.WriteUint8(securityUserLevel | securityEncryptPassword)
	w.WriteUint16(h.MaxMpx)
	w.WriteUint16(1) // MaxNumberVcs
	w.WriteUint32(h.MaxBufferSize)
	w.WriteUint32(maxRawSize)
	w.WriteUint32(uint32(c.ID))
	w.WriteUint32(ServerCapabilities)
	w.WriteUint64(types.TimeToFiletime(now))
	w.WriteUint16(uint16(int16(-offset / 60)))
	w.WriteUint8(uint8(len(challenge)))

	// Negotiate strings are not aligned.
	b := smbenc.NewWriter(64)
	b.WriteBytes(challenge[:])
	writeUnaligned(b, h.Workgroup, req.Unicode())
	writeUnaligned(b, h.ServerName, req.Unicode())

	logger.DebugCtx(ctx, "NEGOTIATE: dialect selected",
		"dialect", types.DialectNTLM012,
		"index", index)
	return NewResult(types.StatusSuccess, w.Bytes(), b.Bytes())
}

// writeUnaligned writes a null-terminated string with no alignment padding.
func writeUnaligned(w *smbenc.Writer, s string, unicode bool) {
	if unicode {
		w.WriteBytes(smbenc.EncodeUTF16(s))
		w.WriteUint16(0)
		return
	}
	w.WriteString(s, false)
}
