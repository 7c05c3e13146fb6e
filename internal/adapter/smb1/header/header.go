// Package header parses and encodes the fixed 32-byte SMB1 message header.
//
// Layout (little-endian):
//
//	0  Protocol   [4]  0xFF 'S' 'M' 'B'
//	4  Command    1
//	5  Status     4    NT status, or ErrorClass(1) Reserved(1) Code(2)
//	9  Flags      1
//	10 Flags2     2
//	12 PIDHigh    2
//	14 Signature  8
//	22 Reserved   2
//	24 TID        2
//	26 PIDLow     2
//	28 UID        2
//	30 MID        2
package header

import (
	"encoding/binary"
	"errors"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
)

// Parsing errors
var (
	// ErrInvalidProtocolID indicates the message does not start with 0xFF 'S' 'M' 'B'.
	ErrInvalidProtocolID = errors.New("invalid SMB1 protocol ID")

	// ErrMessageTooShort indicates the message cannot hold a header.
	ErrMessageTooShort = errors.New("message too short for SMB1 header")
)

// HeaderSize is the fixed SMB1 header length.
const HeaderSize = types.HeaderSize

// SMB1Header is the decoded message header.
type SMB1Header struct {
	Command   types.Command
	Status    types.Status
	Flags     uint8
	Flags2    uint16
	PIDHigh   uint16
	Signature [8]byte
	TID       uint16
	PIDLow    uint16
	UID       uint16
	MID       uint16
}

// Parse decodes an SMB1 header from data.
//
// The status field is interpreted according to Flags2: with
// FLAGS2_32BIT_STATUS it is an NT status, otherwise it is a DOS
// class/code pair and is returned wrapped by types.DOSStatus.
func Parse(data []byte) (*SMB1Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrMessageTooShort
	}
	if !IsSMB1Message(data) {
		return nil, ErrInvalidProtocolID
	}

	h := &SMB1Header{
		Command: types.Command(data[4]),
		Flags:   data[9],
		Flags2:  binary.LittleEndian.Uint16(data[10:12]),
		PIDHigh: binary.LittleEndian.Uint16(data[12:14]),
		TID:     binary.LittleEndian.Uint16(data[24:26]),
		PIDLow:  binary.LittleEndian.Uint16(data[26:28]),
		UID:     binary.LittleEndian.Uint16(data[28:30]),
		MID:     binary.LittleEndian.Uint16(data[30:32]),
	}
	copy(h.Signature[:], data[14:22])

	if h.Flags2&types.Flags2NTStatus != 0 {
		h.Status = types.Status(binary.LittleEndian.Uint32(data[5:9]))
	} else if class, code := data[5], binary.LittleEndian.Uint16(data[7:9]); class != 0 || code != 0 {
		h.Status = types.DOSStatus(types.ErrorClass(class), code)
	}

	return h, nil
}

// IsSMB1Message checks if data starts with the SMB1 protocol ID.
func IsSMB1Message(data []byte) bool {
	return len(data) >= 4 && [4]byte(data[0:4]) == types.SMB1ProtocolID
}

// PID returns the full 32-bit process identifier.
func (h *SMB1Header) PID() uint32 {
	return uint32(h.PIDHigh)<<16 | uint32(h.PIDLow)
}

// IsUnicode reports whether strings in the message are UTF-16LE.
func (h *SMB1Header) IsUnicode() bool {
	return h.Flags2&types.Flags2Unicode != 0
}

// UsesNTStatus reports whether the client negotiated 32-bit status codes.
func (h *SMB1Header) UsesNTStatus() bool {
	return h.Flags2&types.Flags2NTStatus != 0
}

// IsReply reports whether the message is a server reply.
func (h *SMB1Header) IsReply() bool {
	return h.Flags&types.FlagsReply != 0
}

// Reply returns a response header for h: same identifiers and Flags2, the
// reply flag set, and the given status.
func (h *SMB1Header) Reply(status types.Status) *SMB1Header {
	r := *h
	r.Flags |= types.FlagsReply
	r.Status = status
	r.Signature = [8]byte{}
	return &r
}

// Encode serializes the header. The status is written as an NT status when
// Flags2 carries FLAGS2_32BIT_STATUS and as a DOS class/code pair otherwise,
// applying the per-command remaps of types.DOSErrorFor.
func (h *SMB1Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf
}

// EncodeTo writes the header into buf, which must hold HeaderSize bytes.
func (h *SMB1Header) EncodeTo(buf []byte) {
	_ = buf[HeaderSize-1]
	copy(buf[0:4], types.SMB1ProtocolID[:])
	buf[4] = byte(h.Command)
	h.encodeStatus(buf[5:9])
	buf[9] = h.Flags
	binary.LittleEndian.PutUint16(buf[10:12], h.Flags2)
	binary.LittleEndian.PutUint16(buf[12:14], h.PIDHigh)
	copy(buf[14:22], h.Signature[:])
	buf[22], buf[23] = 0, 0
	binary.LittleEndian.PutUint16(buf[24:26], h.TID)
	binary.LittleEndian.PutUint16(buf[26:28], h.PIDLow)
	binary.LittleEndian.PutUint16(buf[28:30], h.UID)
	binary.LittleEndian.PutUint16(buf[30:32], h.MID)
}

func (h *SMB1Header) encodeStatus(dst []byte) {
	// DOS-only conditions reach NT-status clients as the 0xF1 facility
	// code, which they decode back to the DOS pair.
	if h.UsesNTStatus() {
		binary.LittleEndian.PutUint32(dst, uint32(h.Status))
		return
	}
	d := types.DOSErrorFor(h.Command, h.Status)
	dst[0] = byte(d.Class)
	dst[1] = 0
	binary.LittleEndian.PutUint16(dst[2:4], d.Code)
}
