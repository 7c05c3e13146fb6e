package handlers

import (
	"github.com/marmos91/dittosmb/internal/adapter/smb1/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
)

// noFID is the FID value that means "the file opened earlier in this chain".
const noFID uint16 = 0xFFFF

// Chain is the state shared by the commands of one AndX chain. A
// SESSION_SETUP_ANDX or TREE_CONNECT_ANDX early in the chain sets the UID
// or TID the later commands (and the response header) use.
type Chain struct {
	UID uint16
	TID uint16

	// FID is the handle opened by an earlier OPEN_ANDX of the chain, used
	// by later commands that pass FID 0xFFFF.
	FID uint16
}

// NewChain starts the chain state of a request from its header.
func NewChain(h *header.SMB1Header) *Chain {
	return &Chain{UID: h.UID, TID: h.TID, FID: noFID}
}

// Request is one command of an incoming SMB1 message.
type Request struct {
	Header  *header.SMB1Header
	Command types.Command

	// Words is the parameter block; Bytes is the data block.
	Words []byte
	Bytes []byte

	// BytesOffset is the offset of Bytes from the start of the SMB header,
	// used to align Unicode strings.
	BytesOffset int

	// Message is the whole SMB message, header included, for commands that
	// address data by absolute offset (WRITE_ANDX, WRITE_RAW).
	Message []byte

	// ReplyOffset is where this command's response block (its WordCount
	// byte) starts, measured from the start of the response header.
	ReplyOffset int

	// Index is the position of the command in its AndX chain.
	Index int

	// Chained is set when the message carries more than one command.
	Chained bool

	// Last is set for the final command of the message; only it may
	// suspend.
	Last bool

	Chain *Chain
	Conn  *Conn

	// Session and Tree are resolved by the dispatcher for commands that
	// need them.
	Session *Session
	Tree    *TreeConnect
}

// Unicode reports whether strings in the request are UTF-16LE.
func (r *Request) Unicode() bool {
	return r.Header.IsUnicode()
}

// PID returns the 32-bit process identifier of the request.
func (r *Request) PID() uint32 {
	return r.Header.PID()
}

// CanSuspend reports whether the command may park. Commands other than the
// last of a chain run without blocking.
func (r *Request) CanSuspend() bool {
	return r.Last
}

// WordCount returns the number of parameter words.
func (r *Request) WordCount() int {
	return len(r.Words) / 2
}

// hasWords reports whether the word count is one of counts.
func (r *Request) hasWords(counts ...int) bool {
	wc := r.WordCount()
	for _, c := range counts {
		if wc == c {
			return true
		}
	}
	return false
}

// WordReader returns a reader over the parameter words.
func (r *Request) WordReader() *smbenc.Reader {
	return smbenc.NewReader(r.Words)
}

// ByteReader returns a reader over the data block that aligns relative to
// the start of the message.
func (r *Request) ByteReader() *smbenc.Reader {
	return smbenc.NewReaderAt(r.Bytes, r.BytesOffset)
}

// ReplyBytes returns a writer for the data block of a response with the
// given number of parameter words, aligned relative to the response header.
func (r *Request) ReplyBytes(words int) *smbenc.Writer {
	return smbenc.NewWriterAt(64, r.ReplyOffset+1+words*2+2)
}

// readPath reads a buffer-format-prefixed path from rd.
func (r *Request) readPath(rd *smbenc.Reader) (string, error) {
	rd.ExpectUint8(types.BufferFormatASCII)
	s := rd.ReadString(r.Unicode())
	return s, rd.Err()
}

// andxWriter returns a writer for a parameter block of the given number of
// words, starting with an AndX header the dispatcher fills in.
func andxWriter(words int) *smbenc.Writer {
	w := smbenc.NewWriter(words * 2)
	w.WriteUint8(uint8(types.SMBNoAndXCommand))
	w.WriteUint8(0)
	w.WriteUint16(0)
	return w
}
