package handlers

import (
	"github.com/marmos91/dittosmb/internal/adapter/smb1/transfer"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
)

// ============================================================================
// Handler Result Type
// ============================================================================

// HandlerResult is the outcome of one command of a request.
//
// Every SMB1 handler returns a HandlerResult. The dispatcher turns it into
// one block of the response: WordCount, Words, ByteCount, Bytes, followed by
// the streamed Payload when there is one.
type HandlerResult struct {
	// Status is the NT status of the command. The header encodes it as a
	// DOS class/code pair for clients that did not negotiate NT status.
	Status types.Status

	// Words is the parameter block (an even number of bytes). For AndX
	// commands the first four bytes are the AndX header, which the
	// dispatcher fills in.
	Words []byte

	// Bytes is the data block. With a Payload it is only the prefix; the
	// ByteCount written on the wire covers both.
	Bytes []byte

	// Payload is file data appended to Bytes. Only set by reads that are
	// not part of an AndX chain.
	Payload *Payload

	// Suspend parks the command. Nothing is sent until the continuation
	// resolves.
	Suspend *Continuation

	// NoReply suppresses the response entirely (oplock break
	// acknowledgments, NT_CANCEL, ECHO with a zero count).
	NoReply bool

	// Raw sends Payload as a bare NetBIOS frame without an SMB header
	// (READ_RAW). A failed raw read is a zero-length frame.
	Raw bool

	// Repeat sends the response this many times, with the first parameter
	// word carrying the 1-based sequence number (ECHO).
	Repeat uint16

	// Command overrides the command byte of the response header
	// (WRITE_RAW completes with WRITE_COMPLETE).
	Command types.Command

	// Flags is OR-ed into the response header flags (core oplock grants).
	Flags uint8
}

// Payload is file data streamed into the response by the transfer engine.
type Payload struct {
	Source transfer.Source
	Offset uint64
	Count  int
}

// NewResult creates a result with the given status, parameter words and
// data bytes.
//
// Example:
//
//	return NewResult(types.StatusSuccess, w.Bytes(), nil)
func NewResult(status types.Status, words, bytes []byte) *HandlerResult {
	return &HandlerResult{
		Status: status,
		Words:  words,
		Bytes:  bytes,
	}
}

// NewErrorResult creates an error result with empty word and byte blocks.
//
// Example:
//
//	return NewErrorResult(types.StatusAccessDenied)
func NewErrorResult(status types.Status) *HandlerResult {
	return &HandlerResult{Status: status}
}

// Suspend parks the command behind c.
func Suspend(c *Continuation) *HandlerResult {
	return &HandlerResult{Status: types.StatusPending, Suspend: c}
}

func noReply() *HandlerResult {
	return &HandlerResult{NoReply: true}
}

// emptyResult is a successful response with no words and no bytes.
func emptyResult() *HandlerResult {
	return NewResult(types.StatusSuccess, nil, nil)
}
