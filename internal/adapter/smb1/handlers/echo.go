package handlers

import (
	"context"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
)

// Echo handles SMB_COM_ECHO (0x2B).
//
// The reply is sent EchoCount times, each carrying its sequence number and
// the request data. A count of zero sends nothing.
//
// **Request (1 word):** EchoCount(2), Bytes: Data
//
// **Response (1 word):** SequenceNumber(2), Bytes: Data
func (h *Handler) Echo(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(1) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	count := req.WordReader().ReadUint16()
	if count == 0 {
		return noReply()
	}
	data := append([]byte(nil), req.Bytes...)
	res := NewResult(types.StatusSuccess, make([]byte, 2), data)
	res.Repeat = count
	return res
}
