package handlers

import (
	"context"

	"github.com/marmos91/dittosmb/internal/logger"
)

// NTCancel handles SMB_COM_NT_CANCEL (0xA4). It cancels the parked command
// with the same MID, PID and UID; that command then replies on its own.
// NT_CANCEL itself never gets a reply.
func (h *Handler) NTCancel(ctx context.Context, req *Request) *HandlerResult {
	cont, ok := req.Conn.Pending(req.Header.MID)
	if !ok || cont.PID != req.PID() || cont.UID != req.Header.UID {
		logger.DebugCtx(ctx, "NT_CANCEL: nothing to cancel", logger.KeyMID, req.Header.MID)
		return noReply()
	}
	logger.DebugCtx(ctx, "NT_CANCEL: cancelling", logger.KeyMID, cont.MID, logger.KeyCommand, cont.Command.String())
	cont.Cancel()
	return noReply()
}
