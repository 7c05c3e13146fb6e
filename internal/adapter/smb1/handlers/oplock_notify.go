package handlers

import (
	"github.com/marmos91/dittosmb/internal/adapter/smb1/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/oplock"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
)

// breakMID is the MID of an unsolicited oplock break request.
const breakMID uint16 = 0xFFFF

// OplockBreak implements oplock.Notifier. The break is sent to the holder as
// a server-originated LOCKING_ANDX request; the sender never blocks on the
// client.
func (h *Handler) OplockBreak(holder oplock.Holder, newLevel oplock.Level) {
	c, ok := h.Conn(holder.ConnID)
	if !ok {
		return
	}
	f, ok := c.File(holder.FID)
	if !ok {
		return
	}
	msg := EncodeOplockBreak(f, newLevel)

	go func() {
		if err := c.Transport.WriteMessage(msg); err != nil {
			logger.Debug("OPLOCK: break not delivered",
				logger.KeyConnectionID, c.ID,
				logger.KeyFID, f.FID,
				logger.KeyError, err)
		}
	}()
}

// EncodeOplockBreak builds the LOCKING_ANDX break request for f.
func EncodeOplockBreak(f *OpenFile, newLevel oplock.Level) []byte {
	hdr := &header.SMB1Header{
		Command: types.SMBLockingAndX,
		TID:     f.TID,
		UID:     f.UID,
		PIDLow:  uint16(f.PID),
		PIDHigh: uint16(f.PID >> 16),
		MID:     breakMID,
	}

	w := smbenc.NewWriter(types.HeaderSize + 1 + 16 + 2)
	w.WriteBytes(hdr.Encode())
	w.WriteUint8(8)
	w.WriteUint8(uint8(types.SMBNoAndXCommand))
	w.WriteUint8(0)
	w.WriteUint16(0)
	w.WriteUint16(f.FID)
	w.WriteUint8(types.LockingOplockRelease)
	w.WriteUint8(newLevel.WireLevel())
	w.WriteUint32(0) // Timeout
	w.WriteUint16(0) // NumberOfUnlocks
	w.WriteUint16(0) // NumberOfLocks
	w.WriteUint16(0) // ByteCount
	return w.Bytes()
}
