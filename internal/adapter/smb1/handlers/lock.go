package handlers

import (
	"context"
	"errors"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/locking"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/oplock"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/locktable"
)

// lockableFile resolves fid to a handle that byte-range locks apply to.
func lockableFile(req *Request, fid uint16) (*OpenFile, types.Status) {
	f, status := lookupFile(req, fid)
	if status != types.StatusSuccess {
		return nil, status
	}
	if f.Key == "" {
		return nil, types.StatusInvalidDeviceRequest
	}
	return f, types.StatusSuccess
}

// runLocks submits b and finishes the command with done. A batch the engine
// parks suspends the command; NT_CANCEL resolves it with a lock conflict.
// Only the last command of a chain may wait, others fail at once.
func (h *Handler) runLocks(ctx context.Context, req *Request, b locking.Batch, done func(err error) *HandlerResult) *HandlerResult {
	if !req.CanSuspend() {
		b.Timeout = types.LockTimeoutNone
	}
	b.Tag = uint64(req.Header.MID)

	connID := b.Owner.ConnID
	mid := b.Tag
	file := b.File
	cont := NewContinuation(req, done, func() {
		h.Locks.CancelWhere(func(w *locking.Waiter) bool {
			return w.File == file && w.Owner.ConnID == connID && w.Tag == mid
		}, locking.ErrLockConflict)
	})
	// The engine may resolve while holding its own state; resume elsewhere.
	b.Resolve = func(err error) { go cont.Resume(err) }

	outcome, err := h.Locks.Request(ctx, b)
	if err == nil && outcome == locking.OutcomePending {
		h.updateGauges()
		return Suspend(cont)
	}
	return done(err)
}

// LockingAndX handles SMB_COM_LOCKING_ANDX (0x24).
//
// The same command carries byte-range lock batches and oplock break
// acknowledgments. An acknowledgment with no ranges gets no response.
//
// **Request (8 words):**
//
//	AndX(4) FID(2) TypeOfLock(1) NewOplockLevel(1) Timeout(4)
//	NumberOfUnlocks(2) NumberOfLocks(2)
//	Bytes: Unlocks[] Locks[] (10 bytes each, 20 with LARGE_FILES)
//
// **Response (2 words):** AndX(4)
func (h *Handler) LockingAndX(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(8) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	wr.Skip(4)
	fid := wr.ReadUint16()
	lockType := wr.ReadUint8()
	newLevel := wr.ReadUint8()
	timeout := wr.ReadUint32()
	nUnlocks := int(wr.ReadUint16())
	nLocks := int(wr.ReadUint16())

	f, status := lookupFile(req, fid)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}

	if lockType&types.LockingOplockRelease != 0 {
		level := oplock.LevelNone
		if newLevel == types.OplockLevelII {
			level = oplock.LevelII
		}
		if f.Key != "" {
			acked := h.Oplocks.Ack(f.oplockFile(), f.holder(), level)
			logger.DebugCtx(ctx, "LOCKING: oplock break acknowledged",
				logger.KeyFID, f.FID,
				logger.KeyOplock, level.String(),
				"matched", acked)
		}
		if nUnlocks == 0 && nLocks == 0 {
			return noReply()
		}
	}

	if lockType&types.LockingChangeType != 0 {
		return NewErrorResult(types.DOSStatus(types.ErrDOS, types.ERRnoatomiclocks))
	}
	if f.Key == "" {
		return NewErrorResult(types.StatusInvalidDeviceRequest)
	}

	large := lockType&types.LockingLargeFiles != 0
	allowed := f.Tree.Share.LargeFiles
	unlocks, used, err := locking.DecodeEntries(req.Bytes, nUnlocks, large, allowed, req.Header.PIDHigh)
	if err != nil {
		return NewErrorResult(locking.StatusFor(err))
	}
	locks, _, err := locking.DecodeEntries(req.Bytes[used:], nLocks, large, allowed, req.Header.PIDHigh)
	if err != nil {
		return NewErrorResult(locking.StatusFor(err))
	}

	b := locking.Batch{
		File:    f.lockFile(),
		Owner:   f.owner(req.PID()),
		Unlocks: unlocks,
		Locks:   locks,
		Shared:  lockType&types.LockingSharedLock != 0,
		Timeout: timeout,
		Cancel:  lockType&types.LockingCancelLock != 0,
	}
	logger.DebugCtx(ctx, "LOCKING: request",
		logger.KeyFID, f.FID,
		"unlocks", nUnlocks,
		"locks", nLocks,
		logger.KeyTimeout, timeout)

	return h.runLocks(ctx, req, b, func(err error) *HandlerResult {
		h.updateGauges()
		if err != nil {
			return NewErrorResult(locking.StatusFor(err))
		}
		return NewResult(types.StatusSuccess, andxWriter(2).Bytes(), nil)
	})
}

// coreLockStatus maps a lock error of the core lock commands, which report
// any conflict as FILE_LOCK_CONFLICT.
func coreLockStatus(err error) types.Status {
	if errors.Is(err, locking.ErrLockNotGranted) {
		return types.StatusFileLockConflict
	}
	return locking.StatusFor(err)
}

// lockRange takes one exclusive range for the requesting process without
// waiting.
func (h *Handler) lockRange(ctx context.Context, req *Request, f *OpenFile, offset, length uint64) error {
	_, err := h.Locks.Request(ctx, locking.Batch{
		File:    f.lockFile(),
		Owner:   f.owner(req.PID()),
		Locks:   []locking.Entry{{PID: req.PID(), Offset: offset, Length: length}},
		Timeout: types.LockTimeoutNone,
	})
	return err
}

// LockByteRange handles SMB_COM_LOCK_BYTE_RANGE (0x0C).
//
// **Request (5 words):** FID(2) CountOfBytesToLock(4) LockOffsetInBytes(4)
func (h *Handler) LockByteRange(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(5) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	f, status := lockableFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	count := uint64(wr.ReadUint32())
	offset := uint64(wr.ReadUint32())

	if err := h.lockRange(ctx, req, f, offset, count); err != nil {
		return NewErrorResult(coreLockStatus(err))
	}
	return emptyResult()
}

// UnlockByteRange handles SMB_COM_UNLOCK_BYTE_RANGE (0x0D).
//
// **Request (5 words):** FID(2) CountOfBytesToUnlock(4) UnlockOffsetInBytes(4)
func (h *Handler) UnlockByteRange(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(5) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	f, status := lockableFile(req, wr.ReadUint16())
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	count := uint64(wr.ReadUint32())
	offset := uint64(wr.ReadUint32())

	if err := h.unlockRange(f, f.owner(req.PID()), offset, count); err != nil {
		return NewErrorResult(locking.StatusFor(err))
	}
	return emptyResult()
}

// unlockRange releases a range taken by lockRange.
func (h *Handler) unlockRange(f *OpenFile, owner locktable.Owner, offset, length uint64) error {
	return h.Locks.Unlock(f.lockFile(), owner, offset, length)
}
