package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/locking"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
)

func lockingRequest(e *testEnv, fid uint16, lockType uint8, timeout uint32, unlocks, locks []locking.Entry) *Request {
	w := params(0x00FF, 0, fid, uint16(lockType), uint16(timeout), uint16(timeout>>16), uint16(len(unlocks)), uint16(len(locks)))
	data := append(locking.EncodeEntries(unlocks, false), locking.EncodeEntries(locks, false)...)
	return e.request(types.SMBLockingAndX, w, data)
}

func coreLockWords(fid uint16, offset, count uint32) []byte {
	return params(fid, uint16(count), uint16(count>>16), uint16(offset), uint16(offset>>16))
}

func awaitResult(t *testing.T, cont *Continuation) *HandlerResult {
	t.Helper()
	done := make(chan *HandlerResult, 1)
	cont.Attach(func(r *HandlerResult) { done <- r })
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("continuation did not resolve")
		return nil
	}
}

func TestCoreLocks(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.writeFile("f.txt", "0123456789")
	fid := e.open(`\f.txt`)

	p := e.peer()
	pfid := p.open(`\f.txt`)

	res := e.h.LockByteRange(ctx, e.request(types.SMBLockByteRange, coreLockWords(fid, 0, 4), nil))
	requireStatus(t, types.StatusSuccess, res)

	t.Run("ConflictingLock", func(t *testing.T) {
		res := p.h.LockByteRange(ctx, p.request(types.SMBLockByteRange, coreLockWords(pfid, 2, 4), nil))
		requireStatus(t, types.StatusFileLockConflict, res)
	})

	t.Run("ReadBlockedByLock", func(t *testing.T) {
		res := p.h.Read(ctx, p.request(types.SMBRead, params(pfid, 2, 0, 0, 0), nil))
		requireStatus(t, types.StatusFileLockConflict, res)

		res = p.h.Read(ctx, p.request(types.SMBRead, params(pfid, 2, 6, 0, 0), nil))
		requireStatus(t, types.StatusSuccess, res)
	})

	t.Run("OwnerMayWrite", func(t *testing.T) {
		requireStatus(t, types.StatusSuccess, e.write(fid, 0, "AB"))
		requireStatus(t, types.StatusFileLockConflict, p.write(pfid, 0, "xy"))
	})

	t.Run("UnlockNotHeld", func(t *testing.T) {
		res := p.h.UnlockByteRange(ctx, p.request(types.SMBUnlockByteRange, coreLockWords(pfid, 0, 4), nil))
		requireStatus(t, types.StatusRangeNotLocked, res)
	})

	t.Run("UnlockReleases", func(t *testing.T) {
		res := e.h.UnlockByteRange(ctx, e.request(types.SMBUnlockByteRange, coreLockWords(fid, 0, 4), nil))
		requireStatus(t, types.StatusSuccess, res)

		res = p.h.LockByteRange(ctx, p.request(types.SMBLockByteRange, coreLockWords(pfid, 2, 4), nil))
		requireStatus(t, types.StatusSuccess, res)
	})
}

func TestLockAndReadWriteAndUnlock(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.writeFile("f.txt", "abcdef")
	fid := e.open(`\f.txt`)

	res := e.h.LockAndRead(ctx, e.request(types.SMBLockAndRead, params(fid, 3, 0, 0, 0), nil))
	requireStatus(t, types.StatusSuccess, res)
	assert.Equal(t, "abc", string(payload(t, res)))

	p := e.peer()
	pfid := p.open(`\f.txt`)
	requireStatus(t, types.StatusFileLockConflict, p.write(pfid, 0, "z"))

	data := "XYZ"
	res = e.h.WriteAndUnlock(ctx, e.request(types.SMBWriteAndUnlock,
		params(fid, uint16(len(data)), 0, 0, 0), dataBlock(data)))
	requireStatus(t, types.StatusSuccess, res)

	requireStatus(t, types.StatusSuccess, p.write(pfid, 0, "z"))
	assert.Equal(t, "zYZdef", e.readFile("f.txt"))
}

func TestLockAndReadWidensOffset(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.writeFile("f.txt", "abcdef")
	fid := e.open(`\f.txt`)
	f, ok := e.conn.File(fid)
	require.True(t, ok)
	f.observeWrite(1<<32, 0)

	// Offset 0 now names the first byte past 4 GiB, beyond end of file.
	res := e.h.LockAndRead(ctx, e.request(types.SMBLockAndRead, params(fid, 3, 0, 0, 0), nil))
	requireStatus(t, types.StatusSuccess, res)
	assert.Equal(t, uint16(0), word(res, 0))

	p := e.peer()
	pfid := p.open(`\f.txt`)
	requireStatus(t, types.StatusSuccess, p.write(pfid, 0, "z"))

	pf, ok := p.conn.File(pfid)
	require.True(t, ok)
	pf.observeWrite(1<<32, 0)
	data := "XYZ"
	res = p.h.WriteAndUnlock(ctx, p.request(types.SMBWriteAndUnlock,
		params(pfid, uint16(len(data)), 0, 0, 0), dataBlock(data)))
	requireStatus(t, types.StatusFileLockConflict, res)
	assert.Equal(t, "zbcdef", e.readFile("f.txt"))
}

func TestLockingAndX(t *testing.T) {
	ctx := context.Background()

	t.Run("ImmediateConflict", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("f.txt", "0123456789")
		fid := e.open(`\f.txt`)
		p := e.peer()
		pfid := p.open(`\f.txt`)

		res := e.h.LockingAndX(ctx, lockingRequest(e, fid, 0, 0, nil, []locking.Entry{{PID: 100, Offset: 0, Length: 10}}))
		requireStatus(t, types.StatusSuccess, res)

		res = p.h.LockingAndX(ctx, lockingRequest(p, pfid, 0, 0, nil, []locking.Entry{{PID: 200, Offset: 5, Length: 1}}))
		requireStatus(t, types.StatusLockNotGranted, res)
	})

	t.Run("SharedLocksCoexist", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("f.txt", "0123456789")
		fid := e.open(`\f.txt`)
		p := e.peer()
		pfid := p.open(`\f.txt`)

		res := e.h.LockingAndX(ctx, lockingRequest(e, fid, types.LockingSharedLock, 0, nil, []locking.Entry{{PID: 100, Offset: 0, Length: 10}}))
		requireStatus(t, types.StatusSuccess, res)
		res = p.h.LockingAndX(ctx, lockingRequest(p, pfid, types.LockingSharedLock, 0, nil, []locking.Entry{{PID: 200, Offset: 0, Length: 10}}))
		requireStatus(t, types.StatusSuccess, res)
	})

	t.Run("BlockingLockWokenByUnlock", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("f.txt", "0123456789")
		fid := e.open(`\f.txt`)
		p := e.peer()
		pfid := p.open(`\f.txt`)

		entry := []locking.Entry{{PID: 100, Offset: 0, Length: 10}}
		requireStatus(t, types.StatusSuccess, e.h.LockingAndX(ctx, lockingRequest(e, fid, 0, 0, nil, entry)))

		res := p.h.LockingAndX(ctx, lockingRequest(p, pfid, 0, types.LockTimeoutInfinite, nil, []locking.Entry{{PID: 200, Offset: 0, Length: 10}}))
		require.NotNil(t, res.Suspend)
		assert.Equal(t, 1, e.h.Locks.Pending())

		res2 := e.h.LockingAndX(ctx, lockingRequest(e, fid, 0, 0, entry, nil))
		requireStatus(t, types.StatusSuccess, res2)

		requireStatus(t, types.StatusSuccess, awaitResult(t, res.Suspend))
	})

	t.Run("NTCancelResolvesPendingLock", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("f.txt", "0123456789")
		fid := e.open(`\f.txt`)
		p := e.peer()
		pfid := p.open(`\f.txt`)

		requireStatus(t, types.StatusSuccess, e.h.LockingAndX(ctx, lockingRequest(e, fid, 0, 0, nil, []locking.Entry{{PID: 100, Offset: 0, Length: 10}})))

		req := lockingRequest(p, pfid, 0, types.LockTimeoutInfinite, nil, []locking.Entry{{PID: 200, Offset: 0, Length: 10}})
		res := p.h.LockingAndX(ctx, req)
		require.NotNil(t, res.Suspend)
		require.NoError(t, p.conn.AddPending(res.Suspend))

		cancel := p.request(types.SMBNTCancel, nil, nil)
		cancel.Header.MID = req.Header.MID
		assert.True(t, p.h.NTCancel(ctx, cancel).NoReply)

		requireStatus(t, types.StatusFileLockConflict, awaitResult(t, res.Suspend))
	})

	t.Run("NotLastInChainDoesNotWait", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("f.txt", "0123456789")
		fid := e.open(`\f.txt`)
		p := e.peer()
		pfid := p.open(`\f.txt`)

		requireStatus(t, types.StatusSuccess, e.h.LockingAndX(ctx, lockingRequest(e, fid, 0, 0, nil, []locking.Entry{{PID: 100, Offset: 0, Length: 10}})))

		req := lockingRequest(p, pfid, 0, types.LockTimeoutInfinite, nil, []locking.Entry{{PID: 200, Offset: 0, Length: 10}})
		req.Last = false
		res := p.h.LockingAndX(ctx, req)
		assert.Nil(t, res.Suspend)
		requireStatus(t, types.StatusLockNotGranted, res)
	})

	t.Run("ChangeTypeRefused", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("f.txt", "0123456789")
		fid := e.open(`\f.txt`)
		res := e.h.LockingAndX(ctx, lockingRequest(e, fid, types.LockingChangeType, 0, nil, nil))
		requireStatus(t, types.DOSStatus(types.ErrDOS, types.ERRnoatomiclocks), res)
	})

	t.Run("CloseReleasesLocks", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("f.txt", "0123456789")
		fid := e.open(`\f.txt`)
		p := e.peer()
		pfid := p.open(`\f.txt`)

		requireStatus(t, types.StatusSuccess, e.h.LockingAndX(ctx, lockingRequest(e, fid, 0, 0, nil, []locking.Entry{{PID: 100, Offset: 0, Length: 10}})))
		e.close(fid)

		res := p.h.LockingAndX(ctx, lockingRequest(p, pfid, 0, 0, nil, []locking.Entry{{PID: 200, Offset: 0, Length: 10}}))
		requireStatus(t, types.StatusSuccess, res)
	})
}
