package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
)

func openAndXWords(flags, am, attrs, openMode uint16) []byte {
	return params(
		0x00FF, 0, // AndX
		flags, am, 0, attrs,
		0, 0, // CreationTime
		openMode,
		0, 0, // AllocationSize
		0, 0, // Timeout
		0, 0, // Reserved
	)
}

func oemName(name string) []byte {
	return append([]byte(name), 0)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("ExistingFile", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("a.txt", "hello")

		res := e.h.Open(ctx, e.request(types.SMBOpen, params(types.AccessRead, 0), paths(`\A.TXT`)))
		requireStatus(t, types.StatusSuccess, res)
		require.Len(t, res.Words, 14)
		assert.NotZero(t, word(res, 0))
		assert.Equal(t, uint16(5), word(res, 4), "file size low word")
		assert.Equal(t, types.AccessRead, word(res, 6))
		assert.Equal(t, 1, e.h.Opens.Len())
	})

	t.Run("MissingFile", func(t *testing.T) {
		e := newTestEnv(t)
		res := e.h.Open(ctx, e.request(types.SMBOpen, params(types.AccessRead, 0), paths(`\nope.txt`)))
		requireStatus(t, types.StatusObjectNameNotFound, res)
	})

	t.Run("MissingParent", func(t *testing.T) {
		e := newTestEnv(t)
		res := e.h.Open(ctx, e.request(types.SMBOpen, params(types.AccessRead, 0), paths(`\dir\nope.txt`)))
		requireStatus(t, types.StatusObjectPathNotFound, res)
	})

	t.Run("Directory", func(t *testing.T) {
		e := newTestEnv(t)
		require.NoError(t, e.fs.Mkdir("sub", 0o755))
		res := e.h.Open(ctx, e.request(types.SMBOpen, params(types.AccessRead, 0), paths(`\sub`)))
		requireStatus(t, types.StatusFileIsADirectory, res)
	})

	t.Run("InvalidAccessMode", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("a.txt", "")
		res := e.h.Open(ctx, e.request(types.SMBOpen, params(0x0007, 0), paths(`\a.txt`)))
		requireStatus(t, types.DOSStatus(types.ErrDOS, types.ERRbadaccess), res)
	})

	t.Run("DenyWriteConflict", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("a.txt", "")
		res := e.h.Open(ctx, e.request(types.SMBOpen, params(types.AccessRead|types.SharingDenyWrite, 0), paths(`\a.txt`)))
		requireStatus(t, types.StatusSuccess, res)

		p := e.peer()
		res = p.h.Open(ctx, p.request(types.SMBOpen, params(types.AccessReadWrite|types.SharingDenyNone, 0), paths(`\a.txt`)))
		requireStatus(t, types.StatusSharingViolation, res)

		res = p.h.Open(ctx, p.request(types.SMBOpen, params(types.AccessRead|types.SharingDenyNone, 0), paths(`\a.txt`)))
		requireStatus(t, types.StatusSuccess, res)
	})

	t.Run("ReadOnlyShare", func(t *testing.T) {
		e := newTestEnv(t, func(s *Share) { s.ReadOnly = true })
		e.writeFile("a.txt", "")
		res := e.h.Open(ctx, e.request(types.SMBOpen, params(types.AccessReadWrite, 0), paths(`\a.txt`)))
		assert.NotEqual(t, types.StatusSuccess, res.Status)

		res = e.h.Open(ctx, e.request(types.SMBOpen, params(types.AccessRead, 0), paths(`\a.txt`)))
		requireStatus(t, types.StatusSuccess, res)
	})
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesAndTruncates", func(t *testing.T) {
		e := newTestEnv(t)
		fid := e.create(`\new.txt`)
		require.True(t, e.exists("new.txt"))
		requireStatus(t, types.StatusSuccess, e.write(fid, 0, "data"))
		e.close(fid)
		assert.Equal(t, "data", e.readFile("new.txt"))

		fid = e.create(`\new.txt`)
		e.close(fid)
		assert.Equal(t, "", e.readFile("new.txt"))
	})

	t.Run("CreateNewCollision", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("a.txt", "x")
		res := e.h.CreateNew(ctx, e.request(types.SMBCreateNew, params(0, 0, 0), paths(`\a.txt`)))
		requireStatus(t, types.StatusObjectNameCollision, res)
	})

	t.Run("CreationTime", func(t *testing.T) {
		e := newTestEnv(t)
		when := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
		ut := types.TimeToUTime(when)
		res := e.h.CreateNew(ctx, e.request(types.SMBCreateNew, params(0, uint16(ut), uint16(ut>>16)), paths(`\t.txt`)))
		requireStatus(t, types.StatusSuccess, res)

		info, err := e.fs.Stat("t.txt")
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(when))
	})

	t.Run("ReadOnlyAttribute", func(t *testing.T) {
		e := newTestEnv(t)
		res := e.h.CreateNew(ctx, e.request(types.SMBCreateNew, params(types.AttrReadOnly, 0, 0), paths(`\ro.txt`)))
		requireStatus(t, types.StatusSuccess, res)
		e.close(word(res, 0))

		res = e.h.Open(ctx, e.request(types.SMBOpen, params(types.AccessWrite, 0), paths(`\ro.txt`)))
		requireStatus(t, types.StatusAccessDenied, res)
	})

	t.Run("Temporary", func(t *testing.T) {
		e := newTestEnv(t)
		require.NoError(t, e.fs.Mkdir("tmp", 0o755))
		res := e.h.CreateTemporary(ctx, e.request(types.SMBCreateTemporary, params(0, 0, 0), paths(`\tmp`)))
		requireStatus(t, types.StatusSuccess, res)

		require.Equal(t, types.BufferFormatASCII, res.Bytes[0])
		name := strings.TrimRight(string(res.Bytes[1:]), "\x00")
		assert.True(t, strings.HasPrefix(name, "TMP"))
		assert.True(t, strings.HasSuffix(name, ".TMP"))
		assert.True(t, e.exists("tmp/"+name))

		e.close(word(res, 0))
		assert.True(t, e.exists("tmp/"+name), "temporary files persist after close")
	})
}

func TestOpenAndX(t *testing.T) {
	ctx := context.Background()

	openAndX := func(e *testEnv, name string, flags, am, openMode uint16) *HandlerResult {
		return e.h.OpenAndX(ctx, e.request(types.SMBOpenAndX, openAndXWords(flags, am, 0, openMode), oemName(name)))
	}

	t.Run("CreateAction", func(t *testing.T) {
		e := newTestEnv(t)
		res := openAndX(e, `\x.txt`, 0, types.AccessReadWrite, types.OpenFuncCreate|types.OpenFuncOpenIfExists)
		requireStatus(t, types.StatusSuccess, res)
		require.Len(t, res.Words, 30)
		assert.Equal(t, types.OpenActionCreated, word(res, 11))
		assert.Equal(t, resourceDisk, word(res, 9))

		res = openAndX(e, `\x.txt`, 0, types.AccessRead, types.OpenFuncOpenIfExists)
		requireStatus(t, types.StatusSuccess, res)
		assert.Equal(t, types.OpenActionExisted, word(res, 11))

		res = openAndX(e, `\x.txt`, 0, types.AccessReadWrite, types.OpenFuncTruncate)
		requireStatus(t, types.StatusSuccess, res)
		assert.Equal(t, types.OpenActionTruncated, word(res, 11))
	})

	t.Run("FailIfExists", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("x.txt", "")
		res := openAndX(e, `\x.txt`, 0, types.AccessRead, types.OpenFuncCreate|types.OpenFuncFailIfExists)
		requireStatus(t, types.StatusObjectNameCollision, res)
	})

	t.Run("ExclusiveOplock", func(t *testing.T) {
		e := newTestEnv(t)
		e.writeFile("x.txt", "")
		res := openAndX(e, `\x.txt`, types.OpenXOplock, types.AccessReadWrite, types.OpenFuncOpenIfExists)
		requireStatus(t, types.StatusSuccess, res)
		assert.NotZero(t, word(res, 11)&types.OpenActionOplock)
		assert.Equal(t, 1, e.h.Oplocks.Count())
	})

	t.Run("OplocksDisabledOnShare", func(t *testing.T) {
		e := newTestEnv(t, func(s *Share) { s.Oplocks = false })
		e.writeFile("x.txt", "")
		res := openAndX(e, `\x.txt`, types.OpenXOplock, types.AccessReadWrite, types.OpenFuncOpenIfExists)
		requireStatus(t, types.StatusSuccess, res)
		assert.Zero(t, word(res, 11)&types.OpenActionOplock)
		assert.Equal(t, 0, e.h.Oplocks.Count())
	})

	t.Run("ChainedFID", func(t *testing.T) {
		e := newTestEnv(t)
		req := e.request(types.SMBOpenAndX, openAndXWords(0, types.AccessReadWrite, 0, types.OpenFuncCreate), oemName(`\c.txt`))
		res := e.h.OpenAndX(ctx, req)
		requireStatus(t, types.StatusSuccess, res)
		assert.Equal(t, word(res, 2), req.Chain.FID)
	})
}

func TestOplockBreakOnConflictingOpen(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.writeFile("x.txt", "data")

	req := e.request(types.SMBOpen, params(types.AccessReadWrite, 0), paths(`\x.txt`))
	req.Header.Flags |= types.FlagsOplock
	res := e.h.Open(ctx, req)
	requireStatus(t, types.StatusSuccess, res)
	assert.Equal(t, types.FlagsOplock, res.Flags&types.FlagsOplock)
	holderFID := word(res, 0)

	p := e.peer()
	res = p.h.Open(ctx, p.request(types.SMBOpen, params(types.AccessRead, 0), paths(`\x.txt`)))
	require.NotNil(t, res.Suspend, "open waits for the oplock break")

	select {
	case <-e.tr.sent:
	case <-time.After(5 * time.Second):
		t.Fatal("no oplock break sent")
	}
	msgs := e.tr.messages()
	require.Len(t, msgs, 1)
	brk := msgs[0]
	assert.Equal(t, byte(types.SMBLockingAndX), brk[4])
	assert.Equal(t, holderFID, uint16(brk[types.HeaderSize+5])|uint16(brk[types.HeaderSize+6])<<8)

	done := make(chan *HandlerResult, 1)
	res.Suspend.Attach(func(r *HandlerResult) { done <- r })

	ack := e.h.LockingAndX(ctx, e.request(types.SMBLockingAndX,
		params(0x00FF, 0, holderFID, uint16(types.LockingOplockRelease), 0, 0, 0, 0), nil))
	assert.True(t, ack.NoReply)

	select {
	case r := <-done:
		requireStatus(t, types.StatusSuccess, r)
	case <-time.After(5 * time.Second):
		t.Fatal("deferred open did not complete")
	}
	assert.Equal(t, 0, e.h.Oplocks.Count())
}

func TestDecodeAccess(t *testing.T) {
	tests := []struct {
		name  string
		am    uint16
		ok    bool
		deny  uint16
		write bool
	}{
		{"Read", types.AccessRead, true, types.SharingCompat, false},
		{"ReadWriteDenyAll", types.AccessReadWrite | types.SharingDenyAll, true, types.SharingDenyAll, false},
		{"WriteThrough", types.AccessWrite | types.AccessWriteThrough, true, types.SharingCompat, true},
		{"BadAccess", 0x0005, false, 0, false},
		{"BadSharing", types.AccessRead | 0x0050, false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, deny, wt, ok := decodeAccess(tt.am)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.deny, deny)
				assert.Equal(t, tt.write, wt)
			}
		})
	}
}
