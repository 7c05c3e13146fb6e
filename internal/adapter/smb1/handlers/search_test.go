package handlers

import (
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
)

func searchRequest(e *testEnv, cmd types.Command, maxCount, attrs uint16, name string, key []byte) *Request {
	data := paths(name)
	data = append(data, types.BufferFormatVariable)
	data = binary.LittleEndian.AppendUint16(data, uint16(len(key)))
	data = append(data, key...)
	return e.request(cmd, params(maxCount, attrs), data)
}

// searchNames returns the names of the entries in a SEARCH reply.
func searchNames(t *testing.T, res *HandlerResult) []string {
	t.Helper()
	count := int(word(res, 0))
	require.Equal(t, types.BufferFormatVariable, res.Bytes[0])
	require.Equal(t, count*searchEntrySize, int(binary.LittleEndian.Uint16(res.Bytes[1:])))

	var names []string
	for i := range count {
		entry := res.Bytes[3+i*searchEntrySize:][:searchEntrySize]
		name, _, _ := strings.Cut(string(entry[30:]), "\x00")
		names = append(names, name)
	}
	return names
}

// lastKey returns the resume key of the final entry in a SEARCH reply.
func lastKey(res *HandlerResult) []byte {
	count := int(word(res, 0))
	start := 3 + (count-1)*searchEntrySize
	return append([]byte(nil), res.Bytes[start:start+resumeKeySize]...)
}

func newSearchEnv(t *testing.T) *testEnv {
	e := newTestEnv(t)
	e.writeFile("a.txt", "aaa")
	e.writeFile("b.txt", "bbbbbb")
	e.writeFile("LongFileName.text", "")
	require.NoError(t, e.fs.Mkdir("sub", 0o755))
	return e
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("ListsDOSNames", func(t *testing.T) {
		e := newSearchEnv(t)
		res := e.h.Search(ctx, searchRequest(e, types.SMBSearch, 10, 0, `\*.*`, nil))
		requireStatus(t, types.StatusSuccess, res)
		assert.Equal(t, []string{"A.TXT", "B.TXT"}, searchNames(t, res))
		assert.Equal(t, 0, e.h.Cursors.Len(), "exhausted SEARCH keeps no cursor")

		entry := res.Bytes[3:][:searchEntrySize]
		assert.Equal(t, uint8(types.AttrArchive), entry[21])
		assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(entry[26:]))
	})

	t.Run("DirectoriesNeedSearchBit", func(t *testing.T) {
		e := newSearchEnv(t)
		res := e.h.Search(ctx, searchRequest(e, types.SMBSearch, 10, types.AttrDirectory, `\*.*`, nil))
		requireStatus(t, types.StatusSuccess, res)
		assert.Equal(t, []string{"A.TXT", "B.TXT", "SUB"}, searchNames(t, res))
	})

	t.Run("SubdirectoryIncludesDots", func(t *testing.T) {
		e := newSearchEnv(t)
		e.writeFile("sub/x.dat", "")
		res := e.h.Search(ctx, searchRequest(e, types.SMBSearch, 10, types.AttrDirectory, `\sub\*.*`, nil))
		requireStatus(t, types.StatusSuccess, res)
		assert.Equal(t, []string{".", "..", "X.DAT"}, searchNames(t, res))
	})

	t.Run("NoMatch", func(t *testing.T) {
		e := newSearchEnv(t)
		res := e.h.Search(ctx, searchRequest(e, types.SMBSearch, 10, 0, `\*.zip`, nil))
		requireStatus(t, types.StatusNoMoreFiles, res)
	})

	t.Run("MissingDirectory", func(t *testing.T) {
		e := newSearchEnv(t)
		res := e.h.Search(ctx, searchRequest(e, types.SMBSearch, 10, 0, `\nope\*.*`, nil))
		requireStatus(t, types.StatusObjectPathNotFound, res)
	})

	t.Run("MissingNestedDirectory", func(t *testing.T) {
		e := newSearchEnv(t)
		res := e.h.Search(ctx, searchRequest(e, types.SMBSearch, 10, 0, `\nope\deeper\*.*`, nil))
		requireStatus(t, types.StatusObjectPathNotFound, res)
	})

	t.Run("VolumeLabel", func(t *testing.T) {
		e := newSearchEnv(t)
		res := e.h.Search(ctx, searchRequest(e, types.SMBSearch, 10, types.AttrVolume, ``, nil))
		requireStatus(t, types.StatusSuccess, res)
		assert.Equal(t, []string{"DATA"}, searchNames(t, res))
		assert.Equal(t, uint8(types.AttrVolume), res.Bytes[3+21])
	})

	t.Run("UnknownCursor", func(t *testing.T) {
		e := newSearchEnv(t)
		key := make([]byte, resumeKeySize)
		key[12] = 0x33
		res := e.h.Search(ctx, searchRequest(e, types.SMBSearch, 10, 0, ``, key))
		requireStatus(t, types.StatusNoMoreFiles, res)
	})
}

func TestFindResumeAndClose(t *testing.T) {
	ctx := context.Background()
	e := newSearchEnv(t)

	res := e.h.Find(ctx, searchRequest(e, types.SMBFind, 1, 0, `\*.*`, nil))
	requireStatus(t, types.StatusSuccess, res)
	assert.Equal(t, []string{"A.TXT"}, searchNames(t, res))
	require.Equal(t, 1, e.h.Cursors.Len())
	key := lastKey(res)

	res = e.h.Find(ctx, searchRequest(e, types.SMBFind, 1, 0, ``, key))
	requireStatus(t, types.StatusSuccess, res)
	assert.Equal(t, []string{"B.TXT"}, searchNames(t, res))
	key = lastKey(res)

	res = e.h.Find(ctx, searchRequest(e, types.SMBFind, 1, 0, ``, key))
	requireStatus(t, types.StatusNoMoreFiles, res)
	assert.Equal(t, 1, e.h.Cursors.Len(), "FIND keeps its cursor until FIND_CLOSE")

	res = e.h.FindClose(ctx, searchRequest(e, types.SMBFindClose, 0, 0, ``, key))
	requireStatus(t, types.StatusSuccess, res)
	assert.Equal(t, uint16(0), word(res, 0))
	assert.Equal(t, []byte{types.BufferFormatVariable, 0, 0}, res.Bytes)
	assert.Equal(t, 0, e.h.Cursors.Len())
}

func TestFindUnique(t *testing.T) {
	ctx := context.Background()
	e := newSearchEnv(t)

	res := e.h.FindUnique(ctx, searchRequest(e, types.SMBFindUnique, 1, 0, `\*.txt`, nil))
	requireStatus(t, types.StatusSuccess, res)
	assert.Equal(t, []string{"A.TXT"}, searchNames(t, res))
	assert.Equal(t, 0, e.h.Cursors.Len())

	res = e.h.FindUnique(ctx, searchRequest(e, types.SMBFindUnique, 1, 0, ``, lastKey(res)))
	requireStatus(t, types.StatusInvalidParameter, res)
}

func TestProcessExitReleasesCursors(t *testing.T) {
	ctx := context.Background()
	e := newSearchEnv(t)

	res := e.h.Find(ctx, searchRequest(e, types.SMBFind, 1, 0, `\*.*`, nil))
	requireStatus(t, types.StatusSuccess, res)
	require.Equal(t, 1, e.h.Cursors.Len())

	requireStatus(t, types.StatusSuccess, e.h.ProcessExit(ctx, e.request(types.SMBProcessExit, nil, nil)))
	assert.Equal(t, 0, e.h.Cursors.Len())
}

func TestSearchHelpers(t *testing.T) {
	assert.True(t, isDOSName("README.TXT"))
	assert.True(t, isDOSName("a"))
	assert.True(t, isDOSName(".."))
	assert.False(t, isDOSName("LongFileName.text"))
	assert.False(t, isDOSName("a.b.c"))
	assert.False(t, isDOSName("trail."))
	assert.False(t, isDOSName("sp ace"))

	readme, dots := fcbName("readme.txt"), fcbName("..")
	assert.Equal(t, "README  TXT", string(readme[:]))
	assert.Equal(t, "..         ", string(dots[:]))

	key := resumeKey{Name: fcbName("x.y"), Cursor: 7, Index: 0x123456, Client: 0xDEADBEEF}
	w := smbenc.NewWriter(resumeKeySize)
	key.encode(w)
	got, ok := decodeResumeKey(w.Bytes())
	require.True(t, ok)
	assert.Equal(t, key, got)

	_, ok = decodeResumeKey(make([]byte, 5))
	assert.False(t, ok)

	assert.Equal(t, "ABCDEFGHIJK", volumeLabel(&Share{Name: "abcdefghijklmnop"}))
}
