package handlers

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/dirscan"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/pathname"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/vfs"
)

// Sizes of the SEARCH wire structures.
const (
	resumeKeySize   = 21
	searchEntrySize = 43
	fcbNameSize     = 11
	dosNameSize     = 13
	volumeLabelSize = 11
)

// Response overhead of SEARCH: header, WordCount, 1 word, ByteCount,
// buffer format and data length.
const searchOverhead = types.HeaderSize + 1 + 2 + 2 + 3

// searchMode distinguishes the three commands sharing the SEARCH format.
type searchMode int

const (
	modeSearch     searchMode = iota // cursor dropped when exhausted
	modeFind                         // cursor kept until FIND_CLOSE
	modeFindUnique                   // no cursor
)

// resumeKey is the 21-byte SEARCH resume key. The server cookie carries
// the cursor handle and the index to resume at.
type resumeKey struct {
	Name   [fcbNameSize]byte
	Cursor uint16
	Index  uint32 // 24 bits on the wire
	Client uint32
}

func decodeResumeKey(b []byte) (resumeKey, bool) {
	var k resumeKey
	if len(b) != resumeKeySize {
		return k, false
	}
	rd := smbenc.NewReader(b)
	rd.Skip(1)
	copy(k.Name[:], rd.ReadBytes(fcbNameSize))
	k.Cursor = rd.ReadUint16()
	lo := uint32(rd.ReadUint16())
	hi := uint32(rd.ReadUint8())
	k.Index = lo | hi<<16
	k.Client = rd.ReadUint32()
	return k, rd.Err() == nil
}

func (k resumeKey) encode(w *smbenc.Writer) {
	w.WriteUint8(0)
	w.WriteBytes(k.Name[:])
	w.WriteUint16(k.Cursor)
	w.WriteUint16(uint16(k.Index))
	w.WriteUint8(uint8(k.Index >> 16))
	w.WriteUint32(k.Client)
}

// isDOSName reports whether name fits the 8.3 format.
func isDOSName(name string) bool {
	if name == "." || name == ".." {
		return true
	}
	base, ext, dotted := strings.Cut(name, ".")
	if base == "" || len(base) > 8 || len(ext) > 3 || (dotted && ext == "") {
		return false
	}
	for _, r := range base + ext {
		if r <= 0x20 || r >= 0x7F || strings.ContainsRune(`."/\[]:+|<>=;,*?`, r) {
			return false
		}
	}
	return true
}

// fcbName is the blank-padded, upper-cased 11-byte form of an 8.3 name.
func fcbName(name string) [fcbNameSize]byte {
	var out [fcbNameSize]byte
	for i := range out {
		out[i] = ' '
	}
	if name == "." || name == ".." {
		copy(out[:], name)
		return out
	}
	base, ext, _ := strings.Cut(strings.ToUpper(name), ".")
	copy(out[:8], base)
	copy(out[8:], ext)
	return out
}

// volumeLabel is the label reported for a volume search on share.
func volumeLabel(share *Share) string {
	label := strings.ToUpper(share.Name)
	if len(label) > volumeLabelSize {
		label = label[:volumeLabelSize]
	}
	return label
}

// writeSearchEntry appends one 43-byte directory entry.
func writeSearchEntry(w *smbenc.Writer, key resumeKey, name string, attrs uint16, e *dirscan.Entry) {
	key.encode(w)
	w.WriteUint8(uint8(attrs))
	if e != nil {
		date, tm := types.TimeToDOS(e.Info.ModTime())
		w.WriteUint16(tm)
		w.WriteUint16(date)
		w.WriteUint32(clamp32(fileSize(e.Info)))
	} else {
		w.WriteZeros(8)
	}
	upper := strings.ToUpper(name)
	if len(upper) > dosNameSize-1 {
		upper = upper[:dosNameSize-1]
	}
	w.WriteBytes([]byte(upper))
	w.WriteUint8(0)
	for range dosNameSize - 1 - len(upper) {
		w.WriteUint8(' ')
	}
}

// searchTarget resolves the directory and mask of a new search. An empty
// name lists the whole directory.
func searchTarget(tree *TreeConnect, raw string) (string, string, types.Status) {
	share := tree.Share
	res, err := pathname.Canonicalize(raw, pathname.Options{Wildcards: true, Posix: share.PosixPaths})
	if err != nil {
		return "", "", PathErrorToStatus(err)
	}
	dir, mask := pathname.SplitDirMask(res.Path)
	if mask == "" {
		mask = "*"
	}
	if !share.CaseSensitive && dir != "" {
		if dir, err = vfs.ResolveCase(share.FS, dir); err != nil {
			return "", "", types.StatusObjectPathNotFound
		}
	}
	return dir, mask, types.StatusSuccess
}

// search implements SEARCH, FIND and FIND_UNIQUE.
//
// **Request (2 words):** MaxCount(2) SearchAttributes(2),
// Bytes: 0x04 FileName 0x05 ResumeKeyLength(2) ResumeKey
//
// **Response (1 word):** Count(2), Bytes: 0x05 DataLength(2) DirectoryInformationData
func (h *Handler) search(ctx context.Context, req *Request, mode searchMode) *HandlerResult {
	if !req.hasWords(2) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	if status := diskTree(req.Tree); status != types.StatusSuccess {
		return NewErrorResult(status)
	}
	wr := req.WordReader()
	maxCount := int(wr.ReadUint16())
	search := wr.ReadUint16()

	rd := req.ByteReader()
	raw, err := req.readPath(rd)
	if err != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	rd.ExpectUint8(types.BufferFormatVariable)
	keyLen := int(rd.ReadUint16())
	keyBytes := rd.ReadBytes(keyLen)
	if rd.Err() != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	maxCount = min(maxCount, (int(h.MaxBufferSize)-searchOverhead)/searchEntrySize)
	if maxCount <= 0 {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	share := req.Tree.Share
	owner := dirscan.CursorOwner{ConnID: req.Conn.ID, UID: req.Chain.UID, TID: req.Chain.TID, PID: req.PID()}

	var (
		cursor  *dirscan.Cursor
		scanner *dirscan.Scanner
		client  uint32
	)
	if keyLen > 0 {
		if mode == modeFindUnique {
			return NewErrorResult(types.StatusInvalidParameter)
		}
		key, ok := decodeResumeKey(keyBytes)
		if !ok {
			return NewErrorResult(types.StatusInvalidParameter)
		}
		c, ok := h.Cursors.Get(key.Cursor)
		if !ok || c.Owner.ConnID != owner.ConnID {
			return NewErrorResult(types.StatusNoMoreFiles)
		}
		cursor, scanner, client = c, c.Scanner, key.Client
		scanner.Seek(int(key.Index))
	} else {
		if search == types.AttrVolume {
			return h.volumeSearch(req, share)
		}
		dir, mask, status := searchTarget(req.Tree, raw)
		if status != types.StatusSuccess {
			return NewErrorResult(status)
		}
		scanner, err = dirscan.Open(share.FS, dir, mask, search, dirscan.Options{
			Share:         share.Name,
			CaseSensitive: share.CaseSensitive,
			IncludeDots:   dir != "",
			Attrs:         h.Attrs,
		})
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return NewErrorResult(types.StatusObjectPathNotFound)
			}
			return NewErrorResult(statError(share.FS, dir, err))
		}
	}

	b := req.ReplyBytes(1)
	b.WriteUint8(types.BufferFormatVariable)
	b.WriteUint16(0)

	var entries []dirscan.Entry
	exhausted := false
	for len(entries) < maxCount {
		e, ok, err := scanner.Next(ctx)
		if err != nil {
			return NewErrorResult(FSErrorToStatus(err))
		}
		if !ok {
			exhausted = true
			break
		}
		if !isDOSName(e.Name) {
			continue
		}
		entries = append(entries, e)
	}

	if cursor == nil && mode != modeFindUnique && len(entries) > 0 && !(mode == modeSearch && exhausted) {
		c, err := h.Cursors.Add(owner, scanner)
		if err != nil {
			return NewErrorResult(types.StatusInsufficientResources)
		}
		cursor = c
	}
	var cursorID uint16
	if cursor != nil {
		cursorID = cursor.ID
		if mode == modeSearch && exhausted {
			h.Cursors.Remove(cursor.ID)
		}
	}

	for i := range entries {
		e := &entries[i]
		key := resumeKey{Name: fcbName(e.Name), Cursor: cursorID, Index: uint32(e.Index + 1), Client: client}
		writeSearchEntry(b, key, e.Name, e.Attrs, e)
	}

	logger.DebugCtx(ctx, "SEARCH: entries",
		logger.KeyMask, scanner.Mask(),
		logger.KeyCount, len(entries),
		"cursor", cursorID,
		"exhausted", exhausted)

	if len(entries) == 0 {
		if cursor != nil && mode == modeSearch {
			h.Cursors.Remove(cursor.ID)
		}
		return NewErrorResult(types.StatusNoMoreFiles)
	}

	b.PutUint16At(1, uint16(len(entries)*searchEntrySize))
	data := b.Bytes()
	w := smbenc.NewWriter(2)
	w.WriteUint16(uint16(len(entries)))
	return NewResult(types.StatusSuccess, w.Bytes(), data)
}

// volumeSearch answers a search for the volume label alone.
func (h *Handler) volumeSearch(req *Request, share *Share) *HandlerResult {
	label := volumeLabel(share)
	b := req.ReplyBytes(1)
	b.WriteUint8(types.BufferFormatVariable)
	b.WriteUint16(searchEntrySize)
	writeSearchEntry(b, resumeKey{Name: fcbName(label)}, label, types.AttrVolume, nil)

	w := smbenc.NewWriter(2)
	w.WriteUint16(1)
	return NewResult(types.StatusSuccess, w.Bytes(), b.Bytes())
}

// Search handles SMB_COM_SEARCH (0x81).
func (h *Handler) Search(ctx context.Context, req *Request) *HandlerResult {
	return h.search(ctx, req, modeSearch)
}

// Find handles SMB_COM_FIND (0x82). Unlike SEARCH the cursor outlives the
// end of the listing and is released by FIND_CLOSE.
func (h *Handler) Find(ctx context.Context, req *Request) *HandlerResult {
	return h.search(ctx, req, modeFind)
}

// FindUnique handles SMB_COM_FIND_UNIQUE (0x83): one batch, no cursor.
func (h *Handler) FindUnique(ctx context.Context, req *Request) *HandlerResult {
	return h.search(ctx, req, modeFindUnique)
}

// FindClose handles SMB_COM_FIND_CLOSE (0x84).
//
// **Request (2 words):** MaxCount(2) SearchAttributes(2),
// Bytes: 0x04 FileName 0x05 ResumeKeyLength(2) ResumeKey
//
// **Response (1 word):** Count(2) = 0, Bytes: 0x05 DataLength(2) = 0
func (h *Handler) FindClose(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(2) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	rd := req.ByteReader()
	if _, err := req.readPath(rd); err != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	rd.ExpectUint8(types.BufferFormatVariable)
	key, ok := decodeResumeKey(rd.ReadBytes(int(rd.ReadUint16())))
	if rd.Err() != nil || !ok {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	if c, found := h.Cursors.Get(key.Cursor); found && c.Owner.ConnID == req.Conn.ID {
		h.Cursors.Remove(key.Cursor)
		logger.DebugCtx(ctx, "FIND_CLOSE: cursor released", "cursor", key.Cursor)
	}

	w := smbenc.NewWriter(2)
	w.WriteUint16(0)
	return NewResult(types.StatusSuccess, w.Bytes(), []byte{types.BufferFormatVariable, 0, 0})
}
