package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/dirscan"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/smbenc"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
)

// TREE_CONNECT_ANDX flags and OptionalSupport bits.
const (
	treeDisconnectTID    uint16 = 0x0001
	supportSearchBits    uint16 = 0x0001
	nativeFileSystemName        = "NTFS"
	anyService                  = "?????"
)

// shareName extracts the share from a \\server\share path.
func shareName(unc string) string {
	unc = strings.TrimRight(unc, `\/`)
	if i := strings.LastIndexAny(unc, `\/`); i >= 0 {
		return unc[i+1:]
	}
	return unc
}

// serviceMatches reports whether a requested service type fits share.
func serviceMatches(service string, share *Share) bool {
	switch strings.ToUpper(service) {
	case "", anyService:
		return true
	case "A:":
		return !share.IPC && !share.Printable
	case "LPT1:":
		return share.Printable
	case "IPC":
		return share.IPC
	}
	return false
}

// connectTree mounts the named share for the request's session.
func (h *Handler) connectTree(ctx context.Context, req *Request, unc, service string) (*TreeConnect, types.Status) {
	name := shareName(unc)
	share, ok := h.Share(name)
	if !ok {
		logger.DebugCtx(ctx, "TREE_CONNECT: unknown share", logger.KeyShare, name)
		return nil, types.StatusBadNetworkName
	}
	if !serviceMatches(service, share) {
		return nil, types.StatusBadDeviceType
	}
	if err := h.Access.CheckTreeConnect(ctx, identity(req), share.accessShare()); err != nil {
		logger.DebugCtx(ctx, "TREE_CONNECT: access denied", logger.KeyShare, name, logger.KeyError, err)
		return nil, types.StatusAccessDenied
	}

	tree := &TreeConnect{UID: req.Chain.UID, Share: share, CreatedAt: time.Now()}
	if err := req.Conn.addTree(tree); err != nil {
		return nil, types.StatusInsufficientResources
	}
	req.Chain.TID = tree.TID

	logger.DebugCtx(ctx, "TREE_CONNECT: share mounted",
		logger.KeyShare, share.Name,
		logger.KeyTID, tree.TID)
	return tree, types.StatusSuccess
}

// TreeConnect handles SMB_COM_TREE_CONNECT (0x70).
//
// **Request:**
//
//	WordCount 0
//	Bytes: 0x04 Path\0 0x04 Password\0 0x04 Service\0
//
// **Response (2 words):**
//
//	MaxBufferSize(2) TID(2)
func (h *Handler) TreeConnect(ctx context.Context, req *Request) *HandlerResult {
	r := req.ByteReader()
	unc, _ := req.readPath(r)
	r.ExpectUint8(types.BufferFormatASCII)
	_ = r.ReadString(false) // password
	r.ExpectUint8(types.BufferFormatASCII)
	service := r.ReadString(false)
	if r.Err() != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	tree, status := h.connectTree(ctx, req, unc, service)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}

	w := smbenc.NewWriter(4)
	w.WriteUint16(uint16(min(h.MaxBufferSize, 0xFFFF)))
	w.WriteUint16(tree.TID)
	return NewResult(types.StatusSuccess, w.Bytes(), nil)
}

// TreeConnectAndX handles SMB_COM_TREE_CONNECT_ANDX (0x75).
//
// **Request (4 words):**
//
//	AndX(4) Flags(2) PasswordLength(2)
//	Bytes: Password Path\0 Service\0 (service is always OEM)
//
// **Response (3 words):**
//
//	AndX(4) OptionalSupport(2)
//	Bytes: Service\0 NativeFileSystem\0
func (h *Handler) TreeConnectAndX(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(4) {
		return NewErrorResult(types.StatusInvalidParameter)
	}
	wr := req.WordReader()
	wr.Skip(4)
	flags := wr.ReadUint16()
	pwLen := int(wr.ReadUint16())

	r := req.ByteReader()
	r.Skip(pwLen)
	unc := r.ReadString(req.Unicode())
	service := r.ReadString(false)
	if r.Err() != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	if flags&treeDisconnectTID != 0 {
		if old, ok := req.Conn.Tree(req.Header.TID); ok {
			h.disconnectTree(ctx, req.Conn, old)
		}
	}

	tree, status := h.connectTree(ctx, req, unc, service)
	if status != types.StatusSuccess {
		return NewErrorResult(status)
	}

	w := andxWriter(3)
	w.WriteUint16(supportSearchBits)

	b := req.ReplyBytes(3)
	b.WriteString(tree.Share.Service(), false)
	fsName := nativeFileSystemName
	if tree.Share.IPC || tree.Share.Printable {
		fsName = ""
	}
	b.WriteString(fsName, req.Unicode())
	return NewResult(types.StatusSuccess, w.Bytes(), b.Bytes())
}

// TreeDisconnect handles SMB_COM_TREE_DISCONNECT (0x71).
func (h *Handler) TreeDisconnect(ctx context.Context, req *Request) *HandlerResult {
	h.disconnectTree(ctx, req.Conn, req.Tree)
	return emptyResult()
}

// disconnectTree closes every file and search on tree and unmounts it.
func (h *Handler) disconnectTree(ctx context.Context, c *Conn, tree *TreeConnect) {
	for _, f := range c.takeFilesWhere(func(f *OpenFile) bool { return f.TID == tree.TID }) {
		_ = h.releaseFile(ctx, f)
	}
	h.Cursors.RemoveWhere(func(o dirscan.CursorOwner) bool {
		return o.ConnID == c.ID && o.TID == tree.TID
	})
	c.removeTree(tree.TID)
	logger.DebugCtx(ctx, "TREE_DISCONNECT: share unmounted",
		logger.KeyShare, tree.Share.Name,
		logger.KeyTID, tree.TID)
}
