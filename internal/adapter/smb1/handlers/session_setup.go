package handlers

import (
	"context"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/dirscan"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/access"
)

// Session setup Action bits.
const actionGuest uint16 = 0x0001

const (
	nativeOS     = "Unix"
	nativeLanMan = "dittosmb"
)

// SessionSetupAndX handles SMB_COM_SESSION_SETUP_ANDX (0x73).
//
// Both the NT LM 0.12 form (13 words, separate OEM and Unicode passwords)
// and the older LANMAN form (10 words) are accepted. Credentials are
// handed to the configured access.Authenticator; the new UID becomes the
// UID of the rest of the chain.
//
// **Request (13 words):**
//
//	AndX(4) MaxBufferSize(2) MaxMpxCount(2) VcNumber(2) SessionKey(4)
//	OEMPasswordLen(2) UnicodePasswordLen(2) Reserved(4) Capabilities(4)
//	Bytes: OEMPassword UnicodePassword Account\0 Domain\0 NativeOS\0 NativeLanMan\0
//
// **Response (3 words):**
//
//	AndX(4) Action(2)
//	Bytes: NativeOS\0 NativeLanMan\0 PrimaryDomain\0
func (h *Handler) SessionSetupAndX(ctx context.Context, req *Request) *HandlerResult {
	if !req.hasWords(10, 13) {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	wr := req.WordReader()
	wr.Skip(4) // AndX
	wr.Skip(2) // MaxBufferSize
	wr.Skip(2) // MaxMpxCount
	wr.Skip(2) // VcNumber
	wr.Skip(4) // SessionKey

	var oemLen, uniLen int
	var caps uint32
	if req.WordCount() == 13 {
		oemLen = int(wr.ReadUint16())
		uniLen = int(wr.ReadUint16())
		wr.Skip(4)
		caps = wr.ReadUint32()
	} else {
		oemLen = int(wr.ReadUint16())
		wr.Skip(4)
	}
	if wr.Err() != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	br := req.ByteReader()
	password := br.ReadBytes(oemLen)
	if uniLen > 0 {
		password = br.ReadBytes(uniLen)
	}
	unicode := req.Unicode()
	creds := access.Credentials{
		Password: password,
		Account:  br.ReadString(unicode),
		Domain:   br.ReadString(unicode),
		NativeOS: br.ReadString(unicode),
	}
	if br.Err() != nil {
		return NewErrorResult(types.StatusInvalidParameter)
	}

	id, err := h.Auth.Authenticate(ctx, creds)
	if err != nil {
		logger.InfoCtx(ctx, "SESSION_SETUP: authentication failed",
			"account", creds.Account,
			logger.KeyError, err)
		return NewErrorResult(types.StatusLogonFailure)
	}

	sess := &Session{
		Identity:   id,
		ClientCaps: caps,
		NativeOS:   creds.NativeOS,
		CreatedAt:  time.Now(),
	}
	if err := req.Conn.addSession(sess); err != nil {
		return NewErrorResult(types.StatusInsufficientResources)
	}
	req.Chain.UID = sess.UID

	var action uint16
	if id.Guest {
		action |= actionGuest
	}
	w := andxWriter(3)
	w.WriteUint16(action)

	b := req.ReplyBytes(3)
	b.WriteString(nativeOS, unicode)
	b.WriteString(nativeLanMan, unicode)
	b.WriteString(h.Workgroup, unicode)

	logger.DebugCtx(ctx, "SESSION_SETUP: session established",
		logger.KeyUID, sess.UID,
		"account", id.String(),
		"guest", id.Guest)
	return NewResult(types.StatusSuccess, w.Bytes(), b.Bytes())
}

// LogoffAndX handles SMB_COM_LOGOFF_ANDX (0x74). Every tree, file and
// search of the session is released.
func (h *Handler) LogoffAndX(ctx context.Context, req *Request) *HandlerResult {
	uid := req.Chain.UID
	c := req.Conn

	for _, tree := range c.treesOf(uid) {
		h.disconnectTree(ctx, c, tree)
	}
	for _, f := range c.takeFilesWhere(func(f *OpenFile) bool { return f.UID == uid }) {
		_ = h.releaseFile(ctx, f)
	}
	h.Cursors.RemoveWhere(func(o dirscan.CursorOwner) bool {
		return o.ConnID == c.ID && o.UID == uid
	})
	c.removeSession(uid)

	logger.DebugCtx(ctx, "LOGOFF: session closed", logger.KeyUID, uid)
	return NewResult(types.StatusSuccess, andxWriter(2).Bytes(), nil)
}
