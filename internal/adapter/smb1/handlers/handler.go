// Package handlers implements the SMB1 command handlers.
//
// Each handler takes a decoded Request (one command of a possibly chained
// message) and returns a HandlerResult. Handlers never call each other: AndX
// chains are walked by the dispatcher, which also resolves sessions and tree
// connects before a handler runs.
//
// Process-wide state (the lock engine, the oplock table, the open-file
// share-mode table and the search cursor table) lives on Handler and is
// shared by every connection. Per-connection state (sessions, trees, FIDs,
// parked continuations) lives on Conn.
package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/dirscan"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/locking"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/oplock"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/transfer"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/access"
	"github.com/marmos91/dittosmb/pkg/dosattr"
	"github.com/marmos91/dittosmb/pkg/locktable"
	"github.com/marmos91/dittosmb/pkg/metrics"
	"github.com/marmos91/dittosmb/pkg/notify"
	"github.com/marmos91/dittosmb/pkg/spool"
	"github.com/marmos91/dittosmb/pkg/vfs"
)

// Defaults applied by NewHandler to zero Options fields.
const (
	DefaultMaxBufferSize = 64 * 1024
	DefaultMaxReadSize   = 64 * 1024
	DefaultMaxWriteSize  = 64 * 1024
	DefaultMaxMpx        = 50
	DefaultCursorTTL     = 10 * time.Minute

	// MaxLargeTransfer caps large read and write sizes so a reply, headers
	// included, still fits a 24-bit session frame length.
	MaxLargeTransfer = 0xFF0000
)

// IPCShareName is the interprocess communication share every client probes.
const IPCShareName = "IPC$"

// Share is an exported tree.
type Share struct {
	Name    string
	Comment string
	FS      vfs.FS

	ReadOnly      bool
	CaseSensitive bool
	PosixPaths    bool
	Printable     bool
	GuestOK       bool

	// Oplocks permits oplock grants on this share.
	Oplocks bool

	// LargeFiles permits 64-bit lock ranges and offsets.
	LargeFiles bool

	// StrictSync makes every write write-through.
	StrictSync bool

	// IPC marks the IPC$ pseudo-share, which accepts connections but no
	// file operations.
	IPC bool
}

func (s *Share) accessShare() access.Share {
	return access.Share{
		Name:      s.Name,
		ReadOnly:  s.ReadOnly,
		GuestOK:   s.GuestOK || s.IPC,
		Printable: s.Printable,
	}
}

// Service is the service type string reported by TREE_CONNECT_ANDX.
func (s *Share) Service() string {
	switch {
	case s.IPC:
		return "IPC"
	case s.Printable:
		return "LPT1:"
	}
	return "A:"
}

// Options configures a Handler. Nil collaborators get in-memory defaults.
type Options struct {
	ServerName string
	Workgroup  string

	MaxBufferSize uint32
	MaxReadSize   uint32
	MaxWriteSize  uint32
	MaxMpx        uint16

	Locks    *locking.Engine
	Oplocks  *oplock.Manager
	Cursors  *dirscan.CursorTable
	Access   access.Oracle
	Auth     access.Authenticator
	Attrs    dosattr.Store
	Bus      *notify.Bus
	Spooler  spool.Spooler
	Transfer *transfer.Engine
	Metrics  metrics.SMB1Metrics
}

// Handler holds the process-wide state shared by all SMB1 connections.
type Handler struct {
	ServerName string
	Workgroup  string
	StartTime  time.Time

	MaxBufferSize uint32
	MaxReadSize   uint32
	MaxWriteSize  uint32
	MaxMpx        uint16

	Locks    *locking.Engine
	Oplocks  *oplock.Manager
	Opens    *OpenTable
	Cursors  *dirscan.CursorTable
	Access   access.Oracle
	Auth     access.Authenticator
	Attrs    dosattr.Store
	Bus      *notify.Bus
	Spooler  spool.Spooler
	Transfer *transfer.Engine
	Metrics  metrics.SMB1Metrics

	sharesMu sync.RWMutex
	shares   map[string]*Share

	conns      sync.Map // uint64 -> *Conn
	nextConnID atomic.Uint64

	unsubscribe func()
}

// NewHandler creates a Handler. The IPC$ share is always present.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		ServerName:    opts.ServerName,
		Workgroup:     opts.Workgroup,
		StartTime:     time.Now(),
		MaxBufferSize: opts.MaxBufferSize,
		MaxReadSize:   opts.MaxReadSize,
		MaxWriteSize:  opts.MaxWriteSize,
		MaxMpx:        opts.MaxMpx,
		Locks:         opts.Locks,
		Oplocks:       opts.Oplocks,
		Opens:         NewOpenTable(),
		Cursors:       opts.Cursors,
		Access:        opts.Access,
		Auth:          opts.Auth,
		Attrs:         opts.Attrs,
		Bus:           opts.Bus,
		Spooler:       opts.Spooler,
		Transfer:      opts.Transfer,
		Metrics:       opts.Metrics,
		shares:        make(map[string]*Share),
	}

	if h.ServerName == "" {
		h.ServerName = "DITTOSMB"
	}
	if h.Workgroup == "" {
		h.Workgroup = "WORKGROUP"
	}
	if h.MaxBufferSize == 0 {
		h.MaxBufferSize = DefaultMaxBufferSize
	}
	if h.MaxReadSize == 0 {
		h.MaxReadSize = DefaultMaxReadSize
	}
	if h.MaxWriteSize == 0 {
		h.MaxWriteSize = DefaultMaxWriteSize
	}
	h.MaxReadSize = min(h.MaxReadSize, MaxLargeTransfer)
	h.MaxWriteSize = min(h.MaxWriteSize, MaxLargeTransfer)
	if h.MaxMpx == 0 {
		h.MaxMpx = DefaultMaxMpx
	}
	if h.Locks == nil {
		h.Locks = locking.NewEngine(locktable.NewMemory(), locking.Config{})
	}
	if h.Oplocks == nil {
		h.Oplocks = oplock.NewManager(nil, oplock.Config{})
	}
	if h.Cursors == nil {
		h.Cursors = dirscan.NewCursorTable(DefaultCursorTTL, 0)
	}
	if h.Access == nil {
		h.Access = access.ShareOracle{}
	}
	if h.Auth == nil {
		h.Auth = access.GuestAuthenticator{Account: "guest"}
	}
	if h.Attrs == nil {
		h.Attrs = dosattr.NewMemoryStore()
	}
	if h.Bus == nil {
		h.Bus = notify.NewBus()
	}
	if h.Transfer == nil {
		h.Transfer = transfer.New(transfer.Config{}, nil)
	}

	h.Oplocks.SetNotifier(h)
	h.unsubscribe = h.Bus.Subscribe(h.onExternalChange)
	h.shares[strings.ToLower(IPCShareName)] = &Share{Name: IPCShareName, Comment: "IPC Service", IPC: true}
	return h
}

// Shutdown detaches the handler from the notification bus.
func (h *Handler) Shutdown() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

// AddShare exports s, replacing any share with the same name.
func (h *Handler) AddShare(s *Share) {
	h.sharesMu.Lock()
	defer h.sharesMu.Unlock()
	h.shares[strings.ToLower(s.Name)] = s
}

// Share looks a share up by name, case-insensitively.
func (h *Handler) Share(name string) (*Share, bool) {
	h.sharesMu.RLock()
	defer h.sharesMu.RUnlock()
	s, ok := h.shares[strings.ToLower(name)]
	return s, ok
}

// Shares returns every exported share sorted by name.
func (h *Handler) Shares() []*Share {
	h.sharesMu.RLock()
	out := make([]*Share, 0, len(h.shares))
	for _, s := range h.shares {
		out = append(out, s)
	}
	h.sharesMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NewConn registers a connection from clientAddr that replies through t.
func (h *Handler) NewConn(clientAddr string, t Transport) *Conn {
	c := newConn(h.nextConnID.Add(1), clientAddr, t)
	h.conns.Store(c.ID, c)
	return c
}

// Conn returns the live connection with the given ID.
func (h *Handler) Conn(id uint64) (*Conn, bool) {
	v, ok := h.conns.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Conn), true
}

// CloseConn tears a connection down: parked commands are dropped without a
// reply, then every file, tree, session and search it owns is released.
func (h *Handler) CloseConn(ctx context.Context, c *Conn) {
	pending, files := c.shutdown()
	for _, cont := range pending {
		cont.Abandon()
	}
	for _, f := range files {
		h.releaseFile(ctx, f)
	}
	h.Cursors.RemoveWhere(func(o dirscan.CursorOwner) bool { return o.ConnID == c.ID })
	h.conns.Delete(c.ID)
	h.updateGauges()

	logger.DebugCtx(ctx, "SMB1: connection state released",
		logger.KeyConnectionID, c.ID,
		"files", len(files),
		"pending", len(pending))
}

// updateGauges refreshes the open-file and pending-lock gauges.
func (h *Handler) updateGauges() {
	metrics.SetOpenFiles(h.Metrics, h.Opens.Len())
	metrics.SetPendingLocks(h.Metrics, h.Locks.Pending())
}

// onExternalChange revokes oplocks on files changed outside the server.
// Changes made through SMB already broke conflicting oplocks on open.
func (h *Handler) onExternalChange(ev notify.Event) {
	if ev.Origin != notify.External {
		return
	}
	share, ok := h.Share(ev.Share)
	if !ok {
		return
	}
	for _, p := range []string{ev.Path, ev.OldPath} {
		if p == "" {
			continue
		}
		key := fileKey(share, p)
		h.Oplocks.BreakForOpen(oplock.FileID(key), oplock.Holder{}, false)
		h.Oplocks.BreakLevelII(oplock.FileID(key), oplock.Holder{})
	}
}

// publish sends a change event originating from connection c.
func (h *Handler) publish(c *Conn, kind notify.Kind, share *Share, path, oldPath string) {
	h.Bus.Publish(notify.Event{
		Kind:    kind,
		Share:   share.Name,
		Path:    path,
		OldPath: oldPath,
		Origin:  c.ID,
	})
}

// fileKey is the process-wide identity of a file: its share and canonical
// on-disk path.
func fileKey(share *Share, p string) string {
	return strings.ToLower(share.Name) + ":" + p
}
