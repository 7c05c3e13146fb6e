package handlers

import (
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/transfer"
	"github.com/marmos91/dittosmb/pkg/access"
)

// ErrConnClosed is returned when state is added to a connection that is
// shutting down.
var ErrConnClosed = errors.New("connection closed")

// errNoIDs is returned when every 16-bit identifier is in use.
var errNoIDs = errors.New("identifier space exhausted")

// Transport sends responses on a connection. Implementations serialize
// writers, so unsolicited oplock breaks and resumed continuations never
// interleave with ordinary replies.
type Transport interface {
	// WriteMessage frames msg (an SMB message, or raw READ_RAW data) and
	// sends it.
	WriteMessage(msg []byte) error

	// Stream runs fn with exclusive use of the connection. fn writes one
	// complete frame, NetBIOS header included. zc is nil when the
	// connection cannot send files directly.
	Stream(fn func(w io.Writer, zc transfer.ZeroCopier) error) error
}

// Session is an authenticated virtual circuit user (UID).
type Session struct {
	UID        uint16
	Identity   access.Identity
	ClientCaps uint32
	NativeOS   string
	CreatedAt  time.Time
}

// TreeConnect is a share mounted by one session (TID).
type TreeConnect struct {
	TID       uint16
	UID       uint16
	Share     *Share
	CreatedAt time.Time
}

// Conn is the per-connection state.
//
// Thread Safety:
// Commands of one connection are processed in order by its worker, but
// continuations and oplock breaks reach Conn from other goroutines, so all
// tables are guarded by mu.
type Conn struct {
	ID         uint64
	ClientAddr string
	Transport  Transport

	mu         sync.Mutex
	negotiated bool
	challenge  [8]byte
	sessions   map[uint16]*Session
	trees      map[uint16]*TreeConnect
	files      map[uint16]*OpenFile
	pending    map[uint16]*Continuation
	nextUID    uint16
	nextTID    uint16
	nextFID    uint16
	closed     bool
}

func newConn(id uint64, clientAddr string, t Transport) *Conn {
	return &Conn{
		ID:         id,
		ClientAddr: clientAddr,
		Transport:  t,
		sessions:   make(map[uint16]*Session),
		trees:      make(map[uint16]*TreeConnect),
		files:      make(map[uint16]*OpenFile),
		pending:    make(map[uint16]*Continuation),
	}
}

// Negotiated reports whether NEGOTIATE has completed.
func (c *Conn) Negotiated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negotiated
}

// allocID returns the next free identifier after *next, skipping 0 and
// 0xFFFF. Caller holds c.mu.
func allocID[V any](next *uint16, used map[uint16]V) (uint16, error) {
	for range 0xFFFE {
		*next++
		if *next == 0 || *next == 0xFFFF {
			*next = 1
		}
		if _, taken := used[*next]; !taken {
			return *next, nil
		}
	}
	return 0, errNoIDs
}

// ============================================================================
// Sessions
// ============================================================================

func (c *Conn) addSession(s *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	uid, err := allocID(&c.nextUID, c.sessions)
	if err != nil {
		return err
	}
	s.UID = uid
	c.sessions[uid] = s
	return nil
}

// Session returns the session with the given UID.
func (c *Conn) Session(uid uint16) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[uid]
	return s, ok
}

func (c *Conn) removeSession(uid uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, uid)
}

// ============================================================================
// Tree connects
// ============================================================================

func (c *Conn) addTree(t *TreeConnect) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	tid, err := allocID(&c.nextTID, c.trees)
	if err != nil {
		return err
	}
	t.TID = tid
	c.trees[tid] = t
	return nil
}

// Tree returns the tree connect with the given TID.
func (c *Conn) Tree(tid uint16) (*TreeConnect, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.trees[tid]
	return t, ok
}

func (c *Conn) removeTree(tid uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.trees, tid)
}

// treesOf returns the trees mounted by uid.
func (c *Conn) treesOf(uid uint16) []*TreeConnect {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*TreeConnect
	for _, t := range c.trees {
		if t.UID == uid {
			out = append(out, t)
		}
	}
	return out
}

// ============================================================================
// Open files
// ============================================================================

func (c *Conn) addFile(f *OpenFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	fid, err := allocID(&c.nextFID, c.files)
	if err != nil {
		return err
	}
	f.FID = fid
	f.ConnID = c.ID
	c.files[fid] = f
	return nil
}

// File returns the open file with the given FID.
func (c *Conn) File(fid uint16) (*OpenFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[fid]
	return f, ok
}

// takeFile removes and returns a file. A file can be taken only once, so
// concurrent closers cannot both release it.
func (c *Conn) takeFile(fid uint16) (*OpenFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[fid]
	if ok {
		delete(c.files, fid)
	}
	return f, ok
}

// takeFilesWhere removes and returns the files selected by match, in FID
// order.
func (c *Conn) takeFilesWhere(match func(*OpenFile) bool) []*OpenFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*OpenFile
	for fid, f := range c.files {
		if match(f) {
			out = append(out, f)
			delete(c.files, fid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FID < out[j].FID })
	return out
}

// filesWhere returns the files selected by match without removing them.
func (c *Conn) filesWhere(match func(*OpenFile) bool) []*OpenFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*OpenFile
	for _, f := range c.files {
		if match(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FID < out[j].FID })
	return out
}

// FileCount returns the number of open files.
func (c *Conn) FileCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.files)
}

// ============================================================================
// Parked commands
// ============================================================================

// AddPending parks cont under its MID. It fails if the connection is
// closing, in which case the caller must abandon cont.
func (c *Conn) AddPending(cont *Continuation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.pending[cont.MID] = cont
	return nil
}

// RemovePending forgets cont if it is still the one parked under its MID.
func (c *Conn) RemovePending(cont *Continuation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[cont.MID] == cont {
		delete(c.pending, cont.MID)
	}
}

// Pending returns the continuation parked under mid.
func (c *Conn) Pending(mid uint16) (*Continuation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cont, ok := c.pending[mid]
	return cont, ok
}

// PendingCount returns the number of parked commands.
func (c *Conn) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// shutdown marks the connection closed and hands back everything that
// needs releasing.
func (c *Conn) shutdown() ([]*Continuation, []*OpenFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true

	pending := make([]*Continuation, 0, len(c.pending))
	for _, cont := range c.pending {
		pending = append(pending, cont)
	}
	files := make([]*OpenFile, 0, len(c.files))
	for _, f := range c.files {
		files = append(files, f)
	}
	c.pending = make(map[uint16]*Continuation)
	c.files = make(map[uint16]*OpenFile)
	c.trees = make(map[uint16]*TreeConnect)
	c.sessions = make(map[uint16]*Session)
	return pending, files
}
