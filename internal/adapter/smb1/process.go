package smb1

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/handlers"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/transfer"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// ErrFatal marks failures after which the connection must be dropped: a
// malformed header, a command before NEGOTIATE, or a transport error.
var ErrFatal = errors.New("smb1: connection-fatal error")

// andXHeaderSize is the AndXCommand, reserved and AndXOffset fields that
// open the parameter block of every AndX command.
const andXHeaderSize = 4

// block is one command's part of a response.
type block struct {
	command types.Command
	andX    bool
	offset  int
	words   []byte
	bytes   []byte
	payload *handlers.Payload
}

func (b *block) end() int {
	return b.offset + 1 + len(b.words) + 2 + len(b.bytes)
}

// response collects the blocks of an AndX chain until it is sent.
type response struct {
	req     *header.SMB1Header
	chain   *handlers.Chain
	blocks  []block
	status  types.Status
	command types.Command
	flags   uint8
	last    *HandlerResult
}

func newResponse(hdr *header.SMB1Header, chain *handlers.Chain) *response {
	return &response{req: hdr, chain: chain, command: hdr.Command}
}

// add appends the result of the command whose reply block starts at offset.
func (r *response) add(cmd types.Command, andX bool, offset int, res *HandlerResult) {
	b := block{command: cmd, andX: andX, offset: offset, words: res.Words, bytes: res.Bytes, payload: res.Payload}
	r.blocks = append(r.blocks, b)
	r.last = res
	r.status = res.Status
	r.flags |= res.Flags
	if res.Command != 0 {
		r.command = res.Command
	}
}

// nextOffset returns where the block after the last one starts. Chained
// blocks are 4-byte aligned.
func (r *response) nextOffset() int {
	if len(r.blocks) == 0 {
		return types.HeaderSize
	}
	return align4(r.blocks[len(r.blocks)-1].end())
}

// encode serializes the header and every block. The AndX headers are
// linked here; a payload is not included.
func (r *response) encode() []byte {
	hdr := r.req.Reply(r.status)
	hdr.Command = r.command
	hdr.Flags |= r.flags
	hdr.UID = r.chain.UID
	hdr.TID = r.chain.TID

	size := types.HeaderSize
	if n := len(r.blocks); n > 0 {
		size = r.blocks[n-1].end()
	}
	buf := make([]byte, size)
	hdr.EncodeTo(buf)

	for i := range r.blocks {
		b := &r.blocks[i]
		if b.andX && len(b.words) >= andXHeaderSize {
			if i+1 < len(r.blocks) {
				next := r.blocks[i+1]
				b.words[0] = byte(next.command)
				b.words[1] = 0
				binary.LittleEndian.PutUint16(b.words[2:], uint16(next.offset))
			} else {
				b.words[0] = byte(types.SMBNoAndXCommand)
				b.words[1] = 0
				binary.LittleEndian.PutUint16(b.words[2:], 0)
			}
		}

		byteCount := len(b.bytes)
		if b.payload != nil {
			byteCount += b.payload.Count
		}

		p := b.offset
		buf[p] = byte(len(b.words) / 2)
		p++
		p += copy(buf[p:], b.words)
		binary.LittleEndian.PutUint16(buf[p:], uint16(byteCount))
		p += 2
		copy(buf[p:], b.bytes)
	}
	return buf
}

func (r *response) payload() *handlers.Payload {
	if n := len(r.blocks); n > 0 {
		return r.blocks[n-1].payload
	}
	return nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// parseBlock splits the command block at off into its parameter words and
// data bytes.
func parseBlock(msg []byte, off int) (words, bytes []byte, bytesOff int, ok bool) {
	if off >= len(msg) {
		return nil, nil, 0, false
	}
	wordsEnd := off + 1 + 2*int(msg[off])
	if wordsEnd+2 > len(msg) {
		return nil, nil, 0, false
	}
	bytesOff = wordsEnd + 2
	bytesEnd := bytesOff + int(binary.LittleEndian.Uint16(msg[wordsEnd:]))
	if bytesEnd > len(msg) {
		return nil, nil, 0, false
	}
	return msg[off+1 : wordsEnd], msg[bytesOff:bytesEnd], bytesOff, true
}

// ProcessRequest runs every command of one SMB1 message and sends the
// response. The response of a suspended command is sent later, from the
// goroutine that resumes it.
//
// Returns an error wrapping ErrFatal when the connection must be closed.
func ProcessRequest(ctx context.Context, h *handlers.Handler, c *handlers.Conn, msg []byte) error {
	hdr, err := header.Parse(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	if hdr.IsReply() {
		logger.Debug("SMB1: ignoring message with reply flag", logger.KeyMID, hdr.MID)
		return nil
	}
	if hdr.Command != types.SMBNegotiate && !c.Negotiated() {
		return fmt.Errorf("%w: %s before NEGOTIATE", ErrFatal, hdr.Command)
	}

	chain := handlers.NewChain(hdr)
	resp := newResponse(hdr, chain)

	cmd := hdr.Command
	off := types.HeaderSize
	for i := 0; ; i++ {
		entry, known := Lookup(cmd)
		replyOff := resp.nextOffset()

		words, bytes, bytesOff, ok := parseBlock(msg, off)
		if !ok {
			resp.add(cmd, false, replyOff, handlers.NewErrorResult(types.StatusInvalidSMB))
			break
		}

		next := types.SMBNoAndXCommand
		nextOff := 0
		if known && entry.AndX && len(words) >= andXHeaderSize {
			next = types.Command(words[0])
			nextOff = int(binary.LittleEndian.Uint16(words[2:]))
			if next != types.SMBNoAndXCommand && (nextOff <= off || nextOff >= len(msg)) {
				resp.add(cmd, false, replyOff, handlers.NewErrorResult(types.StatusInvalidSMB))
				break
			}
		}
		last := next == types.SMBNoAndXCommand

		req := &handlers.Request{
			Header:      hdr,
			Command:     cmd,
			Words:       words,
			Bytes:       bytes,
			BytesOffset: bytesOff,
			Message:     msg,
			ReplyOffset: replyOff,
			Index:       i,
			Chained:     i > 0 || !last,
			Last:        last,
			Chain:       chain,
			Conn:        c,
		}

		res := runCommand(ctx, h, entry, req)
		if res.NoReply {
			return nil
		}
		if res.Suspend != nil {
			if last {
				p := &parked{ctx: ctx, h: h, c: c, resp: resp, command: cmd, andX: known && entry.AndX, offset: replyOff}
				p.wait(res.Suspend)
				return nil
			}
			// Only the last command of a chain may wait.
			res.Suspend.Abandon()
			res = handlers.NewErrorResult(types.StatusInternalError)
		}

		resp.add(cmd, known && entry.AndX, replyOff, res)
		if last || res.Status.IsError() {
			break
		}
		cmd, off = next, nextOff
	}

	return send(ctx, h, c, resp)
}

// runCommand resolves the session and tree a command needs and runs its
// handler, with per-command logging, tracing and metrics.
func runCommand(ctx context.Context, h *handlers.Handler, entry *Command, req *handlers.Request) *HandlerResult {
	name := req.Command.String()
	if entry != nil {
		name = entry.Name
	}

	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext(req.Conn.ClientAddr)
	}
	lc = lc.WithCommand(name, req.Chain.TID, req.Chain.UID, req.PID(), req.Header.MID)

	ctx, span := telemetry.StartCommandSpan(ctx, name, req.Header.MID, req.Chain.TID, req.Index)
	lc = lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))

	share := ""
	res := func() *HandlerResult {
		if entry == nil {
			if obsoleteCommands[req.Command] {
				return handlers.NewErrorResult(types.StatusSMBUseStandard)
			}
			logger.Debug("SMB1: unknown command", logger.KeyCommand, name)
			return handlers.NewErrorResult(types.StatusNotImplemented)
		}

		if sess, ok := req.Conn.Session(req.Chain.UID); ok {
			req.Session = sess
		} else if entry.NeedsSession {
			return handlers.NewErrorResult(types.StatusSMBBadUID)
		}

		if tree, ok := req.Conn.Tree(req.Chain.TID); ok && tree.UID == req.Chain.UID {
			req.Tree = tree
			share = tree.Share.Name
			lc = lc.WithShare(share)
		} else if entry.NeedsTree {
			return handlers.NewErrorResult(types.StatusSMBBadTID)
		}

		return entry.Handler(h, logger.WithContext(ctx, lc), req)
	}()

	deferred := res.Suspend != nil
	telemetry.EndCommandSpan(span, uint32(res.Status), deferred)
	metrics.RecordRequest(h.Metrics, name, share, time.Since(lc.Start), res.Status.String())

	logger.DebugCtx(logger.WithContext(ctx, lc), "SMB1: command complete",
		logger.KeyAndX, req.Index,
		logger.KeyStatus, res.Status.String(),
		logger.KeyDurationMs, lc.DurationMs())

	return res
}

// parked is a response whose last command is suspended.
type parked struct {
	ctx     context.Context
	h       *handlers.Handler
	c       *handlers.Conn
	resp    *response
	command types.Command
	andX    bool
	offset  int
}

func (p *parked) wait(cont *handlers.Continuation) {
	if err := p.c.AddPending(cont); err != nil {
		cont.Abandon()
		return
	}
	cont.Attach(func(res *HandlerResult) { p.deliver(cont, res) })
}

func (p *parked) deliver(cont *handlers.Continuation, res *HandlerResult) {
	p.c.RemovePending(cont)
	if res.Suspend != nil {
		p.wait(res.Suspend)
		return
	}
	if res.NoReply {
		return
	}
	p.resp.add(p.command, p.andX, p.offset, res)
	if err := send(p.ctx, p.h, p.c, p.resp); err != nil {
		logger.Warn("SMB1: failed to send deferred response",
			logger.KeyConnectionID, p.c.ID,
			logger.KeyCommand, p.command.String(),
			logger.KeyError, err)
	}
}

// send writes the response.
func send(ctx context.Context, h *handlers.Handler, c *handlers.Conn, resp *response) error {
	last := resp.last
	if last.Raw {
		return sendRaw(ctx, h, c, last.Payload)
	}

	msg := resp.encode()

	if last.Repeat > 0 {
		// ECHO: the single block's first word is the sequence number.
		seqOff := types.HeaderSize + 1
		for seq := uint16(1); seq <= last.Repeat; seq++ {
			binary.LittleEndian.PutUint16(msg[seqOff:], seq)
			if err := c.Transport.WriteMessage(msg); err != nil {
				return fmt.Errorf("%w: %w", ErrFatal, err)
			}
		}
		return nil
	}

	p := resp.payload()
	if p == nil || p.Count == 0 {
		if err := c.Transport.WriteMessage(msg); err != nil {
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
		return nil
	}

	err := c.Transport.Stream(func(w io.Writer, zc transfer.ZeroCopier) error {
		_, err := h.Transfer.Send(ctx, w, zc, transfer.ReadRequest{
			Source: p.Source,
			Offset: p.Offset,
			Count:  p.Count,
		}, func(n int) []byte {
			frame := make([]byte, 0, NBSSHeaderSize+len(msg))
			frame = AppendFrameHeader(frame, len(msg)+n)
			return append(frame, msg...)
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}
	return nil
}

// sendRaw writes READ_RAW data as a bare frame. No payload means a
// zero-length frame, which the client takes as a failed read.
func sendRaw(ctx context.Context, h *handlers.Handler, c *handlers.Conn, p *handlers.Payload) error {
	if p == nil || p.Count == 0 {
		if err := c.Transport.WriteMessage(nil); err != nil {
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
		return nil
	}
	err := c.Transport.Stream(func(w io.Writer, zc transfer.ZeroCopier) error {
		_, err := h.Transfer.Send(ctx, w, zc, transfer.ReadRequest{
			Source: p.Source,
			Offset: p.Offset,
			Count:  p.Count,
		}, func(n int) []byte {
			return AppendFrameHeader(make([]byte, 0, NBSSHeaderSize), n)
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}
	return nil
}
