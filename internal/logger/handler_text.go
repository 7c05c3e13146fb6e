package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

const textTimeLayout = "2006-01-02 15:04:05.000"

// TextHandler writes one line per record:
//
//	[2006-01-02 15:04:05.000] [INFO] message key=value group.key=value
//
// Level names and keys are colored when color is enabled. Attributes bound
// with WithAttrs are rendered once and reused for every record.
type TextHandler struct {
	opts   slog.HandlerOptions
	w      io.Writer
	mu     *sync.Mutex
	color  bool
	prefix string // open groups joined with "."
	bound  []byte // pre-rendered WithAttrs output
}

// NewTextHandler creates a TextHandler writing to w.
func NewTextHandler(w io.Writer, opts *slog.HandlerOptions, color bool) *TextHandler {
	h := &TextHandler{w: w, mu: new(sync.Mutex), color: color}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *TextHandler) Enabled(_ context.Context, l slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return l >= threshold
}

func (h *TextHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = append(buf, '[')
	buf = r.Time.AppendFormat(buf, textTimeLayout)
	buf = append(buf, "] ["...)
	buf = h.appendLevel(buf, r.Level)
	buf = append(buf, "] "...)
	buf = append(buf, r.Message...)
	buf = append(buf, h.bound...)
	r.Attrs(func(a slog.Attr) bool {
		buf = h.appendAttr(buf, h.prefix, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *TextHandler) appendLevel(buf []byte, l slog.Level) []byte {
	name, color := "ERROR", ansiRed
	switch {
	case l < slog.LevelInfo:
		name, color = "DEBUG", ansiGray
	case l < slog.LevelWarn:
		name, color = "INFO", ansiGreen
	case l < slog.LevelError:
		name, color = "WARN", ansiYellow
	}
	if !h.color {
		return append(buf, name...)
	}
	buf = append(buf, color...)
	buf = append(buf, name...)
	return append(buf, ansiReset...)
}

// appendAttr renders a as " key=value". Group values are flattened with
// dotted keys.
func (h *TextHandler) appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}

	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			buf = h.appendAttr(buf, key, ga)
		}
		return buf
	}

	buf = append(buf, ' ')
	if h.color {
		buf = append(buf, ansiCyan...)
		buf = append(buf, key...)
		buf = append(buf, ansiReset...)
	} else {
		buf = append(buf, key...)
	}
	buf = append(buf, '=')
	return appendValue(buf, a.Value)
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		return append(buf, v.String()...)
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'f', 3, 64)
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindTime:
		return v.Time().AppendFormat(buf, time.RFC3339)
	default:
		return fmt.Append(buf, v.Any())
	}
}

func (h *TextHandler) clone() *TextHandler {
	c := *h
	c.bound = append([]byte(nil), h.bound...)
	return &c
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	for _, a := range attrs {
		c.bound = c.appendAttr(c.bound, c.prefix, a)
	}
	return c
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	if c.prefix != "" {
		c.prefix += "." + name
	} else {
		c.prefix = name
	}
	return c
}
