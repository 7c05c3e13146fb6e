// Package logger is the process-wide structured logger. It wraps log/slog
// with a colored text handler for terminals, a JSON handler for log
// shippers, and helpers that stamp SMB1 command identifiers carried in a
// context onto every line.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Config holds logger configuration, populated from the logging section
// of the server configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

const (
	FormatText = "text"
	FormatJSON = "json"
)

// sink is the destination every handler writes to.
type sink struct {
	w      io.Writer
	color  bool
	closer io.Closer
}

var (
	level  = new(slog.LevelVar)
	format atomic.Value // string

	mu  sync.Mutex
	out = sink{w: os.Stdout, color: isTerminal(os.Stdout.Fd())}

	current atomic.Pointer[slog.Logger]
)

func init() {
	format.Store(FormatText)
	rebuild()
}

// rebuild installs a handler for the current sink and format. The level is
// shared through the LevelVar, so SetLevel never needs a rebuild.
func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format.Load() == FormatJSON {
		h = slog.NewJSONHandler(out.w, opts)
	} else {
		h = NewTextHandler(out.w, opts, out.color)
	}
	current.Store(slog.New(h))
}

// setSink swaps the output destination and closes the previous one if it
// was a file opened by Init.
func setSink(s sink) {
	mu.Lock()
	prev := out
	out = s
	mu.Unlock()

	if prev.closer != nil {
		_ = prev.closer.Close()
	}
	rebuild()
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Init configures level, format and output. Output can be "stdout",
// "stderr", or a file path opened for append.
func Init(cfg Config) error {
	switch strings.ToLower(cfg.Output) {
	case "":
	case "stdout":
		setSink(sink{w: os.Stdout, color: isTerminal(os.Stdout.Fd())})
	case "stderr":
		setSink(sink{w: os.Stderr, color: isTerminal(os.Stderr.Fd())})
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		setSink(sink{w: f, closer: f})
	}

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	return nil
}

// InitWithWriter directs output to w. Used by tests and embedders.
func InitWithWriter(w io.Writer, lvl, fmtName string, color bool) {
	setSink(sink{w: w, color: color})
	if lvl != "" {
		SetLevel(lvl)
	}
	if fmtName != "" {
		SetFormat(fmtName)
	}
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	l, err := ParseLevel(name)
	if err != nil {
		return
	}
	level.Set(l)
}

// SetFormat selects text or json output. Unknown names are ignored.
func SetFormat(name string) {
	name = strings.ToLower(name)
	if name != FormatText && name != FormatJSON {
		return
	}
	format.Store(name)
	rebuild()
}

// Enabled reports whether records at l are currently emitted.
func Enabled(l slog.Level) bool {
	return l >= level.Level()
}

func log(ctx context.Context, l slog.Level, msg string, args []any) {
	if !Enabled(l) {
		return
	}
	args = appendContextFields(ctx, args)
	current.Load().Log(ctx, l, msg, args...)
}

// Debug logs at debug level. Args are alternating keys and values.
func Debug(msg string, args ...any) { log(context.Background(), slog.LevelDebug, msg, args) }

// Info logs at info level.
func Info(msg string, args ...any) { log(context.Background(), slog.LevelInfo, msg, args) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { log(context.Background(), slog.LevelWarn, msg, args) }

// Error logs at error level.
func Error(msg string, args ...any) { log(context.Background(), slog.LevelError, msg, args) }

// DebugCtx logs at debug level, prefixing the command identifiers carried
// by ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelDebug, msg, args)
}

func InfoCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelInfo, msg, args)
}

func WarnCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelWarn, msg, args)
}

func ErrorCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelError, msg, args)
}

// appendContextFields prepends the LogContext fields of ctx to args.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	fields := make([]any, 0, 18+len(args))
	addStr := func(k, v string) {
		if v != "" {
			fields = append(fields, k, v)
		}
	}
	addStr(KeyTraceID, lc.TraceID)
	addStr(KeySpanID, lc.SpanID)
	addStr(KeyCommand, lc.Command)
	addStr(KeyShare, lc.Share)
	addStr(KeyClientIP, lc.ClientIP)
	if lc.TID != 0 {
		fields = append(fields, KeyTID, lc.TID)
	}
	if lc.UID != 0 {
		fields = append(fields, KeyUID, lc.UID)
	}
	if lc.PID != 0 {
		fields = append(fields, KeyPID, lc.PID)
	}
	if lc.MID != 0 {
		fields = append(fields, KeyMID, lc.MID)
	}
	return append(fields, args...)
}

// With returns a logger with args bound to every record.
func With(args ...any) *slog.Logger {
	return current.Load().With(args...)
}
