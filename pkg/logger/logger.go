// Package logger provides the structured logging conventions shared by every
// domain package: a process-wide *slog.Logger plus small helpers for
// attaching a package scope and an error value to a log line.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"
)

// Module provides the shared *slog.Logger and HTTP access-log sink as fx
// singletons.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
	fx.Provide(provideHTTPLogger),
)

func provideHTTPLogger(lc fx.Lifecycle) (*HTTPLogger, error) {
	h, err := NewHTTPLogger()
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return h.Close()
		},
	})
	return h, nil
}

// Scope attaches a dotted package/subsystem path to a log line, e.g.
// logger.Scope("act.dispatch") or logger.Scope("admin.cleanup").
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error attaches an error value under the conventional "error" key. A nil
// err still produces a well-formed attribute so call sites never need to
// guard against it.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// NewLogger builds the application's *slog.Logger. Level is controlled by
// LOG_LEVEL (debug|info|warn|warning|error, case-insensitive, defaults to
// info); handler shape is controlled by GO_ENV: "production" gets a JSON
// handler suited to log aggregation, anything else gets a human-readable
// text handler on stderr.
func NewLogger() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("GO_ENV"), "production") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

// HTTPLogger mirrors a small, fixed-format access log to a file (or stderr
// when unconfigured), independent of the structured *slog.Logger. Keeping
// it a separate sink means the primary log stream stays pure JSON/text
// while ops tooling can tail a flat access log.
type HTTPLogger struct {
	mu  sync.Mutex
	out *os.File
}

// NewHTTPLogger opens (or creates) the access-log file named by the
// HTTP_LOG_PATH environment variable. When unset, access lines are written
// to stderr instead of being dropped.
func NewHTTPLogger() (*HTTPLogger, error) {
	path := os.Getenv("HTTP_LOG_PATH")
	if path == "" {
		return &HTTPLogger{out: os.Stderr}, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &HTTPLogger{out: f}, nil
}

// LogRequest appends one access-log line.
func (h *HTTPLogger) LogRequest(remoteIP, method, uri string, status int, latency time.Duration, userAgent, requestID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	line := strings.Join([]string{
		time.Now().UTC().Format(time.RFC3339),
		remoteIP,
		method,
		uri,
		itoa(status),
		latency.String(),
		requestID,
		userAgent,
	}, " ")
	_, _ = h.out.WriteString(line + "\n")
}

// Close releases the underlying file, if any was opened.
func (h *HTTPLogger) Close() error {
	if h.out == os.Stderr {
		return nil
	}
	return h.out.Close()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// FromContext returns the logger stashed in ctx by middleware, or a
// background default if none was attached (e.g. in unit tests).
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithContext returns a copy of ctx carrying log as the ambient logger.
func WithContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

type ctxKey struct{}
