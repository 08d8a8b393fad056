package sqlstore

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/nextlevelbuilder/swarmd/internal/store"
)

// TeeHandler forwards records to the wrapped handler and persists warn+
// records into system_logs. Writes happen on a separate goroutine so logging
// never blocks on the database.
type TeeHandler struct {
	inner slog.Handler
	logs  store.LogStore
	min   slog.Level
}

// NewTeeHandler wraps inner; records at min or above are also persisted.
func NewTeeHandler(inner slog.Handler, logs store.LogStore, min slog.Level) *TeeHandler {
	return &TeeHandler{inner: inner, logs: logs, min: min}
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.min && h.logs != nil {
		rec := &store.LogRecord{
			Level:     r.Level.String(),
			Message:   r.Message,
			Module:    moduleForPC(r.PC),
			Timestamp: r.Time.UTC(),
			Metadata:  map[string]any{},
		}
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "module" {
				rec.Module = a.Value.String()
				return true
			}
			rec.Metadata[a.Key] = a.Value.String()
			return true
		})
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			// Persist failure is swallowed: the inner handler already
			// emitted the record.
			_ = h.logs.AppendLog(ctx, rec)
		}()
	}
	return h.inner.Handle(ctx, r)
}

func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TeeHandler{inner: h.inner.WithAttrs(attrs), logs: h.logs, min: h.min}
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	return &TeeHandler{inner: h.inner.WithGroup(name), logs: h.logs, min: h.min}
}

// moduleForPC resolves the logging call site to its package name. An explicit
// "module" attr takes precedence in Handle.
func moduleForPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	fn := frame.Function
	if fn == "" {
		return ""
	}
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	if i := strings.Index(fn, "."); i >= 0 {
		fn = fn[:i]
	}
	return fn
}
