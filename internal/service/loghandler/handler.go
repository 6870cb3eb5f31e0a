package loghandler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"pubsub-logging/internal/pkg/consts"
	"pubsub-logging/internal/pkg/pubsub"
	"pubsub-logging/internal/service/interfaces"
)

// Options configures Handler and AsyncHandler.
type Options struct {
	// Topic receives the records; empty means the shipper's default topic.
	Topic string
	// Level is the minimum level shipped. Defaults to slog.LevelInfo.
	Level       slog.Leveler
	AddSource   bool
	Diagnostics pubsub.DiagnosticFunc
}

// groupOrAttrs is one WithGroup or WithAttrs call, replayed in order on Handle.
type groupOrAttrs struct {
	group string
	attrs []slog.Attr
}

// Handler is a slog.Handler that ships every record as a JSON payload.
type Handler struct {
	sender *sender
	opts   Options
	goas   []groupOrAttrs
}

// NewHandler ships records inline, on the logging goroutine.
func NewHandler(shipper interfaces.ShipperInterface, opts Options) *Handler {
	return &Handler{
		sender: newSender(shipper, opts.Topic, opts.Diagnostics),
		opts:   withDefaults(opts),
	}
}

func withDefaults(opts Options) Options {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return opts
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	h.sender.send(ctx, h.payload(r))
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(groupOrAttrs{attrs: attrs})
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(groupOrAttrs{group: name})
}

func (h *Handler) with(goa groupOrAttrs) *Handler {
	h2 := *h
	h2.goas = make([]groupOrAttrs, len(h.goas)+1)
	copy(h2.goas, h.goas)
	h2.goas[len(h.goas)] = goa
	return &h2
}

func (h *Handler) payload(r slog.Record) map[string]any {
	payload := basePayload(r.Message, slogSeverity(r.Level), r.Time)
	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		payload[consts.FieldCaller] = fmt.Sprintf("%s:%d", frame.File, frame.Line)
	}

	var path []string
	for _, goa := range h.goas {
		if goa.group != "" {
			path = appendKey(path, goa.group)
			continue
		}
		for _, a := range goa.attrs {
			addAttr(payload, path, a)
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(payload, path, a)
		return true
	})
	return payload
}

// addAttr stores a under path, creating nested objects only for groups that
// end up holding a value.
func addAttr(root map[string]any, path []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if len(attrs) == 0 {
			return
		}
		groupPath := path
		if a.Key != "" {
			groupPath = appendKey(append([]string(nil), path...), a.Key)
		}
		for _, ga := range attrs {
			addAttr(root, groupPath, ga)
		}
		return
	}
	key := a.Key
	if len(path) == 0 {
		key = rootKey(key)
	}
	nested(root, path)[key] = attrValue(a.Value)
}

func appendKey(path []string, key string) []string {
	if len(path) == 0 {
		key = rootKey(key)
	}
	return append(path, key)
}

func nested(root map[string]any, path []string) map[string]any {
	m := root
	for _, key := range path {
		child, ok := m[key].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[key] = child
		}
		m = child
	}
	return m
}

func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	default:
		return anyValue(v.Any())
	}
}

// anyValue keeps values JSON can encode and stringifies the rest.
func anyValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case error:
		return t.Error()
	case json.Marshaler:
		return t
	case fmt.Stringer:
		return t.String()
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return v
}

func slogSeverity(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARNING"
	case level < slog.LevelError+4:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}

// AsyncHandler ships records on a bounded goroutine pool. Close must be
// called to drain it.
type AsyncHandler struct {
	*Handler
}

// NewAsyncHandler builds a pooled handler. With nonblocking set, records
// arriving while every worker is busy are reported and dropped.
func NewAsyncHandler(shipper interfaces.ShipperInterface, opts Options, poolSize int,
	nonblocking bool) (*AsyncHandler, error) {
	s, err := newPooledSender(shipper, opts.Topic, opts.Diagnostics, poolSize, nonblocking)
	if err != nil {
		return nil, err
	}
	return &AsyncHandler{Handler: &Handler{sender: s, opts: withDefaults(opts)}}, nil
}

// Flush blocks until every record handled so far has been shipped.
func (h *AsyncHandler) Flush() {
	h.sender.flush()
}

// Close waits for in-flight records and stops the pool.
func (h *AsyncHandler) Close() {
	h.sender.close()
}
