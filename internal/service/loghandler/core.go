package loghandler

import (
	"context"

	"pubsub-logging/internal/pkg/consts"
	"pubsub-logging/internal/pkg/pubsub"
	"pubsub-logging/internal/service/interfaces"

	"go.uber.org/zap/zapcore"
)

type CoreOptions struct {
	Topic       string
	Level       zapcore.LevelEnabler
	Diagnostics pubsub.DiagnosticFunc
	// PoolSize above zero ships entries on a goroutine pool of that size.
	PoolSize    int
	Nonblocking bool
}

// Core is a zapcore.Core producing the same payloads as Handler.
type Core struct {
	zapcore.LevelEnabler
	sender *sender
	fields []zapcore.Field
}

func NewCore(shipper interfaces.ShipperInterface, opts CoreOptions) (*Core, error) {
	level := opts.Level
	if level == nil {
		level = zapcore.InfoLevel
	}
	s := newSender(shipper, opts.Topic, opts.Diagnostics)
	if opts.PoolSize > 0 {
		var err error
		s, err = newPooledSender(shipper, opts.Topic, opts.Diagnostics, opts.PoolSize, opts.Nonblocking)
		if err != nil {
			return nil, err
		}
	}
	return &Core{LevelEnabler: level, sender: s}, nil
}

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(append(clone.fields, c.fields...), fields...)
	return &clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	payload := basePayload(ent.Message, zapSeverity(ent.Level), ent.Time)
	for k, v := range enc.Fields {
		payload[rootKey(k)] = v
	}
	if ent.LoggerName != "" {
		payload[consts.FieldLogger] = ent.LoggerName
	}
	if ent.Caller.Defined {
		payload[consts.FieldCaller] = ent.Caller.TrimmedPath()
	}
	if ent.Stack != "" {
		payload[consts.FieldStack] = ent.Stack
	}

	c.sender.send(context.Background(), payload)
	return nil
}

// Sync waits for pooled entries to be shipped.
func (c *Core) Sync() error {
	c.sender.flush()
	return nil
}

func (c *Core) Close() {
	c.sender.close()
}

func zapSeverity(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.InfoLevel:
		return "INFO"
	case zapcore.WarnLevel:
		return "WARNING"
	case zapcore.ErrorLevel:
		return "ERROR"
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		return "CRITICAL"
	case zapcore.FatalLevel:
		return "ALERT"
	default:
		return "DEFAULT"
	}
}
