package forwarder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"

	"pubsub-logging/internal/pkg/log_messages"
	"pubsub-logging/internal/pkg/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxLineBytes = 1024 * 1024

// Line is one parsed input line.
type Line struct {
	Message string
	Level   string
	Fields  map[string]any
}

// Emitter hands a parsed line to a logging backend.
type Emitter interface {
	Emit(ctx context.Context, line Line)
}

// ParseLine turns a JSON object line into a message, level and fields. Any
// other line is the message itself.
func ParseLine(raw string) Line {
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || fields == nil {
		return Line{Message: raw}
	}
	line := Line{Fields: fields}
	line.Message = liftString(fields, "message", "msg")
	line.Level = liftString(fields, "severity", "level")
	return line
}

// liftString removes and returns the first key holding a string.
func liftString(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := fields[key].(string); ok {
			delete(fields, key)
			return v
		}
	}
	return ""
}

// Forwarder reads newline-delimited records and emits each one.
type Forwarder struct {
	In      io.Reader
	Emitter Emitter
}

func New(in io.Reader, emitter Emitter) *Forwarder {
	return &Forwarder{In: in, Emitter: emitter}
}

// Run forwards lines until EOF or ctx ends. Blank lines are skipped. Lines
// longer than maxLineBytes are reported and dropped.
func (f *Forwarder) Run(ctx context.Context) error {
	logger.CtxInfo(ctx, log_messages.ForwarderStarted)
	defer logger.CtxInfo(ctx, log_messages.ForwarderStopped)

	reader := bufio.NewReaderSize(f.In, 64*1024)
	for {
		raw, tooLong, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			logger.CtxError(ctx, log_messages.ErrorReadingInput, err)
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if tooLong {
			logger.CtxWarn(ctx, log_messages.InputLineTooLong, slog.Int("max_bytes", maxLineBytes))
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		f.Emitter.Emit(ctx, ParseLine(raw))
	}
}

// readLine returns the next line. A line over maxLineBytes is read through
// its newline and returned empty with tooLong set.
func readLine(r *bufio.Reader) (string, bool, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong && len(buf)+len(bytes.TrimRight(chunk, "\r\n")) <= maxLineBytes {
			buf = append(buf, chunk...)
		} else {
			tooLong, buf = true, nil
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(buf) == 0 && !tooLong {
				return "", false, io.EOF
			}
			return string(buf), tooLong, nil
		case err != nil:
			return "", false, err
		}
		return string(buf), tooLong, nil
	}
}

// SlogEmitter writes lines through a slog logger.
type SlogEmitter struct {
	Logger *slog.Logger
}

func (e SlogEmitter) Emit(ctx context.Context, line Line) {
	e.Logger.LogAttrs(ctx, slogLevel(line.Level), line.Message, fieldAttrs(line.Fields)...)
}

func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "critical", "alert", "emergency", "fatal":
		return slog.LevelError + 4
	default:
		return logger.ParseLevel(level)
	}
}

// fieldAttrs sorts keys so records with equal fields come out identical.
func fieldAttrs(fields map[string]any) []slog.Attr {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	return attrs
}

// ZapEmitter writes lines through a zap logger.
type ZapEmitter struct {
	Logger *zap.Logger
}

func (e ZapEmitter) Emit(_ context.Context, line Line) {
	level := zapLevel(line.Level)
	if ce := e.Logger.Check(level, line.Message); ce != nil {
		fields := make([]zap.Field, 0, len(line.Fields))
		for _, attr := range fieldAttrs(line.Fields) {
			fields = append(fields, zap.Any(attr.Key, attr.Value.Any()))
		}
		ce.Write(fields...)
	}
}

// zapLevel never returns a panic or fatal level; forwarded records must not
// stop the process.
func zapLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error", "critical", "alert", "emergency", "fatal":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
