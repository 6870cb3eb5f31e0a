package loghandler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pubsub-logging/internal/pkg/consts"
	"pubsub-logging/internal/pkg/log_messages"
	"pubsub-logging/internal/pkg/logger"
	"pubsub-logging/internal/pkg/pubsub"
	"pubsub-logging/internal/service/interfaces"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

func logDiagnostic(ctx context.Context, msg string, err error) {
	logger.CtxWarn(ctx, msg, slog.Any("error", err))
}

// sender ships finished payloads, inline or on an ants pool. Shipping errors
// go to diagnostics and never back to the caller.
type sender struct {
	shipper     interfaces.ShipperInterface
	topic       string
	diagnostics pubsub.DiagnosticFunc

	pool   *ants.Pool
	mu     sync.RWMutex
	wg     sync.WaitGroup
	closed bool
}

func newSender(shipper interfaces.ShipperInterface, topic string, diagnostics pubsub.DiagnosticFunc) *sender {
	if diagnostics == nil {
		diagnostics = logDiagnostic
	}
	return &sender{shipper: shipper, topic: topic, diagnostics: diagnostics}
}

func newPooledSender(shipper interfaces.ShipperInterface, topic string, diagnostics pubsub.DiagnosticFunc,
	poolSize int, nonblocking bool) (*sender, error) {
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(nonblocking))
	if err != nil {
		return nil, err
	}
	s := newSender(shipper, topic, diagnostics)
	s.pool = pool
	return s, nil
}

func (s *sender) send(ctx context.Context, payload map[string]any) {
	if s.pool == nil {
		s.ship(ctx, payload)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.diagnostics(ctx, log_messages.ErrorSubmittingToPool, ants.ErrPoolClosed)
		return
	}
	// The caller's context may end with its request; the record must not.
	detached := context.WithoutCancel(ctx)
	s.wg.Add(1)
	err := s.pool.Submit(func() {
		defer s.wg.Done()
		s.ship(detached, payload)
	})
	if err != nil {
		s.wg.Done()
		s.diagnostics(ctx, log_messages.ErrorSubmittingToPool, err)
	}
}

func (s *sender) ship(ctx context.Context, payload map[string]any) {
	if err := s.shipper.Ship(ctx, s.topic, payload); err != nil {
		s.diagnostics(ctx, log_messages.ShippingFailed, err)
	}
}

// flush waits for every submitted record. New records wait until it returns.
func (s *sender) flush() {
	if s.pool == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wg.Wait()
}

// close waits for in-flight records and releases the pool. Records sent
// afterwards are reported and dropped.
func (s *sender) close() {
	if s.pool == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	s.pool.Release()
}

// shadowPrefix is prepended to user keys that name a payload field.
const shadowPrefix = "fields."

var payloadKeys = map[string]bool{
	consts.FieldMessage:   true,
	consts.FieldSeverity:  true,
	consts.FieldTimestamp: true,
	consts.FieldInsertID:  true,
	consts.FieldLogger:    true,
	consts.FieldCaller:    true,
	consts.FieldStack:     true,
}

// rootKey is the key a top-level user attribute is stored under. Payload
// fields are never replaced.
func rootKey(key string) string {
	if payloadKeys[key] {
		return shadowPrefix + key
	}
	return key
}

// basePayload carries the fields every shipped record has.
func basePayload(message, severity string, at time.Time) map[string]any {
	if at.IsZero() {
		at = time.Now()
	}
	return map[string]any{
		consts.FieldMessage:   message,
		consts.FieldSeverity:  severity,
		consts.FieldTimestamp: at.UTC().Format(time.RFC3339Nano),
		consts.FieldInsertID:  uuid.NewString(),
	}
}
