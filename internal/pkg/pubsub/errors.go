package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pubsub-logging/internal/pkg/consts"
	"pubsub-logging/internal/pkg/log_messages"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidTopicPath is returned when a (project, topic) pair does not
// resolve to a fully-qualified topic path.
var ErrInvalidTopicPath = errors.New("invalid pubsub topic path")

// RecoverableError signals that a failed publish may succeed if retried.
// The transport error that caused it is not carried.
type RecoverableError struct{}

func (e *RecoverableError) Error() string {
	return "recoverable pubsub publish failure"
}

// IsRecoverable reports whether err is, or wraps, a *RecoverableError.
func IsRecoverable(err error) bool {
	var recoverable *RecoverableError
	return errors.As(err, &recoverable)
}

// ErrorClassifier decides whether a transport error is worth retrying.
type ErrorClassifier interface {
	IsRecoverable(err error) bool
}

// LegacyClassifier treats any error whose text contains "200" as recoverable.
type LegacyClassifier struct{}

func (LegacyClassifier) IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), consts.RecoverableErrorMarker)
}

// StatusCodeClassifier inspects the gRPC status of the error and falls back to
// the legacy text rule for errors that carry no status.
type StatusCodeClassifier struct{}

func (StatusCodeClassifier) IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
			codes.Aborted, codes.Internal:
			return true
		}
	}
	return LegacyClassifier{}.IsRecoverable(err)
}

// NewClassifier returns the classifier registered under name. An empty name
// selects the legacy rule.
func NewClassifier(name string) (ErrorClassifier, error) {
	switch name {
	case "", consts.ClassificationLegacy:
		return LegacyClassifier{}, nil
	case consts.ClassificationStatus:
		return StatusCodeClassifier{}, nil
	default:
		return nil, fmt.Errorf(log_messages.UnknownErrorClassificationFmt, name)
	}
}
