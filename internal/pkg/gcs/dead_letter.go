package gcs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"pubsub-logging/internal/pkg/consts"
	"pubsub-logging/internal/pkg/log_messages"
	"pubsub-logging/internal/pkg/logger"
	"pubsub-logging/internal/service/interfaces"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// DeadLetterRecord is the object written for a log record that could not be published.
type DeadLetterRecord struct {
	Topic    string         `json:"topic"`
	Error    string         `json:"error"`
	FailedAt time.Time      `json:"failed_at"`
	Payload  map[string]any `json:"payload"`
}

type GCSClient struct {
	Client     *storage.Client
	BucketName string
	FolderName string
	now        func() time.Time
}

// NewGCSClient is a variable so tests can swap it out.
var NewGCSClient = func(ctx context.Context, bucketName, folderName string,
	opts ...option.ClientOption) (interfaces.DeadLetterInterface, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if folderName == "" {
		folderName = consts.DeadLetterFolderName
	}
	return &GCSClient{
		Client:     client,
		BucketName: bucketName,
		FolderName: folderName,
	}, nil
}

func (g *GCSClient) Close(ctx context.Context) {
	if g.Client == nil {
		return
	}
	if err := g.Client.Close(); err != nil {
		logger.CtxError(ctx, log_messages.ErrorClosingGCSClient, err)
	}
}

// ObjectName is <folder>/<topic>/<unix_nano>_<uuid>.json. The uuid keeps
// names unique when two records fail within the same nanosecond.
func (g *GCSClient) ObjectName(topic string, failedAt time.Time) string {
	return fmt.Sprintf("%s/%s/%d_%s.json", g.FolderName, topic, failedAt.UnixNano(), uuid.NewString())
}

func (g *GCSClient) Upload(ctx context.Context, topic string, body map[string]any, cause error) error {
	failedAt := g.clock()().UTC()
	record := DeadLetterRecord{
		Topic:    topic,
		FailedAt: failedAt,
		Payload:  body,
	}
	if cause != nil {
		record.Error = cause.Error()
	}

	jsonData, err := json.Marshal(record)
	if err != nil {
		logger.CtxError(ctx, log_messages.ErrorMarshallingJSON, err)
		return err
	}

	objectName := g.ObjectName(topic, failedAt)
	object := g.Client.Bucket(g.BucketName).Object(objectName)
	writer := object.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = consts.DeadLetterContentType
	if _, err := writer.Write(jsonData); err != nil {
		logger.CtxError(ctx, log_messages.ErrorUploadingToGCSBucket, err)
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		logger.CtxError(ctx, log_messages.ErrorClosingGCSWriter, err)
		return err
	}
	logger.CtxInfo(ctx, log_messages.UploadedToGCSBucket, slog.String("objectName", objectName))
	return nil
}

func (g *GCSClient) clock() func() time.Time {
	if g.now == nil {
		return time.Now
	}
	return g.now
}
