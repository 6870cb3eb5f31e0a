package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"pubsub-logging/internal/service/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	testProjectID      = "proj1"
	testTopic          = "logs"
	testTopicPath      = "projects/proj1/topics/logs"
	expectedNoErrorFmt = "expected no error, got %v"
)

type fakeTopicPublisher struct {
	mu         sync.Mutex
	calls      int
	data       []byte
	attributes map[string]string
	err        error
}

func (f *fakeTopicPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.data = data
	f.attributes = attributes
	if f.err != nil {
		return "", f.err
	}
	return "msg-id-1", nil
}

type fakePublisherClient struct {
	mu          sync.Mutex
	publishers  map[string]*fakeTopicPublisher
	publishErr  error
	getTopicErr error
	closeCalled bool
}

func (f *fakePublisherClient) Publisher(topicPath string) interfaces.PublisherInterface {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishers == nil {
		f.publishers = make(map[string]*fakeTopicPublisher)
	}
	if _, ok := f.publishers[topicPath]; !ok {
		f.publishers[topicPath] = &fakeTopicPublisher{err: f.publishErr}
	}
	return f.publishers[topicPath]
}

func (f *fakePublisherClient) GetTopic(ctx context.Context, topicPath string) error {
	return f.getTopicErr
}

func (f *fakePublisherClient) Close() error {
	f.closeCalled = true
	return nil
}

type fakeFactory struct {
	client    interfaces.PubSubPublisherClientInterface
	err       error
	projectID string
	opts      []option.ClientOption
}

func (f *fakeFactory) NewPubSubPublisherClient(ctx context.Context, projectID string,
	opts ...option.ClientOption) (interfaces.PubSubPublisherClientInterface, error) {
	f.projectID = projectID
	f.opts = opts
	return f.client, f.err
}

func newTestPublisher(client *fakePublisherClient) *PubSubPublisher {
	return &PubSubPublisher{PubSubClient: client, Classifier: LegacyClassifier{}}
}

func TestNewPubSubPublisherWithFactorySuccess(t *testing.T) {
	client := &fakePublisherClient{}
	factory := &fakeFactory{client: client}
	opts := []option.ClientOption{option.WithoutAuthentication()}

	publisher, err := NewPubSubPublisherWithFactory(context.Background(), testProjectID, factory, opts...)
	if err != nil {
		t.Fatalf(expectedNoErrorFmt, err)
	}
	assert.Same(t, client, publisher.PubSubClient)
	assert.Equal(t, testProjectID, factory.projectID)
	assert.Len(t, factory.opts, 1)
	assert.IsType(t, LegacyClassifier{}, publisher.Classifier)
	assert.NotNil(t, publisher.Diagnostics)
	assert.NotNil(t, publisher.Ctx)
	assert.NotNil(t, publisher.Cancel)
}

func TestNewPubSubPublisherWithFactoryError(t *testing.T) {
	factory := &fakeFactory{err: errors.New("factory error")}

	publisher, err := NewPubSubPublisherWithFactory(context.Background(), testProjectID, factory)
	assert.EqualError(t, err, "factory error")
	assert.Nil(t, publisher)
}

func TestDefaultFactoryAgainstEmulator(t *testing.T) {
	t.Setenv("PUBSUB_EMULATOR_HOST", "localhost:8085")

	factory := &defaultPubSubPublisherClientFactory{}
	client, err := factory.NewPubSubPublisherClient(context.Background(), testProjectID)
	if err != nil {
		t.Skipf("Skipping - pubsub client unavailable: %v", err)
	}
	first := client.Publisher(testTopicPath)
	second := client.Publisher(testTopicPath)
	assert.Equal(t, first.(*publisherAdapter).publisher, second.(*publisherAdapter).publisher)
	assert.NoError(t, client.Close())
}

func TestTopicPath(t *testing.T) {
	tests := []struct {
		name      string
		projectID string
		topic     string
		want      string
		wantErr   bool
	}{
		{name: "simple", projectID: "proj1", topic: "logs", want: testTopicPath},
		{name: "domain scoped project", projectID: "example.com:app-logs", topic: "app.logs_v2",
			want: "projects/example.com:app-logs/topics/app.logs_v2"},
		{name: "empty project", projectID: "", topic: "logs", wantErr: true},
		{name: "uppercase project", projectID: "Proj", topic: "logs", wantErr: true},
		{name: "empty topic", projectID: "proj1", topic: "", wantErr: true},
		{name: "short topic", projectID: "proj1", topic: "lg", wantErr: true},
		{name: "topic with slash", projectID: "proj1", topic: "a/b/c", wantErr: true},
		{name: "topic starting with digit", projectID: "proj1", topic: "1logs", wantErr: true},
		{name: "reserved prefix", projectID: "proj1", topic: "google-logs", wantErr: true},
		{name: "too long", projectID: "proj1", topic: "l" + strings.Repeat("x", 255), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TopicPath(tt.projectID, tt.topic)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTopicPath)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckTopic(t *testing.T) {
	var reported []error
	publisher := newTestPublisher(&fakePublisherClient{})
	publisher.Diagnostics = func(ctx context.Context, msg string, err error) {
		reported = append(reported, err)
	}

	assert.True(t, publisher.CheckTopic(context.Background(), testProjectID, testTopic))
	assert.Empty(t, reported)

	assert.False(t, publisher.CheckTopic(context.Background(), testProjectID, "bad/topic"))
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], ErrInvalidTopicPath)
}

func TestCheckTopicWithoutDiagnosticsSink(t *testing.T) {
	publisher := &PubSubPublisher{}
	assert.NotPanics(t, func() {
		assert.False(t, publisher.CheckTopic(context.Background(), "", ""))
	})
}

func TestVerifyTopic(t *testing.T) {
	ctx := context.Background()

	t.Run("exists", func(t *testing.T) {
		publisher := newTestPublisher(&fakePublisherClient{})
		ok, err := publisher.VerifyTopic(ctx, testProjectID, testTopic)
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("not found", func(t *testing.T) {
		publisher := newTestPublisher(&fakePublisherClient{
			getTopicErr: status.Error(codes.NotFound, "Resource not found"),
		})
		ok, err := publisher.VerifyTopic(ctx, testProjectID, testTopic)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("lookup failure", func(t *testing.T) {
		lookupErr := status.Error(codes.PermissionDenied, "denied")
		publisher := newTestPublisher(&fakePublisherClient{getTopicErr: lookupErr})
		ok, err := publisher.VerifyTopic(ctx, testProjectID, testTopic)
		assert.Equal(t, lookupErr, err)
		assert.False(t, ok)
	})

	t.Run("invalid path", func(t *testing.T) {
		publisher := newTestPublisher(&fakePublisherClient{})
		ok, err := publisher.VerifyTopic(ctx, testProjectID, "x")
		assert.ErrorIs(t, err, ErrInvalidTopicPath)
		assert.False(t, ok)
	})
}

func TestPublishBodySendsJSONToTopicPath(t *testing.T) {
	client := &fakePublisherClient{}
	publisher := newTestPublisher(client)

	err := publisher.PublishBody(context.Background(), map[string]any{"msg": "hello"}, testProjectID, testTopic)
	if err != nil {
		t.Fatalf(expectedNoErrorFmt, err)
	}

	topicPublisher := client.publishers[testTopicPath]
	require.NotNil(t, topicPublisher)
	assert.Equal(t, 1, topicPublisher.calls)
	assert.Equal(t, `{"msg":"hello"}`, string(topicPublisher.data))
	assert.Nil(t, topicPublisher.attributes)
}

func TestPublishBodyBytesMatchJSONEncoding(t *testing.T) {
	payloads := []map[string]any{
		{},
		{"message": "disk full", "severity": "ERROR", "count": 3},
		{"nested": map[string]any{"a": []any{1, "two", nil}}, "ok": true},
		{"unicode": "héllo <wörld> & co"},
	}
	for _, payload := range payloads {
		client := &fakePublisherClient{}
		publisher := newTestPublisher(client)

		require.NoError(t, publisher.PublishBody(context.Background(), payload, testProjectID, testTopic))

		want, err := json.Marshal(payload)
		require.NoError(t, err)
		assert.Equal(t, want, client.publishers[testTopicPath].data)
	}
}

func TestPublishBodyRecoverableError(t *testing.T) {
	client := &fakePublisherClient{publishErr: errors.New("Deadline exceeded (200)")}
	publisher := newTestPublisher(client)

	err := publisher.PublishBody(context.Background(), map[string]any{"msg": "hello"}, testProjectID, testTopic)

	require.Error(t, err)
	assert.True(t, IsRecoverable(err))
	assert.IsType(t, &RecoverableError{}, err)
	assert.NotContains(t, err.Error(), "Deadline exceeded")
}

func TestPublishBodyPermanentErrorIsReturnedUnchanged(t *testing.T) {
	transportErr := errors.New("403 Forbidden")
	client := &fakePublisherClient{publishErr: transportErr}
	publisher := newTestPublisher(client)

	err := publisher.PublishBody(context.Background(), map[string]any{"msg": "hello"}, testProjectID, testTopic)

	assert.True(t, err == transportErr, "expected the transport error value, got %v", err)
	assert.False(t, IsRecoverable(err))
}

func TestPublishBodyStatusErrorIsReturnedUnchanged(t *testing.T) {
	transportErr := status.Error(codes.NotFound, "Resource not found (resource=logs).")
	publisher := newTestPublisher(&fakePublisherClient{publishErr: transportErr})

	err := publisher.PublishBody(context.Background(), map[string]any{}, testProjectID, testTopic)

	assert.True(t, err == transportErr)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestPublishBodyStatusClassifier(t *testing.T) {
	publisher := newTestPublisher(&fakePublisherClient{
		publishErr: status.Error(codes.Unavailable, "connection reset"),
	})

	err := publisher.PublishBody(context.Background(), map[string]any{}, testProjectID, testTopic)
	assert.False(t, IsRecoverable(err))

	publisher = newTestPublisher(&fakePublisherClient{
		publishErr: status.Error(codes.Unavailable, "connection reset"),
	})
	publisher.Classifier = StatusCodeClassifier{}
	err = publisher.PublishBody(context.Background(), map[string]any{}, testProjectID, testTopic)
	assert.True(t, IsRecoverable(err))
}

func TestPublishBodyInvalidTopicIsPermanent(t *testing.T) {
	client := &fakePublisherClient{}
	publisher := newTestPublisher(client)

	err := publisher.PublishBody(context.Background(), map[string]any{"msg": "x"}, testProjectID, "no/such")

	assert.ErrorIs(t, err, ErrInvalidTopicPath)
	assert.False(t, IsRecoverable(err))
	assert.Empty(t, client.publishers)
}

func TestPublishBodyMarshalErrorIsPermanent(t *testing.T) {
	client := &fakePublisherClient{}
	publisher := newTestPublisher(client)

	err := publisher.PublishBody(context.Background(), map[string]any{"ch": make(chan int)}, testProjectID, testTopic)

	var unsupported *json.UnsupportedTypeError
	assert.ErrorAs(t, err, &unsupported)
	assert.Empty(t, client.publishers)
}

func TestPublishBodyInjectsTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	client := &fakePublisherClient{}
	publisher := newTestPublisher(client)
	require.NoError(t, publisher.PublishBody(ctx, map[string]any{"msg": "hello"}, testProjectID, testTopic))

	attrs := client.publishers[testTopicPath].attributes
	require.Contains(t, attrs, "traceparent")
	assert.Contains(t, attrs["traceparent"], "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestPublishBodyConcurrentCallers(t *testing.T) {
	client := &fakePublisherClient{}
	publisher := newTestPublisher(client)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, publisher.PublishBody(context.Background(),
				map[string]any{"n": i}, testProjectID, testTopic))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, client.publishers[testTopicPath].calls)
}

func TestPubSubPublisherClose(t *testing.T) {
	client := &fakePublisherClient{}
	ctx, cancel := context.WithCancel(context.Background())
	publisher := &PubSubPublisher{PubSubClient: client, Ctx: ctx, Cancel: cancel}

	assert.NoError(t, publisher.Close())
	assert.True(t, client.closeCalled)
	assert.Error(t, publisher.Ctx.Err())

	assert.NoError(t, (&PubSubPublisher{}).Close())
}

func TestNewPubSubPublisherOverride(t *testing.T) {
	called := false
	orig := NewPubSubPublisher
	NewPubSubPublisher = func(ctx context.Context, projectID string,
		opts ...option.ClientOption) (*PubSubPublisher, error) {
		called = true
		return &PubSubPublisher{}, nil
	}
	defer func() { NewPubSubPublisher = orig }()

	_, err := NewPubSubPublisher(context.Background(), testProjectID)
	if err != nil {
		t.Fatalf(expectedNoErrorFmt, err)
	}
	assert.True(t, called)
}
