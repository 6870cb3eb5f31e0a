package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pubsub-logging/internal/app/router"
	"pubsub-logging/internal/pkg/cleanup"
	"pubsub-logging/internal/pkg/config"
	"pubsub-logging/internal/pkg/consts"
	"pubsub-logging/internal/pkg/forwarder"
	"pubsub-logging/internal/pkg/gcs"
	"pubsub-logging/internal/pkg/log_messages"
	"pubsub-logging/internal/pkg/logger"
	"pubsub-logging/internal/pkg/otel"
	"pubsub-logging/internal/pkg/pubsub"
	"pubsub-logging/internal/service/interfaces"
	"pubsub-logging/internal/service/loghandler"
	"pubsub-logging/internal/service/shipper"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/api/option"
)

var (
	loadConfig         = config.LoadFromConfig
	newPubSubPublisher = pubsub.NewPubSubPublisher
	newDeadLetter      = gcs.NewGCSClient
	setupOtel          = otel.Setup
	forwarderInput     io.Reader = os.Stdin
)

// App encapsulates application resources and lifecycle.
type App struct {
	Cfg          *config.AppConfig
	Publisher    *pubsub.PubSubPublisher
	DeadLetter   interfaces.DeadLetterInterface
	Shipper      *shipper.Shipper
	Forwarder    *forwarder.Forwarder
	HTTPServer   *http.Server
	OtelShutdown otel.ShutdownFunc
	drainers     []interface{ Close() }
}

// nolint: funlen
func New(ctx context.Context) (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		logger.CtxError(ctx, log_messages.FailedLoadingConfiguration, err)
		return nil, err
	}
	logger.Init(cfg.Logging.LogLevel)

	app := &App{Cfg: cfg}
	if cfg.Otel.Enabled {
		app.OtelShutdown, err = setupOtel(ctx, cfg.Otel.ServiceName, cfg.Otel.CollectorURL)
		if err != nil {
			logger.CtxError(ctx, log_messages.OTLPConnectionError, err)
			return nil, err
		}
	}

	classifier, err := pubsub.NewClassifier(cfg.PubSub.ErrorClassification)
	if err != nil {
		app.Shutdown(ctx)
		return nil, err
	}

	publisher, err := newPubSubPublisher(ctx, cfg.PubSub.ProjectID, clientOptions(cfg.PubSub)...)
	if err != nil {
		app.Shutdown(ctx)
		return nil, err
	}
	publisher.Classifier = classifier
	app.Publisher = publisher

	if err := app.checkDefaultTopic(ctx); err != nil {
		app.Shutdown(ctx)
		return nil, err
	}

	if cfg.DeadLetter.Enabled {
		app.DeadLetter, err = newDeadLetter(ctx, cfg.DeadLetter.BucketName, cfg.DeadLetter.FolderName)
		if err != nil {
			logger.CtxError(ctx, "Failed to create GCS client", err)
			app.Shutdown(ctx)
			return nil, err
		}
	}

	app.Shipper, err = shipper.NewShipper(publisher, app.DeadLetter, cfg.PubSub.ProjectID, cfg.PubSub.Topic,
		shipper.RetryPolicy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval(),
			MaxInterval:     cfg.Retry.MaxInterval(),
		},
		otel.GetMeter(cfg.Otel.ServiceName))
	if err != nil {
		logger.CtxError(ctx, log_messages.ErrorBuildingShipper, err)
		app.Shutdown(ctx)
		return nil, err
	}

	if cfg.Forwarder.Stdin {
		if err := app.buildForwarder(); err != nil {
			logger.CtxError(ctx, log_messages.ErrorStartingForwarder, err)
			app.Shutdown(ctx)
			return nil, err
		}
	}

	return app, nil
}

func clientOptions(cfg config.PubSubConfig) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	return opts
}

// checkDefaultTopic refuses to start on a topic that cannot be resolved, or,
// with verify_topic set, one the server does not know.
func (a *App) checkDefaultTopic(ctx context.Context) error {
	projectID, topic := a.Cfg.PubSub.ProjectID, a.Cfg.PubSub.Topic
	if !a.Publisher.CheckTopic(ctx, projectID, topic) {
		logger.CtxError(ctx, log_messages.ErrorInvalidDefaultTopic, pubsub.ErrInvalidTopicPath,
			slog.String("topic", topic))
		return fmt.Errorf("%w: %s", pubsub.ErrInvalidTopicPath, topic)
	}
	if !a.Cfg.PubSub.VerifyTopic {
		return nil
	}
	exists, err := a.Publisher.VerifyTopic(ctx, projectID, topic)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %s", log_messages.TopicNotFoundOnServer, topic)
	}
	logger.CtxInfo(ctx, log_messages.TopicVerified, slog.String("topic", topic))
	return nil
}

func (a *App) buildForwarder() error {
	cfg := a.Cfg
	switch cfg.Forwarder.Backend {
	case consts.BackendZap:
		core, err := loghandler.NewCore(a.Shipper, loghandler.CoreOptions{
			Level:       zapLevel(cfg.Forwarder.Level),
			PoolSize:    cfg.Async.PoolSize,
			Nonblocking: cfg.Async.Nonblocking,
		})
		if err != nil {
			return err
		}
		a.drainers = append(a.drainers, core)
		a.Forwarder = forwarder.New(forwarderInput, forwarder.ZapEmitter{Logger: zap.New(core)})
	case consts.BackendSlog, "":
		handler, err := loghandler.NewAsyncHandler(a.Shipper, loghandler.Options{
			Level: logger.ParseLevel(cfg.Forwarder.Level),
		}, cfg.Async.PoolSize, cfg.Async.Nonblocking)
		if err != nil {
			return err
		}
		a.drainers = append(a.drainers, handler)
		a.Forwarder = forwarder.New(forwarderInput, forwarder.SlogEmitter{Logger: slog.New(handler)})
	default:
		return fmt.Errorf("unknown forwarder backend %q", cfg.Forwarder.Backend)
	}
	return nil
}

func zapLevel(level string) zapcore.Level {
	if strings.EqualFold(level, "warning") {
		return zapcore.WarnLevel
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return parsed
}

// Run starts the HTTP server and the forwarder, then blocks until a signal
// arrives or ctx ends.
func (a *App) Run(ctx context.Context) error {
	engine := router.SetupRouter(a.Cfg.Otel.ServiceName, a.Cfg.PubSub.ProjectID, a.Shipper)
	a.HTTPServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.CtxError(ctx, log_messages.ServerStartFailure, err)
		}
	}()

	forwarderCtx, stopForwarder := context.WithCancel(ctx)
	defer stopForwarder()
	if a.Forwarder != nil {
		go func() {
			if err := a.Forwarder.Run(forwarderCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.CtxError(ctx, log_messages.ErrorReadingInput, err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	stopForwarder()
	a.Shutdown(context.WithoutCancel(ctx))
	logger.CtxInfo(ctx, log_messages.ServerExiting)
	return nil
}

// Shutdown gracefully closes all resources with bounded timeouts.
func (a *App) Shutdown(ctx context.Context) {
	var publisher interface{ Close() error }
	if a.Publisher != nil {
		publisher = a.Publisher
	}
	cleanup.CleanupResources(ctx,
		a.HTTPServer,
		a.drainers,
		publisher,
		a.DeadLetter,
		a.OtelShutdown,
	)
}
