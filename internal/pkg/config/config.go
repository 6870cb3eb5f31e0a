package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"pubsub-logging/internal/pkg/consts"
	"pubsub-logging/internal/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// ServerConfig holds server-level config
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}

type LogConfig struct {
	LogLevel string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

type PubSubConfig struct {
	ProjectID           string `yaml:"project_id" validate:"required"`
	Topic               string `yaml:"topic" validate:"required"`
	CredentialsFile     string `yaml:"credentials_file"`
	Endpoint            string `yaml:"endpoint"`
	ErrorClassification string `yaml:"error_classification" validate:"omitempty,oneof=legacy status"`
	VerifyTopic         bool   `yaml:"verify_topic"`
}

// RetryConfig bounds the caller-side retry of recoverable publish failures.
type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`
	InitialIntervalMs int `yaml:"initial_interval_ms"`
	MaxIntervalMs     int `yaml:"max_interval_ms"`
}

func (r RetryConfig) InitialInterval() time.Duration {
	return time.Duration(r.InitialIntervalMs) * time.Millisecond
}

func (r RetryConfig) MaxInterval() time.Duration {
	return time.Duration(r.MaxIntervalMs) * time.Millisecond
}

type DeadLetterConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BucketName string `yaml:"bucket_name" validate:"required_if=Enabled true"`
	FolderName string `yaml:"folder_name"`
}

type AsyncConfig struct {
	PoolSize    int  `yaml:"pool_size"`
	Nonblocking bool `yaml:"nonblocking"`
}

type ForwarderConfig struct {
	Stdin   bool   `yaml:"stdin"`
	Backend string `yaml:"backend" validate:"omitempty,oneof=slog zap"`
	Level   string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

type OtelConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	CollectorURL string `yaml:"collector_url" validate:"required_if=Enabled true"`
}

// AppConfig is the main config struct that holds all configs
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LogConfig        `yaml:"logging"`
	PubSub     PubSubConfig     `yaml:"pubsub"`
	Retry      RetryConfig      `yaml:"retry"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Async      AsyncConfig      `yaml:"async"`
	Forwarder  ForwarderConfig  `yaml:"forwarder"`
	Otel       OtelConfig       `yaml:"otel"`
}

// nolint: funlen
func assignDefaultConfigValues(cfg *AppConfig) *AppConfig {

	// server config defaults
	cfg.Server.Port = GetEnvOrDefaultAsInt("SERVER_PORT", intOrDefault(cfg.Server.Port, 8080))

	// log config defaults
	cfg.Logging.LogLevel = GetEnvOrDefaultAsString("LOGGING_LEVEL", stringOrDefault(cfg.Logging.LogLevel, "info"))

	// PubSub config defaults
	cfg.PubSub.ProjectID = GetEnvOrDefaultAsString("PROJECT_ID", cfg.PubSub.ProjectID)
	cfg.PubSub.Topic = GetEnvOrDefaultAsString("PUBSUB_TOPIC", cfg.PubSub.Topic)
	cfg.PubSub.CredentialsFile = GetEnvOrDefaultAsString("PUBSUB_CREDENTIALS_FILE", cfg.PubSub.CredentialsFile)
	cfg.PubSub.Endpoint = GetEnvOrDefaultAsString("PUBSUB_ENDPOINT", cfg.PubSub.Endpoint)
	cfg.PubSub.ErrorClassification = GetEnvOrDefaultAsString("PUBSUB_ERROR_CLASSIFICATION",
		stringOrDefault(cfg.PubSub.ErrorClassification, consts.ClassificationLegacy))
	cfg.PubSub.VerifyTopic = GetEnvOrDefaultAsBool("PUBSUB_VERIFY_TOPIC", cfg.PubSub.VerifyTopic)

	// Retry config defaults
	cfg.Retry.MaxAttempts = GetEnvOrDefaultAsInt("RETRY_MAX_ATTEMPTS", intOrDefault(cfg.Retry.MaxAttempts, 5))
	cfg.Retry.InitialIntervalMs = GetEnvOrDefaultAsInt("RETRY_INITIAL_INTERVAL_MS",
		intOrDefault(cfg.Retry.InitialIntervalMs, 200))
	cfg.Retry.MaxIntervalMs = GetEnvOrDefaultAsInt("RETRY_MAX_INTERVAL_MS",
		intOrDefault(cfg.Retry.MaxIntervalMs, 5000))

	// Dead letter defaults
	cfg.DeadLetter.Enabled = GetEnvOrDefaultAsBool("DEAD_LETTER_ENABLED", cfg.DeadLetter.Enabled)
	cfg.DeadLetter.BucketName = GetEnvOrDefaultAsString("GCS_BUCKET_NAME", cfg.DeadLetter.BucketName)
	cfg.DeadLetter.FolderName = GetEnvOrDefaultAsString("GCS_FOLDER_NAME",
		stringOrDefault(cfg.DeadLetter.FolderName, consts.DeadLetterFolderName))

	// Async handler defaults
	cfg.Async.PoolSize = GetEnvOrDefaultAsInt("ASYNC_POOL_SIZE", intOrDefault(cfg.Async.PoolSize, 16))
	cfg.Async.Nonblocking = GetEnvOrDefaultAsBool("ASYNC_NONBLOCKING", cfg.Async.Nonblocking)

	// Forwarder defaults
	cfg.Forwarder.Stdin = GetEnvOrDefaultAsBool("FORWARDER_STDIN", cfg.Forwarder.Stdin)
	cfg.Forwarder.Backend = GetEnvOrDefaultAsString("FORWARDER_BACKEND",
		stringOrDefault(cfg.Forwarder.Backend, consts.BackendSlog))
	cfg.Forwarder.Level = GetEnvOrDefaultAsString("FORWARDER_LEVEL", stringOrDefault(cfg.Forwarder.Level, "info"))

	// OTel defaults
	cfg.Otel.Enabled = GetEnvOrDefaultAsBool("OTEL_ENABLED", cfg.Otel.Enabled)
	cfg.Otel.ServiceName = GetEnvOrDefaultAsString("SERVICE_NAME", stringOrDefault(cfg.Otel.ServiceName, "pubsub-logging"))
	cfg.Otel.CollectorURL = GetEnvOrDefaultAsString("OTEL_URL", cfg.Otel.CollectorURL)

	return cfg
}

// LoadFromConfigFilePath loads and parses config file into AppConfig
func LoadFromConfigFilePath(configPath string) (*AppConfig, error) {

	// #nosec G304: configPath comes from the operator
	data, err := os.ReadFile(configPath)
	if err != nil {
		logger.Error("Failed to read config file", err, slog.String("path", configPath))
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Error("Failed to unmarshal config", err)
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	defaultCfg := assignDefaultConfigValues(&cfg)

	if err := validateConfig(defaultCfg); err != nil {
		logger.Error("Config validation failed", err)
		return nil, err
	}

	logger.Info("Configuration loaded successfully", slog.String("path", configPath))

	return defaultCfg, nil
}

func validateConfig(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := validateRetryConfig(cfg.Retry); err != nil {
		return err
	}
	if cfg.Async.PoolSize < 1 || cfg.Async.PoolSize > 1024 {
		return fmt.Errorf("async.pool_size must be between 1 and 1024, got %d", cfg.Async.PoolSize)
	}
	return nil
}

func validateRetryConfig(retry RetryConfig) error {
	if retry.MaxAttempts < 1 || retry.MaxAttempts > 10 {
		return fmt.Errorf("retry.max_attempts must be between 1 and 10, got %d", retry.MaxAttempts)
	}
	if retry.InitialIntervalMs < 50 || retry.InitialIntervalMs > 10000 {
		return fmt.Errorf("retry.initial_interval_ms must be between 50 and 10000 ms, got %d",
			retry.InitialIntervalMs)
	}
	if retry.MaxIntervalMs < retry.InitialIntervalMs || retry.MaxIntervalMs > 60000 {
		return fmt.Errorf("retry.max_interval_ms must be between %d and 60000 ms, got %d",
			retry.InitialIntervalMs, retry.MaxIntervalMs)
	}
	return nil
}

// GetEnvOrDefaultAsInt returns the value of the given env variable
// as an int or the default value if not set or invalid.
func GetEnvOrDefaultAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return int(value)
}

// GetEnvOrDefaultAsBool accepts 1/0 and the strconv.ParseBool spellings.
func GetEnvOrDefaultAsBool(key string, defaultValue bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetEnvOrDefaultAsString returns the value of the given env variable or the default value if not set.
func GetEnvOrDefaultAsString(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		if val != "" {
			return val
		}
	}
	return defaultVal
}

func intOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func stringOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// LoadEnv loads a .env file from the working directory when one exists.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

// LoadFromConfig loads the .env file, then the config file named by CONFIG_PATH.
func LoadFromConfig() (*AppConfig, error) {
	if err := LoadEnv(); err != nil {
		logger.Error("Failed to load .env file", err)
		return nil, err
	}

	configPath := GetEnvOrDefaultAsString("CONFIG_PATH", "configs/config.yaml")

	cfg, err := LoadFromConfigFilePath(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	return cfg, nil
}
