package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/feichai0017/text-extractor/pkg/logger"
)

var (
	configOnce sync.Once
	appConfig  *Config
	configErr  error
)

// Config is the service configuration shared by cmd/server, cmd/worker and
// cmd/extract.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       logger.Config   `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	Storage   StorageConfig   `yaml:"storage"`
	Limits    LimitsConfig    `yaml:"limits"`
	Extractor ExtractorConfig `yaml:"extractor"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	MaxRetries     int           `yaml:"maxRetries"`
	RetryDelay     time.Duration `yaml:"retryDelay"`
	ProcessTimeout time.Duration `yaml:"processTimeout"`
	StatusTTL      time.Duration `yaml:"statusTTL"`

	// CleanupInterval schedules removal of stored objects older than
	// StatusTTL. Zero disables it.
	CleanupInterval time.Duration  `yaml:"cleanupInterval"`
	Queues          map[string]int `yaml:"queues"`
}

type LimitsConfig struct {
	// MaxFileSize is in bytes.
	MaxFileSize int64 `yaml:"maxFileSize"`
	// ExtractTimeout wraps a single synchronous extraction.
	ExtractTimeout time.Duration `yaml:"extractTimeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Log: logger.Config{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout"},
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Queue: QueueConfig{
			Concurrency:     5,
			MaxRetries:      3,
			RetryDelay:      time.Minute,
			ProcessTimeout:  30 * time.Minute,
			StatusTTL:       24 * time.Hour,
			CleanupInterval: time.Hour,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
		Storage: StorageConfig{Type: "minio"},
		Limits: LimitsConfig{
			MaxFileSize:    50 * 1024 * 1024,
			ExtractTimeout: 5 * time.Minute,
		},
		Extractor: ExtractorConfig{
			Tesseract: TesseractConfig{Languages: []string{DefaultLanguage}},
			PDF:       PDFConfig{OCRConcurrency: 1},
		},
	}
}

// Load reads path (YAML) over the defaults, then applies .env and
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Printf("Warning: config file not found at %s, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	applyEnv(cfg)

	extractor, err := ParseConfig(&cfg.Extractor)
	if err != nil {
		return nil, err
	}
	cfg.Extractor = *extractor

	return cfg, nil
}

// Get loads the configuration once from CONFIG_PATH (default config.yaml).
func Get() (*Config, error) {
	configOnce.Do(func() {
		path := os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "config.yaml"
		}
		appConfig, configErr = Load(path)
	})
	return appConfig, configErr
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "SERVER_ADDR")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Queue.Concurrency, "QUEUE_CONCURRENCY")

	setString(&cfg.Storage.Type, "STORAGE_TYPE")
	setString(&cfg.Storage.Minio.Endpoint, "MINIO_ENDPOINT")
	setString(&cfg.Storage.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.Storage.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.Storage.Minio.Region, "MINIO_REGION")
	setString(&cfg.Storage.Minio.BucketName, "MINIO_BUCKET_NAME")
	setBool(&cfg.Storage.Minio.UseSSL, "MINIO_USE_SSL")
	setString(&cfg.Storage.S3.BucketName, "AWS_S3_BUCKET_NAME")
	setString(&cfg.Storage.S3.Region, "AWS_REGION")
	setString(&cfg.Storage.S3.Endpoint, "AWS_ENDPOINT")
	setString(&cfg.Storage.S3.AccessKey, "AWS_ACCESS_KEY")
	setString(&cfg.Storage.S3.SecretKey, "AWS_SECRET_KEY")

	if v := os.Getenv("EXTRACTOR_LANGUAGES"); v != "" {
		cfg.Extractor.Tesseract.Languages = SplitLanguages(v)
	}
	setString(&cfg.Extractor.Tesseract.Binary, "EXTRACTOR_TESSERACT_BINARY")
	setBool(&cfg.Extractor.Tesseract.ForceInProcess, "EXTRACTOR_FORCE_IN_PROCESS")
	setBool(&cfg.Extractor.Tesseract.Strict, "EXTRACTOR_STRICT_OCR")
	setInt(&cfg.Extractor.PDF.OCRConcurrency, "EXTRACTOR_PDF_OCR_CONCURRENCY")
}

// SplitLanguages parses "eng+deu" or "eng,deu" into codes.
func SplitLanguages(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	})
	return fields
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			log.Printf("Warning: ignoring %s=%q: %v", key, v, err)
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		} else {
			log.Printf("Warning: ignoring %s=%q: %v", key, v, err)
		}
	}
}
