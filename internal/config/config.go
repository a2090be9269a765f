package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Vision      VisionConfig      `yaml:"vision"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Worker      WorkerConfig      `yaml:"worker"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port    int      `yaml:"port"`
	APIKeys []string `yaml:"api_keys"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
	// URL takes precedence over the individual fields when set.
	URL string `yaml:"url"`
}

func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	Queue         string        `yaml:"queue"`
	Prefetch      int           `yaml:"prefetch"`
	MaxDeliver    int           `yaml:"max_deliver"`
	AckWait       time.Duration `yaml:"ack_wait"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	CacheBucket   string        `yaml:"cache_bucket"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	// ONNXLib overrides the platform default shared library name.
	ONNXLib string `yaml:"onnx_lib"`
}

// Cache backends for the signature gallery.
const (
	CacheBackendNATS   = "nats"
	CacheBackendMemory = "memory"
	CacheBackendNone   = "none"
)

const defaultTolerance = 0.6

type RecognitionConfig struct {
	// Tolerance is the largest accepted match distance; unset means 0.6.
	Tolerance         *float64      `yaml:"tolerance"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	CacheBackend      string        `yaml:"cache_backend"`
	MaxUploadSize     int64         `yaml:"max_upload_size"`
	AllowedExtensions []string      `yaml:"allowed_extensions"`
	// MaxSignaturesPerPerson caps stored signatures per person; 0 keeps all.
	MaxSignaturesPerPerson int `yaml:"max_signatures_per_person"`
	// ReenrollOnMatch stores the image and signature of every accepted identification.
	ReenrollOnMatch *bool `yaml:"reenroll_on_match"`
}

// FaceTolerance returns the configured tolerance. An explicit zero is kept.
func (r RecognitionConfig) FaceTolerance() float64 {
	if r.Tolerance == nil {
		return defaultTolerance
	}
	return *r.Tolerance
}

// Reenroll reports whether accepted identifications are enrolled again.
func (r RecognitionConfig) Reenroll() bool {
	return r.ReenrollOnMatch == nil || *r.ReenrollOnMatch
}

type WorkerConfig struct {
	MetricsPort int `yaml:"metrics_port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
// A .env file in the working directory, if present, is loaded into the
// environment first. An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = "IMAGE_PROCESSING"
	}
	if cfg.NATS.Queue == "" {
		cfg.NATS.Queue = "face_recognition_queue"
	}
	if cfg.NATS.Prefetch == 0 {
		cfg.NATS.Prefetch = 1
	}
	if cfg.NATS.MaxDeliver == 0 {
		cfg.NATS.MaxDeliver = 5
	}
	if cfg.NATS.AckWait == 0 {
		cfg.NATS.AckWait = 60 * time.Second
	}
	if cfg.NATS.ReconnectWait == 0 {
		cfg.NATS.ReconnectWait = 5 * time.Second
	}
	if cfg.NATS.CacheBucket == "" {
		cfg.NATS.CacheBucket = "face_gallery"
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "faces"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Recognition.Tolerance == nil {
		tol := defaultTolerance
		cfg.Recognition.Tolerance = &tol
	}
	if cfg.Recognition.CacheTTL == 0 {
		cfg.Recognition.CacheTTL = 300 * time.Second
	}
	if cfg.Recognition.CacheBackend == "" {
		cfg.Recognition.CacheBackend = CacheBackendNATS
	}
	if cfg.Recognition.MaxUploadSize == 0 {
		cfg.Recognition.MaxUploadSize = 10 * 1024 * 1024
	}
	if len(cfg.Recognition.AllowedExtensions) == 0 {
		cfg.Recognition.AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}
	}
	if cfg.Worker.MetricsPort == 0 {
		cfg.Worker.MetricsPort = 8082
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACEID_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACEID_API_KEYS"); v != "" {
		cfg.Server.APIKeys = splitList(v)
	}
	if v := os.Getenv("FACEID_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("FACEID_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACEID_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACEID_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACEID_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACEID_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACEID_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FACEID_NATS_PREFETCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Prefetch = n
		}
	}
	if v := os.Getenv("FACEID_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACEID_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACEID_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACEID_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FACEID_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FACEID_FACE_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recognition.Tolerance = &f
		}
	}
	if v := os.Getenv("FACEID_CACHE_BACKEND"); v != "" {
		cfg.Recognition.CacheBackend = v
	}
	if v := os.Getenv("FACEID_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate rejects configurations no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Recognition.FaceTolerance() < 0 {
		errs = append(errs, fmt.Errorf("recognition.tolerance must be >= 0, got %v", c.Recognition.FaceTolerance()))
	}
	if c.Recognition.MaxUploadSize < 0 {
		errs = append(errs, errors.New("recognition.max_upload_size must be >= 0"))
	}
	if c.Recognition.MaxSignaturesPerPerson < 0 {
		errs = append(errs, errors.New("recognition.max_signatures_per_person must be >= 0"))
	}
	switch c.Recognition.CacheBackend {
	case CacheBackendNATS, CacheBackendMemory, CacheBackendNone:
	default:
		errs = append(errs, fmt.Errorf("recognition.cache_backend: unknown backend %q", c.Recognition.CacheBackend))
	}
	if c.NATS.Prefetch < 1 {
		errs = append(errs, fmt.Errorf("nats.prefetch must be >= 1, got %d", c.NATS.Prefetch))
	}
	for i, ext := range c.Recognition.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("recognition.allowed_extensions[%d]: %q must start with a dot", i, ext))
		}
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
