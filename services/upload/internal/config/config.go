package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"papercast/pkg/domain"
)

// ConfigPath is the default config location; UPLOAD_CONFIG overrides it.
const ConfigPath = "config.yaml"

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Duration is a time.Duration written as "15m" or "30s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := parseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	StoreDriver string `yaml:"storeDriver"`
	DatabaseURL string `yaml:"databaseURL"`

	MinioEndpoint      string `yaml:"minioEndpoint"`
	MinioAccessKey     string `yaml:"minioAccessKey"`
	MinioSecretKey     string `yaml:"minioSecretKey"`
	MinioBucket        string `yaml:"minioBucket"`
	MinioUseSSL        bool   `yaml:"minioUseSSL"`
	MinioPublicBaseURL string `yaml:"minioPublicBaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	NoticeStream  string `yaml:"noticeStream"`

	MaxUploadBytes   int64    `yaml:"maxUploadBytes"`
	PresignExpiry    Duration `yaml:"presignExpiry"`
	CreateRetries    int      `yaml:"createRetries"`
	OrphanMaxAge     Duration `yaml:"orphanMaxAge"`
	UploadRateLimit  int      `yaml:"uploadRateLimit"`
	UploadRateWindow Duration `yaml:"uploadRateWindow"`

	AuthJWKSURL string   `yaml:"authJwksURL"`
	JWTIssuer   string   `yaml:"jwtIssuer"`
	JWTAudience string   `yaml:"jwtAudience"`
	JWTLeeway   Duration `yaml:"jwtLeeway"`

	WorkerJWTPublicKeyPath string   `yaml:"workerJwtPublicKeyPath"`
	WorkerJWTIssuers       []string `yaml:"workerJwtIssuers"`

	CORSOrigins    []string `yaml:"corsOrigins"`
	TrustedProxies []string `yaml:"trustedProxies"`
}

// Path returns the config file path to load.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("UPLOAD_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml), applies
// environment overrides and defaults, and validates the result.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	str := map[string]*string{
		"UPLOAD_PORT":                &cfg.Port,
		"UPLOAD_LOG_LEVEL":           &cfg.LogLevel,
		"UPLOAD_STORE_DRIVER":        &cfg.StoreDriver,
		"DATABASE_URL":               &cfg.DatabaseURL,
		"MINIO_ENDPOINT":             &cfg.MinioEndpoint,
		"MINIO_ACCESS_KEY":           &cfg.MinioAccessKey,
		"MINIO_SECRET_KEY":           &cfg.MinioSecretKey,
		"MINIO_BUCKET":               &cfg.MinioBucket,
		"MINIO_PUBLIC_BASE_URL":      &cfg.MinioPublicBaseURL,
		"REDIS_ADDR":                 &cfg.RedisAddr,
		"REDIS_PASSWORD":             &cfg.RedisPassword,
		"AUTH_JWKS_URL":              &cfg.AuthJWKSURL,
		"WORKER_JWT_PUBLIC_KEY_PATH": &cfg.WorkerJWTPublicKeyPath,
	}
	for name, dst := range str {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MINIO_USE_SSL: %w", err)
		}
		cfg.MinioUseSSL = b
	}
	if v := os.Getenv("UPLOAD_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("config: UPLOAD_MAX_BYTES: %w", err)
		}
		cfg.MaxUploadBytes = n
	}
	if v := os.Getenv("UPLOAD_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	if v := os.Getenv("UPLOAD_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if v := os.Getenv("WORKER_JWT_ISSUERS"); v != "" {
		cfg.WorkerJWTIssuers = splitCSV(v)
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverPostgres
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = domain.MaxUploadBytes
	}
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = Duration(15 * time.Minute)
	}
	if cfg.CreateRetries == 0 {
		cfg.CreateRetries = 3
	}
	if cfg.OrphanMaxAge == 0 {
		cfg.OrphanMaxAge = Duration(time.Hour)
	}
	if cfg.UploadRateWindow == 0 {
		cfg.UploadRateWindow = Duration(time.Minute)
	}
	if len(cfg.WorkerJWTIssuers) == 0 {
		cfg.WorkerJWTIssuers = []string{"pdf-worker"}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or UPLOAD_PORT)")
	}
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres store (set in config.yaml or DATABASE_URL)")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("config: storeDriver must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml or MINIO_ENDPOINT)")
	}
	if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
		return errors.New("config: minioAccessKey and minioSecretKey are required")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml or MINIO_BUCKET)")
	}
	if cfg.MaxUploadBytes < 0 || cfg.MaxUploadBytes > domain.MaxUploadBytes {
		return fmt.Errorf("config: maxUploadBytes must be between 1 and %d", domain.MaxUploadBytes)
	}
	if cfg.CreateRetries < 0 {
		return errors.New("config: createRetries must not be negative")
	}
	if cfg.UploadRateLimit < 0 {
		return errors.New("config: uploadRateLimit must not be negative")
	}
	if cfg.UploadRateLimit > 0 && cfg.RedisAddr == "" {
		return errors.New("config: uploadRateLimit requires redisAddr")
	}
	if cfg.AuthJWKSURL == "" {
		return errors.New("config: authJwksURL is required (set in config.yaml or AUTH_JWKS_URL)")
	}
	return nil
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", raw)
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
