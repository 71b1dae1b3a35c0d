package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all PatriOn configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	GRPC         GRPCConfig         `yaml:"grpc"`
	Storage      StorageConfig      `yaml:"storage"`
	MySQL        MySQLConfig        `yaml:"mysql"`
	Redis        RedisConfig        `yaml:"redis"`
	Media        MediaConfig        `yaml:"media"`
	Depreciation DepreciationConfig `yaml:"depreciation"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type HTTPConfig struct {
	Addr               string   `yaml:"addr"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	RequestTimeout     string   `yaml:"request_timeout"`
	ShutdownTimeout    string   `yaml:"shutdown_timeout"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"` // per client IP, 0 disables
}

type GRPCConfig struct {
	Addr           string `yaml:"addr"`            // empty disables the gRPC health endpoint
	HealthInterval string `yaml:"health_interval"` // store reachability re-check period
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // mysql, memory
}

type MySQLConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	AutoMigrate     bool   `yaml:"auto_migrate"`
}

// RedisConfig configures the cache. An empty Addr selects the in-process cache.
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	PoolSize       int    `yaml:"pool_size"`
	IdempotencyTTL string `yaml:"idempotency_ttl"`
	SectorCacheTTL string `yaml:"sector_cache_ttl"`
}

type MediaConfig struct {
	Driver         string   `yaml:"driver"` // filesystem, s3, none
	Dir            string   `yaml:"dir"`
	PublicBaseURL  string   `yaml:"public_base_url"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	S3             S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	Bucket         string `yaml:"bucket"`
	Prefix         string `yaml:"prefix"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

type DepreciationConfig struct {
	DefaultRatePercent float64 `yaml:"default_rate_percent"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:               ":5000",
			AllowedOrigins:     []string{"http://localhost:3000"},
			RequestTimeout:     "30s",
			ShutdownTimeout:    "5s",
			RateLimitPerMinute: 600,
		},
		GRPC: GRPCConfig{
			Addr:           ":50051",
			HealthInterval: "10s",
		},
		Storage: StorageConfig{
			Driver: "mysql",
		},
		MySQL: MySQLConfig{
			DSN:             "root:root@tcp(localhost:3306)/patrion?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: "5m",
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       100,
			IdempotencyTTL: "24h",
			SectorCacheTTL: "5m",
		},
		Media: MediaConfig{
			Driver:         "filesystem",
			Dir:            "uploads",
			PublicBaseURL:  "/uploads",
			MaxUploadBytes: 10 << 20,
			S3: S3Config{
				Region:         "us-east-1",
				ForcePathStyle: true,
			},
		},
		Depreciation: DepreciationConfig{
			DefaultRatePercent: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("PATRION_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("PATRION_ALLOWED_ORIGINS"); v != "" {
		c.HTTP.AllowedOrigins = splitList(v)
	}
	if v, ok := os.LookupEnv("PATRION_GRPC_ADDR"); ok {
		c.GRPC.Addr = v
	}
	if v := os.Getenv("PATRION_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.MySQL.DSN = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("PATRION_MEDIA_DRIVER"); v != "" {
		c.Media.Driver = v
	}
	if v := os.Getenv("PATRION_MEDIA_DIR"); v != "" {
		c.Media.Dir = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.Media.S3.Endpoint = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.Media.S3.Bucket = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		c.Media.S3.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.Media.S3.SecretKey = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		c.Media.S3.Region = v
	}
	if v := os.Getenv("PATRION_DEFAULT_DEPRECIATION_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid PATRION_DEFAULT_DEPRECIATION_RATE: %q", v)
		}
		c.Depreciation.DefaultRatePercent = rate
	}
	if v := os.Getenv("PATRION_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func (c *Config) GetRequestTimeout() time.Duration {
	return duration(c.HTTP.RequestTimeout, 30*time.Second)
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return duration(c.HTTP.ShutdownTimeout, 5*time.Second)
}

func (c *Config) GetHealthInterval() time.Duration {
	d := duration(c.GRPC.HealthInterval, 10*time.Second)
	if d == 0 {
		return 10 * time.Second
	}
	return d
}

func (c *Config) GetConnMaxLifetime() time.Duration {
	return duration(c.MySQL.ConnMaxLifetime, 5*time.Minute)
}

func (c *Config) GetIdempotencyTTL() time.Duration {
	return duration(c.Redis.IdempotencyTTL, 24*time.Hour)
}

func (c *Config) GetSectorCacheTTL() time.Duration {
	return duration(c.Redis.SectorCacheTTL, 5*time.Minute)
}

var (
	ValidStorageDrivers = []string{"mysql", "memory"}
	ValidMediaDrivers   = []string{"filesystem", "s3", "none"}
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidStorageDrivers, c.Storage.Driver) {
		return fmt.Errorf("invalid storage driver: %s (valid: %v)", c.Storage.Driver, ValidStorageDrivers)
	}
	if c.Storage.Driver == "mysql" && c.MySQL.DSN == "" {
		return fmt.Errorf("mysql dsn is required when storage driver is mysql (set MYSQL_DSN)")
	}
	if !contains(ValidMediaDrivers, c.Media.Driver) {
		return fmt.Errorf("invalid media driver: %s (valid: %v)", c.Media.Driver, ValidMediaDrivers)
	}
	if c.Media.Driver == "filesystem" && c.Media.Dir == "" {
		return fmt.Errorf("media dir is required for the filesystem driver")
	}
	if c.Media.Driver == "s3" && c.Media.S3.Bucket == "" {
		return fmt.Errorf("s3 bucket is required for the s3 media driver (set S3_BUCKET)")
	}
	if c.Media.MaxUploadBytes <= 0 {
		return fmt.Errorf("media max_upload_bytes must be positive")
	}
	if c.Depreciation.DefaultRatePercent < 0 {
		return fmt.Errorf("default depreciation rate must not be negative")
	}
	if c.HTTP.RateLimitPerMinute < 0 {
		return fmt.Errorf("http rate_limit_per_minute must not be negative")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http addr is required")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
