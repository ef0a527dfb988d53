// Package config loads QuickCart settings from a TOML file with [client]
// and [cloud] tables, then applies QUICKCART_* environment overrides. A
// missing file is not an error; every setting has a default.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultConfigPath   = "~/.config/quickcart/config.toml"
	defaultDataDir      = "~/.local/share/quickcart"
	defaultClientPort   = "8080"
	defaultCloudURL     = "http://localhost:8090"
	defaultLogLevel     = "info"
	defaultSaveDebounce = 1500 * time.Millisecond

	defaultCloudPort  = "8090"
	defaultDBPath     = "quickcart-cloud.db"
	defaultBackend    = "sql"
	defaultS3Region   = "us-east-1"
	defaultS3Prefix   = "documents/"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// Backend names accepted by Cloud.DocumentBackend.
const (
	BackendSQL   = "sql"
	BackendRedis = "redis"
	BackendS3    = "s3"
)

type Config struct {
	Client Client
	Cloud  Cloud
}

// Client configures the quickcart binary.
type Client struct {
	Port         string
	DataDir      string
	CloudURL     string
	LogLevel     string
	SaveDebounce time.Duration
	// Passphrase enables encryption of the local data directory.
	Passphrase string
}

// Cloud configures the quickcart-cloud binary.
type Cloud struct {
	Port            string
	DBPath          string
	PostgresDSN     string
	JWTSecret       string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	DocumentBackend string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	S3Endpoint      string
	S3Bucket        string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Prefix        string
	AllowedOrigins  []string
	LogLevel        string
}

type rawConfig struct {
	Client struct {
		Port         string `toml:"port"`
		DataDir      string `toml:"data_dir"`
		CloudURL     string `toml:"cloud_url"`
		LogLevel     string `toml:"log_level"`
		SaveDebounce string `toml:"save_debounce"`
		Passphrase   string `toml:"passphrase"`
	} `toml:"client"`
	Cloud struct {
		Port            string   `toml:"port"`
		DBPath          string   `toml:"db_path"`
		PostgresDSN     string   `toml:"postgres_dsn"`
		JWTSecret       string   `toml:"jwt_secret"`
		AccessTTL       string   `toml:"access_ttl"`
		RefreshTTL      string   `toml:"refresh_ttl"`
		DocumentBackend string   `toml:"document_backend"`
		RedisAddr       string   `toml:"redis_addr"`
		RedisPassword   string   `toml:"redis_password"`
		RedisDB         int      `toml:"redis_db"`
		S3Endpoint      string   `toml:"s3_endpoint"`
		S3Bucket        string   `toml:"s3_bucket"`
		S3Region        string   `toml:"s3_region"`
		S3AccessKey     string   `toml:"s3_access_key"`
		S3SecretKey     string   `toml:"s3_secret_key"`
		S3Prefix        string   `toml:"s3_prefix"`
		AllowedOrigins  []string `toml:"allowed_origins"`
		LogLevel        string   `toml:"log_level"`
	} `toml:"cloud"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Client: Client{
			Port:         defaultClientPort,
			DataDir:      mustExpand(defaultDataDir),
			CloudURL:     defaultCloudURL,
			LogLevel:     defaultLogLevel,
			SaveDebounce: defaultSaveDebounce,
		},
		Cloud: Cloud{
			Port:            defaultCloudPort,
			DBPath:          defaultDBPath,
			AccessTTL:       defaultAccessTTL,
			RefreshTTL:      defaultRefreshTTL,
			DocumentBackend: defaultBackend,
			S3Region:        defaultS3Region,
			S3Prefix:        defaultS3Prefix,
			LogLevel:        defaultLogLevel,
		},
	}
}

// Load reads the file at path (the default location when empty), then the
// environment.
func Load(path string) (Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string) (Config, error) {
	cfg := Default()

	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	c := &cfg.Client
	setString(&c.Port, raw.Client.Port)
	setString(&c.CloudURL, raw.Client.CloudURL)
	setString(&c.LogLevel, raw.Client.LogLevel)
	setString(&c.Passphrase, raw.Client.Passphrase)
	if dir := strings.TrimSpace(raw.Client.DataDir); dir != "" {
		c.DataDir = mustExpand(dir)
	}
	if err := setDuration(&c.SaveDebounce, raw.Client.SaveDebounce, "client.save_debounce"); err != nil {
		return Config{}, err
	}

	cl := &cfg.Cloud
	setString(&cl.Port, raw.Cloud.Port)
	setString(&cl.PostgresDSN, raw.Cloud.PostgresDSN)
	setString(&cl.JWTSecret, raw.Cloud.JWTSecret)
	setString(&cl.DocumentBackend, raw.Cloud.DocumentBackend)
	setString(&cl.RedisAddr, raw.Cloud.RedisAddr)
	setString(&cl.RedisPassword, raw.Cloud.RedisPassword)
	setString(&cl.S3Endpoint, raw.Cloud.S3Endpoint)
	setString(&cl.S3Bucket, raw.Cloud.S3Bucket)
	setString(&cl.S3Region, raw.Cloud.S3Region)
	setString(&cl.S3AccessKey, raw.Cloud.S3AccessKey)
	setString(&cl.S3SecretKey, raw.Cloud.S3SecretKey)
	setString(&cl.S3Prefix, raw.Cloud.S3Prefix)
	setString(&cl.LogLevel, raw.Cloud.LogLevel)
	if p := strings.TrimSpace(raw.Cloud.DBPath); p != "" {
		cl.DBPath = mustExpand(p)
	}
	cl.RedisDB = raw.Cloud.RedisDB
	if len(raw.Cloud.AllowedOrigins) > 0 {
		cl.AllowedOrigins = trimAll(raw.Cloud.AllowedOrigins)
	}
	if err := setDuration(&cl.AccessTTL, raw.Cloud.AccessTTL, "cloud.access_ttl"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cl.RefreshTTL, raw.Cloud.RefreshTTL, "cloud.refresh_ttl"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	env := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			setString(dst, v)
		}
	}

	c := &cfg.Client
	env("QUICKCART_PORT", &c.Port)
	env("QUICKCART_CLOUD_URL", &c.CloudURL)
	env("QUICKCART_LOG_LEVEL", &c.LogLevel)
	env("QUICKCART_PASSPHRASE", &c.Passphrase)
	if v, ok := lookup("QUICKCART_DATA_DIR"); ok && strings.TrimSpace(v) != "" {
		c.DataDir = mustExpand(v)
	}
	if v, ok := lookup("QUICKCART_SAVE_DEBOUNCE"); ok {
		if err := setDuration(&c.SaveDebounce, v, "QUICKCART_SAVE_DEBOUNCE"); err != nil {
			return err
		}
	}

	cl := &cfg.Cloud
	env("QUICKCART_CLOUD_PORT", &cl.Port)
	env("QUICKCART_CLOUD_DB_PATH", &cl.DBPath)
	env("QUICKCART_CLOUD_POSTGRES_DSN", &cl.PostgresDSN)
	env("QUICKCART_CLOUD_JWT_SECRET", &cl.JWTSecret)
	env("QUICKCART_CLOUD_DOCUMENT_BACKEND", &cl.DocumentBackend)
	env("QUICKCART_CLOUD_REDIS_ADDR", &cl.RedisAddr)
	env("QUICKCART_CLOUD_REDIS_PASSWORD", &cl.RedisPassword)
	env("QUICKCART_CLOUD_S3_ENDPOINT", &cl.S3Endpoint)
	env("QUICKCART_CLOUD_S3_BUCKET", &cl.S3Bucket)
	env("QUICKCART_CLOUD_S3_REGION", &cl.S3Region)
	env("QUICKCART_CLOUD_S3_ACCESS_KEY", &cl.S3AccessKey)
	env("QUICKCART_CLOUD_S3_SECRET_KEY", &cl.S3SecretKey)
	env("QUICKCART_CLOUD_S3_PREFIX", &cl.S3Prefix)
	env("QUICKCART_CLOUD_LOG_LEVEL", &cl.LogLevel)
	if v, ok := lookup("QUICKCART_CLOUD_REDIS_DB"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("QUICKCART_CLOUD_REDIS_DB: %w", err)
		}
		cl.RedisDB = n
	}
	if v, ok := lookup("QUICKCART_CLOUD_ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		cl.AllowedOrigins = trimAll(strings.Split(v, ","))
	}
	if v, ok := lookup("QUICKCART_CLOUD_ACCESS_TTL"); ok {
		if err := setDuration(&cl.AccessTTL, v, "QUICKCART_CLOUD_ACCESS_TTL"); err != nil {
			return err
		}
	}
	if v, ok := lookup("QUICKCART_CLOUD_REFRESH_TTL"); ok {
		if err := setDuration(&cl.RefreshTTL, v, "QUICKCART_CLOUD_REFRESH_TTL"); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *Config) validate() error {
	switch cfg.Cloud.DocumentBackend {
	case BackendSQL, BackendRedis, BackendS3:
	default:
		return fmt.Errorf("cloud.document_backend: unknown backend %q", cfg.Cloud.DocumentBackend)
	}
	if cfg.Client.SaveDebounce <= 0 {
		return fmt.Errorf("client.save_debounce must be positive, got %s", cfg.Client.SaveDebounce)
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, name string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
