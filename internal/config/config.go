package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenAddr       string
	DBPath           string
	DBQuotaBytes     int64
	ObjectURLBackend string
	RedisAddr        string
	ObjectURLTTL     time.Duration
	SessionTTL       time.Duration
	SessionLimit     int
	MaxUploadBytes   int64
	CarouselInterval time.Duration
	TimeZone         string
	TimeLayout       string
	LogLevel         string
	LogFile          string
	LogFormat        string
}

// Load reads the configuration from the environment. Every malformed
// numeric or duration value is reported in the returned error.
func Load() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		DBPath:           getEnv("DB_PATH", "/data/album.db"),
		DBQuotaBytes:     p.integer("DB_QUOTA_BYTES", 0),
		ObjectURLBackend: getEnv("OBJECT_URL_BACKEND", "memory"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		ObjectURLTTL:     p.duration("OBJECT_URL_TTL", 15*time.Minute),
		SessionTTL:       p.duration("SESSION_TTL", 30*time.Minute),
		SessionLimit:     int(p.integer("SESSION_LIMIT", 64)),
		MaxUploadBytes:   p.integer("MAX_UPLOAD_BYTES", 50<<20),
		CarouselInterval: time.Duration(p.integer("CAROUSEL_INTERVAL_MS", 3000)) * time.Millisecond,
		TimeZone:         getEnv("TIMEZONE", "Asia/Tokyo"),
		TimeLayout:       getEnv("TIME_LAYOUT", "2006-01-02 15:04:05 MST"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          getEnv("LOG_FILE", ""),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
	}

	switch cfg.ObjectURLBackend {
	case "memory", "redis":
	default:
		p.errs = append(p.errs, fmt.Errorf("OBJECT_URL_BACKEND: unknown backend %q", cfg.ObjectURLBackend))
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

// parser collects conversion errors so all of them surface at once.
type parser struct {
	errs []error
}

func (p *parser) integer(key string, defaultVal int64) int64 {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil || n < 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid non-negative integer %q", key, val))
		return defaultVal
	}
	return n
}

func (p *parser) duration(key string, defaultVal time.Duration) time.Duration {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, val))
		return defaultVal
	}
	return d
}
