package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Port     string
	DBPath   string
	GinMode  string
	Timezone *time.Location

	JWTSecret string
	JWTTTL    time.Duration

	LogLevel  string
	LogFormat string

	BatteryLowThreshold float64
	MaxBatchLocations   int
	EvaluationTimeout   time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads the configuration from the environment. Values from a .env
// file in the working directory fill in variables that are not already set.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from getenv. Every invalid value is
// reported in the returned error.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Port:      p.str("PORT", ":8080"),
		DBPath:    p.str("DB_PATH", "./data/tracking.db"),
		GinMode:   p.str("GIN_MODE", "release"),
		JWTSecret: p.str("JWT_SECRET", ""),
		JWTTTL:    p.duration("JWT_TTL", 24*time.Hour),
		LogLevel:  p.str("LOG_LEVEL", "info"),
		LogFormat: p.str("LOG_FORMAT", "text"),

		BatteryLowThreshold: p.number("BATTERY_LOW_THRESHOLD", 15),
		MaxBatchLocations:   p.integer("MAX_BATCH_LOCATIONS", 100),
		EvaluationTimeout:   p.duration("EVALUATION_TIMEOUT", 5*time.Second),

		RateLimitRPS:   p.number("RATE_LIMIT_RPS", 10),
		RateLimitBurst: p.integer("RATE_LIMIT_BURST", 20),
	}

	tz := p.str("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("TIMEZONE: %w", err))
		loc = time.UTC
	}
	cfg.Timezone = loc

	if cfg.JWTSecret == "" {
		p.errs = append(p.errs, errors.New("JWT_SECRET: must be set"))
	}
	if cfg.BatteryLowThreshold < 0 || cfg.BatteryLowThreshold > 100 {
		p.errs = append(p.errs, errors.New("BATTERY_LOW_THRESHOLD: must be between 0 and 100"))
	}
	if cfg.MaxBatchLocations < 1 {
		p.errs = append(p.errs, errors.New("MAX_BATCH_LOCATIONS: must be positive"))
	}
	if cfg.EvaluationTimeout <= 0 {
		p.errs = append(p.errs, errors.New("EVALUATION_TIMEOUT: must be positive"))
	}

	if len(p.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(p.errs...))
	}
	return cfg, nil
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (p *parser) number(key string, def float64) float64 {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}
