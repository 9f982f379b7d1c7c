// Package config loads service configuration from defaults, an optional
// YAML file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Environment string          `yaml:"environment" validate:"required"`
	Server      ServerConfig    `yaml:"server"`
	Log         LogConfig       `yaml:"log"`
	Bahn        BahnConfig      `yaml:"bahn"`
	Cache       CacheConfig     `yaml:"cache"`
	CORS        CORSConfig      `yaml:"cors"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Prewarm     PrewarmConfig   `yaml:"prewarm"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `yaml:"pretty"`
}

// BahnConfig configures the upstream gateway.
type BahnConfig struct {
	BaseURL       string        `yaml:"base_url" validate:"required,url"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	SearchLimit   int           `yaml:"search_limit" validate:"min=1,max=50"`
	MaxResults    int           `yaml:"max_results" validate:"min=1,max=200"`
	StationsTTL   time.Duration `yaml:"stations_ttl" validate:"gt=0"`
	DeparturesTTL time.Duration `yaml:"departures_ttl" validate:"gt=0"`
	JourneyTTL    time.Duration `yaml:"journey_ttl" validate:"gt=0"`
	NearbyTTL     time.Duration `yaml:"nearby_ttl" validate:"gt=0"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl" validate:"gt=0"`
}

// CORSConfig configures cross-origin access to the tool endpoints.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" validate:"min=1,dive,required"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// PrewarmConfig configures background departure board prewarming.
// An empty station list uses the built-in hub list.
type PrewarmConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Stations    []string      `yaml:"stations" validate:"dive,required"`
	Interval    time.Duration `yaml:"interval" validate:"gt=0"`
	Concurrency int           `yaml:"concurrency" validate:"min=1,max=16"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3001,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Bahn: BahnConfig{
			BaseURL:       "https://www.bahn.de/web/api",
			Timeout:       15 * time.Second,
			SearchLimit:   10,
			MaxResults:    20,
			StationsTTL:   300 * time.Second,
			DeparturesTTL: 90 * time.Second,
			JourneyTTL:    30 * time.Second,
			NearbyTTL:     300 * time.Second,
		},
		Cache: CacheConfig{
			DefaultTTL: 90 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1,
		},
		Prewarm: PrewarmConfig{
			Interval:    60 * time.Second,
			Concurrency: 3,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then environment overrides. The result is
// validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// LogLevel returns the zerolog level, defaulting to info.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || c.Log.Level == "" {
		return zerolog.InfoLevel
	}
	return level
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays environment variables onto c.
func (c *Config) applyEnv(lookup lookupFunc) error {
	env := envReader{lookup: lookup}

	env.str("APP_ENV", &c.Environment)
	env.str("HOST", &c.Server.Host)
	env.int("PORT", &c.Server.Port)
	env.int("APP_PORT", &c.Server.Port)

	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	env.bool("LOG_PRETTY", &c.Log.Pretty)

	env.str("BAHN_BASE_URL", &c.Bahn.BaseURL)
	env.duration("BAHN_TIMEOUT", &c.Bahn.Timeout)
	env.int("BAHN_SEARCH_LIMIT", &c.Bahn.SearchLimit)
	env.int("BAHN_MAX_RESULTS", &c.Bahn.MaxResults)

	env.duration("CACHE_DEFAULT_TTL", &c.Cache.DefaultTTL)

	env.list("CORS_ALLOWED_ORIGINS", &c.CORS.AllowedOrigins)

	env.bool("OTEL_ENABLED", &c.Telemetry.Enabled)
	env.str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	env.float("OTEL_SAMPLE_RATIO", &c.Telemetry.SampleRatio)

	env.bool("PREWARM_ENABLED", &c.Prewarm.Enabled)
	env.list("PREWARM_STATIONS", &c.Prewarm.Stations)
	env.duration("PREWARM_INTERVAL", &c.Prewarm.Interval)

	return env.err()
}

// envReader collects parse failures so every bad variable is reported at once.
type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (r *envReader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

// list reads a comma-separated value, dropping blank items.
func (r *envReader) list(key string, dst *[]string) {
	if v, ok := r.get(key); ok {
		items := make([]string, 0)
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*dst = items
	}
}

func (r *envReader) int(key string, dst *int) {
	if v, ok := r.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (r *envReader) float(key string, dst *float64) {
	if v, ok := r.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (r *envReader) bool(key string, dst *bool) {
	if v, ok := r.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	if v, ok := r.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}

func (r *envReader) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid environment: %w", errors.Join(r.errs...))
}
