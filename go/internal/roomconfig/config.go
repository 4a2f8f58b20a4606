package roomconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of the room clock server.
type Config struct {
	Port            string
	Rooms           []string
	DefaultDuration time.Duration
	TickInterval    time.Duration
	AllowedOrigins  []string
	LogLevel        string
	NATS            NATSConfig
}

// NATSConfig holds settings for mirroring room events to JetStream.
type NATSConfig struct {
	Enabled       bool
	URL           string
	StreamName    string
	SubjectPrefix string
}

// fileConfig is the YAML layout of the optional rooms file.
type fileConfig struct {
	Rooms             []string `yaml:"rooms"`
	DefaultDurationMS int64    `yaml:"default_duration_ms"`
	TickIntervalMS    int64    `yaml:"tick_interval_ms"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
}

// NewConfigFromEnv reads the environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Port:            getEnv("PORT", "3000"),
		Rooms:           splitList(getEnv("ROOMS", "room1,room2,room3")),
		DefaultDuration: time.Duration(getEnvAsInt("DEFAULT_DURATION_MS", 300000)) * time.Millisecond,
		TickInterval:    time.Duration(getEnvAsInt("TICK_INTERVAL_MS", 1000)) * time.Millisecond,
		AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		NATS: NATSConfig{
			Enabled:       getEnvAsBool("NATS_ENABLED", false),
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			StreamName:    getEnv("NATS_STREAM", "ROOM_EVENTS"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "rooms.events"),
		},
	}
}

// Load reads the environment and, when path is not empty, applies the YAML
// file on top of it. The result is validated.
func Load(path string) (Config, error) {
	cfg := NewConfigFromEnv()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if len(fc.Rooms) > 0 {
		c.Rooms = fc.Rooms
	}
	if fc.DefaultDurationMS != 0 {
		c.DefaultDuration = time.Duration(fc.DefaultDurationMS) * time.Millisecond
	}
	if fc.TickIntervalMS != 0 {
		c.TickInterval = time.Duration(fc.TickIntervalMS) * time.Millisecond
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}
	return nil
}

// Validate checks the room set and durations.
func (c Config) Validate() error {
	var errs []error
	if len(c.Rooms) == 0 {
		errs = append(errs, errors.New("at least one room is required"))
	}
	seen := make(map[string]bool, len(c.Rooms))
	for _, room := range c.Rooms {
		if seen[room] {
			errs = append(errs, fmt.Errorf("duplicate room %q", room))
		}
		seen[room] = true
	}
	if c.DefaultDuration <= 0 {
		errs = append(errs, fmt.Errorf("default duration must be positive, got %s", c.DefaultDuration))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", c.TickInterval))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("NATS_URL is required when NATS is enabled"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
