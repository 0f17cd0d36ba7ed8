// Package config reads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	BackendPostgres = "postgres"
	BackendTables   = "tables"
)

// Config holds everything main needs to assemble the API server.
type Config struct {
	Debug      bool
	ListenAddr string

	Backend     string
	DatabaseURL string

	StorageConnectionString string
	TasksTable              string
	NotesTable              string
	SummariesTable          string
	SettingsTable           string
	EventsQueue             string
	ImagesContainer         string
	ImagesPublicURL         string
	MaxImageBytes           int

	RedisConnectionString string
	TasksCacheTTL         time.Duration
	SettingsCacheTTL      time.Duration
	IdempotencyTTL        time.Duration

	Auth0Domain   string
	Auth0Audience string

	EventsWorkers int
	EventsBuffer  int
	EventsTimeout time.Duration
}

// Load reads .env when present and then the process environment. Variables
// already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("ignoring unreadable .env file")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}
	c := &Config{
		Debug:      p.bool("DEBUG"),
		ListenAddr: ":8080",
		Backend:    strings.ToLower(p.str("STORAGE_BACKEND", BackendPostgres)),

		DatabaseURL:             p.str("DATABASE_URL", ""),
		StorageConnectionString: p.str("STORAGE_CONNECTION_STRING", ""),
		TasksTable:              p.str("TASKS_TABLE", "tasks"),
		NotesTable:              p.str("NOTES_TABLE", "notes"),
		SummariesTable:          p.str("SUMMARIES_TABLE", "summaries"),
		SettingsTable:           p.str("WEEK_SETTINGS_TABLE", "weeksettings"),
		EventsQueue:             p.str("EVENTS_QUEUE", ""),
		ImagesContainer:         p.str("IMAGES_CONTAINER", "images"),
		ImagesPublicURL:         p.str("IMAGES_PUBLIC_URL", ""),
		MaxImageBytes:           p.positiveInt("MAX_IMAGE_BYTES", 5<<20),

		RedisConnectionString: p.str("REDIS_CONNECTION_STRING", ""),
		TasksCacheTTL:         p.duration("TASKS_CACHE_TTL", 30*time.Second),
		SettingsCacheTTL:      p.duration("SETTINGS_CACHE_TTL", 60*time.Second),
		IdempotencyTTL:        p.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		Auth0Domain:   p.str("AUTH0_DOMAIN", ""),
		Auth0Audience: p.str("AUTH0_AUDIENCE", ""),

		EventsWorkers: p.positiveInt("EVENTS_WORKERS", 8),
		EventsBuffer:  p.positiveInt("EVENTS_BUFFER", 1024),
		EventsTimeout: p.duration("EVENTS_TIMEOUT", 30*time.Second),
	}
	if v := getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	} else if v := getenv("FUNCTIONS_CUSTOMHANDLER_PORT"); v != "" {
		c.ListenAddr = ":" + v
	}
	if p.err != nil {
		return nil, p.err
	}
	return c, c.validate()
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("missing DATABASE_URL")
		}
	case BackendTables:
		if c.StorageConnectionString == "" {
			return errors.New("missing STORAGE_CONNECTION_STRING")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Backend)
	}
	if c.RedisConnectionString == "" {
		return errors.New("missing redis config")
	}
	return nil
}

// parser records the first malformed value.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) bool(key string) bool {
	v, err := strconv.ParseBool(p.getenv(key))
	return err == nil && v
}

func (p *parser) positiveInt(key string, def int) int {
	raw := p.getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		p.fail(fmt.Errorf("invalid %s: must be a positive integer", key))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		p.fail(fmt.Errorf("invalid %s: %q", key, raw))
		return def
	}
	return d
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}
