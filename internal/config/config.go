package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Participant scopes
const (
	ScopeGlobal  = "global"
	ScopeAuction = "auction"
)

// Config holds the runtime settings of the auction server
type Config struct {
	Port              string
	StoreBackend      string
	RedisURL          string
	ArchiveDSN        string
	JWTSecret         string
	ActivityWindow    int
	ActivityRetention int
	MinIncrementPct   float64
	ParticipantScope  string
	PresenceTTL       time.Duration
	HeartbeatInterval time.Duration
	ReconcileInterval time.Duration
	AuctionAPIURL     string
	NodeID            int64
	LogLevel          string
}

// AutoNodeID leaves the key generator node id to the store backend: redis hands out
// a distinct one per instance, the memory backend uses 1
const AutoNodeID int64 = -1

// Default returns the configuration used when no variables are set
func Default() Config {
	return Config{
		Port:              "8080",
		StoreBackend:      BackendMemory,
		RedisURL:          "localhost:6379",
		JWTSecret:         "dev-secret-change-me",
		ActivityWindow:    50,
		ActivityRetention: 200,
		MinIncrementPct:   1,
		ParticipantScope:  ScopeGlobal,
		PresenceTTL:       2 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		ReconcileInterval: time.Minute,
		NodeID:            AutoNodeID,
		LogLevel:          "info",
	}
}

// Load reads an optional .env file and then the process environment
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// variables already present in the environment win over the file
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from a variable lookup function
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	cfg.Port = p.str("PORT", cfg.Port)
	cfg.StoreBackend = strings.ToLower(p.str("STORE_BACKEND", cfg.StoreBackend))
	cfg.RedisURL = p.str("REDIS_URL", cfg.RedisURL)
	cfg.ArchiveDSN = p.str("ARCHIVE_DSN", cfg.ArchiveDSN)
	cfg.JWTSecret = p.str("JWT_SECRET", cfg.JWTSecret)
	cfg.ActivityWindow = p.integer("ACTIVITY_WINDOW", cfg.ActivityWindow)
	cfg.ActivityRetention = p.integer("ACTIVITY_RETENTION", cfg.ActivityRetention)
	cfg.MinIncrementPct = p.float("MIN_INCREMENT_PERCENT", cfg.MinIncrementPct)
	cfg.ParticipantScope = strings.ToLower(p.str("PARTICIPANT_SCOPE", cfg.ParticipantScope))
	cfg.PresenceTTL = p.duration("PRESENCE_TTL", cfg.PresenceTTL)
	cfg.HeartbeatInterval = p.duration("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	cfg.ReconcileInterval = p.duration("RECONCILE_INTERVAL", cfg.ReconcileInterval)
	cfg.AuctionAPIURL = strings.TrimRight(p.str("AUCTION_API_URL", cfg.AuctionAPIURL), "/")
	cfg.NodeID = int64(p.integer("NODE_ID", int(cfg.NodeID)))
	cfg.LogLevel = p.str("LOG_LEVEL", cfg.LogLevel)

	if p.err != nil {
		return Config{}, p.err
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("config: STORE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.StoreBackend)
	}
	switch c.ParticipantScope {
	case ScopeGlobal, ScopeAuction:
	default:
		return fmt.Errorf("config: PARTICIPANT_SCOPE must be %q or %q, got %q", ScopeGlobal, ScopeAuction, c.ParticipantScope)
	}
	if c.ActivityWindow <= 0 {
		return fmt.Errorf("config: ACTIVITY_WINDOW must be positive")
	}
	if c.ActivityRetention < c.ActivityWindow {
		return fmt.Errorf("config: ACTIVITY_RETENTION (%d) must be at least ACTIVITY_WINDOW (%d)", c.ActivityRetention, c.ActivityWindow)
	}
	if c.MinIncrementPct < 0 {
		return fmt.Errorf("config: MIN_INCREMENT_PERCENT must not be negative")
	}
	if c.NodeID < AutoNodeID || c.NodeID > 1023 {
		return fmt.Errorf("config: NODE_ID must be between 0 and 1023, or unset")
	}
	return nil
}

// Addr is the listen address for the HTTP server
func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) str(key, def string) string {
	if v, ok := p.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	if raw == "0" {
		return 0
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: invalid %s %q: %w", key, raw, err)
	}
}
