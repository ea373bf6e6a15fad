// Package config reads process settings from the environment once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings shared by the Lambda and the CLI.
type Config struct {
	SessionTable   string
	ParamPrefix    string
	ParamCacheTTL  time.Duration
	OpenAIModel    string
	BackendBaseURL string
	SearchBaseURL  string
	MaxProducts    int
	MaxHistory     int
	MaxMessageLen  int
	TurnTimeout    time.Duration
	OracleTimeout  time.Duration
	OracleRPS      float64
	LockShards     int
}

// Requirement lists the variables a binary cannot start without.
type Requirement struct {
	SessionTable bool
	ParamPrefix  bool
}

// Lambda is the requirement set for the API entrypoint.
var Lambda = Requirement{SessionTable: true, ParamPrefix: true}

// CLI is the requirement set for shopctl; without SESSION_TABLE it keeps
// sessions in memory.
var CLI = Requirement{ParamPrefix: true}

// Load reads the process environment.
func Load(req Requirement) (Config, error) {
	return FromLookup(os.Getenv, req)
}

// FromLookup reads settings through getenv. Unset numeric settings take
// their defaults; set but malformed ones are errors.
func FromLookup(getenv func(string) string, req Requirement) (Config, error) {
	r := reader{getenv: getenv}
	cfg := Config{
		SessionTable:   r.str("SESSION_TABLE", ""),
		ParamPrefix:    strings.TrimRight(r.str("PARAM_PREFIX", ""), "/"),
		ParamCacheTTL:  time.Duration(r.positiveInt("PARAM_CACHE_TTL_SECONDS", 300)) * time.Second,
		OpenAIModel:    r.str("OPENAI_MODEL", ""),
		BackendBaseURL: r.str("BACKEND_BASE_URL", "http://localhost:8000"),
		SearchBaseURL:  r.str("SEARCH_BASE_URL", "http://localhost:8001"),
		MaxProducts:    r.positiveInt("MAX_PRODUCTS", 10),
		MaxHistory:     r.positiveInt("MAX_HISTORY", 20),
		MaxMessageLen:  r.positiveInt("MAX_MESSAGE_LENGTH", 1000),
		TurnTimeout:    time.Duration(r.positiveInt("TURN_TIMEOUT_SECONDS", 90)) * time.Second,
		OracleTimeout:  time.Duration(r.positiveInt("ORACLE_TIMEOUT_SECONDS", 20)) * time.Second,
		OracleRPS:      r.float("ORACLE_RPS", 5),
		LockShards:     r.positiveInt("LOCK_SHARDS", 256),
	}
	if req.SessionTable && cfg.SessionTable == "" {
		r.fail("SESSION_TABLE", "is required")
	}
	if req.ParamPrefix && cfg.ParamPrefix == "" {
		r.fail("PARAM_PREFIX", "is required")
	}
	if r.err != nil {
		return Config{}, r.err
	}
	return cfg, nil
}

type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) fail(key, msg string) {
	if r.err == nil {
		r.err = fmt.Errorf("config: %s %s", key, msg)
	}
}

func (r *reader) str(key, def string) string {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	return v
}

func (r *reader) positiveInt(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.fail(key, fmt.Sprintf("must be a positive integer, got %q", v))
		return def
	}
	return n
}

// float accepts zero, which disables oracle rate limiting.
func (r *reader) float(key string, def float64) float64 {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		r.fail(key, fmt.Sprintf("must be a non-negative number, got %q", v))
		return def
	}
	return f
}
