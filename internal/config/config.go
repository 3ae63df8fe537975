package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/park285/cheese-arena/internal/agent"
	"github.com/park285/cheese-arena/internal/domain"
)

type AppConfig struct {
	Agents [2]domain.AgentDescriptor

	DatabaseURL string
	RedisURL    string

	TurnDelay    time.Duration
	AgentTimeout time.Duration
	AgentRetries int
	AgentBackoff time.Duration

	FallbackDir string
	BoardDir    string
	PromptDir   string

	SpectatorWSURL string
	MetricsAddr    string

	Games int
}

// LoadDotEnv reads .env files if present. Already-set variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		TurnDelay:    time.Second,
		AgentTimeout: 30 * time.Second,
		AgentRetries: 3,
		AgentBackoff: 5 * time.Second,
		FallbackDir:  filepath.Join(xdg.DataHome, "chess-arena", "fallback"),
		Games:        1,
	}

	for i := range cfg.Agents {
		prefix := fmt.Sprintf("MODEL%d_", i+1)
		cfg.Agents[i] = domain.AgentDescriptor{
			Name:       env(prefix + "NAME"),
			Credential: env(prefix + "API_KEY"),
			Endpoint:   env(prefix + "API_URL"),
			Provider:   strings.ToLower(env(prefix + "PROVIDER")),
		}
	}

	cfg.DatabaseURL = env("DATABASE_URL")
	cfg.RedisURL = env("REDIS_URL")

	if d, ok := durationEnv("ARENA_TURN_DELAY"); ok {
		cfg.TurnDelay = d
	}
	if d, ok := durationEnv("ARENA_AGENT_TIMEOUT"); ok && d > 0 {
		cfg.AgentTimeout = d
	}
	if d, ok := durationEnv("ARENA_AGENT_BACKOFF"); ok && d > 0 {
		cfg.AgentBackoff = d
	}
	if v := env("ARENA_AGENT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AgentRetries = n
		}
	}
	if v := env("ARENA_GAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Games = n
		}
	}
	if v := env("ARENA_FALLBACK_DIR"); v != "" {
		cfg.FallbackDir = v
	}
	cfg.BoardDir = env("ARENA_BOARD_DIR")
	cfg.PromptDir = env("ARENA_PROMPT_DIR")
	cfg.SpectatorWSURL = env("ARENA_SPECTATOR_WS_URL")
	cfg.MetricsAddr = env("ARENA_METRICS_ADDR")

	return cfg, nil
}

// ValidateForPlay checks what a match needs: both agents and a database.
func (c *AppConfig) ValidateForPlay() error {
	var errs []error
	for i, a := range c.Agents {
		prefix := fmt.Sprintf("MODEL%d_", i+1)
		if a.Name == "" {
			errs = append(errs, errors.New(prefix+"NAME is required"))
		}
		if a.Endpoint == "" {
			errs = append(errs, errors.New(prefix+"API_URL is required"))
		}
		if a.Credential == "" && agent.ResolveProvider(a) != agent.ProviderEngine {
			errs = append(errs, errors.New(prefix+"API_KEY is required"))
		}
	}
	if err := c.ValidateStorage(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *AppConfig) ValidateStorage() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

// durationEnv accepts Go durations ("1500ms") or plain seconds ("2").
func durationEnv(k string) (time.Duration, bool) {
	v := env(k)
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d, true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
		return time.Duration(f * float64(time.Second)), true
	}
	return 0, false
}
