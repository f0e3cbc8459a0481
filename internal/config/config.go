// Package config loads the controller's TOML configuration file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// Engine names selectable in the config file.
const (
	EngineSync    = "sync"
	EngineDurable = "durable"
	EngineDBOS    = "dbos"
)

// Config is the top-level configuration.
type Config struct {
	// LedgerPath is the SQLite database file holding intents, targets and
	// the release ledger.
	LedgerPath string `toml:"ledger_path"`

	// Engine selects the workflow backend: sync, durable or dbos.
	Engine string `toml:"engine"`

	// DatabaseURL is the Postgres URL for the dbos engine. Ignored otherwise.
	DatabaseURL string `toml:"database_url"`

	// Concurrency caps targets converging at once. Defaults to 4.
	Concurrency int `toml:"concurrency"`

	// AdapterTimeout bounds each platform API request.
	AdapterTimeout Duration `toml:"adapter_timeout"`

	Targets []Target `toml:"targets"`
}

// Target declares one deployment target.
type Target struct {
	Name     string `toml:"name"`
	Kind     string `toml:"kind"`
	Endpoint string `toml:"endpoint"`
	AppID    string `toml:"app_id"`
	TokenEnv string `toml:"token_env"`
}

// Duration parses TOML strings like "30s" into a [time.Duration].
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Load reads and validates a config file, filling in defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LedgerPath == "" {
		c.LedgerPath = "drydock.db"
	}
	if c.Engine == "" {
		c.Engine = EngineSync
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.AdapterTimeout == 0 {
		c.AdapterTimeout = Duration(30 * time.Second)
	}
}

// Validate checks the configuration for internal consistency.
func Validate(cfg Config) error {
	switch cfg.Engine {
	case EngineSync, EngineDurable, EngineDBOS:
	default:
		return fmt.Errorf("unknown engine %q (want sync, durable or dbos)", cfg.Engine)
	}
	if cfg.Engine == EngineDBOS && cfg.DatabaseURL == "" {
		return fmt.Errorf("dbos engine requires database_url")
	}
	if cfg.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}

	seen := make(map[string]bool, len(cfg.Targets))
	for i, t := range cfg.Targets {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("target[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("target %q declared twice", t.Name)
		}
		seen[t.Name] = true
		switch domain.AdapterKind(t.Kind) {
		case domain.AdapterDokploy, domain.AdapterNorthflank:
		default:
			return fmt.Errorf("target %q: unknown kind %q", t.Name, t.Kind)
		}
		if strings.TrimSpace(t.Endpoint) == "" {
			return fmt.Errorf("target %q: endpoint is required", t.Name)
		}
		if strings.TrimSpace(t.AppID) == "" {
			return fmt.Errorf("target %q: app_id is required", t.Name)
		}
	}
	return nil
}

// DomainTargets converts the declared targets to their domain form.
func (c Config) DomainTargets() []domain.Target {
	targets := make([]domain.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		targets = append(targets, domain.Target{
			Name:     t.Name,
			Kind:     domain.AdapterKind(t.Kind),
			Endpoint: strings.TrimRight(t.Endpoint, "/"),
			AppID:    t.AppID,
			TokenEnv: t.TokenEnv,
		})
	}
	return targets
}
