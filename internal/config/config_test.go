package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drydock-deploy/drydock/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drydock.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[[targets]]
name = "prod-a"
kind = "dokploy"
endpoint = "https://dokploy.example.com"
app_id = "app-1"
token_env = "DOKPLOY_TOKEN"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LedgerPath != "drydock.db" {
		t.Errorf("LedgerPath = %q, want drydock.db", cfg.LedgerPath)
	}
	if cfg.Engine != EngineSync {
		t.Errorf("Engine = %q, want sync", cfg.Engine)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if time.Duration(cfg.AdapterTimeout) != 30*time.Second {
		t.Errorf("AdapterTimeout = %v, want 30s", time.Duration(cfg.AdapterTimeout))
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
ledger_path = "/var/lib/drydock/ledger.db"
engine = "durable"
concurrency = 8
adapter_timeout = "45s"

[[targets]]
name = "prod-a"
kind = "dokploy"
endpoint = "https://dokploy.example.com/"
app_id = "app-1"
token_env = "DOKPLOY_TOKEN"

[[targets]]
name = "prod-b"
kind = "northflank"
endpoint = "https://api.northflank.com"
app_id = "proj/svc"
token_env = "NORTHFLANK_TOKEN"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine != EngineDurable {
		t.Errorf("Engine = %q, want durable", cfg.Engine)
	}
	if time.Duration(cfg.AdapterTimeout) != 45*time.Second {
		t.Errorf("AdapterTimeout = %v, want 45s", time.Duration(cfg.AdapterTimeout))
	}

	targets := cfg.DomainTargets()
	if len(targets) != 2 {
		t.Fatalf("DomainTargets: got %d, want 2", len(targets))
	}
	if targets[0].Endpoint != "https://dokploy.example.com" {
		t.Errorf("endpoint not trimmed: %q", targets[0].Endpoint)
	}
	if targets[1].Kind != domain.AdapterNorthflank {
		t.Errorf("Kind = %q, want northflank", targets[1].Kind)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown engine", `engine = "temporal"`},
		{"dbos without database", `engine = "dbos"`},
		{"unknown kind", `
[[targets]]
name = "a"
kind = "heroku"
endpoint = "https://x"
app_id = "y"
`},
		{"duplicate target", `
[[targets]]
name = "a"
kind = "dokploy"
endpoint = "https://x"
app_id = "y"

[[targets]]
name = "a"
kind = "dokploy"
endpoint = "https://x"
app_id = "y"
`},
		{"missing endpoint", `
[[targets]]
name = "a"
kind = "dokploy"
app_id = "y"
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatal("Load: expected error, got nil")
			}
		})
	}
}
