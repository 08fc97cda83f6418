package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9090
  shutdown_timeout: 3s
auth:
  jwt_secret: secret
storage:
  driver: postgres
db:
  dsn: postgres://localhost/progress
  table: progress_v2
  max_conns: 4
  min_conns: 2
breaker:
  failure_threshold: 0.5
  min_requests: 20
topology:
  catalog_path: /etc/progress/topology.yaml
events:
  publisher: pubsub
pubsub:
  project_id: learn-prod
logging:
  development: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if cfg.Storage.Driver != DriverPostgres || cfg.DB.Table != "progress_v2" || cfg.DB.MaxConns != 4 {
		t.Fatalf("expected db overrides, got %+v / %+v", cfg.Storage, cfg.DB)
	}
	if cfg.Breaker.FailureThreshold != 0.5 || cfg.Breaker.MinRequests != 20 || !cfg.Breaker.Enabled {
		t.Fatalf("expected breaker overrides, got %+v", cfg.Breaker)
	}
	if cfg.PubSub.TopicName != "progress-completions" {
		t.Fatalf("expected default topic, got %q", cfg.PubSub.TopicName)
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
	if cfg.Auth.Leeway != 30*time.Second {
		t.Fatalf("expected default leeway, got %v", cfg.Auth.Leeway)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PROGRESS_TOPOLOGY_CATALOG_PATH", "/tmp/topology.yaml")
	t.Setenv("PROGRESS_SERVER_PORT", "7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Driver != DriverMemory || cfg.Events.Publisher != PublisherNone {
		t.Fatalf("expected memory defaults, got %+v %+v", cfg.Storage, cfg.Events)
	}
	if cfg.RateLimit.RPS != 0 || cfg.RateLimit.Burst != 20 {
		t.Fatalf("expected rate limiting disabled by default, got %+v", cfg.RateLimit)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Storage:  StorageConfig{Driver: DriverMemory},
		Breaker:  BreakerConfig{Enabled: true, FailureThreshold: 0.6},
		Topology: TopologyConfig{CatalogPath: "topology.yaml"},
		Events:   EventsConfig{Publisher: PublisherNone},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"port":             {func(c *Config) { c.Server.Port = 0 }, "server.port"},
		"driver":           {func(c *Config) { c.Storage.Driver = "sqlite" }, "storage.driver"},
		"postgres dsn":     {func(c *Config) { c.Storage.Driver = DriverPostgres }, "db.dsn"},
		"catalog":          {func(c *Config) { c.Topology.CatalogPath = "" }, "topology.catalog_path"},
		"breaker":          {func(c *Config) { c.Breaker.FailureThreshold = 1.5 }, "failure_threshold"},
		"publisher":        {func(c *Config) { c.Events.Publisher = "kafka" }, "events.publisher"},
		"pubsub settings":  {func(c *Config) { c.Events.Publisher = PublisherPubSub }, "pubsub.project_id"},
		"rate limit burst": {func(c *Config) { c.RateLimit = RateLimitConfig{RPS: 2} }, "rate_limit.burst"},
		"pool bounds": {func(c *Config) {
			c.Storage.Driver = DriverPostgres
			c.DB = DBConfig{DSN: "postgres://x", MaxConns: 1, MinConns: 2}
		}, "max_conns"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
