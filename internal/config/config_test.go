package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SQLITE_DB_PATH", "AMQP_URL", "AMQP_EXCHANGE", "AMQP_QUEUE",
		"GOOGLE_SPREADSHEET_ID", "GOOGLE_SHEET_NAME",
		"GENERATION_HORIZON_MONTHS", "GENERATION_INTERVAL",
		"MIRROR_BATCH_SIZE", "MIRROR_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.SQLiteDBPath != "./data/tally.db" {
		t.Errorf("SQLiteDBPath = %q", cfg.SQLiteDBPath)
	}
	if cfg.HorizonMonths != 3 {
		t.Errorf("HorizonMonths = %d, want 3", cfg.HorizonMonths)
	}
	if cfg.GenerationInterval != 24*time.Hour {
		t.Errorf("GenerationInterval = %v, want 24h", cfg.GenerationInterval)
	}
	if cfg.MirrorBatchSize != 10 {
		t.Errorf("MirrorBatchSize = %d, want 10", cfg.MirrorBatchSize)
	}
	if cfg.MirrorInterval != 30*time.Second {
		t.Errorf("MirrorInterval = %v, want 30s", cfg.MirrorInterval)
	}
	if cfg.AMQPExchange != "tally" || cfg.AMQPQueue != "sync_instances" {
		t.Errorf("AMQP defaults = %q/%q", cfg.AMQPExchange, cfg.AMQPQueue)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GENERATION_HORIZON_MONTHS", "6")
	t.Setenv("GENERATION_INTERVAL", "1h")
	t.Setenv("MIRROR_BATCH_SIZE", "25")

	cfg := Load()

	if cfg.HorizonMonths != 6 {
		t.Errorf("HorizonMonths = %d, want 6", cfg.HorizonMonths)
	}
	if cfg.GenerationInterval != time.Hour {
		t.Errorf("GenerationInterval = %v, want 1h", cfg.GenerationInterval)
	}
	if cfg.MirrorBatchSize != 25 {
		t.Errorf("MirrorBatchSize = %d, want 25", cfg.MirrorBatchSize)
	}
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("GENERATION_HORIZON_MONTHS", "three")
	t.Setenv("GENERATION_INTERVAL", "soon")

	cfg := Load()

	if cfg.HorizonMonths != 3 {
		t.Errorf("HorizonMonths = %d, want default 3", cfg.HorizonMonths)
	}
	if cfg.GenerationInterval != 24*time.Hour {
		t.Errorf("GenerationInterval = %v, want default 24h", cfg.GenerationInterval)
	}
}

func validTestConfig(t *testing.T) *Config {
	t.Helper()
	clearEnv(t)
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "tally.db"))
	return Load()
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validTestConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.AMQPURL = "http://localhost"
	cfg.HorizonMonths = 0
	cfg.MirrorBatchSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"AMQP URL scheme", "generation horizon", "mirror batch size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.SQLiteDBPath = "" }},
		{"horizon too large", func(c *Config) { c.HorizonMonths = 25 }},
		{"generation interval too short", func(c *Config) { c.GenerationInterval = time.Second }},
		{"mirror interval too short", func(c *Config) { c.MirrorInterval = time.Millisecond }},
		{"mirror interval too long", func(c *Config) { c.MirrorInterval = 48 * time.Hour }},
		{"mirror batch too large", func(c *Config) { c.MirrorBatchSize = 5000 }},
		{"amqp without exchange", func(c *Config) { c.AMQPExchange = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig(t)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
