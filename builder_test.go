package authcore

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nextrealm/authcore/docstore"
)

func TestBuildRequiresStoreAndMasterKey(t *testing.T) {
	if _, err := New().WithMasterKey(newTestMasterKey(t)).Build(); err == nil {
		t.Fatal("expected error without a store")
	}
	if _, err := New().WithStore(docstore.NewMemory(nil)).Build(); err == nil {
		t.Fatal("expected error without a master key")
	}
	if _, err := New().WithStore(docstore.NewMemory(nil)).WithMasterKey([]byte("short")).Build(); err == nil {
		t.Fatal("expected error for an undersized master key")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().
		WithStore(docstore.NewMemory(nil)).
		WithClock(clockwork.NewFakeClock()).
		WithMasterKey(newTestMasterKey(t))

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	mutations := []func(*Config){
		func(c *Config) { c.Token.AccessTTL = 0 },
		func(c *Config) { c.Token.RefreshTTL = c.Token.AccessTTL },
		func(c *Config) { c.Token.ClockSkew = -time.Second },
		func(c *Config) { c.Lockout.MaxAttempts = 0 },
		func(c *Config) { c.Lockout.Duration = 0 },
		func(c *Config) { c.Keys.RSABits = 1024 },
		func(c *Config) { c.Keys.ScanLimit = 0 },
		func(c *Config) { c.Keys.CacheTTL = -time.Minute },
		func(c *Config) { c.Collections.Main = "" },
		func(c *Config) { c.Collections.SigningKeys = "" },
		func(c *Config) { c.Audit.BufferSize = 0 },
	}
	for i, mutate := range mutations {
		cfg := defaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("mutation %d: expected validation error", i)
		}
	}
}
