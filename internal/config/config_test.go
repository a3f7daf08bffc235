package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != DefaultGamePort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultGamePort)
	}
	if cfg.World.ChunkSize != DefaultChunkSize || cfg.World.EntityIDBlockSize != DefaultEntityIDBlockSize {
		t.Errorf("world defaults = %+v", cfg.World)
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultConfigFile)); err != nil {
		t.Errorf("default config file not written: %v", err)
	}
}

func TestLoadOverlaysOnDefaults(t *testing.T) {
	dir := t.TempDir()
	raw := `{
		"server": {"port": 30000},
		"world": {"peers": [{"address": "peer-east", "port": 25565}]}
	}`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 30000 {
		t.Errorf("Server.Port = %d, want 30000", cfg.Server.Port)
	}
	// Unspecified fields keep their defaults.
	if cfg.Server.ProtocolVersion != DefaultProtocolVersion {
		t.Errorf("ProtocolVersion = %d, want default %d", cfg.Server.ProtocolVersion, DefaultProtocolVersion)
	}
	if len(cfg.World.Peers) != 1 || cfg.World.Peers[0].Address != "peer-east" {
		t.Errorf("Peers = %+v", cfg.World.Peers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"zero chunk size", func(c *Config) { c.World.ChunkSize = 0 }},
		{"negative entity block", func(c *Config) { c.World.EntityIDBlockSize = -1 }},
		{"peer without address", func(c *Config) { c.World.Peers = []PeerConfig{{Port: 25565}} }},
		{"api port out of range", func(c *Config) { c.API.Enabled = true; c.API.Port = 70000 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate accepted an invalid config", tc.name)
		}
	}
}

func TestSaveRoundTrips(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Server.StatusDescription = "integration shard"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	back, err := Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if back.Server.StatusDescription != "integration shard" {
		t.Errorf("StatusDescription = %q after reload", back.Server.StatusDescription)
	}
}
