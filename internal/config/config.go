// Package config handles configuration loading, validation, and persistence
// for the Patchwork shard server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"

	DefaultGamePort = 25565
	DefaultAPIPort  = 5000

	// DefaultProtocolVersion is the wire protocol version accepted and
	// advertised by this build.
	DefaultProtocolVersion = 404

	// DefaultChunkSize is the world-unit width of one grid cell per axis.
	DefaultChunkSize = 16

	// DefaultEntityIDBlockSize is the width of each shard's entity id block.
	DefaultEntityIDBlockSize = 1000
)

// Config is the root configuration structure for Patchwork.
type Config struct {
	mu   sync.RWMutex
	path string

	Server ServerConfig  `json:"server"`
	World  WorldConfig   `json:"world"`
	API    APIConfig     `json:"api"`
	MQTT   MQTTConfig    `json:"mqtt"`
	Log    LoggingConfig `json:"logging"`
}

// ServerConfig holds the game listener settings.
type ServerConfig struct {
	BindAddress       string `json:"bind_address"`
	Port              uint16 `json:"port"`
	ProtocolVersion   int32  `json:"protocol_version"`
	StatusDescription string `json:"status_description"`
	StatusVersionName string `json:"status_version_name"`
	MaxPlayers        int    `json:"max_players"`
	KeepAliveSeconds  int    `json:"keep_alive_seconds"`
}

// WorldConfig holds the sharding constants and the static peer list.
type WorldConfig struct {
	ChunkSize         int32        `json:"chunk_size"`
	EntityIDBlockSize int32        `json:"entity_id_block_size"`
	Peers             []PeerConfig `json:"peers"`
}

// PeerConfig is the static address of a remote shard host. Peers are added
// to the patchwork in list order, after the local shard.
type PeerConfig struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

// APIConfig holds the REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	ClientID  string `json:"client_id"`
	TopicBase string `json:"topic_base"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:       "0.0.0.0",
			Port:              DefaultGamePort,
			ProtocolVersion:   DefaultProtocolVersion,
			StatusDescription: "Patchwork shard server",
			StatusVersionName: "1.13.2",
			MaxPlayers:        100,
			KeepAliveSeconds:  15,
		},
		World: WorldConfig{
			ChunkSize:         DefaultChunkSize,
			EntityIDBlockSize: DefaultEntityIDBlockSize,
		},
		API: APIConfig{
			Enabled: true,
			Port:    DefaultAPIPort,
		},
		MQTT: MQTTConfig{
			Enabled:   false,
			Port:      8883,
			UseTLS:    true,
			TopicBase: "patchwork",
		},
		Log: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("path", configPath).Msg("configuration loaded")

	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port must be non-zero")
	}
	if c.World.ChunkSize <= 0 {
		return fmt.Errorf("world.chunk_size must be positive, got %d", c.World.ChunkSize)
	}
	if c.World.EntityIDBlockSize <= 0 {
		return fmt.Errorf("world.entity_id_block_size must be positive, got %d", c.World.EntityIDBlockSize)
	}
	for i, p := range c.World.Peers {
		if p.Address == "" || p.Port == 0 {
			return fmt.Errorf("world.peers[%d] needs both address and port", i)
		}
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port out of range: %d", c.API.Port)
	}
	return nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the server configuration.
func (c *Config) GetServer() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// GetWorld returns a copy of the world configuration.
func (c *Config) GetWorld() WorldConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.World
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
