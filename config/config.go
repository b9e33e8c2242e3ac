package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ShipperConfig locates the remote drop point for exported metrics.
// All fields must be set for the shipper to be usable.
type ShipperConfig struct {
	Host       string // host:port of the SSH server
	User       string
	KeyPath    string // path to the private key file
	RemotePath string // remote file path for the exported JSON
}

// Config holds every configurable value for the collector process.
type Config struct {
	// Logging
	LogLevel string // debug|info|warn|error
	LogPath  string // narrative performance log file; empty = stdout only

	// Persistence
	StoreBackend string // "sqlite" or "jsonl"
	DBPath       string // path to the SQLite file
	JSONLPath    string // path to the JSONL file
	Replay       bool   // rebuild aggregates from the store on startup

	// Server
	HTTPAddr string

	Shipper ShipperConfig
}

// Load reads configuration from (in decreasing priority):
//  1. environment variables (e.g. STOREBACKEND, SHIPPER_HOST)
//  2. a yaml file (./configs/config.yaml) if it exists.
//
// It returns a fully populated *Config or an error.
func Load() (*Config, error) {
	v := viper.New()

	// Default values - keep them sensible and minimal
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogPath", "./logs/performance.log")
	v.SetDefault("StoreBackend", "sqlite")
	v.SetDefault("DBPath", "./data/perflog.db")
	v.SetDefault("JSONLPath", "./data/perflog.jsonl")
	v.SetDefault("Replay", true)
	v.SetDefault("HTTPAddr", ":8080")
	v.SetDefault("Shipper.Host", "")
	v.SetDefault("Shipper.User", "")
	v.SetDefault("Shipper.KeyPath", "")
	v.SetDefault("Shipper.RemotePath", "")

	// Environment variables - Viper automatically maps "_" to "." (case-insensitive)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Optional yaml file - useful for local dev or k8s ConfigMap
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // ignore error - file is optional

	// Populate the struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}

	switch cfg.StoreBackend {
	case "sqlite", "jsonl":
	default:
		return nil, fmt.Errorf("unknown store backend %q (want sqlite or jsonl)", cfg.StoreBackend)
	}

	return &cfg, nil
}
