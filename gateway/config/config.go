package config

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type LogConfig struct {
	Debug bool

	// File is optional, console only when empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type APICredentials struct {
	Login    string
	Password string
}

type Config struct {
	APIListenAddr  string
	APICredentials *APICredentials

	// ADNL transport is disabled when listen addr is empty.
	ADNLListenAddr string
	ADNLServerKey  []byte

	DBPath      string
	GenesisPath string

	// Snapshots older than head - RetainBlocks are pruned on start, 0 keeps all.
	RetainBlocks uint64

	MetricsNamespace string
	Log              LogConfig
}

func LoadConfig(path string) (*Config, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	_, err = os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = os.MkdirAll(dir, os.ModePerm)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to check directory: %w", err)
		}
	}

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		_, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, err
		}

		cfg := &Config{
			APIListenAddr:    "0.0.0.0:8097",
			ADNLListenAddr:   "0.0.0.0:17556",
			ADNLServerKey:    priv.Seed(),
			DBPath:           "./celer-gateway-db",
			GenesisPath:      "",
			MetricsNamespace: "celer",
			Log: LogConfig{
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
			},
		}

		err = SaveConfig(cfg, path)
		if err != nil {
			return nil, err
		}

		return cfg, nil
	} else if err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var cfg Config
		err = json.Unmarshal(data, &cfg)
		if err != nil {
			return nil, err
		}

		if cfg.ADNLListenAddr != "" && len(cfg.ADNLServerKey) != ed25519.SeedSize {
			return nil, fmt.Errorf("adnl server key must be a %d bytes seed", ed25519.SeedSize)
		}
		return &cfg, nil
	}

	return nil, err
}

func SaveConfig(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}

	err = os.WriteFile(path, data, 0766)
	if err != nil {
		return err
	}
	return nil
}
