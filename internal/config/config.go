// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// AutoCRLF is the repository-wide automatic line-ending normalization
// mode. It is read from config and passed explicitly into filter
// registration; nothing in the write path reads it from global state.
type AutoCRLF string

const (
	AutoCRLFFalse AutoCRLF = "false"
	AutoCRLFTrue  AutoCRLF = "true"
	AutoCRLFInput AutoCRLF = "input"
)

// Valid reports whether the mode is one of the known spellings.
func (m AutoCRLF) Valid() bool {
	switch m {
	case AutoCRLFFalse, AutoCRLFTrue, AutoCRLFInput:
		return true
	}
	return false
}

type Config struct {
	Store struct {
		Root        string `json:"root"`
		CacheSize   int    `json:"cache_size"`
		CompressMin int    `json:"compress_min"`
	} `json:"store"`

	AutoCRLF AutoCRLF `json:"autocrlf"`
	LogLevel string   `json:"log_level"` // debug, info, warn, error
}

// Default returns the configuration a fresh repository starts with.
func Default() *Config {
	cfg := &Config{
		AutoCRLF: AutoCRLFFalse,
		LogLevel: "info",
	}
	cfg.Store.Root = "objects"
	cfg.Store.CacheSize = 1024
	cfg.Store.CompressMin = 1024
	return cfg
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.AutoCRLF == "" {
		cfg.AutoCRLF = AutoCRLFFalse
	}
	if !cfg.AutoCRLF.Valid() {
		return nil, fmt.Errorf("invalid autocrlf mode: %q", cfg.AutoCRLF)
	}

	return &cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
