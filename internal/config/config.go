package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config captures what synctui needs to reach the daemon.
type Config struct {
	// APIKey authenticates against the daemon's REST API. Found under
	// configuration/gui/apikey in the daemon's own config.
	APIKey string
	// Address is the daemon's GUI listen address as host:port.
	Address string
}

const (
	defaultConfigPath = "~/.config/synctui/config.toml"
	defaultAddress    = "127.0.0.1:8384"
)

// Load locates and parses the synctui config. A missing file yields defaults
// with an empty API key; callers decide whether a flag supplied the key
// instead.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{Address: defaultAddress}

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIKey  string `toml:"api-key"`
		Address string `toml:"address"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.APIKey = strings.TrimSpace(raw.APIKey)
	cfg.Address = strings.TrimSpace(raw.Address)
	if cfg.Address == "" {
		cfg.Address = defaultAddress
	}

	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
