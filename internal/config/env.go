package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file.
const (
	EnvBackendURL = "EMIWIZ_BACKEND_URL"
	EnvAssetsDir  = "EMIWIZ_ASSETS_DIR"
	EnvExportDir  = "EMIWIZ_EXPORT_DIR"
	EnvDebug      = "EMIWIZ_DEBUG"
)

// Lookup resolves an environment variable.
type Lookup func(key string) (string, bool)

// LoadDotEnv reads KEY=VALUE pairs from path. A missing file yields no pairs.
func LoadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return vals, nil
}

// EnvLookup checks the process environment first and falls back to dotenv.
func EnvLookup(dotenv map[string]string) Lookup {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

// ApplyEnv overlays the EMIWIZ_* variables onto s.
func (s Settings) ApplyEnv(lookup Lookup) Settings {
	if lookup == nil {
		return s
	}
	if v, ok := lookup(EnvBackendURL); ok && strings.TrimSpace(v) != "" {
		s.BackendURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvAssetsDir); ok && v != "" {
		s.AssetsDir = ExpandHome(v)
		s.AssetsBaseURL = ""
		if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
			s.AssetsBaseURL = v
		}
	}
	if v, ok := lookup(EnvExportDir); ok && v != "" {
		s.ExportDir = ExpandHome(v)
	}
	return s
}

// Load resolves settings from defaults, the TOML file at configPath and the
// environment including the .env file at envPath.
func Load(configPath, envPath string) (Settings, error) {
	file, err := LoadConfig(configPath)
	if err != nil {
		return Settings{}, err
	}
	dotenv, err := LoadDotEnv(envPath)
	if err != nil {
		return Settings{}, err
	}
	s := file.Apply(Defaults()).ApplyEnv(EnvLookup(dotenv))
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}
