// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/emiwiz/internal/notify"
	"github.com/verte-zerg/emiwiz/internal/upload"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Backend BackendConfig `toml:"backend"`
	Assets  AssetsConfig  `toml:"assets"`
	Wizard  WizardConfig  `toml:"wizard"`
	Export  ExportConfig  `toml:"export"`
}

// BackendConfig maps the analysis backend settings.
type BackendConfig struct {
	URL            *string `toml:"url"`
	TimeoutSeconds *int    `toml:"timeout-seconds"`
	UserID         *string `toml:"user-id"`
}

// AssetsConfig maps where precomputed images are read from.
type AssetsConfig struct {
	Dir     *string `toml:"dir"`
	BaseURL *string `toml:"base-url"`
}

// WizardConfig maps wizard behavior settings.
type WizardConfig struct {
	NotificationsCap           *int  `toml:"notifications-cap"`
	StrictClassificationUpload *bool `toml:"strict-classification-upload"`
}

// ExportConfig maps download settings.
type ExportConfig struct {
	Dir *string `toml:"dir"`
}

// Settings is the resolved configuration after defaults, file and environment.
type Settings struct {
	BackendURL           string
	Timeout              time.Duration
	UserID               string
	AssetsDir            string
	AssetsBaseURL        string
	NotificationsCap     int
	StrictClassification bool
	ExportDir            string
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		BackendURL:       upload.DefaultBaseURL,
		Timeout:          upload.DefaultTimeout,
		UserID:           upload.DefaultUserID,
		AssetsDir:        DefaultAssetsDir(),
		NotificationsCap: notify.DefaultCap,
		ExportDir:        DefaultExportDir(),
	}
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Apply overlays the values set in the file onto s.
func (f FileConfig) Apply(s Settings) Settings {
	if f.Backend.URL != nil && strings.TrimSpace(*f.Backend.URL) != "" {
		s.BackendURL = strings.TrimSpace(*f.Backend.URL)
	}
	if f.Backend.TimeoutSeconds != nil && *f.Backend.TimeoutSeconds > 0 {
		s.Timeout = time.Duration(*f.Backend.TimeoutSeconds) * time.Second
	}
	if f.Backend.UserID != nil && *f.Backend.UserID != "" {
		s.UserID = *f.Backend.UserID
	}
	if f.Assets.Dir != nil && *f.Assets.Dir != "" {
		s.AssetsDir = ExpandHome(*f.Assets.Dir)
	}
	if f.Assets.BaseURL != nil {
		s.AssetsBaseURL = strings.TrimSpace(*f.Assets.BaseURL)
	}
	if f.Wizard.NotificationsCap != nil && *f.Wizard.NotificationsCap > 0 {
		s.NotificationsCap = *f.Wizard.NotificationsCap
	}
	if f.Wizard.StrictClassificationUpload != nil {
		s.StrictClassification = *f.Wizard.StrictClassificationUpload
	}
	if f.Export.Dir != nil && *f.Export.Dir != "" {
		s.ExportDir = ExpandHome(*f.Export.Dir)
	}
	return s
}

// AssetsLocation returns the asset base URL when set, otherwise the asset directory.
func (s Settings) AssetsLocation() string {
	if s.AssetsBaseURL != "" {
		return s.AssetsBaseURL
	}
	return s.AssetsDir
}

// Validate reports settings that cannot be used.
func (s Settings) Validate() error {
	if !strings.HasPrefix(s.BackendURL, "http://") && !strings.HasPrefix(s.BackendURL, "https://") {
		return fmt.Errorf("backend url must start with http:// or https://: %q", s.BackendURL)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}
	if s.NotificationsCap <= 0 {
		return fmt.Errorf("notifications cap must be positive")
	}
	return nil
}

// Template is written by `emiwiz config` when no config file exists yet.
const Template = `# emiwiz configuration

[backend]
# url = "http://localhost:5003"
# timeout-seconds = 60
# user-id = "1"

[assets]
# dir = "~/.local/share/emiwiz/assets"
# base-url = "https://example.com/emissions"

[wizard]
# notifications-cap = 50
# strict-classification-upload = false

[export]
# dir = "~/Downloads/emiwiz"
`
