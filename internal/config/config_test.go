package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Backend.URL != nil || cfg.Wizard.NotificationsCap != nil {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfigEmptyPath(t *testing.T) {
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadConfigRejectsMalformed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", "[backend\nurl = ")
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestFileConfigApply(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", `
[backend]
url = "https://api.example.com/"
timeout-seconds = 5
user-id = "42"

[assets]
dir = "/srv/assets"

[wizard]
notifications-cap = 10
strict-classification-upload = true

[export]
dir = "/tmp/out"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	base := Settings{BackendURL: "http://localhost:5003", Timeout: time.Minute, UserID: "1", NotificationsCap: 50}
	got := cfg.Apply(base)
	want := Settings{
		BackendURL:           "https://api.example.com/",
		Timeout:              5 * time.Second,
		UserID:               "42",
		AssetsDir:            "/srv/assets",
		NotificationsCap:     10,
		StrictClassification: true,
		ExportDir:            "/tmp/out",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
	if got.AssetsLocation() != "/srv/assets" {
		t.Fatalf("expected asset dir location, got %q", got.AssetsLocation())
	}
}

func TestApplyIgnoresUnsetAndInvalid(t *testing.T) {
	zero := 0
	cfg := FileConfig{Wizard: WizardConfig{NotificationsCap: &zero}}
	base := Settings{NotificationsCap: 50, Timeout: time.Minute}
	got := cfg.Apply(base)
	if diff := cmp.Diff(base, got); diff != "" {
		t.Fatalf("unexpected change (-want +got):\n%s", diff)
	}
}

func TestEnvOverridesFileAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "EMIWIZ_BACKEND_URL=http://dotenv:9000\nEMIWIZ_EXPORT_DIR=/from/dotenv\n")
	cfgPath := writeFile(t, dir, "config.toml", "[backend]\nurl = \"http://file:8000\"\n")

	t.Setenv(EnvExportDir, "/from/process")
	t.Setenv(EnvAssetsDir, "https://cdn.example.com/charts")

	got, err := Load(cfgPath, envPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.BackendURL != "http://dotenv:9000" {
		t.Fatalf("expected dotenv backend, got %q", got.BackendURL)
	}
	if got.ExportDir != "/from/process" {
		t.Fatalf("expected process env export dir, got %q", got.ExportDir)
	}
	if got.AssetsLocation() != "https://cdn.example.com/charts" {
		t.Fatalf("expected remote asset location, got %q", got.AssetsLocation())
	}
}

func TestLoadDotEnvMissing(t *testing.T) {
	vals, err := LoadDotEnv(filepath.Join(t.TempDir(), ".env"))
	if err != nil {
		t.Fatalf("missing .env should not error: %v", err)
	}
	if len(vals) != 0 {
		t.Fatalf("expected no values, got %v", vals)
	}
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.toml", "[backend]\nurl = \"localhost:5003\"\n")
	t.Setenv(EnvBackendURL, "")
	if _, err := Load(cfgPath, ""); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestXDGPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("XDG_CACHE_HOME", "/cache")
	cases := []struct{ got, want string }{
		{DefaultConfigPath(), "/cfg/emiwiz/config.toml"},
		{DefaultEnvPath(), "/cfg/emiwiz/.env"},
		{DefaultDBPath(), "/data/emiwiz/emiwiz.db"},
		{DefaultAssetsDir(), "/data/emiwiz/assets"},
		{DefaultExportDir(), "/data/emiwiz/exports"},
		{DefaultPlotDir(), "/cache/emiwiz/plots"},
		{DefaultAssetCacheDir(), "/cache/emiwiz/assets"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, tc.got)
		}
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	if got := ExpandHome("~/charts"); got != "/home/tester/charts" {
		t.Fatalf("expected expanded path, got %q", got)
	}
	if got := ExpandHome("/abs/~x"); got != "/abs/~x" {
		t.Fatalf("expected untouched path, got %q", got)
	}
}
