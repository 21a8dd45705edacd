// Package main provides the CLI entrypoint for emiwiz.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/emiwiz/internal/assets"
	"github.com/verte-zerg/emiwiz/internal/config"
	"github.com/verte-zerg/emiwiz/internal/notify"
	"github.com/verte-zerg/emiwiz/internal/results"
	"github.com/verte-zerg/emiwiz/internal/store"
	"github.com/verte-zerg/emiwiz/internal/tui"
	"github.com/verte-zerg/emiwiz/internal/upload"
	"github.com/verte-zerg/emiwiz/internal/wizard"
)

var (
	rootBackend   string
	rootAssets    string
	rootExportDir string
	rootStrict    bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "emiwiz",
		Short:         "Vehicle emissions analysis wizard",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runWizardCmd,
	}
	rootCmd.PersistentFlags().StringVar(&rootBackend, "backend", "", "analysis backend base URL (default: http://localhost:5003)")
	rootCmd.PersistentFlags().StringVar(&rootAssets, "assets", "", "chart asset directory or base URL")
	rootCmd.PersistentFlags().StringVar(&rootExportDir, "export-dir", "", "directory for downloaded charts")
	rootCmd.Flags().BoolVar(&rootStrict, "strict-classification", false, "block navigation when the classification upload fails")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newPreviewCmd())
	rootCmd.AddCommand(newTxidCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newMockBackendCmd())

	return rootCmd
}

func runWizardCmd(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	if os.Getenv(config.EnvDebug) != "" {
		logPath := filepath.Join(config.XDGCacheHome(), "emiwiz", "debug.log")
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := tea.LogToFile(logPath, "emiwiz")
		if err != nil {
			return fmt.Errorf("failed to open debug log: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				logErrf("failed to close debug log: %v\n", cerr)
			}
		}()
	} else {
		log.SetOutput(io.Discard)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	client := &http.Client{Timeout: settings.Timeout}
	notes := notify.New(settings.NotificationsCap,
		notify.WithRecorder(st),
		notify.WithErrorHandler(func(err error) { log.Printf("%v", err) }),
	)
	coord := upload.New(upload.Options{
		BaseURL:      settings.BackendURL,
		UserID:       settings.UserID,
		Client:       client,
		Transactions: st,
		Audit:        st,
	})
	ctrl := wizard.New(wizard.Options{
		Uploader:             coord,
		Notifications:        notes,
		PlotDir:              config.DefaultPlotDir(),
		StrictClassification: settings.StrictClassification,
	})
	src := assets.New(settings.AssetsLocation(), config.DefaultAssetCacheDir(), client)
	exporter := &results.Exporter{Source: src, Dir: settings.ExportDir}
	log.Printf("backend=%s assets=%s export=%s", coord.BaseURL(), settings.AssetsLocation(), settings.ExportDir)

	model := tui.NewModel(tui.Options{
		Controller: ctrl,
		Exporter:   exporter,
		Assets:     src,
		Timeout:    2 * settings.Timeout,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

// loadSettings resolves config file, environment and command line flags.
// Flags win over the environment, which wins over the file.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	settings, err := config.Load(config.DefaultConfigPath(), config.DefaultEnvPath())
	if err != nil {
		return config.Settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringFlag(cmd, "backend", &settings.BackendURL, rootBackend)
	if flagChanged(cmd, "assets") {
		settings.AssetsBaseURL = ""
		settings.AssetsDir = config.ExpandHome(rootAssets)
		if strings.HasPrefix(rootAssets, "http://") || strings.HasPrefix(rootAssets, "https://") {
			settings.AssetsBaseURL = rootAssets
		}
	}
	if flagChanged(cmd, "export-dir") {
		settings.ExportDir = config.ExpandHome(rootExportDir)
	}
	if flagChanged(cmd, "strict-classification") {
		settings.StrictClassification = rootStrict
	}
	if err := settings.Validate(); err != nil {
		return config.Settings{}, fmt.Errorf("invalid flags: %w", err)
	}
	return settings, nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func applyStringFlag(cmd *cobra.Command, name string, target *string, value string) {
	if !flagChanged(cmd, name) {
		return
	}
	*target = strings.TrimSpace(value)
}

func openStore() (*store.Store, error) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
