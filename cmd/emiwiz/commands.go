package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/emiwiz/internal/assets"
	"github.com/verte-zerg/emiwiz/internal/config"
	"github.com/verte-zerg/emiwiz/internal/mockapi"
	"github.com/verte-zerg/emiwiz/internal/model"
	"github.com/verte-zerg/emiwiz/internal/resolve"
	"github.com/verte-zerg/emiwiz/internal/results"
	"github.com/verte-zerg/emiwiz/internal/tabular"
	"github.com/verte-zerg/emiwiz/internal/wizard"
)

const (
	defaultPreviewRows  = 20
	defaultHistoryLimit = 20
	fallbackTermWidth   = 120
)

var (
	previewRows    int
	previewVehicle string

	txidReset bool
	txidSet   string

	historyLimit int

	exportCity     string
	exportView     string
	exportPeriod   string
	exportFuel     string
	exportEmission string

	mockAddr  string
	mockQuiet bool
)

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Parse a CSV or workbook and print it as a table",
		Args:  cobra.ExactArgs(1),
		RunE:  runPreviewCmd,
	}
	cmd.Flags().IntVar(&previewRows, "rows", defaultPreviewRows, "maximum rows to print (0 for all)")
	cmd.Flags().StringVar(&previewVehicle, "vehicle", "", "keep rows whose first cell matches this vehicle type")
	return cmd
}

func runPreviewCmd(cmd *cobra.Command, args []string) error {
	if previewRows < 0 {
		return fmt.Errorf("--rows must be >= 0")
	}
	table, err := tabular.LoadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to load table: %w", err)
	}
	rows := wizard.FilterByVehicle(table.Rows, previewVehicle)
	total := len(rows)
	if previewRows > 0 && len(rows) > previewRows {
		rows = rows[:previewRows]
	}
	stringRows := model.Table{Rows: rows}.StringRows()
	lines := tabular.FormatTable(table.Headers.Strings(), stringRows, tabular.NumericColumns(stringRows))
	lines = tabular.TruncateLines(lines, terminalWidth(cmd.OutOrStdout()))

	out := cmd.OutOrStdout()
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	if len(rows) < total {
		logErrf("%d of %d rows shown\n", len(rows), total)
	}
	return nil
}

// terminalWidth returns the width of w when it is a terminal, or zero for no limit.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallbackTermWidth
	}
	return width
}

func newTxidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "txid",
		Short: "Show or change the stored transaction id",
		Args:  cobra.NoArgs,
		RunE:  runTxidCmd,
	}
	cmd.Flags().BoolVar(&txidReset, "reset", false, "forget the stored transaction id")
	cmd.Flags().StringVar(&txidSet, "set", "", "store this transaction id")
	return cmd
}

func runTxidCmd(cmd *cobra.Command, _ []string) error {
	if txidReset && txidSet != "" {
		return fmt.Errorf("--reset and --set are mutually exclusive")
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	switch {
	case txidReset:
		if err := st.ResetTransactionID(ctx); err != nil {
			return fmt.Errorf("failed to reset transaction id: %w", err)
		}
	case txidSet != "":
		id := strings.TrimSpace(txidSet)
		if id == "" {
			return fmt.Errorf("--set must not be blank")
		}
		if err := st.SetTransactionID(ctx, id); err != nil {
			return fmt.Errorf("failed to store transaction id: %w", err)
		}
	}
	id, err := st.TransactionID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read transaction id: %w", err)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), id); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent uploads and notifications",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", defaultHistoryLimit, "entries per section")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if historyLimit <= 0 {
		return fmt.Errorf("--limit must be > 0")
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	uploads, err := st.ListUploads(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list uploads: %w", err)
	}
	notes, err := st.ListNotifications(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list notifications: %w", err)
	}

	uploadRows := make([][]string, 0, len(uploads))
	for _, u := range uploads {
		status := "-"
		if u.Status > 0 {
			status = fmt.Sprintf("%d", u.Status)
		}
		uploadRows = append(uploadRows, []string{
			u.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			u.Endpoint,
			status,
			u.TransactionID,
			u.Error,
		})
	}
	noteRows := make([][]string, 0, len(notes))
	for _, n := range notes {
		noteRows = append(noteRows, []string{
			n.At.Local().Format("2006-01-02 15:04:05"),
			string(n.Level),
			n.Text,
		})
	}

	out := cmd.OutOrStdout()
	width := terminalWidth(out)
	sections := []struct {
		title   string
		headers []string
		rows    [][]string
	}{
		{"Uploads", []string{"Time", "Endpoint", "Status", "Transaction", "Error"}, uploadRows},
		{"Notifications", []string{"Time", "Level", "Text"}, noteRows},
	}
	for i, sec := range sections {
		if i > 0 {
			if _, err := fmt.Fprintln(out); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		lines := []string{sec.title + ": none"}
		if len(sec.rows) > 0 {
			lines = append([]string{sec.title}, tabular.FormatTable(sec.headers, sec.rows, map[int]bool{2: sec.title == "Uploads"})...)
		}
		for _, line := range tabular.TruncateLines(lines, width) {
			if _, err := fmt.Fprintln(out, line); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
	}
	return nil
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Resolve result charts and export them as images",
		Args:  cobra.NoArgs,
		RunE:  runExportCmd,
	}
	cmd.Flags().StringVar(&exportCity, "city", "", "city name")
	cmd.Flags().StringVar(&exportView, "view", "vehicle", "results view: vehicle or grid")
	cmd.Flags().StringVar(&exportPeriod, "period", "daily", "vehicle results period: daily or annual")
	cmd.Flags().StringVar(&exportFuel, "fuel", "", "fuel type ("+strings.Join(resolve.FuelTypes, ", ")+")")
	cmd.Flags().StringVar(&exportEmission, "emission", "", "emission type ("+strings.Join(resolve.VehicleEmissionTypes, ", ")+")")
	return cmd
}

// cliNotifier prints notifications to stderr.
type cliNotifier struct{}

func (cliNotifier) Notify(level model.Level, text string) model.Notification {
	logErrf("[%s] %s\n", level, text)
	return model.Notification{Level: level, Text: text}
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	state, err := exportState()
	if err != nil {
		return err
	}
	if !resolve.KnownCity(exportCity) {
		cliNotifier{}.Notify(model.LevelWarn, fmt.Sprintf("Unknown city %q, chart paths use it as given.", strings.TrimSpace(exportCity)))
	}

	client := &http.Client{Timeout: settings.Timeout}
	exporter := &results.Exporter{
		Source: assets.New(settings.AssetsLocation(), config.DefaultAssetCacheDir(), client),
		Dir:    settings.ExportDir,
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var failed []error
	for _, chart := range results.ForState(state) {
		dest, err := results.Download(ctx, exporter, cliNotifier{}, chart)
		if err != nil {
			failed = append(failed, err)
			continue
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), dest); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to export %d chart(s): %w", len(failed), errors.Join(failed...))
	}
	return nil
}

// exportState builds the results selection from the export flags.
func exportState() (model.AppState, error) {
	if strings.TrimSpace(exportCity) == "" {
		return model.AppState{}, fmt.Errorf("--city is required")
	}
	state := model.NewAppState()
	state.Main = model.StepResults
	state.Classification.City = resolve.CanonicalCity(strings.TrimSpace(exportCity))

	switch strings.ToLower(strings.TrimSpace(exportView)) {
	case "vehicle":
		state.Results.View = model.ViewVehicle
	case "grid":
		state.Results.View = model.ViewGrid
		return state, nil
	default:
		return model.AppState{}, fmt.Errorf("--view must be vehicle or grid")
	}

	switch strings.ToLower(strings.TrimSpace(exportPeriod)) {
	case "daily":
		state.Results.Period = model.PeriodDaily
	case "annual":
		state.Results.Period = model.PeriodAnnual
	default:
		return model.AppState{}, fmt.Errorf("--period must be daily or annual")
	}
	fuel, ok := resolve.MatchOption(exportFuel, resolve.FuelTypes)
	if !ok {
		return model.AppState{}, fmt.Errorf("--fuel must be one of: %s", strings.Join(resolve.FuelTypes, ", "))
	}
	emission, ok := resolve.MatchOption(exportEmission, resolve.VehicleEmissionTypes)
	if !ok {
		return model.AppState{}, fmt.Errorf("--emission must be one of: %s", strings.Join(resolve.VehicleEmissionTypes, ", "))
	}
	state.Consumption.FuelType = fuel
	state.Consumption.EmissionType = emission
	return state, nil
}

func newMockBackendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Run a local stand-in for the analysis backend",
		Args:  cobra.NoArgs,
		RunE:  runMockBackendCmd,
	}
	cmd.Flags().StringVar(&mockAddr, "addr", ":5003", "listen address")
	cmd.Flags().BoolVar(&mockQuiet, "quiet", false, "disable request logging")
	return cmd
}

func runMockBackendCmd(cmd *cobra.Command, _ []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mockapi.New(mockapi.Config{Addr: mockAddr, Quiet: mockQuiet, Log: os.Stderr})
	logErrf("Mock backend listening on %s\n", mockAddr)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("failed to run mock backend: %w", err)
	}
	logErrln("Mock backend stopped")
	return nil
}
