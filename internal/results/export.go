package results

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/verte-zerg/emiwiz/internal/assets"
	"github.com/verte-zerg/emiwiz/internal/model"
)

// ErrImageNotFound is returned when a chart has no asset to export.
var ErrImageNotFound = errors.New("image not found")

// Exporter copies chart assets into a local directory, converting vector images to PNG.
type Exporter struct {
	Source         assets.Source
	Dir            string
	FallbackWidth  int
	FallbackHeight int
}

// Export writes the chart under the export directory and returns the written path.
func (e *Exporter) Export(ctx context.Context, chart Chart) (string, error) {
	if !chart.Found() {
		return "", fmt.Errorf("%s %s for %s: %w", chart.Metric, chart.Kind, chart.City, ErrImageNotFound)
	}
	data, err := assets.ReadAll(ctx, e.Source, chart.Path)
	if errors.Is(err, assets.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", chart.Path, ErrImageNotFound)
	}
	if err != nil {
		return "", err
	}

	name := chart.FileName()
	if strings.EqualFold(filepath.Ext(chart.Path), ".svg") {
		data, err = SVGToPNG(data, e.FallbackWidth, e.FallbackHeight)
		if err != nil {
			return "", err
		}
		name = ExportName(name)
	}
	dest := filepath.Join(e.Dir, name)
	if err := assets.WriteFile(dest, data); err != nil {
		return "", err
	}
	return dest, nil
}

// Notifier receives user-visible outcomes.
type Notifier interface {
	Notify(level model.Level, text string) model.Notification
}

// Download exports the chart and reports the outcome through n.
func Download(ctx context.Context, e *Exporter, n Notifier, chart Chart) (string, error) {
	dest, err := e.Export(ctx, chart)
	switch {
	case errors.Is(err, ErrImageNotFound):
		n.Notify(model.LevelWarn, fmt.Sprintf("Image not found for selected %s/city", chart.Kind))
		return "", err
	case err != nil:
		n.Notify(model.LevelError, fmt.Sprintf("Download failed: %v", err))
		return "", err
	}
	n.Notify(model.LevelInfo, "Download started: "+dest)
	return dest, nil
}
