package wizard

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/verte-zerg/emiwiz/internal/assets"
	"github.com/verte-zerg/emiwiz/internal/model"
	"github.com/verte-zerg/emiwiz/internal/resolve"
	"github.com/verte-zerg/emiwiz/internal/upload"
)

// SpeedStage selects which stage requests speed estimation.
type SpeedStage int

// Speed estimation stages.
const (
	SpeedTraffic SpeedStage = iota
	SpeedProjected
)

func (s SpeedStage) String() string {
	if s == SpeedProjected {
		return "projected demand"
	}
	return "traffic volume"
}

// EstimateSpeed runs speed estimation for the stage and stores the returned plot.
// The traffic stage uses the base year; the projected stage uses the projected
// year, falling back to the base year. The stage latch is set once requested.
func (c *Controller) EstimateSpeed(ctx context.Context, stage SpeedStage) (string, error) {
	c.mu.Lock()
	if c.up == nil {
		c.mu.Unlock()
		c.notes.Errorf("Speed estimation needs a backend.")
		return "", ErrNoBackend
	}
	s := c.state
	year := s.Classification.BaseYear
	sub := 2
	sl := slotSpeedTraffic
	if stage == SpeedProjected {
		year = s.ProjectionYear()
		sub = 3
		sl = slotSpeedProjected
	}
	var missing []string
	if s.TrafficVolume.MFDFile == "" {
		missing = append(missing, "MFD parameters")
	}
	if strings.TrimSpace(year) == "" {
		missing = append(missing, "year")
	}
	if len(missing) > 0 {
		c.mu.Unlock()
		verr := &ValidationError{Main: model.StepInput, Sub: sub, Missing: missing}
		c.notes.Warnf("%s", verr.Error())
		return "", verr
	}
	if stage == SpeedProjected {
		c.state.Projected.SpeedEstimated = true
	} else {
		c.state.TrafficVolume.SpeedEstimated = true
	}
	c.gen[sl]++
	gen := c.gen[sl]
	city := payloadCity(s)
	mfd := s.TrafficVolume.MFDFile
	plotDir := c.plots
	c.mu.Unlock()

	dest, err := c.runSpeedEstimation(ctx, city, year, mfd, plotDir)

	c.mu.Lock()
	if c.gen[sl] != gen {
		c.mu.Unlock()
		return "", ErrStale
	}
	if err == nil {
		if stage == SpeedProjected {
			c.state.Projected.PlotPath = dest
		} else {
			c.state.TrafficVolume.PlotPath = dest
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.notes.Errorf("Speed estimation failed: %v", err)
		return "", err
	}
	c.notes.Infof("Speed estimation complete for %s %s.", resolve.DisplayCity(city), year)
	return dest, nil
}

func (c *Controller) runSpeedEstimation(ctx context.Context, city, year, mfd, plotDir string) (string, error) {
	if _, err := c.up.ProcessTraffic(ctx, upload.ProcessTrafficRequest{City: city, Year: year, ParametersFile: mfd}); err != nil {
		return "", err
	}
	data, contentType, err := c.up.FetchTrafficPlot(ctx, city, year)
	if err != nil {
		return "", err
	}
	if plotDir == "" {
		plotDir = filepath.Join(os.TempDir(), "emiwiz", "plots")
	}
	dest := filepath.Join(plotDir, upload.PlotFileName(city, year, contentType))
	if err := assets.WriteFile(dest, data); err != nil {
		return "", err
	}
	return dest, nil
}
