// Package wizard owns the application state and the step sequencing rules.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/verte-zerg/emiwiz/internal/model"
	"github.com/verte-zerg/emiwiz/internal/notify"
	"github.com/verte-zerg/emiwiz/internal/resolve"
	"github.com/verte-zerg/emiwiz/internal/tabular"
	"github.com/verte-zerg/emiwiz/internal/upload"
)

// ErrStale is returned when a newer request or a navigation superseded a call.
var ErrStale = errors.New("superseded by a newer request")

// ErrNoBackend is returned by operations that need the backend when none is configured.
var ErrNoBackend = errors.New("no backend configured")

// slot identifies an upload-bearing stage. Input sub-steps map to the first four.
type slot int

const (
	slotClassification slot = iota
	slotPenetration
	slotTrafficVolume
	slotProjected
	slotSpeedTraffic
	slotSpeedProjected
	slotCount
)

// Options configures a Controller.
type Options struct {
	Uploader             Uploader
	Notifications        *notify.Log
	PlotDir              string
	StrictClassification bool
	Load                 func(path string) (model.Table, error)
}

// Controller serializes every state mutation. Readers get deep-copied snapshots.
type Controller struct {
	mu     sync.Mutex
	state  model.AppState
	gen    [slotCount]uint64
	up     Uploader
	notes  *notify.Log
	load   func(path string) (model.Table, error)
	plots  string
	strict bool
}

// New returns a controller in the not-started state.
func New(opts Options) *Controller {
	notes := opts.Notifications
	if notes == nil {
		notes = notify.New(notify.DefaultCap)
	}
	load := opts.Load
	if load == nil {
		load = tabular.LoadFile
	}
	return &Controller{
		state:  model.NewAppState(),
		up:     opts.Uploader,
		notes:  notes,
		load:   load,
		plots:  opts.PlotDir,
		strict: opts.StrictClassification,
	}
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() model.AppState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Notifications returns the notification log, oldest first.
func (c *Controller) Notifications() []model.Notification {
	return c.notes.List()
}

// UnreadNotifications counts notifications not yet shown.
func (c *Controller) UnreadNotifications() int {
	return c.notes.Unread()
}

// MarkNotificationsRead flags every notification as read.
func (c *Controller) MarkNotificationsRead() {
	c.notes.MarkAllRead()
}

// Notify adds a notification to the shared log.
func (c *Controller) Notify(level model.Level, text string) model.Notification {
	return c.notes.Add(level, text)
}

// Start leaves the landing page for the first Input sub-step.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Main == model.StepNotStarted {
		advance(&c.state)
	}
}

// notice is a notification decided while c.mu is held and sent after it is released.
type notice struct {
	level model.Level
	text  string
}

func noticef(level model.Level, format string, args ...any) *notice {
	return &notice{level: level, text: fmt.Sprintf(format, args...)}
}

func (c *Controller) post(n *notice) {
	if n != nil {
		c.notes.Add(n.level, n.text)
	}
}

// Next validates the current position, runs its upload and advances.
// A *ValidationError leaves the position unchanged and adds one notification.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Main == model.StepInput {
		return c.nextInput(ctx)
	}
	n, err := c.nextLocked()
	c.mu.Unlock()
	c.post(n)
	return err
}

// nextLocked handles every step but Input. c.mu must be held.
func (c *Controller) nextLocked() (*notice, error) {
	switch c.state.Main {
	case model.StepNotStarted:
		advance(&c.state)
		return nil, nil
	case model.StepAnalysis:
		if verr := validateAnalysis(c.state); verr != nil {
			return noticef(model.LevelWarn, "%s", verr.Error()), verr
		}
		advance(&c.state)
		return nil, nil
	case model.StepResults:
		if verr := validateResults(c.state); verr != nil {
			return noticef(model.LevelWarn, "%s", verr.Error()), verr
		}
		return noticef(model.LevelInfo, "Analysis complete for %s.", resolve.DisplayCity(payloadCity(c.state))), nil
	default:
		return nil, fmt.Errorf("unknown step %d", c.state.Main)
	}
}

// nextInput runs with c.mu held and releases it.
func (c *Controller) nextInput(ctx context.Context) error {
	if verr := validateInput(c.state); verr != nil {
		c.mu.Unlock()
		c.notes.Warnf("%s", verr.Error())
		return verr
	}
	sl := slot(c.state.InputSub)
	c.gen[sl]++
	gen := c.gen[sl]
	pos := positionOf(c.state)
	call := inputUpload(c.up, c.state.Clone())
	c.mu.Unlock()

	var resp upload.Response
	var err error
	if call != nil {
		resp, err = call(ctx)
	}

	c.mu.Lock()
	if c.gen[sl] != gen || positionOf(c.state) != pos {
		c.mu.Unlock()
		return ErrStale
	}
	var n *notice
	var blocked error
	if call != nil {
		n, blocked = c.settle(sl, resp, err)
	}
	if blocked == nil {
		advance(&c.state)
	}
	c.mu.Unlock()
	c.post(n)
	return blocked
}

// settle applies the upload outcome for a slot. A non-nil error blocks navigation.
func (c *Controller) settle(sl slot, resp upload.Response, err error) (*notice, error) {
	switch sl {
	case slotClassification:
		if err != nil {
			if c.strict {
				return noticef(model.LevelError, "Vehicle classification upload failed: %v", err),
					fmt.Errorf("failed to upload vehicle classification: %w", err)
			}
			return noticef(model.LevelWarn, "Vehicle classification upload failed: %v. Continuing with local data only.", err), nil
		}
		if id := strings.TrimSpace(resp.TransactionID); id != "" && id != "none" {
			c.state.Classification.TransactionID = id
		}
		return noticef(model.LevelInfo, "Vehicle classification data uploaded."), nil
	case slotPenetration:
		if err != nil {
			return noticef(model.LevelError, "Penetration rate upload failed: %v", err), nil
		}
		return noticef(model.LevelInfo, "Penetration rate data uploaded."), nil
	case slotTrafficVolume:
		if err != nil {
			return noticef(model.LevelError, "Traffic volume upload failed: %v", err),
				fmt.Errorf("failed to upload traffic volume: %w", err)
		}
		return noticef(model.LevelInfo, "Traffic volume data uploaded."), nil
	case slotProjected:
		if err != nil {
			return noticef(model.LevelError, "Projected traffic upload failed: %v", err), nil
		}
		return noticef(model.LevelInfo, "Projected traffic data uploaded."), nil
	}
	return nil, nil
}

// Back moves one position back. It reports false when already at the first Input sub-step.
func (c *Controller) Back() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	main, sub := c.state.Main, c.state.InputSub
	if !retreat(&c.state) {
		return false
	}
	if main == model.StepInput {
		c.gen[slot(sub)]++
	}
	return true
}

// SetCity selects the city from free text or a selector value. Switching to a
// different city discards the classification data loaded for the previous one.
func (c *Controller) SetCity(raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl := &c.state.Classification
	prev := c.state.CityKey()
	key := resolve.CanonicalCity(strings.TrimSpace(raw))
	cl.CityInput = raw
	cl.City = key
	if prev == "" || prev == key {
		return
	}
	cl.File = ""
	cl.Headers = nil
	cl.AllRows = nil
	cl.Rows = nil
	cl.BaseYear = ""
	cl.VehicleType = ""
	c.gen[slotClassification]++
}

// SetBaseYear selects the base year.
func (c *Controller) SetBaseYear(year string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Classification.BaseYear = strings.TrimSpace(year)
}

// SetVehicleType selects the vehicle type and refreshes the filtered rows.
func (c *Controller) SetVehicleType(vehicleType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Classification.VehicleType = vehicleType
	c.state.Classification.Rows = FilterByVehicle(c.state.Classification.AllRows, vehicleType)
}

// LoadClassification parses the classification file and replaces the stage data.
func (c *Controller) LoadClassification(path string) error {
	table, err := c.loadTable(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cl := &c.state.Classification
	cl.File = path
	cl.Headers = table.Headers
	cl.AllRows = table.Rows
	cl.Rows = FilterByVehicle(table.Rows, cl.VehicleType)
	c.gen[slotClassification]++
	return nil
}

// LoadPenetration parses the penetration rate file.
func (c *Controller) LoadPenetration(path string) error {
	table, err := c.loadTable(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Penetration.File = path
	c.state.Penetration.Table = table
	c.gen[slotPenetration]++
	return nil
}

// SetProjectedYear selects the projection year. A change clears the speed
// estimation latches and their plots.
func (c *Controller) SetProjectedYear(year string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	year = strings.TrimSpace(year)
	if year == c.state.Penetration.ProjectedYear {
		return
	}
	c.state.Penetration.ProjectedYear = year
	c.state.TrafficVolume.SpeedEstimated = false
	c.state.TrafficVolume.PlotPath = ""
	c.state.Projected.SpeedEstimated = false
	c.state.Projected.PlotPath = ""
	c.gen[slotSpeedTraffic]++
	c.gen[slotSpeedProjected]++
}

// LoadTrafficVolume parses the traffic volume file.
func (c *Controller) LoadTrafficVolume(path string) error {
	table, err := c.loadTable(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.TrafficVolume.VolumeFile = path
	c.state.TrafficVolume.Volume = table
	c.gen[slotTrafficVolume]++
	return nil
}

// LoadMFDParameters parses the MFD parameters file.
func (c *Controller) LoadMFDParameters(path string) error {
	table, err := c.loadTable(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.TrafficVolume.MFDFile = path
	c.state.TrafficVolume.MFD = table
	c.gen[slotTrafficVolume]++
	return nil
}

// LoadProjectedDemand parses the projected traffic volume file.
func (c *Controller) LoadProjectedDemand(path string) error {
	table, err := c.loadTable(path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Projected.File = path
	c.state.Projected.Table = table
	c.gen[slotProjected]++
	return nil
}

// SetFuelType selects the fuel type.
func (c *Controller) SetFuelType(fuel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Consumption.FuelType = canonicalOption(fuel, resolve.FuelTypes)
}

// SetEmissionType selects the vehicle emission type.
func (c *Controller) SetEmissionType(emission string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Consumption.EmissionType = canonicalOption(emission, resolve.VehicleEmissionTypes)
}

// SetVehicleAge selects the vehicle age bracket.
func (c *Controller) SetVehicleAge(age string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Consumption.VehicleAge = canonicalOption(age, resolve.VehicleAges)
}

// SetGridEmissionType selects the grid emission type.
func (c *Controller) SetGridEmissionType(emission string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Grid.EmissionType = canonicalOption(emission, resolve.GridEmissionTypes)
}

// SetResultsView selects the vehicle or grid results.
func (c *Controller) SetResultsView(view model.ResultsView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Results.View = view
}

// SetResultsPeriod selects daily or annual vehicle results.
func (c *Controller) SetResultsPeriod(period model.Period) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if period != model.PeriodAnnual {
		period = model.PeriodDaily
	}
	c.state.Results.Period = period
}

func (c *Controller) loadTable(path string) (model.Table, error) {
	table, err := c.load(path)
	if err != nil {
		c.notes.Errorf("Failed to read %s: %v", filepath.Base(path), err)
		return model.Table{}, err
	}
	return table, nil
}

func canonicalOption(value string, options []string) string {
	if match, ok := resolve.MatchOption(value, options); ok {
		return match
	}
	return strings.TrimSpace(value)
}
