package wizard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/emiwiz/internal/model"
	"github.com/verte-zerg/emiwiz/internal/notify"
	"github.com/verte-zerg/emiwiz/internal/upload"
)

type fakeUploader struct {
	mu    sync.Mutex
	calls []string

	classification []upload.ClassificationRequest
	penetration    []upload.PenetrationRequest
	traffic        []upload.TrafficVolumeRequest
	projected      []upload.ProjectedTrafficRequest
	process        []upload.ProcessTrafficRequest

	errs map[string]error

	// When set, Classification signals started and waits on release.
	started chan struct{}
	release chan struct{}
}

func (f *fakeUploader) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.errs[name]
}

func (f *fakeUploader) Classification(_ context.Context, req upload.ClassificationRequest) (upload.Response, error) {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	f.classification = append(f.classification, req)
	f.mu.Unlock()
	if err := f.record("classification"); err != nil {
		return upload.Response{}, err
	}
	return upload.Response{TransactionID: "tx-1"}, nil
}

func (f *fakeUploader) Penetration(_ context.Context, req upload.PenetrationRequest) (upload.Response, error) {
	f.mu.Lock()
	f.penetration = append(f.penetration, req)
	f.mu.Unlock()
	return upload.Response{}, f.record("penetration")
}

func (f *fakeUploader) TrafficVolume(_ context.Context, req upload.TrafficVolumeRequest) (upload.Response, error) {
	f.mu.Lock()
	f.traffic = append(f.traffic, req)
	f.mu.Unlock()
	return upload.Response{}, f.record("traffic")
}

func (f *fakeUploader) ProjectedTraffic(_ context.Context, req upload.ProjectedTrafficRequest) (upload.Response, error) {
	f.mu.Lock()
	f.projected = append(f.projected, req)
	f.mu.Unlock()
	return upload.Response{}, f.record("projected")
}

func (f *fakeUploader) ProcessTraffic(_ context.Context, req upload.ProcessTrafficRequest) (upload.Response, error) {
	f.mu.Lock()
	f.process = append(f.process, req)
	f.mu.Unlock()
	return upload.Response{}, f.record("process")
}

func (f *fakeUploader) FetchTrafficPlot(_ context.Context, city, year string) ([]byte, string, error) {
	if err := f.record("plot"); err != nil {
		return nil, "", err
	}
	return []byte("png:" + city + ":" + year), "image/png", nil
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// loadAllInputs fills every Input stage through the controller.
func loadAllInputs(t *testing.T, c *Controller) {
	t.Helper()
	c.SetCity("new york")
	c.SetBaseYear("2025")
	require.NoError(t, c.LoadClassification(writeCSV(t, "classification.csv", "Type,Count\nTransit Bus,5\nMotorcycle,2\n")))
	require.NoError(t, c.LoadPenetration(writeCSV(t, "penetration.csv", "Year,Rate\n2030,0.25\n")))
	require.NoError(t, c.LoadTrafficVolume(writeCSV(t, "volume.csv", "Tract,Volume\nA1,120\n")))
	require.NoError(t, c.LoadMFDParameters(writeCSV(t, "mfd.csv", "Tract ID,a,b\nA1,0.5,0.9\n")))
}

func TestClassificationFilterEndToEnd(t *testing.T) {
	c := New(Options{})
	path := writeCSV(t, "classification.csv", "Type,Count\nTransit Bus,5\nMotorcycle,2\n")
	require.NoError(t, c.LoadClassification(path))

	c.SetVehicleType("Transit Bus")
	snap := c.Snapshot()
	assert.Equal(t, []string{"Type", "Count"}, snap.Classification.Headers.Strings())
	require.Len(t, snap.Classification.Rows, 1)
	assert.Equal(t, []string{"Transit Bus", "5"}, snap.Classification.Rows[0].Strings())
	assert.Equal(t, model.KindNumber, snap.Classification.Rows[0][1].Kind)

	c.SetVehicleType("")
	assert.Len(t, c.Snapshot().Classification.Rows, 2)
}

func TestLoadFailureNotifiesAndKeepsState(t *testing.T) {
	c := New(Options{})
	err := c.LoadPenetration(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, c.Snapshot().Penetration.Table.Empty())
	notes := c.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, model.LevelError, notes[0].Level)
}

func TestNextAtInputWithMissingDataBlocksWithOneNotification(t *testing.T) {
	c := New(Options{Uploader: &fakeUploader{}})
	c.Start()

	err := c.Next(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"vehicle classification data"}, verr.Missing)

	snap := c.Snapshot()
	assert.Equal(t, model.StepInput, snap.Main)
	assert.Equal(t, 0, snap.InputSub)
	assert.Len(t, c.Notifications(), 1)
}

func TestLeavingInputRequiresAllThreeDatasets(t *testing.T) {
	full := model.NewAppState()
	full.Main = model.StepInput
	full.InputSub = model.LastInputSub
	full.Classification.AllRows = []model.Row{{model.StringValue("Transit Bus")}}
	full.Penetration.Table = model.Table{Rows: []model.Row{{model.NumberValue(1)}}}
	full.TrafficVolume.Volume = model.Table{Rows: []model.Row{{model.NumberValue(1)}}}
	full.TrafficVolume.MFD = model.Table{Rows: []model.Row{{model.NumberValue(1)}}}

	cases := map[string]func(*model.AppState){
		"classification": func(s *model.AppState) { s.Classification.AllRows = nil },
		"penetration":    func(s *model.AppState) { s.Penetration.Table = model.Table{} },
		"traffic volume": func(s *model.AppState) { s.TrafficVolume.Volume = model.Table{} },
		"mfd parameters": func(s *model.AppState) { s.TrafficVolume.MFD = model.Table{} },
	}
	for name, drop := range cases {
		t.Run(name, func(t *testing.T) {
			up := &fakeUploader{}
			c := New(Options{Uploader: up})
			c.state = full.Clone()
			drop(&c.state)

			err := c.Next(context.Background())
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Error(), "before proceeding to Analysis")
			snap := c.Snapshot()
			assert.Equal(t, model.StepInput, snap.Main)
			assert.Equal(t, model.LastInputSub, snap.InputSub)
			assert.Len(t, c.Notifications(), 1)
			assert.Empty(t, up.calls)
		})
	}
}

func TestFullRunThrough(t *testing.T) {
	up := &fakeUploader{}
	c := New(Options{Uploader: up})
	loadAllInputs(t, c)
	c.SetVehicleType("Transit Bus")
	require.NoError(t, c.LoadProjectedDemand(writeCSV(t, "projected.csv", "Tract,Volume\nA1,150\n")))
	c.Start()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Next(ctx), "input sub-step %d", i)
	}
	snap := c.Snapshot()
	assert.Equal(t, model.StepAnalysis, snap.Main)
	assert.Equal(t, 0, snap.AnalysisSub)
	assert.Equal(t, "tx-1", snap.Classification.TransactionID)
	assert.Equal(t, []string{"classification", "penetration", "traffic", "projected"}, up.calls)

	require.Len(t, up.classification, 1)
	assert.Equal(t, "NewYork", up.classification[0].City)
	assert.Equal(t, "2025", up.classification[0].BaseYear)
	assert.Len(t, up.classification[0].Rows, 2, "the unfiltered dataset is uploaded")
	require.Len(t, up.projected, 1)
	assert.Equal(t, "2025", up.projected[0].Year, "projected year falls back to the base year")

	require.Error(t, c.Next(ctx))
	c.SetFuelType("diesel")
	c.SetEmissionType("co2")
	c.SetVehicleAge("0-5")
	require.NoError(t, c.Next(ctx))
	assert.Equal(t, 1, c.Snapshot().AnalysisSub)

	var verr *ValidationError
	require.ErrorAs(t, c.Next(ctx), &verr)
	assert.Equal(t, []string{"grid emission type"}, verr.Missing)
	c.SetGridEmissionType("ch4")
	require.NoError(t, c.Next(ctx))

	snap = c.Snapshot()
	assert.Equal(t, model.StepResults, snap.Main)
	assert.Equal(t, "Diesel", snap.Consumption.FuelType)
	assert.Equal(t, "CO2", snap.Consumption.EmissionType)
	assert.Equal(t, "CH4", snap.Grid.EmissionType)

	require.ErrorAs(t, c.Next(ctx), &verr)
	c.SetResultsView(model.ViewVehicle)
	require.NoError(t, c.Next(ctx))
	assert.Equal(t, model.StepResults, c.Snapshot().Main)
}

func TestBackTransitions(t *testing.T) {
	c := New(Options{})
	c.Start()
	assert.False(t, c.Back(), "back at the first input sub-step is a no-op")
	assert.Equal(t, model.StepInput, c.Snapshot().Main)

	c.state.InputSub = 3
	c.state.Main = model.StepAnalysis
	c.state.AnalysisSub = 0
	require.True(t, c.Back())
	snap := c.Snapshot()
	assert.Equal(t, model.StepInput, snap.Main)
	assert.Equal(t, 3, snap.InputSub)

	c.state.Main = model.StepResults
	c.state.AnalysisSub = 1
	require.True(t, c.Back())
	snap = c.Snapshot()
	assert.Equal(t, model.StepAnalysis, snap.Main)
	assert.Equal(t, 1, snap.AnalysisSub)

	require.True(t, c.Back())
	assert.Equal(t, 0, c.Snapshot().AnalysisSub)
}

func TestTrafficVolumeFailureBlocks(t *testing.T) {
	up := &fakeUploader{errs: map[string]error{"traffic": errors.New("backend down")}}
	c := New(Options{Uploader: up})
	loadAllInputs(t, c)
	c.Start()
	ctx := context.Background()
	require.NoError(t, c.Next(ctx))
	require.NoError(t, c.Next(ctx))

	before := len(c.Notifications())
	err := c.Next(ctx)
	require.Error(t, err)
	assert.Equal(t, 2, c.Snapshot().InputSub)
	notes := c.Notifications()
	require.Len(t, notes, before+1)
	assert.Equal(t, model.LevelError, notes[len(notes)-1].Level)
}

func TestClassificationFailurePolicy(t *testing.T) {
	failing := map[string]error{"classification": errors.New("timeout")}

	soft := New(Options{Uploader: &fakeUploader{errs: failing}})
	loadAllInputs(t, soft)
	soft.Start()
	require.NoError(t, soft.Next(context.Background()))
	assert.Equal(t, 1, soft.Snapshot().InputSub)
	notes := soft.Notifications()
	assert.Equal(t, model.LevelWarn, notes[len(notes)-1].Level)
	assert.Contains(t, notes[len(notes)-1].Text, "failed")

	strict := New(Options{Uploader: &fakeUploader{errs: failing}, StrictClassification: true})
	loadAllInputs(t, strict)
	strict.Start()
	require.Error(t, strict.Next(context.Background()))
	assert.Equal(t, 0, strict.Snapshot().InputSub)
}

func TestStaleUploadIsDiscarded(t *testing.T) {
	up := &fakeUploader{started: make(chan struct{}), release: make(chan struct{})}
	c := New(Options{Uploader: up})
	loadAllInputs(t, c)
	c.Start()

	done := make(chan error, 1)
	go func() { done <- c.Next(context.Background()) }()
	<-up.started

	require.NoError(t, c.LoadClassification(writeCSV(t, "replacement.csv", "Type,Count\nSchool Bus,9\n")))
	close(up.release)

	require.ErrorIs(t, <-done, ErrStale)
	snap := c.Snapshot()
	assert.Equal(t, 0, snap.InputSub)
	assert.Empty(t, snap.Classification.TransactionID)
	assert.Equal(t, []string{"School Bus", "9"}, snap.Classification.AllRows[0].Strings())
}

func TestCityChangeResetsClassification(t *testing.T) {
	c := New(Options{})
	loadAllInputs(t, c)
	c.SetVehicleType("Transit Bus")

	c.SetCity("New York")
	assert.NotEmpty(t, c.Snapshot().Classification.AllRows, "same canonical city keeps data")

	c.SetCity("Atlanta")
	snap := c.Snapshot()
	assert.Equal(t, "Atlanta", snap.Classification.City)
	assert.Empty(t, snap.Classification.AllRows)
	assert.Empty(t, snap.Classification.File)
	assert.Empty(t, snap.Classification.BaseYear)
	assert.Empty(t, snap.Classification.VehicleType)
	assert.False(t, snap.Penetration.Table.Empty(), "other stages are untouched")
}

func TestEstimateSpeedLatchAndProjectedYearReset(t *testing.T) {
	up := &fakeUploader{}
	plots := t.TempDir()
	c := New(Options{Uploader: up, PlotDir: plots})
	loadAllInputs(t, c)
	ctx := context.Background()

	path, err := c.EstimateSpeed(ctx, SpeedTraffic)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(plots, "traffic_NewYork_2025.png"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png:NewYork:2025", string(data))

	c.SetProjectedYear("2040")
	_, err = c.EstimateSpeed(ctx, SpeedProjected)
	require.NoError(t, err)
	require.Len(t, up.process, 2)
	assert.Equal(t, "2040", up.process[1].Year)

	snap := c.Snapshot()
	assert.False(t, snap.TrafficVolume.SpeedEstimated, "projected year change cleared the traffic latch")
	assert.True(t, snap.Projected.SpeedEstimated)

	c.SetProjectedYear("2040")
	assert.True(t, c.Snapshot().Projected.SpeedEstimated, "same year keeps the latch")

	c.SetProjectedYear("2045")
	snap = c.Snapshot()
	assert.False(t, snap.Projected.SpeedEstimated)
	assert.Empty(t, snap.Projected.PlotPath)
}

func TestEstimateSpeedFailureKeepsLatch(t *testing.T) {
	up := &fakeUploader{errs: map[string]error{"process": errors.New("no tract column")}}
	c := New(Options{Uploader: up, PlotDir: t.TempDir()})
	loadAllInputs(t, c)

	_, err := c.EstimateSpeed(context.Background(), SpeedTraffic)
	require.Error(t, err)
	snap := c.Snapshot()
	assert.True(t, snap.TrafficVolume.SpeedEstimated)
	assert.Empty(t, snap.TrafficVolume.PlotPath)
}

func TestEstimateSpeedRequiresMFD(t *testing.T) {
	c := New(Options{Uploader: &fakeUploader{}})
	c.SetBaseYear("2025")
	_, err := c.EstimateSpeed(context.Background(), SpeedTraffic)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"MFD parameters"}, verr.Missing)
	assert.False(t, c.Snapshot().TrafficVolume.SpeedEstimated)
}

func TestWithoutBackendNavigationStillWorks(t *testing.T) {
	c := New(Options{})
	loadAllInputs(t, c)
	c.Start()
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Next(context.Background()))
	}
	assert.Equal(t, model.StepAnalysis, c.Snapshot().Main)

	_, err := c.EstimateSpeed(context.Background(), SpeedTraffic)
	require.ErrorIs(t, err, ErrNoBackend)
}

func TestNextChecksOnlyStagesReached(t *testing.T) {
	up := &fakeUploader{}
	c := New(Options{Uploader: up})
	c.SetCity("atlanta")
	require.NoError(t, c.LoadClassification(writeCSV(t, "classification.csv", "Type,Count\nTransit Bus,5\n")))
	c.Start()

	require.NoError(t, c.Next(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, model.StepInput, snap.Main)
	assert.Equal(t, 1, snap.InputSub)
	for _, n := range c.Notifications() {
		assert.NotEqual(t, model.LevelWarn, n.Level, n.Text)
	}

	err := c.Next(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"penetration rate data"}, verr.Missing)
	assert.Equal(t, 1, c.Snapshot().InputSub)
}

// lockWatch records whether the controller lock was held when a notification was stored.
type lockWatch struct {
	c    *Controller
	held []string
}

func (p *lockWatch) RecordNotification(n model.Notification) error {
	if !p.c.mu.TryLock() {
		p.held = append(p.held, n.Text)
		return nil
	}
	p.c.mu.Unlock()
	return nil
}

func TestNotificationsAreRecordedOutsideTheLock(t *testing.T) {
	rec := &lockWatch{}
	c := New(Options{
		Uploader:      &fakeUploader{},
		Notifications: notify.New(notify.DefaultCap, notify.WithRecorder(rec)),
	})
	rec.c = c
	loadAllInputs(t, c)
	c.Start()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Next(ctx))
	}

	require.Error(t, c.Next(ctx))
	c.SetFuelType("diesel")
	c.SetEmissionType("co2")
	c.SetVehicleAge("0-5")
	require.NoError(t, c.Next(ctx))
	c.SetGridEmissionType("ch4")
	require.NoError(t, c.Next(ctx))
	require.Error(t, c.Next(ctx))
	c.SetResultsView(model.ViewGrid)
	require.NoError(t, c.Next(ctx))

	assert.NotEmpty(t, c.Notifications())
	assert.Empty(t, rec.held)
}
