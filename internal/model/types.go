// Package model defines shared data structures.
package model

import "time"

// MainStep identifies the top-level wizard stage.
type MainStep int

// Main wizard stages.
const (
	StepNotStarted MainStep = -1
	StepInput      MainStep = 0
	StepAnalysis   MainStep = 1
	StepResults    MainStep = 2
)

func (s MainStep) String() string {
	switch s {
	case StepNotStarted:
		return "Not Started"
	case StepInput:
		return "Input Data"
	case StepAnalysis:
		return "Analysis"
	case StepResults:
		return "Results"
	default:
		return "Unknown"
	}
}

// DefaultTransactionID is used until the backend issues one.
const DefaultTransactionID = "emission-analysis-2025"

// Sub-step bounds.
const (
	LastInputSub    = 3
	LastAnalysisSub = 1
)

// InputSteps names the Input Data sub-steps in order.
var InputSteps = []string{
	"Vehicle Classification Data",
	"Projected Vehicle Penetration Rate Data",
	"Traffic Volume and Speed",
	"Projected Demand",
}

// AnalysisSteps names the Analysis sub-steps in order.
var AnalysisSteps = []string{
	"Vehicle Energy Consumption and Emission Rates",
	"Grid Emission Rates",
}

// ResultsView selects which result family is displayed.
type ResultsView string

// Results views.
const (
	ViewNone    ResultsView = ""
	ViewVehicle ResultsView = "VEHICLE"
	ViewGrid    ResultsView = "GRID"
)

// Period selects daily or annual vehicle results.
type Period string

// Result periods.
const (
	PeriodDaily  Period = "DAILY"
	PeriodAnnual Period = "ANNUAL"
)

// ClassificationState holds the vehicle classification stage.
type ClassificationState struct {
	City          string
	CityInput     string
	BaseYear      string
	VehicleType   string
	File          string
	Headers       Row
	AllRows       []Row
	Rows          []Row
	TransactionID string
}

// PenetrationState holds the projected penetration rate stage.
type PenetrationState struct {
	File          string
	Table         Table
	ProjectedYear string
}

// TrafficVolumeState holds the traffic volume and speed stage.
type TrafficVolumeState struct {
	VolumeFile     string
	Volume         Table
	MFDFile        string
	MFD            Table
	SpeedEstimated bool
	PlotPath       string
}

// ProjectedDemandState holds the projected demand stage.
type ProjectedDemandState struct {
	File           string
	Table          Table
	SpeedEstimated bool
	PlotPath       string
}

// ConsumptionAndEmissionState holds vehicle energy/emission selections.
type ConsumptionAndEmissionState struct {
	FuelType     string
	EmissionType string
	VehicleAge   string
}

// GridEmissionState holds the grid emission selection.
type GridEmissionState struct {
	EmissionType string
}

// ResultsState holds the results page selections.
type ResultsState struct {
	View   ResultsView
	Period Period
}

// Level classifies a notification.
type Level string

// Notification levels.
const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notification is a user-visible message.
type Notification struct {
	ID    string
	Text  string
	Level Level
	At    time.Time
	Read  bool
}

// UploadRecord captures one backend call for the audit log.
type UploadRecord struct {
	ID            int64
	Endpoint      string
	TransactionID string
	Status        int
	Error         string
	CreatedAt     time.Time
}

// AppState is the complete wizard state.
type AppState struct {
	Main        MainStep
	InputSub    int
	AnalysisSub int

	Classification ClassificationState
	Penetration    PenetrationState
	TrafficVolume  TrafficVolumeState
	Projected      ProjectedDemandState
	Consumption    ConsumptionAndEmissionState
	Grid           GridEmissionState
	Results        ResultsState
}

// NewAppState returns the empty start-up state.
func NewAppState() AppState {
	return AppState{
		Main:    StepNotStarted,
		Results: ResultsState{Period: PeriodDaily},
	}
}

// Clone returns a deep copy safe to hand to readers.
func (s AppState) Clone() AppState {
	out := s
	out.Classification.Headers = s.Classification.Headers.Clone()
	out.Classification.AllRows = cloneRows(s.Classification.AllRows)
	out.Classification.Rows = cloneRows(s.Classification.Rows)
	out.Penetration.Table = s.Penetration.Table.Clone()
	out.TrafficVolume.Volume = s.TrafficVolume.Volume.Clone()
	out.TrafficVolume.MFD = s.TrafficVolume.MFD.Clone()
	out.Projected.Table = s.Projected.Table.Clone()
	return out
}

// CityKey returns the selected city, falling back to the raw input.
func (s AppState) CityKey() string {
	if s.Classification.City != "" {
		return s.Classification.City
	}
	return s.Classification.CityInput
}

// ProjectionYear returns the projected year, falling back to the base year.
func (s AppState) ProjectionYear() string {
	if s.Penetration.ProjectedYear != "" {
		return s.Penetration.ProjectedYear
	}
	return s.Classification.BaseYear
}
