package tui

import (
	"github.com/verte-zerg/emiwiz/internal/model"
	"github.com/verte-zerg/emiwiz/internal/resolve"
	"github.com/verte-zerg/emiwiz/internal/wizard"
)

// field is one editable control on a wizard screen. Choice fields cycle
// through options; path fields take a file path and load it on enter.
type field struct {
	label   string
	options []string
	value   func(model.AppState) string
	set     func(*wizard.Controller, string)
	load    func(*wizard.Controller, string) error
}

func (f field) isPath() bool {
	return f.load != nil
}

// cycle returns the option delta steps away from current. An unset value
// starts at the first option going forward and the last going back.
func (f field) cycle(current string, delta int) string {
	n := len(f.options)
	if n == 0 {
		return current
	}
	idx := -1
	if match, ok := resolve.MatchOption(current, f.options); ok {
		for i, opt := range f.options {
			if opt == match {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		if delta < 0 {
			return f.options[n-1]
		}
		return f.options[0]
	}
	return f.options[((idx+delta)%n+n)%n]
}

var (
	resultViews   = []string{string(model.ViewVehicle), string(model.ViewGrid)}
	resultPeriods = []string{string(model.PeriodDaily), string(model.PeriodAnnual)}
)

// fieldsFor lists the controls of the screen at the state's position.
func fieldsFor(s model.AppState) []field {
	switch s.Main {
	case model.StepInput:
		return inputFields(s.InputSub)
	case model.StepAnalysis:
		if s.AnalysisSub == 0 {
			return []field{
				{
					label:   "Fuel Type",
					options: resolve.FuelTypes,
					value:   func(s model.AppState) string { return s.Consumption.FuelType },
					set:     (*wizard.Controller).SetFuelType,
				},
				{
					label:   "Emission Type",
					options: resolve.VehicleEmissionTypes,
					value:   func(s model.AppState) string { return s.Consumption.EmissionType },
					set:     (*wizard.Controller).SetEmissionType,
				},
				{
					label:   "Vehicle Age",
					options: resolve.VehicleAges,
					value:   func(s model.AppState) string { return s.Consumption.VehicleAge },
					set:     (*wizard.Controller).SetVehicleAge,
				},
			}
		}
		return []field{{
			label:   "Grid Emission Type",
			options: resolve.GridEmissionTypes,
			value:   func(s model.AppState) string { return s.Grid.EmissionType },
			set:     (*wizard.Controller).SetGridEmissionType,
		}}
	case model.StepResults:
		fields := []field{{
			label:   "Results",
			options: resultViews,
			value:   func(s model.AppState) string { return string(s.Results.View) },
			set:     func(c *wizard.Controller, v string) { c.SetResultsView(model.ResultsView(v)) },
		}}
		if s.Results.View == model.ViewVehicle {
			fields = append(fields, field{
				label:   "Period",
				options: resultPeriods,
				value:   func(s model.AppState) string { return string(s.Results.Period) },
				set:     func(c *wizard.Controller, v string) { c.SetResultsPeriod(model.Period(v)) },
			})
		}
		return fields
	default:
		return nil
	}
}

func inputFields(sub int) []field {
	switch sub {
	case 0:
		return []field{
			{
				label:   "City",
				options: resolve.Cities(),
				value:   func(s model.AppState) string { return resolve.DisplayCity(s.CityKey()) },
				set:     (*wizard.Controller).SetCity,
			},
			{
				label:   "Base Year",
				options: resolve.BaseYears,
				value:   func(s model.AppState) string { return s.Classification.BaseYear },
				set:     (*wizard.Controller).SetBaseYear,
			},
			{
				label:   "Vehicle Type",
				options: resolve.VehicleTypes,
				value:   func(s model.AppState) string { return s.Classification.VehicleType },
				set:     (*wizard.Controller).SetVehicleType,
			},
			{
				label: "Classification File",
				value: func(s model.AppState) string { return s.Classification.File },
				load:  (*wizard.Controller).LoadClassification,
			},
		}
	case 1:
		return []field{
			{
				label:   "Projected Year",
				options: resolve.ProjectedYears,
				value:   func(s model.AppState) string { return s.Penetration.ProjectedYear },
				set:     (*wizard.Controller).SetProjectedYear,
			},
			{
				label: "Penetration Rate File",
				value: func(s model.AppState) string { return s.Penetration.File },
				load:  (*wizard.Controller).LoadPenetration,
			},
		}
	case 2:
		return []field{
			{
				label: "Traffic Volume File",
				value: func(s model.AppState) string { return s.TrafficVolume.VolumeFile },
				load:  (*wizard.Controller).LoadTrafficVolume,
			},
			{
				label: "MFD Parameters File",
				value: func(s model.AppState) string { return s.TrafficVolume.MFDFile },
				load:  (*wizard.Controller).LoadMFDParameters,
			},
		}
	case 3:
		return []field{{
			label: "Projected Demand File",
			value: func(s model.AppState) string { return s.Projected.File },
			load:  (*wizard.Controller).LoadProjectedDemand,
		}}
	default:
		return nil
	}
}

// previewTable picks the loaded table shown under the current screen.
func previewTable(s model.AppState, focus []field, focused int) model.Table {
	if s.Main != model.StepInput {
		return model.Table{}
	}
	switch s.InputSub {
	case 0:
		return model.Table{Headers: s.Classification.Headers, Rows: s.Classification.Rows}
	case 1:
		return s.Penetration.Table
	case 2:
		if focused >= 0 && focused < len(focus) && focus[focused].label == "MFD Parameters File" {
			return s.TrafficVolume.MFD
		}
		return s.TrafficVolume.Volume
	case 3:
		return s.Projected.Table
	default:
		return model.Table{}
	}
}
