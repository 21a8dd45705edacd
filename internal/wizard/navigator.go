package wizard

import (
	"fmt"
	"strings"

	"github.com/verte-zerg/emiwiz/internal/model"
)

// ValidationError reports the step data that blocks forward navigation.
type ValidationError struct {
	Main    model.MainStep
	Sub     int
	Missing []string
}

func (e *ValidationError) Error() string {
	var msg string
	switch {
	case e.Main == model.StepInput && e.Sub == model.LastInputSub:
		msg = "Please upload all required Input Data CSV files before proceeding to Analysis."
	case e.Main == model.StepInput:
		msg = fmt.Sprintf("Please upload the required data before leaving %s.", model.InputSteps[e.Sub])
	case e.Main == model.StepAnalysis && e.Sub == model.LastAnalysisSub:
		msg = "Please complete all Analysis selections before proceeding to Results."
	case e.Main == model.StepAnalysis:
		msg = fmt.Sprintf("Please complete the selections for %s.", model.AnalysisSteps[e.Sub])
	case e.Main == model.StepResults:
		msg = "Please select either Vehicle or Grid before proceeding."
	default:
		msg = "Please complete the current step before proceeding."
	}
	if len(e.Missing) > 0 {
		msg += " Missing: " + strings.Join(e.Missing, ", ") + "."
	}
	return msg
}

// inputRequirements lists, per Input sub-step, the datasets that must be present.
// Every sub-step also requires the datasets of the sub-steps before it.
var inputRequirements = [][]struct {
	name    string
	present func(model.AppState) bool
}{
	{{"vehicle classification data", func(s model.AppState) bool { return len(s.Classification.AllRows) > 0 }}},
	{{"penetration rate data", func(s model.AppState) bool { return !s.Penetration.Table.Empty() }}},
	{
		{"traffic volume data", func(s model.AppState) bool { return !s.TrafficVolume.Volume.Empty() }},
		{"MFD parameters", func(s model.AppState) bool { return !s.TrafficVolume.MFD.Empty() }},
	},
	{},
}

func validateInput(s model.AppState) *ValidationError {
	var missing []string
	for sub := 0; sub <= s.InputSub && sub < len(inputRequirements); sub++ {
		for _, req := range inputRequirements[sub] {
			if !req.present(s) {
				missing = append(missing, req.name)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ValidationError{Main: model.StepInput, Sub: s.InputSub, Missing: missing}
}

func validateAnalysis(s model.AppState) *ValidationError {
	var missing []string
	if strings.TrimSpace(s.Consumption.FuelType) == "" {
		missing = append(missing, "fuel type")
	}
	if strings.TrimSpace(s.Consumption.EmissionType) == "" {
		missing = append(missing, "emission type")
	}
	if strings.TrimSpace(s.Consumption.VehicleAge) == "" {
		missing = append(missing, "vehicle age")
	}
	if s.AnalysisSub >= model.LastAnalysisSub && strings.TrimSpace(s.Grid.EmissionType) == "" {
		missing = append(missing, "grid emission type")
	}
	if len(missing) == 0 {
		return nil
	}
	return &ValidationError{Main: model.StepAnalysis, Sub: s.AnalysisSub, Missing: missing}
}

func validateResults(s model.AppState) *ValidationError {
	if s.Results.View == model.ViewVehicle || s.Results.View == model.ViewGrid {
		return nil
	}
	return &ValidationError{Main: model.StepResults}
}

// advance moves one position forward. Results is terminal.
func advance(s *model.AppState) {
	switch s.Main {
	case model.StepNotStarted:
		s.Main = model.StepInput
		s.InputSub = 0
	case model.StepInput:
		if s.InputSub < model.LastInputSub {
			s.InputSub++
			return
		}
		s.Main = model.StepAnalysis
		s.AnalysisSub = 0
	case model.StepAnalysis:
		if s.AnalysisSub < model.LastAnalysisSub {
			s.AnalysisSub++
			return
		}
		s.Main = model.StepResults
	}
}

// retreat moves one position back, never below the first Input sub-step.
func retreat(s *model.AppState) bool {
	switch s.Main {
	case model.StepInput:
		if s.InputSub > 0 {
			s.InputSub--
			return true
		}
		return false
	case model.StepAnalysis:
		if s.AnalysisSub > 0 {
			s.AnalysisSub--
			return true
		}
		s.Main = model.StepInput
		return true
	case model.StepResults:
		s.Main = model.StepAnalysis
		return true
	}
	return false
}

// position identifies where the wizard stands.
type position struct {
	main model.MainStep
	sub  int
}

func positionOf(s model.AppState) position {
	switch s.Main {
	case model.StepInput:
		return position{main: s.Main, sub: s.InputSub}
	case model.StepAnalysis:
		return position{main: s.Main, sub: s.AnalysisSub}
	default:
		return position{main: s.Main}
	}
}
