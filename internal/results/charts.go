// Package results resolves result chart assets and exports them as images.
package results

import (
	"strings"

	"github.com/verte-zerg/emiwiz/internal/model"
	"github.com/verte-zerg/emiwiz/internal/resolve"
)

// Kind names what a chart measures.
type Kind string

// Chart kinds.
const (
	KindFuel     Kind = "fuel"
	KindEmission Kind = "emission"
)

// Selection is the subset of state that decides which charts are shown.
type Selection struct {
	View         model.ResultsView
	Period       model.Period
	FuelType     string
	EmissionType string
	City         string
}

// SelectionFrom extracts the results selection from a state snapshot.
func SelectionFrom(s model.AppState) Selection {
	return Selection{
		View:         s.Results.View,
		Period:       s.Results.Period,
		FuelType:     s.Consumption.FuelType,
		EmissionType: s.Consumption.EmissionType,
		City:         resolve.CanonicalCity(strings.TrimSpace(s.CityKey())),
	}
}

// Chart is one resolved asset. An empty Path means no asset exists.
type Chart struct {
	Kind   Kind
	Metric string
	City   string
	Path   string
}

// Found reports whether the chart resolved to an asset.
func (c Chart) Found() bool {
	return c.Path != ""
}

// FileName returns the download name for the chart.
func (c Chart) FileName() string {
	return FileName(c.Metric, c.City, c.Path)
}

// Charts pairs the fuel and emission charts of a selection.
type Charts struct {
	Fuel     Chart
	Emission Chart
}

// Daily reports whether sel uses the daily vehicle charts.
func Daily(sel Selection) bool {
	return sel.View == model.ViewVehicle && sel.Period == model.PeriodDaily
}

// Resolve picks the daily vehicle charts for a vehicle view over a daily period
// and the annual charts for everything else.
func Resolve(sel Selection) Charts {
	fuelLookup, emissionLookup := resolve.AnnualFuel, resolve.AnnualEmission
	if Daily(sel) {
		fuelLookup, emissionLookup = resolve.DailyVehicleFuel, resolve.DailyVehicleEmission
	}
	fuel := Chart{Kind: KindFuel, Metric: sel.FuelType, City: sel.City}
	if p, ok := fuelLookup(sel.FuelType, sel.City); ok {
		fuel.Path = p
	}
	emission := Chart{Kind: KindEmission, Metric: sel.EmissionType, City: sel.City}
	if p, ok := emissionLookup(sel.EmissionType, sel.City); ok {
		emission.Path = p
	}
	return Charts{Fuel: fuel, Emission: emission}
}

// GridCharts resolves the result chart of every grid emission type for city.
func GridCharts(city string) []Chart {
	city = resolve.CanonicalCity(strings.TrimSpace(city))
	out := make([]Chart, 0, len(resolve.GridEmissionTypes))
	for _, emission := range resolve.GridEmissionTypes {
		chart := Chart{Kind: KindEmission, Metric: emission, City: city}
		if p, ok := resolve.GridResult(emission, city); ok {
			chart.Path = p
		}
		out = append(out, chart)
	}
	return out
}

// GridAnalysisChart resolves the grid emission rate chart shown during analysis.
func GridAnalysisChart(emission, city string) Chart {
	city = resolve.CanonicalCity(strings.TrimSpace(city))
	chart := Chart{Kind: KindEmission, Metric: emission, City: city}
	if p, ok := resolve.GridAnalysis(emission, city); ok {
		chart.Path = p
	}
	return chart
}

// ForState returns every chart relevant to the state's results view.
func ForState(s model.AppState) []Chart {
	sel := SelectionFrom(s)
	if sel.View == model.ViewGrid {
		return GridCharts(sel.City)
	}
	charts := Resolve(sel)
	return []Chart{charts.Fuel, charts.Emission}
}
