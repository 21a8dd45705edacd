package resolve

import (
	"path"
	"strings"
)

// Selector option lists.
var (
	BaseYears = []string{"2024", "2025", "2026", "2027", "2028", "2029", "2030"}

	ProjectedYears = []string{"2030", "2035", "2040", "2045", "2050"}

	VehicleTypes = []string{
		"Combination long-haul Truck",
		"Combination short-haul Truck",
		"Light Commercial Truck",
		"Motorhome - Recreational Vehicle",
		"Motorcycle",
		"Other Buses",
		"Passenger Car",
		"Passenger Truck",
		"Refuse Truck",
		"School Bus",
		"Single Unit long-haul Truck",
		"Single Unit short-haul Truck",
		"Transit Bus",
	}

	FuelTypes = []string{"CNG", "Diesel", "Electricity", "Ethanol", "Gasoline"}

	VehicleEmissionTypes = []string{"CO2", "NOx", "PM2.5B", "PM2.5T"}

	GridEmissionTypes = []string{"CO2", "CH4", "N2O"}

	VehicleAges = []string{"0-5", "6-10", "11-15", "16-20", "20+"}
)

// CityImage returns the city illustration path.
func CityImage(city string) (string, bool) {
	key, ok := cityKey(city)
	if !ok {
		return "", false
	}
	return path.Join("cities", key+".svg"), true
}

// TrafficVolumeImage returns the base-year traffic volume map for a city.
func TrafficVolumeImage(city string) (string, bool) {
	key, ok := cityKey(city)
	if !ok {
		return "", false
	}
	return path.Join("traffic-volume", key+".png"), true
}

// ProjectedDemandImage returns the projected demand map for a city and year.
func ProjectedDemandImage(city, year string) (string, bool) {
	key, ok := cityKey(city)
	year = strings.TrimSpace(year)
	if !ok || year == "" {
		return "", false
	}
	return path.Join("projected-demand", key+"_"+year+".png"), true
}

// DailyVehicleFuel returns the daily fuel consumption chart.
func DailyVehicleFuel(fuel, city string) (string, bool) {
	return metricChart("results/daily/fuel", fuel, FuelTypes, city)
}

// DailyVehicleEmission returns the daily vehicle emission chart.
func DailyVehicleEmission(emission, city string) (string, bool) {
	return metricChart("results/daily/emission", emission, VehicleEmissionTypes, city)
}

// AnnualFuel returns the annual fuel consumption chart.
func AnnualFuel(fuel, city string) (string, bool) {
	return metricChart("results/annual/fuel", fuel, FuelTypes, city)
}

// AnnualEmission returns the annual emission chart.
func AnnualEmission(emission, city string) (string, bool) {
	return metricChart("results/annual/emission", emission, VehicleEmissionTypes, city)
}

// GridResult returns the grid emission result chart.
func GridResult(emission, city string) (string, bool) {
	return metricChart("results/grid", emission, GridEmissionTypes, city)
}

// GridAnalysis returns the grid emission rate chart shown during analysis.
func GridAnalysis(emission, city string) (string, bool) {
	return metricChart("analysis/grid", emission, GridEmissionTypes, city)
}

func metricChart(dir, metric string, allowed []string, city string) (string, bool) {
	name, ok := matchOption(metric, allowed)
	if !ok {
		return "", false
	}
	key, ok := cityKey(city)
	if !ok {
		return "", false
	}
	return path.Join(dir, fileSafe(name)+"_"+key+".svg"), true
}

// MatchOption returns the canonical spelling of value within options, ignoring case.
func MatchOption(value string, options []string) (string, bool) {
	return matchOption(value, options)
}

func matchOption(value string, options []string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	for _, opt := range options {
		if strings.EqualFold(opt, value) {
			return opt, true
		}
	}
	return "", false
}

func cityKey(city string) (string, bool) {
	if strings.TrimSpace(city) == "" {
		return "", false
	}
	key := fileSafe(CanonicalCity(strings.TrimSpace(city)))
	if key == "" {
		return "", false
	}
	return key, true
}

// fileSafe strips characters that cannot appear in an asset file name.
func fileSafe(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == ' ':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
