package wizard

import (
	"strings"

	"github.com/verte-zerg/emiwiz/internal/model"
)

// FilterByVehicle returns the rows whose first cell names vehicleType. Matching is
// case-insensitive after trimming. An empty vehicle type, or a filter that matches
// nothing, yields every row.
func FilterByVehicle(rows []model.Row, vehicleType string) []model.Row {
	want := strings.ToLower(strings.TrimSpace(vehicleType))
	if want == "" {
		return cloneRows(rows)
	}
	var matched []model.Row
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if strings.ToLower(strings.TrimSpace(row[0].String())) == want {
			matched = append(matched, row.Clone())
		}
	}
	if len(matched) == 0 {
		return cloneRows(rows)
	}
	return matched
}

func cloneRows(rows []model.Row) []model.Row {
	if rows == nil {
		return nil
	}
	out := make([]model.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
