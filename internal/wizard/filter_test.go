package wizard

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/verte-zerg/emiwiz/internal/model"
)

func classificationRows() []model.Row {
	return []model.Row{
		{model.StringValue("Transit Bus"), model.NumberValue(5)},
		{model.StringValue("Motorcycle"), model.NumberValue(2)},
		{model.StringValue(" transit bus "), model.NumberValue(1)},
		{},
	}
}

func TestFilterByVehicleMatchesCaseInsensitively(t *testing.T) {
	got := FilterByVehicle(classificationRows(), "TRANSIT BUS")
	want := [][]string{{"Transit Bus", "5"}, {" transit bus ", "1"}}
	if diff := cmp.Diff(want, model.Table{Rows: got}.StringRows()); diff != "" {
		t.Fatalf("filtered rows mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterByVehicleEmptyTypeReturnsAll(t *testing.T) {
	rows := classificationRows()
	got := FilterByVehicle(rows, "")
	if len(got) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(got))
	}
	got[0][0] = model.StringValue("changed")
	if rows[0][0].Str != "Transit Bus" {
		t.Fatalf("filter must not alias the input rows")
	}
}

func TestFilterByVehicleNoMatchFallsBackToAll(t *testing.T) {
	rows := classificationRows()
	if got := FilterByVehicle(rows, "School Bus"); len(got) != len(rows) {
		t.Fatalf("expected fallback to all %d rows, got %d", len(rows), len(got))
	}
	if got := FilterByVehicle(nil, "School Bus"); got != nil {
		t.Fatalf("expected nil for nil input, got %v", got)
	}
}
