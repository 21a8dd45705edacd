package mockapi

import (
	"bytes"
	"fmt"
	"image"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/verte-zerg/emiwiz/internal/model"
)

// Pixel size of the speed plot.
const (
	plotWidth  = 640
	plotHeight = 400
)

// renderSpeedPlot draws every numeric MFD parameter column as one line across tracts.
func renderSpeedPlot(city, year string, params model.Table) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Speed estimation: %s %s", city, year)
	p.X.Label.Text = "Tract"
	p.Y.Label.Text = "Parameter value"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	drawn := 0
	for col := 0; col < columnCount(params); col++ {
		pts := make(plotter.XYs, 0, len(params.Rows))
		for i, row := range params.Rows {
			if col < len(row) && row[col].Kind == model.KindNumber {
				pts = append(pts, plotter.XY{X: float64(i + 1), Y: row[col].Num})
			}
		}
		if len(pts) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build series: %w", err)
		}
		line.Color = plotutil.Color(drawn)
		line.Width = vg.Points(1)
		points.Color = plotutil.Color(drawn)
		points.Shape = plotutil.Shape(drawn)
		p.Add(line, points)
		p.Legend.Add(columnName(params, col), line, points)
		drawn++
	}
	if drawn == 0 {
		p.X.Min, p.X.Max = 0, 1
		p.Y.Min, p.Y.Max = 0, 1
	}

	canvas := vgimg.NewWith(vgimg.UseImage(image.NewRGBA(image.Rect(0, 0, plotWidth, plotHeight))))
	p.Draw(draw.New(canvas))
	out := vgimg.PngCanvas{Canvas: canvas}
	var buf bytes.Buffer
	if _, err := out.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode plot: %w", err)
	}
	return buf.Bytes(), nil
}

func columnCount(t model.Table) int {
	n := len(t.Headers)
	for _, row := range t.Rows {
		if len(row) > n {
			n = len(row)
		}
	}
	return n
}

func columnName(t model.Table, col int) string {
	if col < len(t.Headers) && !t.Headers[col].IsEmpty() {
		return t.Headers[col].String()
	}
	return fmt.Sprintf("column %d", col+1)
}
