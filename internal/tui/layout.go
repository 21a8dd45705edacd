package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/emiwiz/internal/model"
)

const (
	previewHeight   = 8
	previewColWidth = 24
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	titleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	labelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	focusLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	valueStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	emptyValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A4A4A"))
	infoStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#8FBF7F"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	modalStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
)

func levelStyle(level model.Level) lipgloss.Style {
	switch level {
	case model.LevelError:
		return errorStyle
	case model.LevelWarn:
		return warnStyle
	default:
		return infoStyle
	}
}

func previewStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

// buildPreview renders the first rows of a loaded table.
func buildPreview(tbl model.Table, width int) (table.Model, bool) {
	if len(tbl.Headers) == 0 && len(tbl.Rows) == 0 {
		return table.Model{}, false
	}
	colCount := len(tbl.Headers)
	for _, row := range tbl.Rows {
		colCount = maxInt(colCount, len(row))
	}
	widths := make([]int, colCount)
	for i, h := range tbl.Headers {
		widths[i] = runewidth.StringWidth(h.String())
	}
	rows := make([]table.Row, 0, len(tbl.Rows))
	for _, r := range tbl.Rows {
		cells := make(table.Row, colCount)
		for i := 0; i < colCount; i++ {
			if i < len(r) {
				cells[i] = r[i].String()
			}
			widths[i] = maxInt(widths[i], runewidth.StringWidth(cells[i]))
		}
		rows = append(rows, cells)
	}

	columns := make([]table.Column, colCount)
	used := 0
	for i := range columns {
		title := ""
		if i < len(tbl.Headers) {
			title = tbl.Headers[i].String()
		}
		w := minInt(maxInt(widths[i], 3), previewColWidth)
		if width > 0 && used+w > width {
			columns = columns[:i]
			break
		}
		used += w + 1
		columns[i] = table.Column{Title: title, Width: w}
	}
	if len(columns) == 0 {
		return table.Model{}, false
	}
	for i := range rows {
		rows[i] = rows[i][:len(columns)]
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(minInt(previewHeight, len(rows)+2)),
	)
	t.SetStyles(previewStyles())
	return t, true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func modalWidth(width int) int {
	return maxInt(40, minInt(width-4, 100))
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
