// Package tui provides the Bubble Tea wizard interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/emiwiz/internal/assets"
	"github.com/verte-zerg/emiwiz/internal/config"
	"github.com/verte-zerg/emiwiz/internal/model"
	"github.com/verte-zerg/emiwiz/internal/resolve"
	"github.com/verte-zerg/emiwiz/internal/results"
	"github.com/verte-zerg/emiwiz/internal/wizard"
)

const defaultOpTimeout = 2 * time.Minute

// Options configures the wizard UI.
type Options struct {
	Controller *wizard.Controller
	Exporter   *results.Exporter
	Assets     assets.Source
	Timeout    time.Duration
}

// Model implements the Bubble Tea wizard UI over controller snapshots.
type Model struct {
	ctrl     *wizard.Controller
	exporter *results.Exporter
	assets   assets.Source
	timeout  time.Duration

	state  model.AppState
	fields []field
	focus  int

	width  int
	height int

	pathInput  textinput.Model
	preview    table.Model
	hasPreview bool
	spinner    spinner.Model
	busy       string

	showNotes bool
	notesView viewport.Model
}

// opDoneMsg reports a finished background operation.
type opDoneMsg struct {
	op   string
	path string
	err  error
}

// NewModel constructs the wizard UI.
func NewModel(opts Options) *Model {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	input := textinput.New()
	input.Prompt = ""
	input.Placeholder = "path/to/file.csv"
	input.CharLimit = 0

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = warnStyle

	m := &Model{
		ctrl:      opts.Controller,
		exporter:  opts.Exporter,
		assets:    opts.Assets,
		timeout:   timeout,
		pathInput: input,
		spinner:   spin,
		notesView: viewport.New(0, 0),
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		return m, nil
	case spinner.TickMsg:
		if m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case opDoneMsg:
		m.busy = ""
		if msg.err != nil && !errors.Is(msg.err, wizard.ErrStale) {
			log.Printf("%s: %v", msg.op, msg.err)
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.showNotes {
		switch msg.String() {
		case "esc", "ctrl+o", "q":
			m.showNotes = false
			return m, nil
		}
		var cmd tea.Cmd
		m.notesView, cmd = m.notesView.Update(msg)
		return m, cmd
	}
	if msg.String() == "ctrl+o" {
		m.openNotes()
		return m, nil
	}
	if m.busy != "" {
		return m, nil
	}

	if m.state.Main == model.StepNotStarted {
		if msg.Type == tea.KeyEnter {
			m.ctrl.Start()
			m.refresh()
		}
		return m, nil
	}

	switch msg.String() {
	case "tab", "down":
		m.moveFocus(1)
		return m, nil
	case "shift+tab", "up":
		m.moveFocus(-1)
		return m, nil
	case "ctrl+n":
		return m, m.next()
	case "ctrl+p":
		if m.ctrl.Back() {
			m.focus = 0
		}
		m.refresh()
		return m, nil
	case "ctrl+e":
		return m, m.estimateSpeed()
	case "ctrl+d":
		return m, m.download()
	}

	f, ok := m.focused()
	if !ok {
		if msg.Type == tea.KeyEnter {
			return m, m.next()
		}
		return m, nil
	}
	if f.isPath() {
		if msg.Type == tea.KeyEnter {
			return m, m.loadPath(f)
		}
		var cmd tea.Cmd
		m.pathInput, cmd = m.pathInput.Update(msg)
		return m, cmd
	}
	switch msg.String() {
	case "left", "h":
		f.set(m.ctrl, f.cycle(f.value(m.state), -1))
		m.refresh()
	case "right", "l", " ":
		f.set(m.ctrl, f.cycle(f.value(m.state), 1))
		m.refresh()
	case "enter":
		return m, m.next()
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.showNotes {
		return fitLines(m.renderNotesModal(), m.width, m.height)
	}
	if m.state.Main == model.StepNotStarted {
		return m.renderLanding()
	}
	header := m.renderHeader()
	footer := m.renderFooter()
	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	return strings.Join([]string{fitLines(header, m.width, lipgloss.Height(header)), body, footer}, "\n")
}

func (m *Model) refresh() {
	m.state = m.ctrl.Snapshot()
	m.fields = fieldsFor(m.state)
	if m.focus >= len(m.fields) {
		m.focus = maxInt(0, len(m.fields)-1)
	}
	m.syncPathInput()
	m.preview, m.hasPreview = buildPreview(previewTable(m.state, m.fields, m.focus), m.width)
}

func (m *Model) updateLayout() {
	m.pathInput.Width = maxInt(10, m.width-30)
	m.notesView.Width = modalWidth(m.width) - 6
	m.notesView.Height = maxInt(3, m.height-8)
	m.preview, m.hasPreview = buildPreview(previewTable(m.state, m.fields, m.focus), m.width)
}

func (m *Model) focused() (field, bool) {
	if m.focus < 0 || m.focus >= len(m.fields) {
		return field{}, false
	}
	return m.fields[m.focus], true
}

func (m *Model) moveFocus(delta int) {
	n := len(m.fields)
	if n == 0 {
		return
	}
	m.focus = ((m.focus+delta)%n + n) % n
	m.syncPathInput()
	m.preview, m.hasPreview = buildPreview(previewTable(m.state, m.fields, m.focus), m.width)
}

func (m *Model) syncPathInput() {
	f, ok := m.focused()
	if !ok || !f.isPath() {
		m.pathInput.Blur()
		return
	}
	m.pathInput.SetValue(f.value(m.state))
	m.pathInput.CursorEnd()
	m.pathInput.Focus()
}

func (m *Model) openNotes() {
	m.showNotes = true
	m.notesView.SetContent(m.renderNotes())
	m.notesView.GotoBottom()
	m.ctrl.MarkNotificationsRead()
}

func (m *Model) run(op string, fn func(ctx context.Context) (string, error)) tea.Cmd {
	m.busy = op
	timeout := m.timeout
	work := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		path, err := fn(ctx)
		return opDoneMsg{op: op, path: path, err: err}
	}
	return tea.Batch(m.spinner.Tick, work)
}

func (m *Model) next() tea.Cmd {
	label := "Validating"
	if m.state.Main == model.StepInput {
		label = "Uploading"
	}
	return m.run(label, func(ctx context.Context) (string, error) {
		return "", m.ctrl.Next(ctx)
	})
}

func (m *Model) loadPath(f field) tea.Cmd {
	path := strings.TrimSpace(m.pathInput.Value())
	if path == "" {
		m.ctrl.Notify(model.LevelWarn, "Enter a file path for "+f.label+".")
		m.refresh()
		return nil
	}
	path = config.ExpandHome(path)
	return m.run("Reading "+f.label, func(context.Context) (string, error) {
		return path, f.load(m.ctrl, path)
	})
}

func (m *Model) estimateSpeed() tea.Cmd {
	if m.state.Main != model.StepInput || m.state.InputSub < 2 {
		return nil
	}
	stage := wizard.SpeedTraffic
	if m.state.InputSub == 3 {
		stage = wizard.SpeedProjected
	}
	return m.run("Estimating speed", func(ctx context.Context) (string, error) {
		return m.ctrl.EstimateSpeed(ctx, stage)
	})
}

func (m *Model) download() tea.Cmd {
	if m.state.Main != model.StepResults || m.exporter == nil {
		return nil
	}
	charts := results.ForState(m.state)
	return m.run("Downloading", func(ctx context.Context) (string, error) {
		var last string
		var errs []error
		for _, chart := range charts {
			dest, err := results.Download(ctx, m.exporter, m.ctrl, chart)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			last = dest
		}
		return last, errors.Join(errs...)
	})
}

func (m *Model) locate(rel string, ok bool) string {
	if !ok {
		return ""
	}
	if m.assets == nil {
		return rel
	}
	return m.assets.Locate(rel)
}

func (m *Model) renderLanding() string {
	body := []string{
		titleStyle.Render("Vehicle Emissions Analysis"),
		"",
		labelStyle.Render("Walk through input data, analysis parameters and results."),
		"",
		headerStyle.Render("enter: start  ctrl+o: notifications  ctrl+c: quit"),
	}
	box := modalStyle.Render(strings.Join(body, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m *Model) renderTabs() string {
	steps := []model.MainStep{model.StepInput, model.StepAnalysis, model.StepResults}
	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		if step == m.state.Main {
			parts = append(parts, activeNavStyle.Render(step.String()))
		} else {
			parts = append(parts, inactiveNavStyle.Render(step.String()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	sub := ""
	switch m.state.Main {
	case model.StepInput:
		sub = fmt.Sprintf("Step %d/%d: %s", m.state.InputSub+1, len(model.InputSteps), model.InputSteps[m.state.InputSub])
	case model.StepAnalysis:
		sub = fmt.Sprintf("Step %d/%d: %s", m.state.AnalysisSub+1, len(model.AnalysisSteps), model.AnalysisSteps[m.state.AnalysisSub])
	case model.StepResults:
		sub = "Emission Results"
	}
	return m.renderTabs() + "\n" + headerStyle.Render(truncateLine(sub, m.width))
}

func (m *Model) renderBody() string {
	lines := make([]string, 0, len(m.fields)+12)
	for i, f := range m.fields {
		lines = append(lines, m.renderField(i, f))
	}
	if extra := m.renderAssets(); len(extra) > 0 {
		lines = append(lines, "")
		lines = append(lines, extra...)
	}
	if m.hasPreview {
		lines = append(lines, "", tableMutedStyle.Render(m.preview.View()))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderField(i int, f field) string {
	label := labelStyle.Render(fmt.Sprintf("  %-22s", f.label))
	if i == m.focus {
		label = focusLabelStyle.Render(fmt.Sprintf("> %-22s", f.label))
	}
	if f.isPath() && i == m.focus {
		return label + " " + m.pathInput.View()
	}
	value := f.value(m.state)
	if value == "" {
		value = emptyValueStyle.Render("not set")
	} else {
		value = valueStyle.Render(value)
	}
	if !f.isPath() && i == m.focus {
		value = "< " + value + " >"
	}
	return label + " " + value
}

func (m *Model) renderAssets() []string {
	s := m.state
	city := s.CityKey()
	var out []string
	add := func(label, loc string) {
		if loc == "" {
			loc = emptyValueStyle.Render("not available")
		}
		out = append(out, labelStyle.Render(fmt.Sprintf("  %-22s", label))+" "+truncateLine(loc, maxInt(10, m.width-26)))
	}
	switch s.Main {
	case model.StepInput:
		switch s.InputSub {
		case 0:
			if city != "" {
				add("City Map", m.locate(resolve.CityImage(city)))
			}
			if len(s.Classification.AllRows) > 0 {
				out = append(out, headerStyle.Render(fmt.Sprintf("  %d of %d rows match the vehicle type", len(s.Classification.Rows), len(s.Classification.AllRows))))
			}
		case 2:
			add("Traffic Volume Map", m.locate(resolve.TrafficVolumeImage(city)))
			add("Speed Plot", speedStatus(s.TrafficVolume.SpeedEstimated, s.TrafficVolume.PlotPath))
		case 3:
			add("Projected Demand Map", m.locate(resolve.ProjectedDemandImage(city, s.ProjectionYear())))
			add("Speed Plot", speedStatus(s.Projected.SpeedEstimated, s.Projected.PlotPath))
		}
	case model.StepAnalysis:
		if s.AnalysisSub == 1 && s.Grid.EmissionType != "" {
			chart := results.GridAnalysisChart(s.Grid.EmissionType, city)
			add("Grid Emission Rates", m.locate(chart.Path, chart.Found()))
		}
	case model.StepResults:
		if s.Results.View == model.ViewNone {
			break
		}
		for _, chart := range results.ForState(s) {
			label := string(chart.Kind)
			if chart.Metric != "" {
				label = chart.Metric + " " + label
			}
			add(label, m.locate(chart.Path, chart.Found()))
		}
	}
	return out
}

func speedStatus(latched bool, plot string) string {
	switch {
	case plot != "":
		return plot
	case latched:
		return "requested"
	default:
		return ""
	}
}

func (m *Model) renderFooter() string {
	help := "tab: field  left/right: change  enter: load/next  ctrl+n: next  ctrl+p: back  ctrl+o: notifications"
	switch {
	case m.state.Main == model.StepInput && m.state.InputSub >= 2:
		help += "  ctrl+e: estimate speed"
	case m.state.Main == model.StepResults:
		help += "  ctrl+d: download"
	}
	lines := []string{headerStyle.Render(truncateLine(help, m.width))}

	status := ""
	if m.busy != "" {
		status = m.spinner.View() + " " + m.busy + "..."
	} else if notes := m.ctrl.Notifications(); len(notes) > 0 {
		last := notes[len(notes)-1]
		status = levelStyle(last.Level).Render(truncateLine(last.Text, m.width-12))
	}
	if unread := m.ctrl.UnreadNotifications(); unread > 0 {
		status = fmt.Sprintf("[%d new] ", unread) + status
	}
	lines = append(lines, status)
	return strings.Join(lines, "\n")
}

func (m *Model) renderNotes() string {
	notes := m.ctrl.Notifications()
	if len(notes) == 0 {
		return headerStyle.Render("No notifications yet.")
	}
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		stamp := n.At.Local().Format("15:04:05")
		lines = append(lines, headerStyle.Render(stamp)+" "+levelStyle(n.Level).Render(n.Text))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderNotesModal() string {
	body := []string{
		titleStyle.Render("Notifications"),
		"",
		m.notesView.View(),
		"",
		headerStyle.Render("up/down: scroll  esc: close"),
	}
	box := modalStyle.Width(modalWidth(m.width)).Render(strings.Join(body, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
