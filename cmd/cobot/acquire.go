package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/cobot/pkg/acquire"
	"github.com/gwillem/cobot/pkg/robot"
)

type AcquireCommand struct {
	WorkcellOptions
	Drop  string `long:"drop" description:"Drop position as x,y,z in mm (default: drop_pose from config)"`
	Plain bool   `long:"plain" description:"Print the result instead of showing the live view"`
	Args  struct {
		Label string `positional-arg-name:"label" required:"yes"`
	} `positional-args:"yes"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

const (
	seriesZ     = "z"
	seriesFloor = "floor"
)

var seriesColors = map[string]string{
	seriesZ:     "51",  // cyan
	seriesFloor: "196", // red
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type acquireModel struct {
	events   <-chan acquire.Event
	chart    *streamlinechart.Model
	label    string
	floor    float64
	state    acquire.State
	z        float64
	width    int // terminal width
	height   int // terminal height
	logs     []string
	result   *acquire.Result
	quitting bool
}

// Messages from the supervisor
type eventMsg acquire.Event
type resultMsg struct {
	res acquire.Result
	err error
}

func waitForEvent(events <-chan acquire.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-events)
	}
}

func newAcquireModel(events <-chan acquire.Event, label string, cfg acquire.Config) acquireModel {
	top := cfg.ScanPose.Z
	if top <= cfg.MinHeight {
		top = cfg.MinHeight + 100
	}
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, top),
	)
	for name, color := range seriesColors {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return acquireModel{
		events: events,
		chart:  &chart,
		label:  label,
		floor:  cfg.MinHeight,
		z:      top,
	}
}

func (m *acquireModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *acquireModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m acquireModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m acquireModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case eventMsg:
		e := acquire.Event(msg)
		if e.HasZ {
			m.z = e.Z
			m.chart.PushDataSet(seriesZ, e.Z)
			m.chart.PushDataSet(seriesFloor, e.Floor)
			m.chart.DrawAll()
		} else {
			m.state = e.State
			line := fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.State)
			if e.Reason != "" {
				line += ": " + e.Reason
			}
			m.addLog(line)
		}
		return m, waitForEvent(m.events)

	case resultMsg:
		if msg.err != nil {
			m.addLog(fmt.Sprintf("error: %v", msg.err))
			return m, nil
		}
		res := msg.res
		m.result = &res
		if res.State == acquire.Done {
			m.addLog(fmt.Sprintf("%s placed. Press 'q' to quit", m.label))
		} else {
			m.addLog(advice(res.Err()) + " Press 'q' to quit")
		}
		return m, nil
	}

	return m, nil
}

func (m acquireModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("cobot acquire " + m.label))
	sb.WriteString(fmt.Sprintf(" - %s  z=%.1f  floor=%.1f", m.state, m.z, m.floor))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	logColor := lipgloss.Color("252")
	if m.result != nil && m.result.State == acquire.Failed {
		logColor = lipgloss.Color("9")
	}
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(logColor)

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to abort")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range []string{seriesZ, seriesFloor} {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(seriesColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+name)
	}
	return strings.Join(items, "  ")
}

// parseDrop reads "x,y,z" into a pose pointing down. An empty string keeps def.
func parseDrop(s string, def robot.Pose) (robot.Pose, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return robot.Pose{}, fmt.Errorf("drop %q: want x,y,z", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return robot.Pose{}, fmt.Errorf("drop %q: %w", s, err)
		}
		v[i] = f
	}
	return robot.NewPose(v[0], v[1], v[2]), nil
}

func (c *AcquireCommand) Execute(args []string) error {
	if !c.Plain && c.LogFile == "" {
		c.LogFile = "cobot.log"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := mustOpenWorkcell(ctx, c.WorkcellOptions)
	drop, err := parseDrop(c.Drop, w.cfg.Acquisition.DropPose)
	if err != nil {
		closeWorkcell(w)
		return err
	}

	if c.Plain {
		res, err := w.sup.AcquireAndPlace(ctx, c.Args.Label, drop)
		return finish(w, res, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newAcquireModel(w.sup.Events(), c.Args.Label, w.sup.Config()),
		tea.WithAltScreen(), tea.WithContext(ctx))

	var res acquire.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := w.sup.AcquireAndPlace(gctx, c.Args.Label, drop)
		res = r
		p.Send(resultMsg{res: r, err: err})
		return err
	})
	g.Go(func() error {
		// Quitting the view aborts a run still in flight.
		defer cancel()
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
		return nil
	})
	err = g.Wait()
	return finish(w, res, err)
}
