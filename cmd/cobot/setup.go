package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/cobot/pkg/acquire"
	"github.com/gwillem/cobot/pkg/config"
	"github.com/gwillem/cobot/pkg/robot"
)

type SetupCommand struct {
	SkipTool bool `long:"skip-tool" description:"Only configure the locator; leave the tool board as is"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("cobot setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !c.SkipTool {
		// Step 1: find the tool board
		port := scanForTool()

		// Step 2: calibrate probe and valve
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Calibrating tool ━━━"))
		fmt.Println()
		cfg.Tool.Port = port
		calibrateTool(&cfg.Tool)

		if err := cfg.SaveTo(opts.Config); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
	}

	// Step 3: where detections come from
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Object locator ━━━"))
	fmt.Println()
	configureLocator(&cfg.Locator)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Pick something up with: " + headerStyle.Render("cobot acquire ball"))

	return nil
}

func scanForTool() string {
	fmt.Println("Scanning for the tool board...")
	fmt.Println()

	tools, err := robot.ScanPorts()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		os.Exit(1)
	}
	if len(tools) == 0 {
		fmt.Println("No tool board found.")
		fmt.Println("Make sure the probe and valve servos are connected and powered on.")
		os.Exit(1)
	}
	for _, t := range tools {
		fmt.Printf("  Found tool board on %s\n", t.Port)
	}
	if len(tools) == 1 {
		return tools[0].Port
	}

	// Several boards: click each valve so the user can tell them apart.
	for _, t := range tools {
		if identifyToolWithClick(t) {
			return t.Port
		}
	}
	fmt.Println("No tool board selected.")
	os.Exit(1)
	return ""
}

func identifyToolWithClick(t robot.FoundTool) bool {
	bus, err := robot.OpenBus(t.Port)
	if err != nil {
		fmt.Printf("  Error opening %s: %v\n", t.Port, err)
		return false
	}
	defer bus.Close()

	ctx := context.Background()
	id := motorID(robot.SuctionValve)
	valve := feetech.NewServoGroupByIDs(bus, id)
	if err := valve.EnableAll(ctx); err != nil {
		fmt.Printf("  Error enabling valve: %v\n", err)
		return false
	}

	positions, err := valve.Positions(ctx)
	if err != nil {
		fmt.Printf("  Error reading valve: %v\n", err)
		return false
	}
	original := positions[id]

	fmt.Printf("\n  Clicking valve on %s...\n", t.Port)
	const clickAmount = 60
	for _, pos := range []int{original + clickAmount, original - clickAmount, original} {
		valve.SetPositions(ctx, feetech.PositionMap{id: pos})
		time.Sleep(300 * time.Millisecond)
	}
	valve.DisableAll(ctx)

	var yes bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Is the tool on %s the one that just clicked?", t.Port)).
				Affirmative("Yes").
				Negative("No").
				Value(&yes),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return yes
}

// motorID returns the bus ID of a tool servo; IDs follow AllMotors order.
func motorID(name robot.MotorName) int {
	for i, n := range robot.AllMotors() {
		if n == name {
			return i + 1
		}
	}
	return 0
}

func calibrateTool(tool *robot.ToolConfig) {
	fmt.Printf("Calibrating tool on %s\n", tool.Port)
	fmt.Println()

	bus, err := robot.OpenBus(tool.Port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to tool: %v\n", err)
		os.Exit(1)
	}
	defer bus.Close()

	ctx := context.Background()
	motors := robot.AllMotors()
	ids := make([]int, len(motors))
	for i := range motors {
		ids[i] = i + 1
	}
	group := feetech.NewServoGroupByIDs(bus, ids...)

	// Torque off so both servos can be moved by hand
	group.DisableAll(ctx)

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Push the probe tip through its full travel.")
	fmt.Println("Move the valve lever from fully closed to fully open.")
	fmt.Println()

	start, err := group.Positions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading servos: %v\n", err)
		os.Exit(1)
	}
	cur := make(map[robot.MotorName]int)
	minPos := make(map[robot.MotorName]int)
	maxPos := make(map[robot.MotorName]int)
	for i, name := range motors {
		pos := start[i+1]
		cur[name], minPos[name], maxPos[name] = pos, pos, pos
	}

	p := tea.NewProgram(newCalibrationModel(motors, group, cur, minPos, maxPos))
	finalModel, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running calibration: %v\n", err)
		os.Exit(1)
	}
	cm := finalModel.(calibrationModel)

	calibration := make(robot.Calibration)
	for i, name := range motors {
		calibration[name] = robot.MotorCalibration{
			ID:       i + 1,
			RangeMin: cm.minPositions[name],
			RangeMax: cm.maxPositions[name],
		}
	}
	tool.Calibration = calibration

	fmt.Println()
	fmt.Println("Tool calibrated.")
}

func configureLocator(lc *config.LocatorConfig) {
	kind := lc.Kind
	uri := lc.MongoURI
	maxAge := lc.MaxAge.D().String()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where do detections come from?").
				Options(
					huh.NewOption("Simulated camera", config.LocatorSim),
					huh.NewOption("Vision pipeline via MongoDB", config.LocatorMongo),
				).
				Value(&kind),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("MongoDB URI").
				Description("Leave empty to use " + config.EnvMongoURI).
				Placeholder("mongodb://localhost:27017").
				Value(&uri),
			huh.NewInput().
				Title("Maximum detection age").
				Description("Older detections count as not found. 0s disables the check.").
				Value(&maxAge).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		).WithHideFunc(func() bool { return kind != config.LocatorMongo }),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	lc.Kind = kind
	lc.MongoURI = strings.TrimSpace(uri)
	if d, err := time.ParseDuration(maxAge); err == nil {
		lc.MaxAge = acquire.Duration(d)
	}
}

// Calibration TUI model
type calibrationModel struct {
	motors       []robot.MotorName
	group        *feetech.ServoGroup
	curPositions map[robot.MotorName]int
	minPositions map[robot.MotorName]int
	maxPositions map[robot.MotorName]int
	quitting     bool
}

type tickMsg time.Time

func newCalibrationModel(
	motors []robot.MotorName,
	group *feetech.ServoGroup,
	curPositions, minPositions, maxPositions map[robot.MotorName]int,
) calibrationModel {
	return calibrationModel{
		motors:       motors,
		group:        group,
		curPositions: curPositions,
		minPositions: minPositions,
		maxPositions: maxPositions,
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return tick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		positions, err := m.group.Positions(context.Background())
		if err != nil {
			return m, tick()
		}
		for i, name := range m.motors {
			pos, ok := positions[i+1]
			if !ok {
				continue
			}
			m.curPositions[name] = pos
			m.minPositions[name] = min(m.minPositions[name], pos)
			m.maxPositions[name] = max(m.maxPositions[name], pos)
		}
		return m, tick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableMotorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.motors))
	ranges := make([]int, 0, len(m.motors))
	for _, name := range m.motors {
		rangeSize := m.maxPositions[name] - m.minPositions[name]
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", m.curPositions[name]),
			fmt.Sprintf("%d", m.minPositions[name]),
			fmt.Sprintf("%d", m.maxPositions[name]),
			fmt.Sprintf("%d", rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Servo", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableMotorStyle
			case 1:
				return tableCurrentStyle
			case 4:
				// the probe only travels a few mm, so accept a smaller sweep
				if row >= 0 && row < len(ranges) && ranges[row] > 200 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))

	return sb.String()
}
