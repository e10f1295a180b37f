package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/gwillem/cobot/pkg/config"
	"github.com/gwillem/cobot/pkg/locator"
	"github.com/gwillem/cobot/pkg/robot"
)

type InfoCommand struct {
	NoScan bool `long:"no-scan" description:"Do not probe serial ports for the tool board"`
}

func (c *InfoCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("cobot info"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if config.Exists(opts.Config) {
		fmt.Printf("Config:   %s\n", opts.Config)
	} else {
		fmt.Printf("Config:   %s %s\n", opts.Config, dimStyle.Render("(not found, using defaults)"))
	}
	if err := cfg.Validate(); err != nil {
		fmt.Println(failStyle.Render(fmt.Sprintf("          %v", err)))
	}
	a := cfg.Acquisition
	fmt.Printf("Floor:    %.1f mm, step %.1f mm, safe height %.1f mm\n", a.MinHeight, a.StepSize, a.SafeHeight)
	fmt.Printf("Drop:     %s\n", a.DropPose)
	fmt.Printf("Scan:     %s\n", a.ScanPose)
	fmt.Println()

	fmt.Println(subHeaderStyle.Render("Tool board"))
	if cfg.Tool.Port == "" {
		fmt.Println("  port:        (not configured)")
	} else {
		fmt.Printf("  port:        %s\n", cfg.Tool.Port)
	}
	fmt.Printf("  calibrated:  %v\n", cfg.Tool.IsCalibrated())
	if !c.NoScan {
		printPorts()
	}
	fmt.Println()

	fmt.Println(subHeaderStyle.Render("Locator"))
	fmt.Printf("  kind:        %s\n", cfg.Locator.Kind)
	switch cfg.Locator.Kind {
	case config.LocatorMongo:
		printMongo(cfg.Locator)
	default:
		labels := make([]string, 0, len(cfg.Sim.Objects))
		for _, o := range cfg.Sim.Objects {
			labels = append(labels, o.Label)
		}
		fmt.Printf("  objects:     %s\n", strings.Join(labels, ", "))
	}
	return nil
}

func printPorts() {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("  Error listing ports: %v\n", err)
		return
	}
	fmt.Printf("  serial ports: %s\n", strings.Join(ports, ", "))

	tools, err := robot.ScanPorts()
	if err != nil {
		fmt.Printf("  Error scanning ports: %v\n", err)
		return
	}
	if len(tools) == 0 {
		fmt.Println("  No tool board found.")
		return
	}
	for _, t := range tools {
		ids := make([]string, len(t.Servos))
		for i, s := range t.Servos {
			ids[i] = fmt.Sprintf("%d", s.ID)
		}
		fmt.Printf("  %s %s (servos %s)\n", successStyle.Render("found"), t.Port, strings.Join(ids, ","))
	}
}

func printMongo(lc config.LocatorConfig) {
	fmt.Printf("  collection:  %s.%s\n", lc.Database, lc.Collection)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m, err := locator.DialMongo(ctx, lc.MongoURI, lc.Database, lc.Collection)
	if err != nil {
		fmt.Println(failStyle.Render(fmt.Sprintf("  %v", err)))
		return
	}
	defer m.Close(ctx)

	labels, err := m.Labels(ctx)
	if err != nil {
		fmt.Println(failStyle.Render(fmt.Sprintf("  list labels: %v", err)))
		return
	}
	fmt.Printf("  labels:      %s\n", strings.Join(labels, ", "))
	for _, l := range labels {
		d, ok, err := m.FindLatest(ctx, l)
		if err != nil || !ok {
			continue
		}
		age := "unknown age"
		if !d.Timestamp.IsZero() {
			age = time.Since(d.Timestamp).Round(time.Second).String() + " old"
		}
		fmt.Printf("    %-10s (%.1f, %.1f) mm %s\n", l, d.OffsetX, d.OffsetY, dimStyle.Render(age))
	}
}
