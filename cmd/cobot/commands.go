package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/cobot/pkg/acquire"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type HomeCommand struct {
	WorkcellOptions
}

func (c *HomeCommand) Execute(args []string) error {
	return runOnce(c.WorkcellOptions, func(ctx context.Context, sup *acquire.Supervisor) (acquire.Result, error) {
		return sup.Home(ctx)
	})
}

type ScanCommand struct {
	WorkcellOptions
}

func (c *ScanCommand) Execute(args []string) error {
	return runOnce(c.WorkcellOptions, func(ctx context.Context, sup *acquire.Supervisor) (acquire.Result, error) {
		return sup.ScanObjects(ctx)
	})
}

type CenterCommand struct {
	WorkcellOptions
	Args struct {
		Label string `positional-arg-name:"label" required:"yes"`
	} `positional-args:"yes"`
}

func (c *CenterCommand) Execute(args []string) error {
	return runOnce(c.WorkcellOptions, func(ctx context.Context, sup *acquire.Supervisor) (acquire.Result, error) {
		return sup.Center(ctx, c.Args.Label)
	})
}

// runOnce opens the workcell, runs op until it finishes or the user hits
// ctrl+c, and prints the result.
func runOnce(wo WorkcellOptions, op func(context.Context, *acquire.Supervisor) (acquire.Result, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := mustOpenWorkcell(ctx, wo)
	res, err := op(ctx, w.sup)
	return finish(w, res, err)
}

// finish closes the workcell and reports the run. Failed runs exit non-zero.
func finish(w *workcell, res acquire.Result, err error) error {
	closeWorkcell(w)
	if err != nil {
		return err
	}
	printResult(res)
	if res.State == acquire.Failed {
		os.Exit(exitCode(res.Err()))
	}
	return nil
}

// closeWorkcell releases w and warns about anything that failed to close.
func closeWorkcell(w *workcell) error {
	err := w.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	return err
}

func printResult(res acquire.Result) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("Run %s", res.RunID)) + dimStyle.Render(" "+res.Op))
	for _, t := range res.Transitions {
		line := fmt.Sprintf("  %s → %s", t.From, t.To)
		if t.Reason != "" {
			line += dimStyle.Render("  " + t.Reason)
		}
		fmt.Println(line)
	}
	if len(res.Labels) > 0 {
		fmt.Println(subHeaderStyle.Render("Visible: ") + strings.Join(res.Labels, ", "))
	}
	if res.State == acquire.Done {
		fmt.Println(successStyle.Render(fmt.Sprintf("Done in %s", res.Finished.Sub(res.Started).Round(time.Millisecond))))
	} else {
		fmt.Println(failStyle.Render(fmt.Sprintf("Failed: %s", res.Outcome)))
		fmt.Println(dimStyle.Render(advice(res.Err())))
	}
}

// advice tells the operator whether to retry or intervene.
func advice(err error) string {
	switch {
	case errors.Is(err, acquire.ErrNotFound):
		return "Object not seen or not centered. Check the camera view and try again."
	case errors.Is(err, acquire.ErrContactFailed):
		return "No contact before the floor. The arm is back at its start pose; check the object and min height."
	case errors.Is(err, acquire.ErrCanceled):
		return "Run canceled."
	case errors.Is(err, acquire.ErrInvalidArgument):
		return "Invalid request. Check the label, drop pose and attempt budget; nothing was moved."
	case errors.Is(err, acquire.ErrSafetyViolation):
		return "Configuration would have driven the tool below the floor. Fix the config before retrying."
	default:
		return "Actuator fault. Home or re-initialize the arm before the next run."
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, acquire.ErrNotFound), errors.Is(err, acquire.ErrContactFailed):
		return 2
	case errors.Is(err, acquire.ErrCanceled):
		return 130
	default:
		return 1
	}
}
