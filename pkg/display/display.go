package display

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bacalhau-project/vpsdeploy/pkg/deploy"
	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
)

// NewSpinner creates a new spinner to alert the user about the progress
func NewSpinner(w io.Writer, message string) *spinner.Spinner {
	l := logger.Get()
	l.Debugf("Creating spinner: %s", message)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	_ = s.Color("green")
	return s
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// StepDisplay prints one line per finished step and, on a terminal, a
// spinner while a step runs.
type StepDisplay struct {
	mu          sync.Mutex
	out         io.Writer
	interactive bool
	spinner     *spinner.Spinner
}

var _ deploy.Observer = &StepDisplay{}

func NewStepDisplay(out io.Writer) *StepDisplay {
	return &StepDisplay{out: out, interactive: IsTerminal(out)}
}

func (d *StepDisplay) StepStarted(step deploy.Step) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.interactive {
		return
	}
	d.spinner = NewSpinner(d.out, step.Description)
	d.spinner.Start()
}

func (d *StepDisplay) StepFinished(result deploy.StepResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.spinner != nil {
		d.spinner.Stop()
		d.spinner = nil
	}
	fmt.Fprintln(d.out, StepLine(result))
}

// StepLine is the single-line rendering of a step result.
func StepLine(r deploy.StepResult) string {
	detail := r.Output
	if r.Error != "" {
		detail = r.Error
	}
	line := fmt.Sprintf("%s %-*s", r.Status.Code(), StepColumnWidth, r.Name)
	if r.Duration > 0 {
		line += fmt.Sprintf(" %6s", r.Duration.Round(time.Millisecond))
	}
	if detail = firstLine(detail); detail != "" {
		line += "  " + detail
	}
	return line
}
