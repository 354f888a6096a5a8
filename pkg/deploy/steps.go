package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bacalhau-project/vpsdeploy/pkg/logger"
	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"go.uber.org/zap"
)

var (
	ErrStepsFailed     = errors.New("workflow failed")
	ErrUnknownStep     = errors.New("unknown step")
	ErrNoRemoteSession = errors.New("no remote session")
)

// Policy decides what a step failure does to the rest of the run.
type Policy int

const (
	AbortOnFailure Policy = iota
	ContinueOnFailure
)

func (p Policy) String() string {
	if p == ContinueOnFailure {
		return "continue"
	}
	return "abort"
}

// Step is one named unit of a workflow. Local steps run before any
// connection is opened and receive a nil Remote. Always steps run even
// after an earlier step aborted the run.
//
// ResumeAt names an earlier step that must run again when the pipeline is
// started from this one. After, if set, sees the result once the observer
// has.
type Step struct {
	Name        string
	Description string
	Policy      Policy
	Always      bool
	Local       bool
	ResumeAt    string
	Run         func(ctx context.Context, r Remote) (string, error)
	After       func(result StepResult)
}

func stepIndex(steps []Step, name string) int {
	for i, s := range steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Observer is notified as steps start and finish.
type Observer interface {
	StepStarted(step Step)
	StepFinished(result StepResult)
}

type nopObserver struct{}

func (nopObserver) StepStarted(Step)        {}
func (nopObserver) StepFinished(StepResult) {}

// Pipeline runs steps in order against one target, connecting lazily
// before the first remote step that will execute.
type Pipeline struct {
	Workflow string
	Target   *models.Target
	Steps    []Step
	Connect  Connector
	FromStep string
	Observer Observer
}

// Run executes the pipeline. The returned report is complete even when an
// error is returned.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	l := logger.FromContext(ctx)
	observer := p.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	report := NewReport(p.Workflow, p.Target, p.Steps)

	start := 0
	if p.FromStep != "" {
		start = stepIndex(p.Steps, p.FromStep)
		if start < 0 {
			err := fmt.Errorf("%w: %s", ErrUnknownStep, p.FromStep)
			p.finish(report, err)
			return report, err
		}
		if at := p.Steps[start].ResumeAt; at != "" {
			i := stepIndex(p.Steps, at)
			if i < 0 || i > start {
				err := fmt.Errorf("%w: %s (resume point of %s)", ErrUnknownStep, at, p.FromStep)
				p.finish(report, err)
				return report, err
			}
			l.Infof("Step %s depends on %s, starting there", p.FromStep, at)
			start = i
		}
	}

	var (
		remote   Remote
		connErr  error
		aborted  bool
		failures []error
	)
	defer func() {
		if remote != nil {
			if err := remote.Close(); err != nil {
				l.Debugf("Failed to close remote session: %v", err)
			}
		}
	}()

	skip := func(i int, reason string) {
		res := &report.Steps[i]
		res.Status = models.StepSkipped
		res.Error = reason
		observer.StepFinished(*res)
	}

	for i, step := range p.Steps {
		if i < start && !step.Local {
			skip(i, "before --from-step "+p.FromStep)
			continue
		}
		if aborted && !step.Always {
			skip(i, "earlier step failed")
			continue
		}

		var r Remote
		if !step.Local {
			if remote == nil && connErr == nil && !aborted {
				remote, connErr = p.Connect(ctx, p.Target)
				if connErr != nil {
					l.Errorf("Failed to connect to %s: %v", p.Target.Host, connErr)
					failures = append(failures, fmt.Errorf("connect: %w", connErr))
					aborted = true
				}
			}
			if remote == nil {
				skip(i, ErrNoRemoteSession.Error())
				continue
			}
			r = remote
		}

		observer.StepStarted(step)
		res := &report.Steps[i]
		res.Status = models.StepRunning
		began := time.Now()
		res.StartedAt = began.UTC()
		l.InfoWithFields(fmt.Sprintf("=== %s ===", step.Description), zap.String("step", step.Name))

		out, err := step.Run(ctx, r)
		res.Duration = time.Since(began)
		res.Output = out

		if err != nil {
			res.Status = models.StepFailed
			res.Error = err.Error()
			failures = append(failures, fmt.Errorf("step %s: %w", step.Name, err))
			l.ErrorWithFields("Step failed", zap.String("step", step.Name), zap.Error(err))
			if step.Policy == AbortOnFailure {
				aborted = true
			}
		} else {
			res.Status = models.StepSucceeded
		}
		observer.StepFinished(*res)
		if step.After != nil {
			step.After(*res)
		}

		if ctx.Err() != nil {
			aborted = true
		}
	}

	var err error
	if len(failures) > 0 {
		err = fmt.Errorf("%w: %w", ErrStepsFailed, errors.Join(failures...))
	}
	p.finish(report, err)
	return report, err
}

func (p *Pipeline) finish(report *Report, err error) {
	report.FinishedAt = time.Now().UTC()
	report.Succeeded = err == nil
	if err != nil {
		report.Error = err.Error()
	}
}
