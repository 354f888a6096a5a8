package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"sigs.k8s.io/yaml"
)

const (
	stateDirPermissions  = 0o700
	stateFilePermissions = 0o600
)

// StepResult records the outcome of one step.
type StepResult struct {
	Name      string            `json:"name"`
	Status    models.StepStatus `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Output    string            `json:"output,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Report is the persisted outcome of one workflow run.
type Report struct {
	Workflow   string       `json:"workflow"`
	Target     string       `json:"target"`
	Host       string       `json:"host,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Succeeded  bool         `json:"succeeded"`
	Error      string       `json:"error,omitempty"`
	Steps      []StepResult `json:"steps"`
}

func NewReport(workflow string, t *models.Target, steps []Step) *Report {
	r := &Report{
		Workflow:  workflow,
		Target:    t.Name,
		Host:      t.Host,
		StartedAt: time.Now().UTC(),
		Steps:     make([]StepResult, len(steps)),
	}
	for i, s := range steps {
		r.Steps[i] = StepResult{Name: s.Name, Status: models.StepPending}
	}
	return r
}

// Step returns the result for the named step, or nil.
func (r *Report) Step(name string) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// FirstFailed returns the name of the earliest failed step, or "".
func (r *Report) FirstFailed() string {
	for _, s := range r.Steps {
		if s.Status == models.StepFailed {
			return s.Name
		}
	}
	return ""
}

// ReportPath is where the report for target and workflow lives under dir.
func ReportPath(dir, target, workflow string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", target, workflow))
}

// Save writes the report as YAML under dir and returns the file path.
func (r *Report) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, stateDirPermissions); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	p := ReportPath(dir, r.Target, r.Workflow)
	if err := os.WriteFile(p, data, stateFilePermissions); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return p, nil
}

func LoadReport(p string) (*Report, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", p, err)
	}
	return &r, nil
}
