package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/bacalhau-project/vpsdeploy/pkg/deploy"
	"github.com/bacalhau-project/vpsdeploy/pkg/models"
	"github.com/charmbracelet/lipgloss"
)

const (
	StepColumnWidth   = 20
	StatusColumnWidth = 10
	DetailColumnWidth = 60
)

var statusColors = map[models.StepStatus]lipgloss.Color{
	models.StepSucceeded: lipgloss.Color("42"),
	models.StepFailed:    lipgloss.Color("196"),
	models.StepSkipped:   lipgloss.Color("244"),
	models.StepPending:   lipgloss.Color("244"),
	models.StepRunning:   lipgloss.Color("39"),
}

// RenderSummary renders the final step table for a report.
func RenderSummary(r *deploy.Report) string {
	tableStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240"))
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		Padding(0, 1)
	cellStyle := lipgloss.NewStyle().
		PaddingLeft(1)
	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Italic(true)

	rows := []string{
		lipgloss.JoinHorizontal(lipgloss.Top,
			headerStyle.Width(StepColumnWidth).Render("Step"),
			headerStyle.Width(StatusColumnWidth).Render("Status"),
			headerStyle.Width(DetailColumnWidth).Render("Detail"),
		),
	}
	for _, s := range r.Steps {
		detail := s.Output
		if s.Error != "" {
			detail = s.Error
		}
		status := cellStyle.Foreground(statusColors[s.Status])
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			cellStyle.Width(StepColumnWidth).Render(s.Name),
			status.Width(StatusColumnWidth).Render(string(s.Status)),
			cellStyle.Width(DetailColumnWidth).Render(truncate(firstLine(detail), DetailColumnWidth-2)),
		))
	}

	result := "succeeded"
	if !r.Succeeded {
		result = "failed"
	}
	info := infoStyle.Render(fmt.Sprintf("%s on %s (%s) %s in %s",
		r.Workflow, r.Target, r.Host, result, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)))

	return lipgloss.JoinVertical(lipgloss.Left, tableStyle.Render(strings.Join(rows, "\n")), info)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
