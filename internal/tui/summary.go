package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"docbatch/internal/batch"
)

type SummaryRow struct {
	Label string
	Value string
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
		if len(row.Value) > valueWidth {
			valueWidth = len(row.Value)
		}
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}

	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		line := fmt.Sprintf("%s | %s", labelStyle.Render(label), valueStyle.Render(value))
		lines = append(lines, line)
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

var jobColumns = []string{"ID", "NAME", "TYPE", "PRIORITY", "STATUS", "FILES", "PROGRESS"}

// RenderJobs lays jobs out as a table in the order given.
func RenderJobs(jobs []*batch.BatchJob) string {
	if len(jobs) == 0 {
		return dimStyle.Render("no jobs")
	}

	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			ShortID(job.ID),
			truncate(job.Name, 28),
			string(job.Type),
			string(job.Priority),
			string(job.Status),
			fmt.Sprintf("%d/%d", job.Progress.CompletedFiles+job.Progress.FailedFiles, len(job.Files)),
			fmt.Sprintf("%d%%", job.Progress.OverallProgress),
		})
	}

	widths := make([]int, len(jobColumns))
	for i, h := range jobColumns {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	header := make([]string, len(jobColumns))
	for i, h := range jobColumns {
		header[i] = headerStyle.Render(padRight(h, widths[i]))
	}
	lines := []string{strings.Join(header, "  ")}
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cell = padRight(cell, widths[i])
			switch i {
			case 3:
				cell = lipgloss.NewStyle().Foreground(PriorityColor(jobs[r].Priority)).Render(cell)
			case 4:
				cell = lipgloss.NewStyle().Foreground(StatusColor(jobs[r].Status)).Render(cell)
			default:
				cell = labelStyle.Render(cell)
			}
			cells[i] = cell
		}
		lines = append(lines, strings.Join(cells, "  "))
	}
	return strings.Join(lines, "\n")
}

var templateColumns = []string{"ID", "NAME", "TYPE", "PRIORITY", "RETRIES"}

// RenderTemplates lists saved templates.
func RenderTemplates(templates []*batch.Template) string {
	if len(templates) == 0 {
		return dimStyle.Render("no templates")
	}
	widths := make([]int, len(templateColumns))
	for i, h := range templateColumns {
		widths[i] = len(h)
	}
	rows := make([][]string, len(templates))
	for r, tpl := range templates {
		rows[r] = []string{ShortID(tpl.ID), tpl.Name, string(tpl.Type), string(tpl.Priority), fmt.Sprintf("%d", tpl.Options.MaxRetries)}
		for i, cell := range rows[r] {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	header := make([]string, len(templateColumns))
	for i, h := range templateColumns {
		header[i] = headerStyle.Render(padRight(h, widths[i]))
	}
	lines := []string{strings.Join(header, "  ")}
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cell = padRight(cell, widths[i])
			if i == 3 {
				cells[i] = lipgloss.NewStyle().Foreground(PriorityColor(templates[r].Priority)).Render(cell)
			} else {
				cells[i] = labelStyle.Render(cell)
			}
		}
		lines = append(lines, strings.Join(cells, "  "))
	}
	return strings.Join(lines, "\n")
}

// RenderJob shows one job with its files.
func RenderJob(job *batch.BatchJob) string {
	rows := []SummaryRow{
		{Label: "ID", Value: job.ID},
		{Label: "Name", Value: job.Name},
		{Label: "Type", Value: string(job.Type)},
		{Label: "Priority", Value: string(job.Priority)},
		{Label: "Status", Value: string(job.Status)},
		{Label: "Progress", Value: fmt.Sprintf("%d%%", job.Progress.OverallProgress)},
		{Label: "Created", Value: job.CreatedAt.Format("2006-01-02 15:04:05")},
	}
	if eta := job.Progress.EstimatedTimeRemaining; eta != nil {
		rows = append(rows, SummaryRow{Label: "Remaining", Value: eta.Round(1e9).String()})
	}
	if job.Error != "" {
		rows = append(rows, SummaryRow{Label: "Error", Value: job.Error})
	}

	lines := []string{RenderSummary(rows)}
	for _, f := range job.Files {
		line := fmt.Sprintf("  %-10s %3d%%  %s", f.Status, f.Progress, f.Path)
		if f.RetryCount > 0 {
			line += fmt.Sprintf(" (retries %d)", f.RetryCount)
		}
		if f.Error != "" {
			line += dimStyle.Render("  " + f.Error)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

var (
	valueStyle  = lipgloss.NewStyle().Foreground(ColorInk).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
)
