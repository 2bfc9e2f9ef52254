package tui

import (
	"github.com/charmbracelet/lipgloss"

	"docbatch/internal/batch"
)

var (
	ColorInk       = lipgloss.Color("#E5E9F0")
	ColorDim       = lipgloss.Color("#7A8291")
	ColorAccent    = lipgloss.Color("#88C0D0")
	ColorAccentAlt = lipgloss.Color("#81A1C1")
	ColorSuccess   = lipgloss.Color("#A3BE8C")
	ColorWarn      = lipgloss.Color("#EBCB8B")
	ColorError     = lipgloss.Color("#BF616A")
)

func StatusColor(s batch.JobStatus) lipgloss.Color {
	switch s {
	case batch.JobCompleted:
		return ColorSuccess
	case batch.JobFailed:
		return ColorError
	case batch.JobProcessing:
		return ColorAccent
	case batch.JobPaused, batch.JobCancelled:
		return ColorWarn
	default:
		return ColorDim
	}
}

func PriorityColor(p batch.JobPriority) lipgloss.Color {
	switch p {
	case batch.PriorityCritical:
		return ColorError
	case batch.PriorityHigh:
		return ColorWarn
	case batch.PriorityLow:
		return ColorDim
	default:
		return ColorInk
	}
}
