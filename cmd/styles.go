package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sohanagashimani/playlist-converter/internal/models"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

const barWidth = 20

// statusLabel colors a job status by outcome.
func statusLabel(s models.JobStatus) string {
	switch s {
	case models.StatusCompleted:
		return okStyle.Render(s.String())
	case models.StatusFailed:
		return errStyle.Render(s.String())
	case models.StatusCancelled, models.StatusInterrupted:
		return warnStyle.Render(s.String())
	default:
		return activeStyle.Render(s.String())
	}
}

// progressBar renders p (0-100) as a fixed-width bar.
func progressBar(p int) string {
	p = max(0, min(100, p))
	filled := p * barWidth / 100
	bar := strings.Repeat("█", filled) + mutedStyle.Render(strings.Repeat("░", barWidth-filled))
	return fmt.Sprintf("%s %3d%%", bar, p)
}

// loadLabel colors a load percentage by how close it is to capacity.
func loadLabel(pct int) string {
	text := fmt.Sprintf("%d%%", pct)
	switch {
	case pct >= 100:
		return errStyle.Render(text)
	case pct >= 67:
		return warnStyle.Render(text)
	default:
		return okStyle.Render(text)
	}
}
