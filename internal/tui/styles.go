package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/ppiankov/codepatrol/internal/models"
)

// Severity colors
var (
	colorCritical = lipgloss.Color("#FF0000")
	colorHigh     = lipgloss.Color("#FF8800")
	colorMedium   = lipgloss.Color("#FFFF00")
	colorLow      = lipgloss.Color("#00FF00")
	colorMuted    = lipgloss.Color("#888888")
	colorAccent   = lipgloss.Color("#7B68EE")
	colorBorder   = lipgloss.Color("#444444")
)

// Panel styles
var (
	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	styleDetailPanel = lipgloss.NewStyle().
				Padding(0, 1).
				BorderStyle(lipgloss.NormalBorder()).
				BorderTop(true).
				BorderForeground(colorBorder)

	styleFooter = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)

	styleSearchPrompt = lipgloss.NewStyle().
				Foreground(colorAccent).Bold(true)
)

// riskStyle returns the lipgloss style for a report risk level.
func riskStyle(level models.RiskLevel) lipgloss.Style {
	switch level {
	case models.RiskCritical:
		return lipgloss.NewStyle().Foreground(colorCritical).Bold(true)
	case models.RiskHigh:
		return lipgloss.NewStyle().Foreground(colorHigh).Bold(true)
	case models.RiskMedium:
		return lipgloss.NewStyle().Foreground(colorMedium)
	case models.RiskLow, models.RiskClean:
		return lipgloss.NewStyle().Foreground(colorLow)
	default:
		return lipgloss.NewStyle()
	}
}

// rowStyle colors a finding by its severity label.
func rowStyle(row findingRow) lipgloss.Style {
	switch row.Kind {
	case models.KindSecret:
		return riskStyle(models.RiskCritical)
	case models.KindDependency:
		switch row.Label {
		case models.SeverityCritical:
			return riskStyle(models.RiskCritical)
		case models.SeverityHigh:
			return riskStyle(models.RiskHigh)
		case models.SeverityModerate:
			return riskStyle(models.RiskMedium)
		}
		return riskStyle(models.RiskLow)
	default:
		return lipgloss.NewStyle().Foreground(colorMedium)
	}
}
