package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"taxquery-backend/internal/conversation"
)

const heroTagline = "Property tax analytics for Pune, Solapur, Chennai, Erode, Jabalpur, Thanjavur and Tiruchirappalli."

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("110"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147"))
	metricStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	fallbackStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helperStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func (m *model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("TaxQuery"))
	if m.config.Endpoint != "" {
		b.WriteString(helperStyle.Render("  " + m.config.Endpoint))
	}
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n\n")
	if m.busy() {
		b.WriteString(m.spinner.View() + helperStyle.Render(" fetching…"))
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")
	b.WriteString(helperStyle.Render("enter send • pgup/pgdn scroll • esc quit"))
	return b.String()
}

func renderHistory(history []conversation.Entry, width int) string {
	wrap := width - 2
	if wrap < minViewportWidth {
		wrap = minViewportWidth
	}
	if len(history) == 0 {
		return helperStyle.Render(wordwrap.String(heroTagline+"\nSay hi, or ask what questions you can ask.", wrap))
	}

	var b strings.Builder
	for i, e := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderEntry(e, wrap))
	}
	return b.String()
}

func renderEntry(e conversation.Entry, wrap int) string {
	var b strings.Builder
	if e.Role == conversation.RoleUser {
		b.WriteString(userStyle.Render("You"))
	} else {
		b.WriteString(assistantStyle.Render("TaxQuery"))
	}
	b.WriteString("\n")

	text := wordwrap.String(e.Text, wrap)
	if e.Source == conversation.SourceFallback {
		text = fallbackStyle.Render(text)
	}
	b.WriteString(text)
	b.WriteString("\n")

	if e.MetricLabel != nil {
		line := fmt.Sprintf("%s: %v", *e.MetricLabel, e.MetricValue)
		if e.Year != nil {
			line += fmt.Sprintf(" (%d)", *e.Year)
		}
		b.WriteString(metricStyle.Render(line))
		b.WriteString("\n")
	}
	if e.DetailedBreakdown != nil && *e.DetailedBreakdown != "" {
		b.WriteString(helperStyle.Render(wordwrap.String(*e.DetailedBreakdown, wrap)))
		b.WriteString("\n")
	}
	return b.String()
}
