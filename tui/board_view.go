package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/agencyops/models"
)

// maxCardsPerColumn caps how many opportunities a column lists before
// summarizing the rest.
const maxCardsPerColumn = 8

func (m *Model) renderBoardView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("AGENCYOPS PIPELINE"))
	s.WriteString("\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	colWidth := max(m.width/len(models.LivePools)-4, 16)
	columns := make([]string, 0, len(models.LivePools))
	for i, p := range models.LivePools {
		columns = append(columns, m.renderColumn(p, i == m.column, colWidth))
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, columns...))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

func (m *Model) renderColumn(pool models.Pool, active bool, width int) string {
	opps := m.columns[pool]

	var s strings.Builder
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", pool.Label(), len(opps))))
	s.WriteString("\n")

	if len(opps) == 0 {
		s.WriteString(mutedStyle.Render("empty"))
	}
	for i, o := range opps {
		if i >= maxCardsPerColumn {
			s.WriteString(mutedStyle.Render(fmt.Sprintf("+%d more", len(opps)-maxCardsPerColumn)))
			break
		}
		line := truncate(fmt.Sprintf("%3d %s", o.Score, o.DisplayName), width)
		if active && i == m.row {
			s.WriteString(cursorStyle.Render("> " + line))
		} else {
			s.WriteString("  " + line)
		}
		s.WriteString("\n")
	}

	style := columnStyle
	if active {
		style = activeColumnStyle
	}
	return style.Width(width).Render(s.String())
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width-2 {
		return s
	}
	return string(r[:width-3]) + "…"
}
