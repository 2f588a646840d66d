package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/agencyops/models"
)

var (
	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Width(20)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

func (m *Model) renderDetailView() string {
	o := m.selected

	var s strings.Builder
	s.WriteString(titleStyle.Render(strings.ToUpper(o.DisplayName)))
	s.WriteString("\n")

	s.WriteString(m.renderField("Organization", o.Organization))
	s.WriteString(m.renderField("Role", o.Role))
	s.WriteString(m.renderField("Pool", o.Pool.Label()))
	if o.Stage != "" {
		s.WriteString(m.renderField("Stage", o.Stage.Label()))
	}
	if o.Outreach != "" {
		s.WriteString(m.renderField("Outreach", o.Outreach.Label()))
	}
	s.WriteString(m.renderField("Score", fmt.Sprintf("%d", o.Score)))
	if o.Value != nil {
		s.WriteString(m.renderField("Value", fmt.Sprintf("$%.2f", float64(*o.Value)/100.0)))
	}
	for _, cm := range o.ContactMethods {
		s.WriteString(m.renderField(cm.Type, cm.Value))
	}
	s.WriteString(m.renderField("Nurture reason", o.NurtureReason))
	s.WriteString(m.renderField("Tags", strings.Join(o.Tags, ", ")))

	s.WriteString("\n")
	s.WriteString(headerStyle.Render("Activity"))
	s.WriteString("\n")
	for _, a := range models.NewestFirst(o.Activities) {
		s.WriteString(mutedStyle.Render(a.Timestamp.Local().Format(time.DateTime)))
		s.WriteString("  ")
		s.WriteString(a.Description)
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))
	return s.String()
}

func (m *Model) renderField(label, value string) string {
	if value == "" {
		return ""
	}
	return fieldLabelStyle.Render(label+":") + " " + fieldValueStyle.Render(value) + "\n"
}
