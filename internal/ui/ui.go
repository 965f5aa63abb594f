// Package ui holds the terminal rendering helpers shared by the CLI
// commands. Colors degrade gracefully on dumb terminals.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/gatherhq/gather/internal/types"
)

var (
	colorEnabled = termenv.EnvColorProfile() != termenv.Ascii

	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

// RenderPass styles success markers.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn styles warnings.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail styles errors.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderAccent styles highlights.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderFaint styles secondary detail.
func RenderFaint(s string) string { return render(faintStyle, s) }

// FormatEvent renders one event as a multi-line block for show commands.
func FormatEvent(e *types.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", RenderAccent(e.Title), RenderFaint("("+e.ID+")"))
	fmt.Fprintf(&b, "  When:      %s", e.Date.Local().Format("Mon Jan 2 2006 15:04"))
	if e.IsAllDay {
		b.WriteString(" (all day)")
	}
	b.WriteString("\n")
	if e.Location != "" {
		fmt.Fprintf(&b, "  Where:     %s\n", e.Location)
	}
	fmt.Fprintf(&b, "  Organizer: %s\n", organizerLabel(e))
	if len(e.Tags) > 0 {
		fmt.Fprintf(&b, "  Tags:      %s\n", strings.Join(e.Tags, ", "))
	}
	if e.MaxAttendees != nil {
		fmt.Fprintf(&b, "  Capacity:  %d\n", *e.MaxAttendees)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, "  %s\n", e.Description)
	}
	return b.String()
}

// FormatEventRow renders one event as a single list line.
func FormatEventRow(e *types.Event) string {
	date := e.Date.Local().Format("2006-01-02 15:04")
	if e.IsAllDay {
		date = e.Date.Local().Format("2006-01-02") + " (all day)"
	}
	return fmt.Sprintf("%s  %s  %s", RenderFaint(e.ID), date, e.Title)
}

// FormatAttendanceRow renders one RSVP as a single list line.
func FormatAttendanceRow(a *types.Attendance) string {
	name := a.UserName
	if name == "" {
		name = a.UserEmail
	}
	if name == "" {
		name = a.UserID
	}
	return fmt.Sprintf("%s  %-9s  %s", a.CreatedAt.Local().Format(time.DateTime), statusLabel(a.Status), name)
}

func statusLabel(s types.AttendanceStatus) string {
	switch s {
	case types.StatusGoing:
		return RenderPass(string(s))
	case types.StatusNotGoing:
		return RenderFail(string(s))
	default:
		return RenderWarn(string(s))
	}
}

func organizerLabel(e *types.Event) string {
	if e.OrganizerName != "" {
		return fmt.Sprintf("%s (%s)", e.OrganizerName, e.OrganizerID)
	}
	return e.OrganizerID
}
