package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"reminder/internal/domain"
	"reminder/internal/journal"
)

const displayTime = "2006-01-02 15:04"

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = cellStyle.Foreground(lipgloss.Color("240"))
	okStyle     = cellStyle.Foreground(lipgloss.Color("114"))
	failStyle   = cellStyle.Foreground(lipgloss.Color("203"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
}

// terminalWidth is the width of stdout, or 0 when it is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

func renderTable(rs []domain.Reminder, now time.Time, width int) string {
	rows := make([][]string, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, []string{
			domain.ShortID(r.ID),
			truncate(r.Title, 40),
			r.Schedule.String(),
			formatNext(r.NextTrigger, now),
			r.Status().String(),
			r.Tags.String(),
		})
	}
	t := newTable("ID", "Title", "Schedule", "Next", "Status", "Tags").Rows(rows...)
	if width > 0 {
		t = t.Width(width)
	}
	return t.
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if rs[row].Status() != domain.StatusActive {
				return dimStyle
			}
			return cellStyle
		}).
		Render()
}

func renderHistory(ds []journal.Delivery) string {
	rows := make([][]string, 0, len(ds))
	for _, d := range ds {
		result := "delivered"
		if !d.Success {
			result = "failed: " + truncate(d.Error, 40)
		}
		rows = append(rows, []string{
			d.FiredAt.Local().Format(displayTime),
			domain.ShortID(d.ReminderID),
			truncate(d.Title, 40),
			result,
		})
	}
	return newTable("Fired", "ID", "Title", "Result").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 3 && !ds[row].Success:
				return failStyle
			case col == 3:
				return okStyle
			}
			return cellStyle
		}).
		Render()
}

func renderDetail(r domain.Reminder, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID:          %s\n", r.ID)
	fmt.Fprintf(&b, "Title:       %s\n", r.Title)
	if r.Description != nil {
		fmt.Fprintf(&b, "Description: %s\n", *r.Description)
	}
	fmt.Fprintf(&b, "Schedule:    %s\n", r.Schedule)
	fmt.Fprintf(&b, "Status:      %s\n", r.Status())
	fmt.Fprintf(&b, "Next:        %s\n", formatNext(r.NextTrigger, now))
	fmt.Fprintf(&b, "Created:     %s\n", r.CreatedAt.Local().Format(displayTime))
	if len(r.Tags) > 0 {
		fmt.Fprintf(&b, "Tags:        %s\n", r.Tags)
	}
	return b.String()
}

func formatNext(t *time.Time, now time.Time) string {
	if t == nil {
		return "-"
	}
	abs := t.Local().Format(displayTime)
	d := t.Sub(now)
	if d < 0 {
		return abs + " (overdue)"
	}
	return abs + " (in " + humanDuration(d) + ")"
}

func humanDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		h := int(d.Hours())
		return fmt.Sprintf("%dh%02dm", h, int(d.Minutes())-h*60)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
