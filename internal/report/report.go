// Package report renders the tracked-sender table and per-category totals.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"mailcensus/internal/model"
)

// Render formats the records as a bordered table. Callers pass the records
// in display order (store.Records sorts by count desc, then key).
func Render(records []model.SenderRecord) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("SENDER", "EMAIL", "CATEGORIES", "COUNT")
	for _, r := range records {
		name := r.Name
		if name == "" {
			name = "Unknown"
		}
		t.Row(name, r.Email, r.Categories.String(), strconv.Itoa(r.Count))
	}
	return t.String()
}

// Totals counts tracked senders per category. A sender carrying several
// categories contributes to each of them.
func Totals(records []model.SenderRecord) map[model.Category]int {
	totals := make(map[model.Category]int)
	for _, r := range records {
		for c := range r.Categories {
			totals[c]++
		}
	}
	return totals
}

// RenderTotals formats the per-category sender counts in the enumeration's
// order, omitting empty categories.
func RenderTotals(records []model.SenderRecord) string {
	totals := Totals(records)
	var b strings.Builder
	b.WriteString("Totals per category:\n")
	for _, c := range model.Categories {
		if n := totals[c]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", c, n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
