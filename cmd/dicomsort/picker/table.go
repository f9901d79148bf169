package picker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderSummary draws one row per series id, in the order given, with its
// image count and a total line.
func RenderSummary(ids []string, counts map[string]int) string {
	if len(ids) == 0 {
		return panelStyle.Render(labelStyle.Render("No series found"))
	}

	idWidth := len("SERIES")
	total := 0
	for _, id := range ids {
		idWidth = max(idWidth, lipgloss.Width(id))
		total += counts[id]
	}
	countWidth := max(len("IMAGES"), len(strconv.Itoa(total)))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-*s  %*s", idWidth, "SERIES", countWidth, "IMAGES")))
	for _, id := range ids {
		sb.WriteString("\n")
		sb.WriteString(valueStyle.Render(fmt.Sprintf("%-*s", idWidth, id)))
		sb.WriteString("  ")
		sb.WriteString(labelStyle.Render(fmt.Sprintf("%*d", countWidth, counts[id])))
	}
	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render(fmt.Sprintf("%-*s  %*d", idWidth, fmt.Sprintf("%d series", len(ids)), countWidth, total)))

	return panelStyle.Render(sb.String())
}
