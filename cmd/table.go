package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

// renderTable prints a bordered table. Column widths follow the widest cell.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	ncols := len(headers)
	widths := make([]int, ncols)
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < ncols && i < len(row); i++ {
			if len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}

	border := func(s string) string { return tableBorderStyle.Render(s) }
	dashes := make([]string, ncols)
	for i, width := range widths {
		dashes[i] = strings.Repeat("─", width+2)
	}
	topBorder := border("┌" + strings.Join(dashes, "┬") + "┐")
	headerSep := border("├" + strings.Join(dashes, "┼") + "┤")
	botBorder := border("└" + strings.Join(dashes, "┴") + "┘")

	renderRow := func(cells []string) string {
		parts := make([]string, ncols)
		for i := 0; i < ncols; i++ {
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			parts[i] = " " + val + strings.Repeat(" ", widths[i]-len(val)) + " "
		}
		return border("│") + strings.Join(parts, border("│")) + border("│")
	}

	fmt.Fprintln(w, topBorder)
	fmt.Fprintln(w, renderRow(headers))
	fmt.Fprintln(w, headerSep)
	for _, row := range rows {
		fmt.Fprintln(w, renderRow(row))
	}
	fmt.Fprintln(w, botBorder)
}
