package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/finxai/xai/internal/metrics"
	"github.com/mattn/go-runewidth"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable writes rows as aligned columns. Column widths are measured in
// terminal cells so feature names with wide runes line up.
func printTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	line := func(cells []string) {
		var b strings.Builder
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(cells)-1 {
				b.WriteString(cell)
				continue
			}
			b.WriteString(padRight(cell, widths[i]))
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " ")) //nolint:errcheck
	}

	line(header)
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = strings.Repeat("─", widths[i])
	}
	line(sep)
	for _, row := range rows {
		line(row)
	}
}

// truncateName shortens a name to maxLen cells, replacing the tail with "…" if needed.
func truncateName(name string, maxLen int) string {
	return runewidth.Truncate(name, maxLen, "…")
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

func signed(v float64) string {
	return fmt.Sprintf("%+.4f", v)
}

func fixed(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

// ratio formats a possibly undefined metric.
func ratio(r metrics.Ratio) string {
	if !r.Defined {
		return "n/a"
	}
	return fixed(r.Value)
}
