package cli

import (
	"fmt"
	"strings"
)

const renderWidth = 120

type kvItem struct {
	Key   string
	Value string
}

func renderKV(width int, title string, items []kvItem) string {
	var b strings.Builder
	if title != "" {
		b.WriteString(title)
		b.WriteString("\n")
	}
	maxKey := 0
	for _, it := range items {
		if len(it.Key) > maxKey {
			maxKey = len(it.Key)
		}
	}
	if maxKey > 24 {
		maxKey = 24
	}

	for _, it := range items {
		key := it.Key
		if len(key) > maxKey {
			key = key[:maxKey]
		}
		line := fmt.Sprintf("%-*s  %s", maxKey, key, it.Value)
		b.WriteString(truncate(line, width))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTable(width int, headers []string, rows [][]string) string {
	cols := len(headers)
	if cols == 0 {
		return ""
	}

	colW := make([]int, cols)
	for c := 0; c < cols; c++ {
		colW[c] = len(headers[c])
	}
	for _, row := range rows {
		for c := 0; c < cols && c < len(row); c++ {
			if l := len(row[c]); l > colW[c] {
				colW[c] = l
			}
		}
	}

	// Shrink last columns first; addresses come first and stay whole.
	sep := 3 // " | "
	avail := width
	if avail < 20 {
		avail = 20
	}
	for totalWidth(colW, sep) > avail {
		shrunk := false
		for c := cols - 1; c >= 0; c-- {
			if colW[c] > 6 {
				colW[c]--
				shrunk = true
				break
			}
		}
		if !shrunk {
			break
		}
	}

	var b strings.Builder
	b.WriteString(renderTableRow(headers, colW, sep))
	b.WriteString("\n")
	b.WriteString(renderTableSep(colW, sep))
	b.WriteString("\n")
	for i, row := range rows {
		b.WriteString(renderTableRow(row, colW, sep))
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func totalWidth(colW []int, sep int) int {
	total := 0
	for _, w := range colW {
		total += w
	}
	total += sep * (len(colW) - 1)
	return total
}

func renderTableSep(colW []int, sep int) string {
	var b strings.Builder
	for c, w := range colW {
		if c > 0 {
			b.WriteString(strings.Repeat("-", sep))
		}
		b.WriteString(strings.Repeat("-", w))
	}
	return b.String()
}

func renderTableRow(cells []string, colW []int, sep int) string {
	var b strings.Builder
	for c, w := range colW {
		if c > 0 {
			b.WriteString(" | ")
		}
		val := ""
		if c < len(cells) {
			val = cells[c]
		}
		b.WriteString(padRight(truncate(val, w), w))
	}
	return strings.TrimRight(b.String(), " ")
}

func padRight(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func truncate(s string, w int) string {
	if w <= 0 || len(s) <= w {
		return s
	}
	if w <= 3 {
		return s[:w]
	}
	return s[:w-3] + "..."
}
