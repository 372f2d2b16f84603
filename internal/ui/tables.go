package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table creates a formatted table for output
type Table struct {
	headers  []string
	rows     [][]string
	maxWidth int // Maximum total table width
}

// NewTable creates a new table
func NewTable(headers ...string) *Table {
	return &Table{
		headers:  headers,
		maxWidth: 120,
	}
}

// SetMaxWidth sets the maximum table width
func (t *Table) SetMaxWidth(width int) {
	t.maxWidth = width
}

// AddRow adds a row; missing cells are left blank.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.headers))
	copy(row, values)
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

func (t *Table) widths() []int {
	widths := make([]int, len(t.headers))
	total := 0
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
		for _, row := range t.rows {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
		widths[i] += 2 // Padding
		total += widths[i] + 1
	}

	// Reduce largest columns first
	for excess := total - t.maxWidth; excess > 0; excess-- {
		maxIdx := 0
		for i := 1; i < len(widths); i++ {
			if widths[i] > widths[maxIdx] {
				maxIdx = i
			}
		}
		if widths[maxIdx] <= 10 {
			break
		}
		widths[maxIdx]--
	}
	return widths
}

// Render writes the table with box borders.
func (t *Table) Render(w io.Writer) {
	if len(t.headers) == 0 {
		return
	}
	widths := t.widths()

	rule := func(left, mid, right string) {
		parts := make([]string, len(widths))
		for i, width := range widths {
			parts[i] = strings.Repeat("─", width)
		}
		fmt.Fprintln(w, left+strings.Join(parts, mid)+right)
	}
	line := func(cells []string) {
		var sb strings.Builder
		sb.WriteString("│")
		for i, cell := range cells {
			sb.WriteString(" " + pad(truncate(cell, widths[i]-2), widths[i]-2) + " │")
		}
		fmt.Fprintln(w, sb.String())
	}

	rule("┌", "┬", "┐")
	line(t.headers)
	rule("├", "┼", "┤")
	for _, row := range t.rows {
		line(row)
	}
	rule("└", "┴", "┘")
}

// RenderCompact writes the table without borders.
func (t *Table) RenderCompact(w io.Writer) {
	if len(t.headers) == 0 {
		return
	}
	widths := t.widths()

	line := func(cells []string) {
		out := make([]string, len(cells))
		for i, cell := range cells {
			out[i] = pad(truncate(cell, widths[i]), widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(out, "  "), " "))
	}

	line(t.headers)
	seps := make([]string, len(widths))
	for i, width := range widths {
		seps[i] = strings.Repeat("─", width)
	}
	fmt.Fprintln(w, strings.Join(seps, "  "))
	for _, row := range t.rows {
		line(row)
	}
}

func pad(s string, width int) string {
	if n := width - lipgloss.Width(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// truncate shortens s to maxLen display columns with an ellipsis.
func truncate(s string, maxLen int) string {
	if lipgloss.Width(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		if maxLen < 0 {
			maxLen = 0
		}
		if maxLen > len(runes) {
			maxLen = len(runes)
		}
		return string(runes[:maxLen])
	}
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > maxLen {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
