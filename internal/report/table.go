// Package report renders attribution and risk summaries as ASCII tables,
// Markdown, JSON, and CSV.
package report

import (
	"strings"
	"unicode/utf8"
)

// Table is a simple fixed-width table.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

func (t *Table) widths() []int {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && utf8.RuneCountInString(cell) > widths[i] {
				widths[i] = utf8.RuneCountInString(cell)
			}
		}
	}
	return widths
}

// ASCII renders the table with box-drawing borders. The first column is
// left-aligned, the rest right-aligned.
func (t *Table) ASCII() string {
	widths := t.widths()
	var sb strings.Builder

	if t.Title != "" {
		sb.WriteString(t.Title)
		sb.WriteByte('\n')
	}

	border := func(left, mid, right string) {
		sb.WriteString(left)
		for i, w := range widths {
			sb.WriteString(strings.Repeat("─", w+2))
			if i < len(widths)-1 {
				sb.WriteString(mid)
			}
		}
		sb.WriteString(right)
		sb.WriteByte('\n')
	}
	writeRow := func(cells []string) {
		sb.WriteString("│")
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := w - utf8.RuneCountInString(cell)
			if i == 0 {
				sb.WriteString(" " + cell + strings.Repeat(" ", pad) + " ")
			} else {
				sb.WriteString(" " + strings.Repeat(" ", pad) + cell + " ")
			}
			sb.WriteString("│")
		}
		sb.WriteByte('\n')
	}

	border("┌", "┬", "┐")
	writeRow(t.Headers)
	border("├", "┼", "┤")
	for _, row := range t.Rows {
		writeRow(row)
	}
	border("└", "┴", "┘")
	return sb.String()
}

// Markdown renders the table as a GitHub-flavored Markdown table.
func (t *Table) Markdown() string {
	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString("### " + t.Title + "\n\n")
	}
	sb.WriteString("| " + strings.Join(t.Headers, " | ") + " |\n")
	sb.WriteString("|")
	for i := range t.Headers {
		if i == 0 {
			sb.WriteString("---|")
		} else {
			sb.WriteString("---:|")
		}
	}
	sb.WriteByte('\n')
	for _, row := range t.Rows {
		sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return sb.String()
}
