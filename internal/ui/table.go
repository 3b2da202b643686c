package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Table renders rows as aligned columns with a muted rule under the header.
type Table struct {
	headers []string
	rows    [][]string
	styles  []lipgloss.Style
}

// NewTable creates a table with the given column headers. Pass no headers
// for a headerless table.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// ColumnStyle sets the cell style for column col.
func (t *Table) ColumnStyle(col int, style lipgloss.Style) *Table {
	for len(t.styles) <= col {
		t.styles = append(t.styles, lipgloss.NewStyle())
	}
	t.styles[col] = style
	return t
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// String renders the table. An empty table renders as "".
func (t *Table) String() string {
	if len(t.rows) == 0 {
		return ""
	}

	tbl := table.New().
		Border(lipgloss.Border{Top: "─", Bottom: "─", MiddleLeft: "─", MiddleRight: "─", Middle: "─"}).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderRow(false).
		BorderColumn(false).
		BorderHeader(len(t.headers) > 0).
		BorderStyle(Muted).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().PaddingRight(2)
			if row == table.HeaderRow {
				return base.Bold(true)
			}
			if col < len(t.styles) {
				return t.styles[col].PaddingRight(2)
			}
			return base
		})
	if len(t.headers) > 0 {
		tbl = tbl.Headers(t.headers...)
	}
	tbl = tbl.Rows(t.rows...)
	return tbl.Render() + "\n"
}
