package index

import (
	"fmt"
	"strings"
)

// Cell is a single table cell addressed by its row and column indices.
type Cell struct {
	Row     int    `json:"row"`
	Column  int    `json:"column"`
	Content string `json:"content"`
}

// Table is one extracted table: an ordered set of cells uniquely keyed by
// (row, column). The producer is responsible for a stable cell order
// (row-major for layout analyzers), which Linearize preserves.
type Table struct {
	Index       int    `json:"index"`
	RowCount    int    `json:"row_count"`
	ColumnCount int    `json:"column_count"`
	Cells       []Cell `json:"cells"`
}

// Linearize renders the table as one line per cell, in the cells' given
// order. This textual form is what gets embedded and what is shown as the
// recovered fragment when a table wins the search.
func (t Table) Linearize() string {
	lines := make([]string, len(t.Cells))
	for i, c := range t.Cells {
		lines[i] = fmt.Sprintf("Row %d, Column %d: %s", c.Row, c.Column, c.Content)
	}
	return strings.Join(lines, "\n")
}
