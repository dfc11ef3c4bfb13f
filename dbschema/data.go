// Copyright (C) 2025 Hearth Labs.
// See LICENSE for copying information.

package dbschema

// TableData is the captured content of a single table. Columns carries the
// column order shared by every row; values round-trip through JSON with its
// usual numeric conversions.
type TableData struct {
	Name    string    `json:"name"`
	Columns []string  `json:"columns"`
	Rows    []RowData `json:"rows"`
}

// RowData is the content of a single row, in the table's column order.
type RowData []interface{}

// AddRow adds a new row.
func (table *TableData) AddRow(row RowData) {
	table.Rows = append(table.Rows, row)
}
