package domain

// ColumnInfo describes one retained column of a discovered table.
type ColumnInfo struct {
	// TypeName is the simplified type: int, float, bool, date, datetime or string.
	TypeName string `json:"type_name"`
	// Cardinality is the approximate unique-value count, nil when the
	// probe failed or was not attempted.
	Cardinality *uint64 `json:"cardinality"`
}

// TableSchema is the discovered shape of one table, already filtered by the
// active policy. Ownership transfers wholesale to the caller on return.
type TableSchema struct {
	Database string                `json:"database"`
	Table    string                `json:"table"`
	RowCount uint64                `json:"row_count"`
	Columns  map[string]ColumnInfo `json:"columns"`
}
