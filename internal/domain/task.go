package domain

// Record is the fixed two-field shape returned by observation queries:
// a timestamp and a numeric count.
type Record struct {
	T   uint32  `json:"t"`
	Cnt float64 `json:"cnt"`
}

// Row is one result row of an ad-hoc job query: an open mapping of column
// names to scalar values with no fixed schema.
type Row map[string]interface{}

// Task is a unit of work acquired from the server queue.
type Task struct {
	ID             string `json:"id"`
	DatasourceName string `json:"datasource_name"`
	Query          string `json:"query"`
}
