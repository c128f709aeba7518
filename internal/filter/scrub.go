package filter

import (
	"strings"

	"github.com/guzun-corp/tsight-agent/internal/domain"
)

// hasRowRules reports whether any column-name or column-value rule exists.
// When none do, scrubbing is a pass-through.
func (p *Policy) hasRowRules() bool {
	return len(p.exclude.columns) > 0 || len(p.exclude.values) > 0 ||
		len(p.allow.columns) > 0 || len(p.allow.values) > 0
}

// ScrubRows drops every row containing a disallowed column name or a
// disallowed string value. The whole row is dropped, never a single cell: a
// single disallowed field contaminates the row. String values have all
// spaces removed before matching. Non-string values are not value-checked.
// Surviving rows keep their relative order. The second return value is the
// number of rows dropped.
func (p *Policy) ScrubRows(rows []domain.Row) ([]domain.Row, int) {
	if !p.hasRowRules() {
		return rows, 0
	}

	kept := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		if p.rowAllowed(row) {
			kept = append(kept, row)
		}
	}
	return kept, len(rows) - len(kept)
}

func (p *Policy) rowAllowed(row domain.Row) bool {
	for name, value := range row {
		if p.ExcludeColumn(name) {
			return false
		}
		if s, ok := value.(string); ok {
			if p.ExcludeValue(strings.ReplaceAll(s, " ", "")) {
				return false
			}
		}
	}
	return true
}
