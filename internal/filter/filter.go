// Package filter implements the data-leak prevention policy: compiled
// allow/exclude regex sets across four dimensions (database, table, column
// name, column value), the inclusion decision logic consulted during schema
// discovery, and the row scrubber applied to job query results.
package filter

import (
	"regexp"

	"github.com/guzun-corp/tsight-agent/internal/domain"
)

// Rules is one raw configuration block: optional regex pattern lists per
// dimension. Absence of a list means no constraint for that dimension.
type Rules struct {
	DatabaseRegexes    []string `yaml:"database_regexes"`
	TableRegexes       []string `yaml:"table_regexes"`
	ColumnNameRegexes  []string `yaml:"column_name_regexes"`
	ColumnValueRegexes []string `yaml:"column_value_regexes"`
}

// Config holds the two optional policy directions. Each direction is a list
// of rule blocks; blocks are flattened into one compiled set per direction.
type Config struct {
	Exclude []Rules `yaml:"sql_filters_exclude"`
	Allow   []Rules `yaml:"sql_filters_allow"`
}

// ruleSet holds the compiled patterns of one policy direction.
type ruleSet struct {
	databases []*regexp.Regexp
	tables    []*regexp.Regexp
	columns   []*regexp.Regexp
	values    []*regexp.Regexp
}

func (s *ruleSet) add(r Rules) error {
	var err error
	if s.databases, err = appendCompiled(s.databases, r.DatabaseRegexes); err != nil {
		return err
	}
	if s.tables, err = appendCompiled(s.tables, r.TableRegexes); err != nil {
		return err
	}
	if s.columns, err = appendCompiled(s.columns, r.ColumnNameRegexes); err != nil {
		return err
	}
	s.values, err = appendCompiled(s.values, r.ColumnValueRegexes)
	return err
}

func appendCompiled(dst []*regexp.Regexp, patterns []string) ([]*regexp.Regexp, error) {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, &domain.InvalidPatternError{Pattern: p, Err: err}
		}
		dst = append(dst, re)
	}
	return dst, nil
}

// builtinExcludedDatabases are never discoverable, regardless of policy.
// Allow patterns cannot override them.
var builtinExcludedDatabases = map[string]struct{}{
	"system":             {},
	"INFORMATION_SCHEMA": {},
	"information_schema": {},
}

// Policy is the compiled decision engine. It is immutable after construction
// and safe to share across concurrent discovery and scrub operations without
// locking.
type Policy struct {
	exclude ruleSet
	allow   ruleSet
}

// NewPolicy compiles a Config into a Policy. A nil config yields a permissive
// policy (only built-in exclusions apply). Any invalid pattern aborts
// construction with a domain.InvalidPatternError; no partial policy is built.
func NewPolicy(cfg *Config) (*Policy, error) {
	p := &Policy{}
	if cfg == nil {
		return p, nil
	}
	for _, r := range cfg.Exclude {
		if err := p.exclude.add(r); err != nil {
			return nil, err
		}
	}
	for _, r := range cfg.Allow {
		if err := p.allow.add(r); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// shouldExclude implements allow-then-exclude precedence for one dimension.
// A non-empty allow set is closed-world: candidates matching no allow pattern
// are excluded before the exclude set is ever consulted.
func shouldExclude(candidate string, allow, exclude []*regexp.Regexp) bool {
	if len(allow) > 0 {
		allowed := false
		for _, re := range allow {
			if re.MatchString(candidate) {
				allowed = true
				break
			}
		}
		if !allowed {
			return true
		}
	}
	for _, re := range exclude {
		if re.MatchString(candidate) {
			return true
		}
	}
	return false
}

// ExcludeDatabase reports whether a database must be hidden. Built-in
// exclusions are checked before any configured pattern.
func (p *Policy) ExcludeDatabase(name string) bool {
	if _, ok := builtinExcludedDatabases[name]; ok {
		return true
	}
	return shouldExclude(name, p.allow.databases, p.exclude.databases)
}

// ExcludeTable reports whether a table must be hidden.
func (p *Policy) ExcludeTable(name string) bool {
	return shouldExclude(name, p.allow.tables, p.exclude.tables)
}

// ExcludeColumn reports whether a column must be omitted from schemas and
// must contaminate result rows.
func (p *Policy) ExcludeColumn(name string) bool {
	return shouldExclude(name, p.allow.columns, p.exclude.columns)
}

// ExcludeValue reports whether a cell value must contaminate its row.
// Callers pass the space-stripped string form of the value.
func (p *Policy) ExcludeValue(value string) bool {
	return shouldExclude(value, p.allow.values, p.exclude.values)
}
