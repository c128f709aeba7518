package domain

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceType identifies the kind of backing store a datasource points at.
type SourceType string

const (
	SourceClickhouse SourceType = "clickhouse"
	SourcePostgreSQL SourceType = "postgresql"
	SourceMySQL      SourceType = "mysql"
	SourcePrometheus SourceType = "prometheus"
)

func (t SourceType) String() string { return string(t) }

// UnmarshalYAML accepts the type name case-insensitively and rejects
// unknown values at config-load time.
func (t *SourceType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "clickhouse":
		*t = SourceClickhouse
	case "postgresql":
		*t = SourcePostgreSQL
	case "mysql":
		*t = SourceMySQL
	case "prometheus":
		*t = SourcePrometheus
	default:
		return fmt.Errorf("unknown datasource type: %s", s)
	}
	return nil
}

// DataSource describes one backing store the agent executes queries against.
type DataSource struct {
	Name       string     `yaml:"name"`
	SourceType SourceType `yaml:"source_type"`
	Hosts      []string   `yaml:"hosts"`
	Username   string     `yaml:"username"`
	Password   string     `yaml:"password"`
	// TimeoutSeconds bounds query execution on the store side.
	TimeoutSeconds uint64 `yaml:"timeout"`
}
