package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guzun-corp/tsight-agent/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
server:
  api_key: secret-key
  server_url: https://queue.example.com/
datasources:
  - name: prod-clickhouse
    source_type: clickhouse
    hosts:
      - http://ch1:8123
      - http://ch2:8123
    username: agent
    password: pw
global_filters:
  sql_filters_exclude:
    - database_regexes: ["^tmp_"]
      column_name_regexes: ["password"]
`

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.Server.APIKey)
	assert.Equal(t, "https://queue.example.com/", cfg.Server.ServerURL)

	require.Len(t, cfg.Datasources, 1)
	ds := cfg.Datasources[0]
	assert.Equal(t, "prod-clickhouse", ds.Name)
	assert.Equal(t, domain.SourceClickhouse, ds.SourceType)
	assert.Equal(t, []string{"http://ch1:8123", "http://ch2:8123"}, ds.Hosts)

	require.NotNil(t, cfg.GlobalFilters)
	require.Len(t, cfg.GlobalFilters.Exclude, 1)
	assert.Equal(t, []string{"^tmp_"}, cfg.GlobalFilters.Exclude[0].DatabaseRegexes)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Discovery.Concurrency)
	assert.Equal(t, "@hourly", cfg.Discovery.Schedule)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, uint(1), cfg.PollIntervalSeconds)
	assert.Equal(t, uint(60), cfg.Datasources[0].TimeoutSeconds)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TSIGHT_API_KEY", "env-key")
	t.Setenv("TSIGHT_SERVER_URL", "https://env.example.com")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Server.APIKey)
	assert.Equal(t, "https://env.example.com", cfg.Server.ServerURL)
}

func TestLoad_MissingAPIKey(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  server_url: https://queue.example.com
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestLoad_DuplicateDatasource(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  api_key: k
  server_url: u
datasources:
  - name: ch
    source_type: clickhouse
    hosts: [h1]
  - name: ch
    source_type: clickhouse
    hosts: [h2]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate datasource")
}

func TestLoad_NoHosts(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  api_key: k
  server_url: u
datasources:
  - name: ch
    source_type: clickhouse
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one host")
}

func TestLoad_UnknownSourceType(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  api_key: k
  server_url: u
datasources:
  - name: mongo
    source_type: mongodb
    hosts: [h1]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown datasource type")
}

func TestLoad_FileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]string{
		"debug": "DEBUG", "info": "INFO", "WARN": "WARN",
		"error": "ERROR", "bogus": "INFO",
	} {
		cfg := Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel().String(), "level %q", in)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(`
# comment
TSIGHT_TEST_PLAIN=hello
TSIGHT_TEST_QUOTED="with spaces"
TSIGHT_TEST_EXISTING=from-file
malformed line
`), 0o600))

	t.Setenv("TSIGHT_TEST_EXISTING", "from-env")
	t.Setenv("TSIGHT_TEST_PLAIN", "")
	t.Setenv("TSIGHT_TEST_QUOTED", "")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "hello", os.Getenv("TSIGHT_TEST_PLAIN"))
	assert.Equal(t, "with spaces", os.Getenv("TSIGHT_TEST_QUOTED"))
	assert.Equal(t, "from-env", os.Getenv("TSIGHT_TEST_EXISTING"))
}

func TestLoadDotEnv_Missing(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}
