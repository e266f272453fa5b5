package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fjacquet/networth-sync/internal/config"
	"fjacquet/networth-sync/internal/logging"
)

// WriteTestConfig writes a SQLite configuration and, when rules is not
// empty, a rules file into a temporary directory and loads it.
func WriteTestConfig(t testing.TB, rules string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	rulesPath := filepath.Join(dir, "rules.yaml")
	if rules != "" {
		require.NoError(t, os.WriteFile(rulesPath, []byte(rules), 0600))
	}

	content := "store:\n" +
		"  driver: sqlite\n" +
		"  sqlite_path: " + filepath.Join(dir, "ledger.db") + "\n" +
		"ingest:\n" +
		"  rules_file: " + rulesPath + "\n" +
		"  schedule: \"@every 1h\"\n" +
		"ledger:\n" +
		"  timezone: Europe/Zurich\n" +
		"categories:\n" +
		"  file: " + filepath.Join(dir, "categories.yaml") + "\n"
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0600))

	cfg, err := config.LoadFromFile(cfgPath)
	require.NoError(t, err)
	return cfg
}

// NewTestContainer builds a container on a temporary SQLite ledger with a
// mock logger. It is closed when the test ends.
func NewTestContainer(t testing.TB, cfg *config.Config, opts ...Option) *Container {
	t.Helper()
	opts = append([]Option{WithLogger(logging.NewMockLogger())}, opts...)
	c, err := NewContainer(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}
