package vcsqlconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcsql/vcsql/internal/plan"
	"github.com/vcsql/vcsql/internal/txn"
)

func TestLoadDefaultsWhenFileAbsent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsTOMLFile(t *testing.T) {
	dir := t.TempDir()
	content := `
repo_path = "custom.db"
default_isolation = "repeatable-read"
lock_timeout = "10s"

[optimizer]
external_sort_threshold = 500
hash_join_threshold = 20
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "custom.db", cfg.RepoPath)
	assert.Equal(t, "repeatable-read", cfg.DefaultIsolation)
	assert.Equal(t, txn.RepeatableRead, cfg.Isolation())
	assert.Equal(t, 500, cfg.Optimizer.ExternalSortThreshold)
	assert.Equal(t, 20, cfg.Optimizer.HashJoinThreshold)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(`repo_path = "from-file.db"`), 0o600))
	t.Setenv("VCSQL_REPO_PATH", "from-env.db")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.RepoPath)
}

func TestIsolationDefaultsToReadCommitted(t *testing.T) {
	cfg := Default()
	cfg.DefaultIsolation = "nonsense"
	assert.Equal(t, txn.ReadCommitted, cfg.Isolation())
}

func TestApplyOptimizerUpdatesPlanThresholds(t *testing.T) {
	origSort, origJoin := plan.ExternalSortThreshold, plan.HashJoinThreshold
	defer func() {
		plan.ExternalSortThreshold = origSort
		plan.HashJoinThreshold = origJoin
	}()

	cfg := Default()
	cfg.Optimizer.ExternalSortThreshold = 42
	cfg.Optimizer.HashJoinThreshold = 7
	cfg.ApplyOptimizer()

	assert.Equal(t, 42, plan.ExternalSortThreshold)
	assert.Equal(t, 7, plan.HashJoinThreshold)
}

func TestWriteDefaultThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteDefault(dir))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	err = WriteDefault(dir)
	assert.Error(t, err)
}
