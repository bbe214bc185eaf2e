package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const validRulesJSON = `{
  "windows": [30, 60],
  "thresholds": {"top10_share": {"high": 0.5}},
  "verdict": {"upgrade_if": [], "downgrade_if": ["top10_share>=high"]}
}`

const invalidRulesJSON = `{
  "windows": [],
  "thresholds": {"top10_share": {"high": 0.5}},
  "verdict": {"upgrade_if": [], "downgrade_if": ["top10_share>=high"]}
}`

func writeRulesFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.json")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistryLoadsValidFile(t *testing.T) {
	path := writeRulesFile(t, t.TempDir(), validRulesJSON)
	reg, err := NewRegistry(path)
	assert.NoError(t, err)
	assert.Len(t, reg.Current().Windows, 2)
}

func TestNewRegistryRejectsInvalidFile(t *testing.T) {
	path := writeRulesFile(t, t.TempDir(), invalidRulesJSON)
	_, err := NewRegistry(path)
	assert.Error(t, err)
}

func TestNewRegistryRejectsMissingFile(t *testing.T) {
	_, err := NewRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestReloadIfStaleSkipsWhenUnmodified(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, validRulesJSON)
	reg, err := NewRegistry(path)
	assert.NoError(t, err)
	firstLoad := reg.current.Load()

	assert.NoError(t, reg.ReloadIfStale())
	assert.Same(t, firstLoad, reg.current.Load())
}

func TestReloadIfStaleReloadsOnModification(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, validRulesJSON)
	reg, err := NewRegistry(path)
	assert.NoError(t, err)

	future := time.Now().Add(time.Hour)
	assert.NoError(t, os.WriteFile(path, []byte(`{
  "windows": [30, 60, 90],
  "thresholds": {"top10_share": {"high": 0.5}},
  "verdict": {"upgrade_if": [], "downgrade_if": ["top10_share>=high"]}
}`), 0o644))
	assert.NoError(t, os.Chtimes(path, future, future))

	assert.NoError(t, reg.ReloadIfStale())
	assert.Len(t, reg.Current().Windows, 3)
}

func TestReloadIfStaleKeepsOldSnapshotOnInvalidCandidate(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, validRulesJSON)
	reg, err := NewRegistry(path)
	assert.NoError(t, err)

	future := time.Now().Add(time.Hour)
	assert.NoError(t, os.WriteFile(path, []byte(invalidRulesJSON), 0o644))
	assert.NoError(t, os.Chtimes(path, future, future))

	assert.Error(t, reg.ReloadIfStale())
	assert.Len(t, reg.Current().Windows, 2)
}
