package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8010", cfg.Server.Address)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, "tavily", cfg.Search.Provider)
	assert.Equal(t, 6, cfg.Execution.MaxSteps)
	assert.Equal(t, 4, cfg.Execution.MaxSearches)
	assert.Equal(t, 3, cfg.Execution.MaxClarifications)
	assert.Equal(t, "reports", cfg.Reports.Dir)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  address: ":9000"
model:
  provider: anthropic
  name: claude-sonnet-4
search:
  provider: serper
  api_key: sk-test
execution:
  max_steps: 12
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "claude-sonnet-4", cfg.Model.Name)
	assert.Equal(t, "serper", cfg.Search.Provider)
	assert.Equal(t, "sk-test", cfg.Search.APIKey)
	assert.Equal(t, 12, cfg.Execution.MaxSteps)
	// untouched sections keep defaults
	assert.Equal(t, 4, cfg.Execution.MaxSearches)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DEEPRESEARCH_MODEL_API_KEY", "sk-env")
	t.Setenv("DEEPRESEARCH_SERVER_ADDRESS", ":7777")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Model.APIKey)
	assert.Equal(t, ":7777", cfg.Server.Address)
}

func TestInvalidProviders(t *testing.T) {
	t.Setenv("DEEPRESEARCH_MODEL_PROVIDER", "bard")
	_, err := Load("")
	assert.ErrorContains(t, err, "unsupported model provider")
}

func TestMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
