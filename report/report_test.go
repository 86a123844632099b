package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgrlab/deepresearch/core"
)

func sampleReport() core.Report {
	return core.Report{
		Title:      "Go Logging Survey",
		Body:       "slog is the standard choice [1].",
		Confidence: "high",
	}
}

func sampleSources() []core.Source {
	return []core.Source{
		{Number: 1, Title: "slog docs", URL: "https://pkg.go.dev/log/slog"},
	}
}

func TestRender(t *testing.T) {
	out := Render(sampleReport(), "survey go loggers", sampleSources())

	assert.True(t, strings.HasPrefix(out, "# Go Logging Survey\n"))
	assert.Contains(t, out, "*Task: survey go loggers*")
	assert.Contains(t, out, "*Confidence: high*")
	assert.Contains(t, out, "slog is the standard choice [1].")
	assert.Contains(t, out, "## Sources")
	assert.Contains(t, out, "[1] slog docs - https://pkg.go.dev/log/slog")
}

func TestRenderWithoutSources(t *testing.T) {
	out := Render(sampleReport(), "", nil)
	assert.NotContains(t, out, "## Sources")
	assert.NotContains(t, out, "*Task:")
}

func TestSaveWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	store := NewStore(dir)

	path, err := store.Save(sampleReport(), "task", sampleSources())
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "go_logging_survey.md"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "# Go Logging Survey")
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Go Logging Survey":     "go_logging_survey",
		"  weird //title?!  ":   "weird_title",
		"":                      "report",
		strings.Repeat("a", 80): strings.Repeat("a", 60),
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitize(in), "input %q", in)
	}
}
