package tool

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgrlab/deepresearch/core"
	"github.com/sgrlab/deepresearch/report"
	"github.com/sgrlab/deepresearch/schema"
	"github.com/sgrlab/deepresearch/search"
)

type fakeProvider struct {
	results []search.Result
	err     error
	delay   time.Duration
	queries []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestWebSearchCollectsNewSources(t *testing.T) {
	provider := &fakeProvider{results: []search.Result{
		{Title: "slog", URL: "https://a", Snippet: "structured"},
		{Title: "zap", URL: "https://b", Snippet: "fast"},
	}}
	exec := NewExecutor(provider, nil, nil)

	out, err := exec.Execute(context.Background(), &schema.WebSearch{Query: "go loggers"}, Env{
		Step:             2,
		KnownURLs:        map[string]int{},
		NextSourceNumber: 1,
	})
	require.NoError(t, err)
	require.Len(t, out.NewSources, 2)
	assert.Equal(t, 1, out.NewSources[0].Number)
	assert.Equal(t, "https://a", out.NewSources[0].URL)
	assert.Equal(t, 2, out.NewSources[0].StepFound)
	assert.Equal(t, 2, out.NewSources[1].Number)
	assert.Contains(t, out.Result, `Search results for "go loggers"`)
	assert.Contains(t, out.Result, "[1] slog")
	assert.Contains(t, out.Result, "[2] zap")
}

func TestWebSearchReusesKnownSourceNumbers(t *testing.T) {
	provider := &fakeProvider{results: []search.Result{
		{Title: "slog", URL: "https://a", Snippet: "structured"},
		{Title: "new", URL: "https://c", Snippet: "fresh"},
	}}
	exec := NewExecutor(provider, nil, nil)

	out, err := exec.Execute(context.Background(), &schema.WebSearch{Query: "q"}, Env{
		KnownURLs:        map[string]int{"https://a": 1},
		NextSourceNumber: 3,
	})
	require.NoError(t, err)
	require.Len(t, out.NewSources, 1)
	assert.Equal(t, 3, out.NewSources[0].Number)
	assert.Contains(t, out.Result, "[1] slog")
	assert.Contains(t, out.Result, "[3] new")
}

func TestWebSearchProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	exec := NewExecutor(provider, nil, nil)

	out, err := exec.Execute(context.Background(), &schema.WebSearch{Query: "q"}, Env{KnownURLs: map[string]int{}})
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeSearchUnavailable, terr.Code)
	assert.Empty(t, out.NewSources)
	assert.Contains(t, out.Result, "failed")
}

func TestWebSearchTimeout(t *testing.T) {
	provider := &fakeProvider{delay: 200 * time.Millisecond}
	exec := NewExecutor(provider, nil, nil, WithSearchTimeout(20*time.Millisecond))

	out, err := exec.Execute(context.Background(), &schema.WebSearch{Query: "slow"}, Env{KnownURLs: map[string]int{}})
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeSearchTimeout, terr.Code)
	assert.Contains(t, out.Result, "failed")
}

func TestCreateReportPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	exec := NewExecutor(&fakeProvider{}, report.NewStore(dir), nil)

	out, err := exec.Execute(context.Background(), &schema.CreateReport{
		Title: "Findings", Body: "all good [1]", Confidence: "medium",
	}, Env{
		Task:    "task",
		Sources: []core.Source{{Number: 1, Title: "t", URL: "u"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.ReportPath)
	assert.Equal(t, dir, filepath.Dir(out.ReportPath))
	assert.Contains(t, out.Result, "saved to")
}

func TestCreateReportWithoutStore(t *testing.T) {
	exec := NewExecutor(&fakeProvider{}, nil, nil)

	out, err := exec.Execute(context.Background(), &schema.CreateReport{Title: "T", Body: "b"}, Env{})
	require.NoError(t, err)
	assert.Empty(t, out.ReportPath)
	assert.Contains(t, out.Result, `Report "T" created`)
}

func TestCreateReportResolvesCitations(t *testing.T) {
	exec := NewExecutor(&fakeProvider{}, nil, nil)
	sources := []core.Source{
		{Number: 1, Title: "first", URL: "https://example.com/1"},
		{Number: 2, Title: "second", URL: "https://example.com/2"},
		{Number: 3, Title: "third", URL: "https://example.com/3"},
	}

	out, err := exec.Execute(context.Background(), &schema.CreateReport{
		Title: "T", Body: "b [1][3]", Citations: []int{3, 1, 99},
	}, Env{Sources: sources})
	require.NoError(t, err)
	require.NotNil(t, out.Report)
	// cited numbers resolve in order, unknown numbers are dropped
	require.Len(t, out.Report.Citations, 2)
	assert.Equal(t, 3, out.Report.Citations[0].Number)
	assert.Equal(t, 1, out.Report.Citations[1].Number)

	// no explicit citations means every collected source is cited
	out, err = exec.Execute(context.Background(), &schema.CreateReport{
		Title: "T", Body: "b",
	}, Env{Sources: sources})
	require.NoError(t, err)
	require.NotNil(t, out.Report)
	assert.Len(t, out.Report.Citations, 3)
}

func TestExecuteValidatedActions(t *testing.T) {
	exec := NewExecutor(&fakeProvider{results: []search.Result{
		{Title: "t", URL: "https://example.com/a", Snippet: "s"},
	}}, nil, nil)

	payloads := map[string]string{
		"plan":   `{"tool":"generate_plan","reasoning":"r","planned_steps":["a"]}`,
		"search": `{"tool":"web_search","reasoning":"r","query":"q"}`,
		"report": `{"tool":"create_report","reasoning":"r","title":"T","content":"b"}`,
		"done":   `{"tool":"report_completion","reasoning":"r","summary":"s"}`,
	}
	for name, raw := range payloads {
		t.Run(name, func(t *testing.T) {
			action, err := schema.Validate([]byte(raw))
			require.NoError(t, err)

			out, err := exec.Execute(context.Background(), action, Env{KnownURLs: map[string]int{}, NextSourceNumber: 1})
			require.NoError(t, err)
			assert.NotEmpty(t, out.Result)
			assert.NotContains(t, out.Result, "unsupported")
		})
	}
}

func TestBookkeepingActions(t *testing.T) {
	exec := NewExecutor(&fakeProvider{}, nil, nil)

	out, err := exec.Execute(context.Background(), &schema.GeneratePlan{
		ResearchGoal: "understand x", Steps: []string{"a", "b"},
	}, Env{})
	require.NoError(t, err)
	assert.Contains(t, out.Result, "Research plan generated")
	assert.Contains(t, out.Result, "1. a")

	out, err = exec.Execute(context.Background(), &schema.AdaptPlan{
		UpdatedSteps: []string{"c"}, ChangeReason: "new evidence",
	}, Env{})
	require.NoError(t, err)
	assert.Contains(t, out.Result, "new evidence")

	out, err = exec.Execute(context.Background(), &schema.Clarification{
		Questions: []string{"which version?"}, Assumptions: []string{"latest stable"},
	}, Env{})
	require.NoError(t, err)
	assert.Contains(t, out.Result, "1. which version?")
	assert.Contains(t, out.Result, "latest stable")

	out, err = exec.Execute(context.Background(), &schema.ReportCompletion{Summary: "done"}, Env{})
	require.NoError(t, err)
	assert.Contains(t, out.Result, "done")
}
