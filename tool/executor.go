package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sgrlab/deepresearch/core"
	"github.com/sgrlab/deepresearch/logging"
	"github.com/sgrlab/deepresearch/report"
	"github.com/sgrlab/deepresearch/schema"
	"github.com/sgrlab/deepresearch/search"
)

// Env carries the per-step slice of agent state the executor needs. The
// loop owns the state; the executor never mutates it directly.
type Env struct {
	Task string
	Step int

	// KnownURLs maps already-collected source URLs to their citation
	// numbers so repeated hits keep a stable number.
	KnownURLs map[string]int

	// NextSourceNumber is the citation number for the first new source.
	NextSourceNumber int

	// Sources is the full ordered source list, used when rendering reports.
	Sources []core.Source
}

// Outcome is what executing an action produced. Result always holds the
// tool message recorded in conversation history, even when Err is set.
type Outcome struct {
	Result     string
	NewSources []core.Source
	ReportPath string

	// Report is set for create_report actions, with citation numbers
	// resolved to the collected sources. Valid even when persistence failed.
	Report *core.Report
}

// Executor runs actions. Searches go through the configured provider with a
// per-call timeout; reports are rendered and persisted through the store.
type Executor struct {
	provider      search.Provider
	store         *report.Store
	logger        *logging.ResearchLogger
	searchTimeout time.Duration
	snippetLimit  int
	maxResults    int
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithSearchTimeout bounds each provider call.
func WithSearchTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.searchTimeout = d }
}

// WithMaxResults sets the result count used when an action does not ask
// for a specific number.
func WithMaxResults(n int) ExecutorOption {
	return func(e *Executor) { e.maxResults = n }
}

// WithSnippetLimit caps snippet length in formatted search results.
func WithSnippetLimit(n int) ExecutorOption {
	return func(e *Executor) { e.snippetLimit = n }
}

// NewExecutor builds an executor. store may be nil, in which case reports
// are rendered but not persisted.
func NewExecutor(provider search.Provider, store *report.Store, logger *logging.ResearchLogger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		provider:      provider,
		store:         store,
		logger:        logger,
		searchTimeout: 30 * time.Second,
		snippetLimit:  600,
		maxResults:    5,
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	e.logger = e.logger.WithComponent("executor")
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one action. For failures the returned Outcome still carries a
// result string suitable for conversation history, and the error classifies
// what went wrong.
func (e *Executor) Execute(ctx context.Context, action schema.Action, env Env) (Outcome, error) {
	start := time.Now()
	out, err := e.execute(ctx, action, env)
	e.logger.LogToolCall(string(action.Kind()), time.Since(start), err == nil, err)
	return out, err
}

func (e *Executor) execute(ctx context.Context, action schema.Action, env Env) (Outcome, error) {
	switch a := action.(type) {
	case *schema.Clarification:
		return Outcome{Result: formatClarification(a)}, nil
	case *schema.GeneratePlan:
		return Outcome{Result: formatPlan("Research plan generated", a.ResearchGoal, a.Steps)}, nil
	case *schema.AdaptPlan:
		return Outcome{Result: formatPlan("Plan adapted: "+a.ChangeReason, "", a.UpdatedSteps)}, nil
	case *schema.WebSearch:
		return e.webSearch(ctx, a, env)
	case *schema.CreateReport:
		return e.createReport(a, env)
	case *schema.ReportCompletion:
		return Outcome{Result: "Research completed. " + a.Summary}, nil
	default:
		return Outcome{}, fmt.Errorf("unsupported action %q", action.Kind())
	}
}

func (e *Executor) webSearch(ctx context.Context, a *schema.WebSearch, env Env) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, e.searchTimeout)
	defer cancel()

	limit := a.MaxResults
	if limit <= 0 {
		limit = e.maxResults
	}
	results, err := e.provider.Search(ctx, a.Query, limit)
	if err != nil {
		code := CodeSearchUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			code = CodeSearchTimeout
		}
		terr := &Error{Code: code, Op: "search " + e.provider.Name(), Err: err}
		return Outcome{Result: fmt.Sprintf("Search for %q failed: %v. Consider retrying or proceeding with collected sources.", a.Query, err)}, terr
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n", a.Query)
	var added []core.Source
	next := env.NextSourceNumber
	for _, r := range results {
		number, known := env.KnownURLs[r.URL]
		if !known {
			number = next
			next++
			added = append(added, core.Source{
				Number:    number,
				URL:       r.URL,
				Title:     r.Title,
				Snippet:   truncate(r.Snippet, e.snippetLimit),
				StepFound: env.Step,
			})
		}
		fmt.Fprintf(&sb, "\n[%d] %s\n%s\n%s\n", number, r.Title, r.URL, truncate(r.Snippet, e.snippetLimit))
	}
	if len(results) == 0 {
		sb.WriteString("\nNo results found. Try a different query.\n")
	}
	return Outcome{Result: sb.String(), NewSources: added}, nil
}

func (e *Executor) createReport(a *schema.CreateReport, env Env) (Outcome, error) {
	rep := core.Report{
		Title:      a.Title,
		Body:       a.Body,
		Confidence: a.Confidence,
		Citations:  resolveCitations(a.Citations, env.Sources),
	}
	out := Outcome{
		Result: fmt.Sprintf("Report %q created (%d sources available).", a.Title, len(env.Sources)),
		Report: &rep,
	}
	if e.store == nil {
		return out, nil
	}
	path, err := e.store.Save(rep, env.Task, env.Sources)
	if err != nil {
		terr := &Error{Code: CodeReportPersist, Op: "save report", Err: err}
		out.Result = fmt.Sprintf("Report %q created but could not be saved: %v", a.Title, err)
		return out, terr
	}
	out.ReportPath = path
	out.Result = fmt.Sprintf("Report %q created and saved to %s.", a.Title, path)
	return out, nil
}

// resolveCitations maps cited source numbers back to collected sources.
// Numbers with no matching source are dropped; an empty citation list cites
// every collected source.
func resolveCitations(numbers []int, sources []core.Source) []core.Source {
	if len(numbers) == 0 {
		return append([]core.Source(nil), sources...)
	}
	byNumber := make(map[int]core.Source, len(sources))
	for _, s := range sources {
		byNumber[s.Number] = s
	}
	cited := make([]core.Source, 0, len(numbers))
	for _, n := range numbers {
		if s, ok := byNumber[n]; ok {
			cited = append(cited, s)
		}
	}
	return cited
}

func formatClarification(a *schema.Clarification) string {
	var sb strings.Builder
	sb.WriteString("Clarification requested:\n")
	for i, q := range a.Questions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
	}
	if len(a.Assumptions) > 0 {
		sb.WriteString("Assumptions:\n")
		for _, as := range a.Assumptions {
			sb.WriteString("- " + as + "\n")
		}
	}
	return sb.String()
}

func formatPlan(header, goal string, steps []string) string {
	var sb strings.Builder
	sb.WriteString(header + "\n")
	if goal != "" {
		sb.WriteString("Goal: " + goal + "\n")
	}
	for i, s := range steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}
	return sb.String()
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
