// Package agent implements the research agent itself: the durable per-task
// context, the allowed-action policy, the event stream observed by protocol
// adapters, and the reasoning loop that drives a task from creation to a
// finished report.
package agent

import (
	"sync"

	"github.com/sgrlab/deepresearch/core"
)

// Budgets bound a single research run. Zero values are replaced by defaults.
type Budgets struct {
	MaxSteps          int
	MaxSearches       int
	MaxClarifications int
	SchemaRetries     int
	MinReportSources  int
}

// DefaultBudgets are the standard research limits.
func DefaultBudgets() Budgets {
	return Budgets{
		MaxSteps:          6,
		MaxSearches:       4,
		MaxClarifications: 3,
		SchemaRetries:     3,
		MinReportSources:  1,
	}
}

func (b Budgets) withDefaults() Budgets {
	d := DefaultBudgets()
	if b.MaxSteps <= 0 {
		b.MaxSteps = d.MaxSteps
	}
	if b.MaxSearches <= 0 {
		b.MaxSearches = d.MaxSearches
	}
	if b.MaxClarifications <= 0 {
		b.MaxClarifications = d.MaxClarifications
	}
	if b.SchemaRetries <= 0 {
		b.SchemaRetries = d.SchemaRetries
	}
	if b.MinReportSources <= 0 {
		b.MinReportSources = d.MinReportSources
	}
	return b
}

// Snapshot is a read-only view of an agent's progress for inspection
// endpoints.
type Snapshot struct {
	ID                 string     `json:"id"`
	Task               string     `json:"task"`
	State              core.State `json:"state"`
	Step               int        `json:"step"`
	SearchesUsed       int        `json:"searches_used"`
	ClarificationsUsed int        `json:"clarifications_used"`
	SourcesCount       int        `json:"sources_count"`
	PendingQuestions   []string   `json:"pending_questions,omitempty"`
	ReportLocation     string     `json:"report_location,omitempty"`
	FailureReason      string     `json:"failure_reason,omitempty"`
}

// Context is the durable state of one research task. The owning loop is the
// only writer; inspection goes through Snapshot. All methods are safe for
// concurrent use.
type Context struct {
	mu sync.RWMutex

	id      string
	task    string
	budgets Budgets

	state              core.State
	step               int
	searchesUsed       int
	clarificationsUsed int

	history     []core.Message
	plan        []string
	sources     []core.Source
	sourceByURL map[string]int

	pendingQuestions []string
	report           *core.Report
	failureReason    string
}

// NewContext creates the context for a fresh task in StateInited.
func NewContext(id, task string, budgets Budgets) *Context {
	c := &Context{
		id:          id,
		task:        task,
		budgets:     budgets.withDefaults(),
		state:       core.StateInited,
		sourceByURL: map[string]int{},
	}
	c.history = append(c.history, core.UserMessage(task))
	return c
}

// ID returns the immutable agent identifier.
func (c *Context) ID() string { return c.id }

// Task returns the original task text.
func (c *Context) Task() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.task
}

// Budgets returns the configured budgets.
func (c *Context) Budgets() Budgets { return c.budgets }

// State returns the current lifecycle state.
func (c *Context) State() core.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Context) setState(s core.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Step returns the number of completed reasoning steps.
func (c *Context) Step() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.step
}

// History returns a copy of the conversation history.
func (c *Context) History() []core.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Message, len(c.history))
	copy(out, c.history)
	return out
}

// Append adds messages to the conversation history.
func (c *Context) Append(msgs ...core.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, msgs...)
}

// Plan returns the current plan, or nil before one exists.
func (c *Context) Plan() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.plan))
	copy(out, c.plan)
	if len(out) == 0 {
		return nil
	}
	return out
}

// SetPlan replaces the plan.
func (c *Context) SetPlan(steps []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plan = append([]string(nil), steps...)
}

// Sources returns a copy of the collected sources in citation order.
func (c *Context) Sources() []core.Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Source, len(c.sources))
	copy(out, c.sources)
	return out
}

// KnownURLs maps collected source URLs to their citation numbers.
func (c *Context) KnownURLs() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.sourceByURL))
	for k, v := range c.sourceByURL {
		out[k] = v
	}
	return out
}

// NextSourceNumber returns the citation number the next new source receives.
func (c *Context) NextSourceNumber() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sources) + 1
}

// AddSources appends sources, skipping URLs already collected.
func (c *Context) AddSources(srcs []core.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range srcs {
		if _, ok := c.sourceByURL[s.URL]; ok {
			continue
		}
		c.sources = append(c.sources, s)
		c.sourceByURL[s.URL] = s.Number
	}
}

// Counters returns step, search and clarification usage.
func (c *Context) Counters() (step, searches, clarifications int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.step, c.searchesUsed, c.clarificationsUsed
}

func (c *Context) incrementStep(search, clarification bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step++
	if search {
		c.searchesUsed++
	}
	if clarification {
		c.clarificationsUsed++
	}
}

// Report returns the finished report, or nil.
func (c *Context) Report() *core.Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.report == nil {
		return nil
	}
	rep := *c.report
	return &rep
}

func (c *Context) setReport(rep core.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report = &rep
}

// PendingQuestions returns the questions the agent is waiting on, if any.
func (c *Context) PendingQuestions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.pendingQuestions...)
}

func (c *Context) setPendingQuestions(qs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingQuestions = append([]string(nil), qs...)
}

func (c *Context) setFailure(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = core.StateFailed
	c.failureReason = reason
}

// resetForFollowUp prepares the context for a fresh run on the same agent:
// budgets and terminal results reset, history and sources retained.
func (c *Context) resetForFollowUp(task string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.task = task
	c.state = core.StateInited
	c.step = 0
	c.searchesUsed = 0
	c.clarificationsUsed = 0
	c.plan = nil
	c.report = nil
	c.failureReason = ""
	c.pendingQuestions = nil
	c.history = append(c.history, core.UserMessage(task))
}

// Snapshot captures the current progress for inspection.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{
		ID:                 c.id,
		Task:               c.task,
		State:              c.state,
		Step:               c.step,
		SearchesUsed:       c.searchesUsed,
		ClarificationsUsed: c.clarificationsUsed,
		SourcesCount:       len(c.sources),
		PendingQuestions:   append([]string(nil), c.pendingQuestions...),
		FailureReason:      c.failureReason,
	}
	if c.report != nil {
		snap.ReportLocation = c.report.Location
	}
	return snap
}
