// Package schema defines the closed set of next-step actions a research
// agent can take, their JSON schema descriptions, and strict validation of
// raw model output into typed Action values. The package is stateless and
// safe for concurrent use.
package schema

// Kind is the discriminator tag of an action variant. The wire value is
// carried in the "tool" field of the structured payload.
type Kind string

const (
	// KindClarification pauses the loop to ask the user questions.
	KindClarification Kind = "clarification"
	// KindGeneratePlan produces the initial research plan.
	KindGeneratePlan Kind = "generate_plan"
	// KindWebSearch queries the external search collaborator.
	KindWebSearch Kind = "web_search"
	// KindAdaptPlan replaces the remaining plan steps.
	KindAdaptPlan Kind = "adapt_plan"
	// KindCreateReport assembles the final cited report.
	KindCreateReport Kind = "create_report"
	// KindReportCompletion finishes the task after a report exists.
	KindReportCompletion Kind = "report_completion"
)

// Kinds lists every variant tag in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindClarification,
		KindGeneratePlan,
		KindWebSearch,
		KindAdaptPlan,
		KindCreateReport,
		KindReportCompletion,
	}
}

// Action is the closed tagged variant over the six next-step decisions.
// Exactly one variant is selected per reasoning step. The unexported marker
// keeps the set closed so the executor's switch stays exhaustive.
type Action interface {
	Kind() Kind
	// Reasoning returns the free-text justification carried by every
	// variant for auditability.
	Reasoning() string

	isAction()
}

// Clarification asks the user clarifying questions when the request is
// ambiguous. Executing it parks the loop until clarification arrives.
type Clarification struct {
	Reason       string   `json:"reasoning"`
	UnclearTerms []string `json:"unclear_terms,omitempty"`
	Assumptions  []string `json:"assumptions,omitempty"`
	Questions    []string `json:"questions"`
}

// Kind implements Action.
func (Clarification) Kind() Kind { return KindClarification }

// Reasoning implements Action.
func (a Clarification) Reasoning() string { return a.Reason }

func (Clarification) isAction() {}

// GeneratePlan creates the initial ordered research plan.
type GeneratePlan struct {
	Reason           string   `json:"reasoning"`
	ResearchGoal     string   `json:"research_goal,omitempty"`
	Steps            []string `json:"planned_steps"`
	SearchStrategies []string `json:"search_strategies,omitempty"`
}

// Kind implements Action.
func (GeneratePlan) Kind() Kind { return KindGeneratePlan }

// Reasoning implements Action.
func (a GeneratePlan) Reasoning() string { return a.Reason }

func (GeneratePlan) isAction() {}

// WebSearch queries the search collaborator for new evidence.
type WebSearch struct {
	Reason     string `json:"reasoning"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// Kind implements Action.
func (WebSearch) Kind() Kind { return KindWebSearch }

// Reasoning implements Action.
func (a WebSearch) Reasoning() string { return a.Reason }

func (WebSearch) isAction() {}

// AdaptPlan replaces the remaining plan steps in response to findings that
// conflict with the current plan. Requires an existing plan.
type AdaptPlan struct {
	Reason       string   `json:"reasoning"`
	UpdatedSteps []string `json:"updated_steps"`
	ChangeReason string   `json:"reason"`
}

// Kind implements Action.
func (AdaptPlan) Kind() Kind { return KindAdaptPlan }

// Reasoning implements Action.
func (a AdaptPlan) Reasoning() string { return a.Reason }

func (AdaptPlan) isAction() {}

// CreateReport assembles the final research report. Citations reference
// collected sources by their citation number.
type CreateReport struct {
	Reason     string `json:"reasoning"`
	Title      string `json:"title"`
	Body       string `json:"content"`
	Citations  []int  `json:"citations,omitempty"`
	Confidence string `json:"confidence,omitempty"`
}

// Kind implements Action.
func (CreateReport) Kind() Kind { return KindCreateReport }

// Reasoning implements Action.
func (a CreateReport) Reasoning() string { return a.Reason }

func (CreateReport) isAction() {}

// ReportCompletion finishes the task. Only allowed once a report exists.
type ReportCompletion struct {
	Reason  string `json:"reasoning"`
	Summary string `json:"summary"`
}

// Kind implements Action.
func (ReportCompletion) Kind() Kind { return KindReportCompletion }

// Reasoning implements Action.
func (a ReportCompletion) Reasoning() string { return a.Reason }

func (ReportCompletion) isAction() {}
