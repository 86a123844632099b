package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sgrlab/deepresearch/core"
	"github.com/sgrlab/deepresearch/logging"
	"github.com/sgrlab/deepresearch/model"
	"github.com/sgrlab/deepresearch/parser"
	"github.com/sgrlab/deepresearch/prompts"
	"github.com/sgrlab/deepresearch/schema"
	"github.com/sgrlab/deepresearch/tool"
)

// Sentinel errors surfaced to callers of the resume/inspect API.
var (
	// ErrBusy is returned when a step is requested while the agent is
	// already running one.
	ErrBusy = errors.New("agent is busy")
	// ErrNotWaiting is returned when clarification arrives for an agent
	// that is not paused on one.
	ErrNotWaiting = errors.New("agent is not waiting for clarification")
	// ErrTerminal is returned when a step is requested on a completed or
	// failed agent without a follow-up message.
	ErrTerminal = errors.New("agent is in a terminal state")
)

const schemaName = "next_step"

// Deps are the collaborators an agent needs to run.
type Deps struct {
	Model    model.Model
	Executor *tool.Executor
	Prompts  *prompts.Renderer
	Logger   *logging.ResearchLogger
	Budgets  Budgets

	// ModelTimeout bounds each model completion call. Zero means no bound
	// beyond the run context.
	ModelTimeout time.Duration
}

// Agent binds one research task to its reasoning loop. At most one loop run
// is active at a time; Start fails fast with ErrBusy instead of queueing.
type Agent struct {
	ctx    *Context
	deps   Deps
	stream *EventStream
	logger *logging.ResearchLogger

	runMu     sync.Mutex // execution lock, held for the whole run
	clarifyCh chan string
}

// New constructs an agent for the task. The loop does not start until Start
// is called.
func New(id, task string, deps Deps) *Agent {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Agent{
		ctx:       NewContext(id, task, deps.Budgets),
		deps:      deps,
		stream:    NewEventStream(),
		logger:    logger.WithComponent("agent").WithAgent(id),
		clarifyCh: make(chan string),
	}
}

// Context exposes the agent's durable state.
func (a *Agent) Context() *Context { return a.ctx }

// Stream exposes the agent's event stream for protocol adapters.
func (a *Agent) Stream() *EventStream { return a.stream }

// Running reports whether a loop run is active (including parked on
// clarification).
func (a *Agent) Running() bool {
	if a.runMu.TryLock() {
		a.runMu.Unlock()
		return false
	}
	return true
}

// Start launches the reasoning loop in a goroutine. It returns ErrBusy if a
// run is active and ErrTerminal if the agent already finished.
func (a *Agent) Start(ctx context.Context) error {
	if a.ctx.State().Terminal() {
		return ErrTerminal
	}
	if !a.runMu.TryLock() {
		return ErrBusy
	}
	go func() {
		defer a.runMu.Unlock()
		a.run(ctx)
	}()
	return nil
}

// ProvideClarification hands the user's answer to a loop parked in
// WAITING_FOR_CLARIFICATION.
func (a *Agent) ProvideClarification(text string) error {
	if a.ctx.State() != core.StateWaitingClarification {
		return ErrNotWaiting
	}
	// The loop flips the state slightly before it reaches the park point,
	// so give the send a short grace period.
	select {
	case a.clarifyCh <- text:
		return nil
	case <-time.After(time.Second):
		return ErrBusy
	}
}

// FollowUp starts a fresh run on a terminal agent with a new task message.
func (a *Agent) FollowUp(ctx context.Context, task string) error {
	if !a.ctx.State().Terminal() {
		return ErrBusy
	}
	if !a.runMu.TryLock() {
		return ErrBusy
	}
	a.ctx.resetForFollowUp(task)
	go func() {
		defer a.runMu.Unlock()
		a.run(ctx)
	}()
	return nil
}

// run drives the loop until a terminal state. It owns the context for the
// duration; the execution lock is held by the caller.
func (a *Agent) run(ctx context.Context) {
	a.transition(core.StateResearching)
	for {
		if a.ctx.State().Terminal() {
			return
		}

		allowed := AllowedActions(a.ctx)
		if len(allowed) == 0 {
			a.fail("step budget exhausted with no sources to report on")
			return
		}

		step := a.ctx.Step()
		start := time.Now()
		action, err := a.selectAction(ctx, allowed, step)
		if err != nil {
			a.logger.LogStep(step, "", time.Since(start), false, err)
			a.fail(err.Error())
			return
		}

		done := a.applyAction(ctx, action, step)
		a.logger.LogStep(step, string(action.Kind()), time.Since(start), true, nil)
		if done {
			return
		}
	}
}

// selectAction runs one model call with schema-validation retries and
// returns the validated action.
func (a *Agent) selectAction(ctx context.Context, allowed []schema.Kind, step int) (schema.Action, error) {
	var lastErr error
	for attempt := 0; attempt <= a.ctx.Budgets().SchemaRetries; attempt++ {
		action, err := a.completeOnce(ctx, allowed, step)
		if err == nil {
			return action, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		a.logger.Warn("Action selection failed, retrying",
			"step", step, "attempt", attempt, "error", err.Error())
		a.ctx.Append(core.UserMessage(fmt.Sprintf(
			"Your previous response was not a valid action: %v. Respond with exactly one valid JSON action object.", err)))
	}
	return nil, fmt.Errorf("action selection retries exhausted: %w", lastErr)
}

// completeOnce performs a single streamed model call, feeding fragments to
// the incremental parser and publishing deltas as they arrive.
func (a *Agent) completeOnce(ctx context.Context, allowed []schema.Kind, step int) (schema.Action, error) {
	system, err := a.deps.Prompts.System(prompts.Data{
		UserRequest: a.ctx.Task(),
		Tools:       toolInfos(allowed),
		Sources:     a.ctx.Sources(),
	})
	if err != nil {
		return nil, err
	}

	req := model.Request{
		Messages:   append([]core.Message{core.SystemMessage(system)}, a.ctx.History()...),
		Schema:     schema.UnionSchema(allowed),
		SchemaName: schemaName,
	}

	if a.deps.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.deps.ModelTimeout)
		defer cancel()
	}

	start := time.Now()
	fragments, errCh := a.deps.Model.Complete(ctx, req)
	p := parser.New(allowed)
	for frag := range fragments {
		if frag.Text == "" {
			continue
		}
		a.stream.Publish(Event{Kind: EventRaw, Step: step, Raw: frag.Text})
		for _, d := range p.Feed(frag.Text) {
			a.stream.Publish(Event{Kind: EventDelta, Step: step, Delta: d})
		}
	}
	if err := <-errCh; err != nil {
		a.logger.LogModelCall(a.deps.Model.Name(), time.Since(start), false, err)
		return nil, fmt.Errorf("model call: %w", err)
	}
	for _, d := range p.Close() {
		a.stream.Publish(Event{Kind: EventDelta, Step: step, Delta: d})
	}
	a.logger.LogModelCall(a.deps.Model.Name(), time.Since(start), true, nil)

	if p.Failed() {
		return nil, fmt.Errorf("structured output stream corrupt")
	}
	action, err := schema.Validate([]byte(p.Raw()))
	if err != nil {
		return nil, err
	}
	return action, nil
}

// applyAction executes the action, records it in history and performs the
// state transition. It returns true when the run is over (terminal state or
// parked-and-resumed runs continue internally).
func (a *Agent) applyAction(ctx context.Context, action schema.Action, step int) bool {
	raw, err := schema.Marshal(action)
	if err != nil {
		a.fail(fmt.Sprintf("marshal action: %v", err))
		return true
	}
	call := core.ToolCall{ID: core.NewID(), Name: string(action.Kind()), Arguments: raw}
	a.ctx.Append(core.AssistantActionMessage(action.Reasoning(), call))

	out, execErr := a.deps.Executor.Execute(ctx, action, tool.Env{
		Task:             a.ctx.Task(),
		Step:             step,
		KnownURLs:        a.ctx.KnownURLs(),
		NextSourceNumber: a.ctx.NextSourceNumber(),
		Sources:          a.ctx.Sources(),
	})
	if execErr != nil {
		// Recorded in history below so the model can adapt; the loop
		// continues unless the action was terminal anyway.
		a.logger.Warn("Action execution failed", "step", step, "error", execErr.Error())
	}
	a.ctx.AddSources(out.NewSources)
	a.ctx.Append(core.ToolResultMessage(call.ID, out.Result))
	a.stream.Publish(Event{Kind: EventToolResult, Step: step, Result: out.Result})

	kind := action.Kind()
	a.ctx.incrementStep(kind == schema.KindWebSearch, kind == schema.KindClarification)

	switch act := action.(type) {
	case *schema.GeneratePlan:
		a.ctx.SetPlan(act.Steps)
	case *schema.AdaptPlan:
		a.ctx.SetPlan(act.UpdatedSteps)
	case *schema.CreateReport:
		if out.Report != nil {
			rep := *out.Report
			rep.Location = out.ReportPath
			a.ctx.setReport(rep)
		}
	case *schema.Clarification:
		return a.park(ctx, act.Questions)
	case *schema.ReportCompletion:
		a.transition(core.StateCompleted)
		a.stream.Publish(Event{Kind: EventDone, Step: step, Reason: "completed"})
		return true
	}
	return false
}

// park suspends the loop in WAITING_FOR_CLARIFICATION until an answer
// arrives or the run context is cancelled. Returns true when the run ends.
func (a *Agent) park(ctx context.Context, questions []string) bool {
	a.ctx.setPendingQuestions(questions)
	a.transition(core.StateWaitingClarification)
	a.stream.Publish(Event{Kind: EventDone, Step: a.ctx.Step(), Reason: "clarification"})

	select {
	case answer := <-a.clarifyCh:
		a.ctx.setPendingQuestions(nil)
		a.ctx.Append(core.UserMessage(answer))
		a.transition(core.StateResearching)
		return false
	case <-ctx.Done():
		a.fail("cancelled while waiting for clarification")
		return true
	}
}

func (a *Agent) transition(s core.State) {
	a.ctx.setState(s)
	a.logger.Info("State transition", "state", s.String())
	a.stream.Publish(Event{Kind: EventState, Step: a.ctx.Step(), State: s})
}

func (a *Agent) fail(reason string) {
	a.ctx.setFailure(reason)
	a.logger.Error("Agent failed", "reason", reason)
	a.stream.Publish(Event{Kind: EventState, Step: a.ctx.Step(), State: core.StateFailed})
	a.stream.Publish(Event{Kind: EventDone, Step: a.ctx.Step(), Reason: "failed"})
}

// toolInfos renders prompt guidance for the allowed action set.
func toolInfos(allowed []schema.Kind) []prompts.ToolInfo {
	infos := make([]prompts.ToolInfo, 0, len(allowed))
	for _, k := range allowed {
		infos = append(infos, prompts.ToolInfo{
			Name:        string(k),
			Description: schema.Description(k),
		})
	}
	return infos
}
