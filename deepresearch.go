// Package deepresearch wires the research runtime together and exposes the
// surface the HTTP layer consumes: create-or-resume with a streamed event
// subscription, state inspection, and agent listing.
package deepresearch

import (
	"context"
	"net/http"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/sgrlab/deepresearch/agent"
	"github.com/sgrlab/deepresearch/config"
	"github.com/sgrlab/deepresearch/core"
	"github.com/sgrlab/deepresearch/logging"
	"github.com/sgrlab/deepresearch/model"
	"github.com/sgrlab/deepresearch/model/anthropic"
	"github.com/sgrlab/deepresearch/model/openai"
	"github.com/sgrlab/deepresearch/prompts"
	"github.com/sgrlab/deepresearch/registry"
	"github.com/sgrlab/deepresearch/report"
	"github.com/sgrlab/deepresearch/search"
	"github.com/sgrlab/deepresearch/tool"
)

// Stream is one client's view of a running agent.
type Stream struct {
	Agent  *agent.Agent
	Events <-chan agent.Event
	Cancel func()
}

// Service multiplexes research agents. Loops run on the service's own
// context so a disconnecting client never cancels an agent; Shutdown is the
// only administrative stop.
type Service struct {
	reg    *registry.Registry
	deps   agent.Deps
	logger *logging.ResearchLogger

	runCtx context.Context
	stop   context.CancelFunc
}

// NewService builds a service from explicit collaborators.
func NewService(deps agent.Deps, logger *logging.ResearchLogger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		reg:    registry.New(),
		deps:   deps,
		logger: logger.WithComponent("service"),
		runCtx: ctx,
		stop:   cancel,
	}
}

// NewServiceFromConfig assembles model, search, executor and prompts per the
// configuration.
func NewServiceFromConfig(cfg *config.Config, logger *logging.ResearchLogger) (*Service, error) {
	var m model.Model
	switch cfg.Model.Provider {
	case "anthropic":
		m = anthropic.New(cfg.Model.APIKey, func(o *anthropic.Options) {
			if cfg.Model.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Model.Name)
			}
			o.Temperature = cfg.Model.Temperature
			o.MaxTokens = cfg.Model.MaxTokens
		})
	default:
		m = openai.New(cfg.Model.APIKey, func(o *openai.Options) {
			if cfg.Model.Name != "" {
				o.Model = cfg.Model.Name
			}
			o.BaseURL = cfg.Model.BaseURL
			o.Temperature = cfg.Model.Temperature
			o.MaxTokens = cfg.Model.MaxTokens
		})
	}

	var provider search.Provider
	client := &http.Client{Timeout: cfg.Search.Timeout}
	switch cfg.Search.Provider {
	case "serper":
		provider = search.NewSerper(cfg.Search.APIKey, search.WithSerperHTTPClient(client))
	default:
		provider = search.NewTavily(cfg.Search.APIKey, search.WithTavilyHTTPClient(client))
	}

	renderer, err := prompts.New(cfg.Prompts.Dir)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logging.Discard()
	}
	deps := agent.Deps{
		Model: m,
		Executor: tool.NewExecutor(provider, report.NewStore(cfg.Reports.Dir), logger,
			tool.WithSearchTimeout(cfg.Search.Timeout),
			tool.WithMaxResults(cfg.Search.MaxResults)),
		Prompts:      renderer,
		Logger:       logger,
		ModelTimeout: cfg.Model.Timeout,
		Budgets: agent.Budgets{
			MaxSteps:          cfg.Execution.MaxSteps,
			MaxSearches:       cfg.Execution.MaxSearches,
			MaxClarifications: cfg.Execution.MaxClarifications,
			SchemaRetries:     cfg.Execution.SchemaRetries,
			MinReportSources:  cfg.Execution.MinReportSources,
		},
	}
	return NewService(deps, logger), nil
}

// CreateOrResumeAgent routes one user message. An unknown identifier (or a
// plain model alias) creates a fresh agent; an existing identifier resumes
// it: clarification answer while parked, follow-up task after a terminal
// state. A running agent is rejected with registry.ErrAgentBusy.
func (s *Service) CreateOrResumeAgent(id, message string) (*Stream, error) {
	if id != "" && s.reg.Exists(id) {
		return s.resume(id, message)
	}
	return s.create(message)
}

func (s *Service) create(message string) (*Stream, error) {
	a := agent.New(core.NewID(), message, s.deps)
	s.reg.Add(a)

	events, cancel := a.Stream().Subscribe(0)
	if err := a.Start(s.runCtx); err != nil {
		cancel()
		return nil, err
	}
	s.logger.Info("Agent created", "agent_id", a.Context().ID())
	return &Stream{Agent: a, Events: events, Cancel: cancel}, nil
}

func (s *Service) resume(id, message string) (*Stream, error) {
	a, err := s.reg.Get(id)
	if err != nil {
		return nil, err
	}

	events, cancel := a.Stream().Subscribe(0)
	switch {
	case a.Context().State() == core.StateWaitingClarification:
		err = a.ProvideClarification(message)
	case a.Context().State().Terminal():
		err = a.FollowUp(s.runCtx, message)
	default:
		err = registry.ErrAgentBusy
	}
	if err != nil {
		cancel()
		return nil, err
	}
	s.logger.Info("Agent resumed", "agent_id", id, "state", a.Context().State().String())
	return &Stream{Agent: a, Events: events, Cancel: cancel}, nil
}

// ProvideClarification answers a parked agent without opening a stream.
func (s *Service) ProvideClarification(id, answer string) error {
	a, err := s.reg.Get(id)
	if err != nil {
		return err
	}
	return a.ProvideClarification(answer)
}

// GetAgentState returns a read-only snapshot of the agent's progress.
func (s *Service) GetAgentState(id string) (agent.Snapshot, error) {
	a, err := s.reg.Get(id)
	if err != nil {
		return agent.Snapshot{}, err
	}
	return a.Context().Snapshot(), nil
}

// ListAgents returns snapshots of every agent created in this process.
func (s *Service) ListAgents() []agent.Snapshot {
	return s.reg.List()
}

// Shutdown stops all running loops. Parked agents fail; the registry stays
// readable.
func (s *Service) Shutdown(timeout time.Duration) {
	s.stop()
	if timeout > 0 {
		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			if !s.anyRunning() {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
		s.logger.Warn("Shutdown timeout with loops still running")
	}
}

func (s *Service) anyRunning() bool {
	for _, snap := range s.reg.List() {
		if snap.State == core.StateResearching || snap.State == core.StateWaitingClarification {
			a, err := s.reg.Get(snap.ID)
			if err == nil && a.Running() {
				return true
			}
		}
	}
	return false
}
