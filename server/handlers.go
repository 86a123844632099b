package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sgrlab/deepresearch/agent"
	"github.com/sgrlab/deepresearch/protocol"
)

// chatRequest is the subset of the OpenAI chat completion request the
// service consumes. The model field doubles as the agent identifier on
// resume.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r *chatRequest) lastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return strings.TrimSpace(r.Messages[i].Content)
		}
	}
	return ""
}

func (s *Server) chatCompletions(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !req.Stream {
		return echo.NewHTTPError(http.StatusBadRequest, "this API is stream-only; set \"stream\": true")
	}
	message := req.lastUserContent()
	if message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "no user message provided")
	}

	stream, err := s.svc.CreateOrResumeAgent(req.Model, message)
	if err != nil {
		return httpError(err)
	}
	defer stream.Cancel()

	agentID := stream.Agent.Context().ID()
	resp := c.Response()
	resp.Header().Set("X-Agent-ID", agentID)
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	adapter := protocol.NewAdapter(agentID)
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			// client went away; the agent keeps running on the service
			// context and can be resumed by id later.
			s.logger.Debug("Client disconnected", "agent_id", agentID)
			return nil
		case ev, open := <-stream.Events:
			if !open {
				return writeDone(resp, flusher)
			}
			for _, chunk := range adapter.Translate(ev) {
				if err := writeChunk(resp, flusher, chunk); err != nil {
					return nil
				}
			}
			if ev.Kind == agent.EventDone {
				return writeDone(resp, flusher)
			}
		}
	}
}

func writeChunk(resp *echo.Response, flusher http.Flusher, chunk protocol.Chunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeDone(resp *echo.Response, flusher http.Flusher) error {
	_, err := fmt.Fprint(resp, "data: [DONE]\n\n")
	flusher.Flush()
	return err
}

func (s *Server) listModels(c echo.Context) error {
	now := time.Now().Unix()
	models := []map[string]any{
		{"id": s.opts.ModelAlias, "object": "model", "created": now, "owned_by": "deepresearch"},
	}
	// every live agent is addressable as a model for resume
	for _, snap := range s.svc.ListAgents() {
		models = append(models, map[string]any{
			"id": snap.ID, "object": "model", "created": now, "owned_by": "deepresearch",
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"object": "list", "data": models})
}

func (s *Server) listAgents(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"agents": s.svc.ListAgents()})
}

func (s *Server) agentState(c echo.Context) error {
	snap, err := s.svc.GetAgentState(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

type clarificationRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) clarification(c echo.Context) error {
	var req clarificationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Answer) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "answer is required")
	}
	if err := s.svc.ProvideClarification(c.Param("id"), req.Answer); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}
