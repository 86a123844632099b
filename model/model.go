// Package model defines the abstraction over language model backends used by
// the research loop. A Model streams the raw text of a single structured
// completion; the parser package turns those fragments into typed deltas.
package model

import (
	"context"
	"sync"

	"github.com/sgrlab/deepresearch/core"
)

// Request captures one completion call. Schema constrains the output to a
// single JSON action object; the backend decides how to enforce it
// (response_format for OpenAI, forced tool use for Anthropic).
type Request struct {
	Messages   []core.Message
	Schema     map[string]any
	SchemaName string
}

// Fragment is one streamed piece of the completion text. FinishReason is set
// only on the final fragment of a call ("stop", "length", ...).
type Fragment struct {
	Text         string
	FinishReason string
}

// Model streams structured completions. Implementations must close both
// channels when the call finishes and honor context cancellation.
//
// Contract:
//   - fragments arrive in order; concatenated they form the full payload
//   - at most one error is sent, after which both channels close
type Model interface {
	// Name identifies the backend and model for logging.
	Name() string

	// Complete issues the request and streams the raw completion text.
	Complete(ctx context.Context, req Request) (<-chan Fragment, <-chan error)
}

// ScriptedModel replays canned payloads, one per Complete call, split into
// fixed-size chunks. Used in tests to drive the loop deterministically.
type ScriptedModel struct {
	// Payloads are consumed in order; a call beyond the script returns Errs
	// overflow or an empty stream.
	Payloads  []string
	ChunkSize int

	// Errs maps call index to an error delivered instead of a payload.
	Errs map[int]error

	mu       sync.Mutex
	requests []Request
	calls    int
}

// Name implements Model.
func (s *ScriptedModel) Name() string { return "scripted" }

// Complete implements Model by chunking the next scripted payload.
func (s *ScriptedModel) Complete(ctx context.Context, req Request) (<-chan Fragment, <-chan error) {
	out := make(chan Fragment, 32)
	errCh := make(chan error, 1)

	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errCh)

		if err, ok := s.Errs[idx]; ok {
			errCh <- err
			return
		}
		if idx >= len(s.Payloads) {
			out <- Fragment{FinishReason: "stop"}
			return
		}

		payload := s.Payloads[idx]
		chunk := s.ChunkSize
		if chunk <= 0 {
			chunk = len(payload)
		}
		for i := 0; i < len(payload); i += chunk {
			end := i + chunk
			if end > len(payload) {
				end = len(payload)
			}
			select {
			case out <- Fragment{Text: payload[i:end]}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		out <- Fragment{FinishReason: "stop"}
	}()

	return out, errCh
}

// Calls reports how many Complete calls the script has served.
func (s *ScriptedModel) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// RecordedRequests returns a snapshot of every request seen so far, for
// assertions.
func (s *ScriptedModel) RecordedRequests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
