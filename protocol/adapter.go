package protocol

import (
	"strings"

	"github.com/sgrlab/deepresearch/agent"
	"github.com/sgrlab/deepresearch/core"
	"github.com/sgrlab/deepresearch/parser"
)

// Adapter converts one agent's loop events into an ordered chunk stream for
// a single client connection. It is stateful (chunk numbering, per-step tool
// call bookkeeping) and must not be shared between connections.
type Adapter struct {
	agentID  string
	streamID string

	seq      int
	roleSent bool

	step       int
	callIndex  int
	tagSent    bool
	rawBuf     strings.Builder
	rawPending bool
}

// NewAdapter creates an adapter for one response stream.
func NewAdapter(agentID string) *Adapter {
	return &Adapter{agentID: agentID, streamID: "chatcmpl-" + core.NewID(), step: -1}
}

// Translate maps one loop event onto zero or more wire chunks, preserving
// event order.
func (a *Adapter) Translate(ev agent.Event) []Chunk {
	a.enterStep(ev.Step)

	switch ev.Kind {
	case agent.EventRaw:
		return a.onRaw(ev.Raw)
	case agent.EventDelta:
		return a.onDelta(ev.Delta)
	case agent.EventToolResult:
		return []Chunk{a.content("\n" + strings.TrimSpace(ev.Result) + "\n")}
	case agent.EventState:
		return nil
	case agent.EventDone:
		return []Chunk{a.final(finishReason(ev.Reason))}
	default:
		return nil
	}
}

// enterStep resets per-step tool call state when a new step begins.
func (a *Adapter) enterStep(step int) {
	if step == a.step {
		return
	}
	if a.step >= 0 {
		a.callIndex++
	}
	a.step = step
	a.tagSent = false
	a.rawBuf.Reset()
	a.rawPending = false
}

// onRaw buffers argument fragments until the action tag is known, then
// streams them verbatim so the concatenated arguments equal the payload.
func (a *Adapter) onRaw(raw string) []Chunk {
	if !a.tagSent {
		a.rawBuf.WriteString(raw)
		a.rawPending = true
		return nil
	}
	return []Chunk{a.toolCall(ToolCallDelta{
		Index:    a.callIndex,
		Function: FunctionDelta{Arguments: raw},
	})}
}

func (a *Adapter) onDelta(d parser.Delta) []Chunk {
	switch d.Kind {
	case parser.DeltaTag:
		a.tagSent = true
		chunks := []Chunk{a.toolCall(ToolCallDelta{
			Index:    a.callIndex,
			ID:       "call_" + core.NewID(),
			Type:     "function",
			Function: FunctionDelta{Name: d.Action},
		})}
		if a.rawPending {
			chunks = append(chunks, a.toolCall(ToolCallDelta{
				Index:    a.callIndex,
				Function: FunctionDelta{Arguments: a.rawBuf.String()},
			}))
			a.rawBuf.Reset()
			a.rawPending = false
		}
		return chunks
	case parser.DeltaFieldText:
		// reasoning doubles as narrative progress for plain chat clients
		if d.Field == "reasoning" {
			return []Chunk{a.content(d.Value)}
		}
		return nil
	case parser.DeltaError:
		return []Chunk{a.content("\n[malformed model output, retrying]\n")}
	default:
		return nil
	}
}

func (a *Adapter) content(text string) Chunk {
	return a.chunk(Delta{Content: text}, nil)
}

func (a *Adapter) toolCall(tc ToolCallDelta) Chunk {
	return a.chunk(Delta{ToolCalls: []ToolCallDelta{tc}}, nil)
}

func (a *Adapter) final(reason string) Chunk {
	return a.chunk(Delta{}, &reason)
}

func (a *Adapter) chunk(delta Delta, finish *string) Chunk {
	if !a.roleSent && finish == nil {
		delta.Role = "assistant"
		a.roleSent = true
	}
	c := Chunk{
		ID:         a.streamID,
		Object:     chunkObject,
		Created:    now(),
		Model:      a.agentID,
		ChunkIndex: a.seq,
		Choices:    []Choice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
	a.seq++
	return c
}

// finishReason maps loop termination reasons onto wire finish reasons.
// Clarification parks surface as tool_calls so clients know the agent wants
// input back.
func finishReason(reason string) string {
	switch reason {
	case "clarification":
		return "tool_calls"
	default:
		return "stop"
	}
}
