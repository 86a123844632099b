// Package protocol translates loop events into OpenAI-compatible
// chat.completion.chunk frames. The agent identifier rides in the model
// field so a client can address follow-up requests to the same agent.
package protocol

import "time"

const chunkObject = "chat.completion.chunk"

// Chunk is one streamed frame. ChunkIndex increases monotonically within a
// response stream.
type Chunk struct {
	ID         string   `json:"id"`
	Object     string   `json:"object"`
	Created    int64    `json:"created"`
	Model      string   `json:"model"`
	ChunkIndex int      `json:"chunk_index"`
	Choices    []Choice `json:"choices"`
}

// Choice carries the delta payload. Index is always 0; one completion per
// stream.
type Choice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta mirrors the OpenAI streaming delta object.
type Delta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta streams one action: the name arrives once, then argument
// fragments accumulate into the action's JSON payload.
type ToolCallDelta struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function FunctionDelta `json:"function"`
}

// FunctionDelta carries the streamed function name and argument fragment.
type FunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

func now() int64 { return time.Now().Unix() }
