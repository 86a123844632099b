package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgrlab/deepresearch"
	"github.com/sgrlab/deepresearch/agent"
	"github.com/sgrlab/deepresearch/model"
	"github.com/sgrlab/deepresearch/prompts"
	"github.com/sgrlab/deepresearch/protocol"
	"github.com/sgrlab/deepresearch/search"
	"github.com/sgrlab/deepresearch/tool"
)

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	return []search.Result{{Title: "t", URL: "https://example.com/" + query, Snippet: "s"}}, nil
}

var runPayloads = []string{
	`{"tool": "generate_plan", "reasoning": "planning", "planned_steps": ["a"]}`,
	`{"tool": "web_search", "reasoning": "searching", "query": "q"}`,
	`{"tool": "create_report", "reasoning": "writing", "title": "T", "content": "b [1]"}`,
	`{"tool": "report_completion", "reasoning": "done", "summary": "s"}`,
}

func newTestServer(t *testing.T, payloads []string) (*httptest.Server, *deepresearch.Service) {
	t.Helper()
	renderer, err := prompts.New("")
	require.NoError(t, err)
	svc := deepresearch.NewService(agent.Deps{
		Model:    &model.ScriptedModel{Payloads: payloads, ChunkSize: 24},
		Executor: tool.NewExecutor(stubProvider{}, nil, nil),
		Prompts:  renderer,
	}, nil)
	srv := New(svc, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, svc
}

func postCompletion(t *testing.T, ts *httptest.Server, modelField, message string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"model":    modelField,
		"stream":   true,
		"messages": []map[string]string{{"role": "user", "content": message}},
	})
	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	return resp
}

// readChunks consumes the SSE body up to [DONE] and decodes every data line.
func readChunks(t *testing.T, resp *http.Response) []protocol.Chunk {
	t.Helper()
	defer resp.Body.Close()
	var chunks []protocol.Chunk
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return chunks
		}
		var chunk protocol.Chunk
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))
		chunks = append(chunks, chunk)
	}
	t.Fatal("stream ended without [DONE]")
	return nil
}

func TestChatCompletionStreamsRun(t *testing.T) {
	ts, _ := newTestServer(t, runPayloads)

	resp := postCompletion(t, ts, "deepresearch", "research something")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	agentID := resp.Header.Get("X-Agent-ID")
	require.NotEmpty(t, agentID)

	chunks := readChunks(t, resp)
	require.NotEmpty(t, chunks)

	var names []string
	var args strings.Builder
	for i, chunk := range chunks {
		require.Len(t, chunk.Choices, 1)
		assert.Equal(t, agentID, chunk.Model)
		if i == 0 {
			assert.Equal(t, "assistant", chunk.Choices[0].Delta.Role)
		}
		for _, tc := range chunk.Choices[0].Delta.ToolCalls {
			if tc.Function.Name != "" {
				names = append(names, tc.Function.Name)
			}
			args.WriteString(tc.Function.Arguments)
		}
	}
	assert.Equal(t, []string{"generate_plan", "web_search", "create_report", "report_completion"}, names)
	assert.Contains(t, args.String(), `"planned_steps"`)

	last := chunks[len(chunks)-1]
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "stop", *last.Choices[0].FinishReason)
}

func TestChatCompletionClarificationFinishReason(t *testing.T) {
	ts, _ := newTestServer(t, []string{
		`{"tool": "clarification", "reasoning": "unclear", "questions": ["which scope?"]}`,
	})

	resp := postCompletion(t, ts, "deepresearch", "vague")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	chunks := readChunks(t, resp)
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "tool_calls", *last.Choices[0].FinishReason)
}

func TestResumeByModelField(t *testing.T) {
	payloads := append([]string{
		`{"tool": "clarification", "reasoning": "unclear", "questions": ["which scope?"]}`,
	}, runPayloads...)
	ts, svc := newTestServer(t, payloads)

	resp := postCompletion(t, ts, "deepresearch", "vague")
	agentID := resp.Header.Get("X-Agent-ID")
	readChunks(t, resp)

	resumed := postCompletion(t, ts, agentID, "the first scope")
	require.Equal(t, http.StatusOK, resumed.StatusCode)
	assert.Equal(t, agentID, resumed.Header.Get("X-Agent-ID"))
	readChunks(t, resumed)

	snap, err := svc.GetAgentState(agentID)
	require.NoError(t, err)
	assert.Equal(t, "completed", snap.State.String())
}

func TestStreamFalseRejected(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	body := `{"model": "deepresearch", "messages": [{"role": "user", "content": "x"}]}`
	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMissingUserMessageRejected(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	body := `{"model": "deepresearch", "stream": true, "messages": [{"role": "system", "content": "x"}]}`
	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAgentStateEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, runPayloads)

	resp := postCompletion(t, ts, "deepresearch", "research something")
	agentID := resp.Header.Get("X-Agent-ID")
	readChunks(t, resp)

	stateResp, err := http.Get(ts.URL + "/agents/" + agentID + "/state")
	require.NoError(t, err)
	defer stateResp.Body.Close()
	require.Equal(t, http.StatusOK, stateResp.StatusCode)
	var snap map[string]any
	require.NoError(t, json.NewDecoder(stateResp.Body).Decode(&snap))
	assert.Equal(t, agentID, snap["id"])
	assert.Equal(t, "completed", snap["state"])

	listResp, err := http.Get(ts.URL + "/agents")
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	missing, err := http.Get(ts.URL + "/agents/nope/state")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestClarificationEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, append([]string{
		`{"tool": "clarification", "reasoning": "unclear", "questions": ["which?"]}`,
	}, runPayloads...))

	resp := postCompletion(t, ts, "deepresearch", "vague")
	agentID := resp.Header.Get("X-Agent-ID")
	readChunks(t, resp)

	body := `{"answer": "the first one"}`
	ansResp, err := http.Post(ts.URL+"/agents/"+agentID+"/clarification", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer ansResp.Body.Close()
	assert.Equal(t, http.StatusOK, ansResp.StatusCode)

	waitFor(t, func() bool {
		stateResp, err := http.Get(ts.URL + "/agents/" + agentID + "/state")
		if err != nil {
			return false
		}
		defer stateResp.Body.Close()
		var snap map[string]any
		if json.NewDecoder(stateResp.Body).Decode(&snap) != nil {
			return false
		}
		return snap["state"] == "completed"
	})
}

func TestClarificationNotWaitingRejected(t *testing.T) {
	ts, _ := newTestServer(t, runPayloads)

	resp := postCompletion(t, ts, "deepresearch", "research something")
	agentID := resp.Header.Get("X-Agent-ID")
	readChunks(t, resp)

	body := `{"answer": "nobody asked"}`
	ansResp, err := http.Post(ts.URL+"/agents/"+agentID+"/clarification", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer ansResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, ansResp.StatusCode)
}

func TestModelsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Data)
	assert.Equal(t, "deepresearch", out.Data[0].ID)
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never met")
}
