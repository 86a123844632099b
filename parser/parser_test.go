package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgrlab/deepresearch/schema"
)

func allKinds() []schema.Kind { return schema.Kinds() }

func feedAll(p *Parser, payload string, chunk int) []Delta {
	var out []Delta
	for i := 0; i < len(payload); i += chunk {
		end := i + chunk
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, p.Feed(payload[i:end])...)
	}
	out = append(out, p.Close()...)
	return out
}

func concatField(deltas []Delta, field string) string {
	var sb strings.Builder
	for _, d := range deltas {
		if d.Kind == DeltaFieldText && d.Field == field {
			sb.WriteString(d.Value)
		}
	}
	return sb.String()
}

func TestTagEmittedOnUnambiguousPrefix(t *testing.T) {
	p := New(allKinds())

	deltas := p.Feed(`{"tool": "web_s`)
	require.Len(t, deltas, 1)
	assert.Equal(t, DeltaTag, deltas[0].Kind)
	assert.Equal(t, "web_search", deltas[0].Action)

	deltas = p.Feed(`earch", "reasoning": "check", "query": "go slog", "max_results": 5}`)
	p.Close()
	assert.True(t, p.Done())
	assert.Equal(t, "web_search", p.Tag())

	// completing the tag must not produce a second DeltaTag
	for _, d := range deltas {
		assert.NotEqual(t, DeltaTag, d.Kind)
	}
}

func TestAmbiguousPrefixWaits(t *testing.T) {
	// "clarification" and "create_report" share the prefix "c", so one
	// character is not enough to identify the action.
	p := New([]schema.Kind{schema.KindClarification, schema.KindCreateReport})

	deltas := p.Feed(`{"tool": "`)
	assert.Empty(t, deltas)

	deltas = p.Feed(`c`)
	assert.Empty(t, deltas, "prefix matches both allowed tags")

	deltas = p.Feed(`la`)
	require.Len(t, deltas, 1)
	assert.Equal(t, DeltaTag, deltas[0].Kind)
	assert.Equal(t, "clarification", deltas[0].Action)
}

func TestDisallowedTagFails(t *testing.T) {
	p := New([]schema.Kind{schema.KindCreateReport, schema.KindReportCompletion})

	deltas := p.Feed(`{"tool": "web_search", "reasoning": "x", "query": "y"}`)
	require.NotEmpty(t, deltas)
	last := deltas[len(deltas)-1]
	assert.Equal(t, DeltaError, last.Kind)
	require.Error(t, last.Err)
	assert.True(t, p.Failed())

	// terminal: further input produces nothing
	assert.Empty(t, p.Feed(`{"tool"`))
	assert.Empty(t, p.Close())
}

func TestFieldTextConcatenationEqualsFinalValue(t *testing.T) {
	payload := `{"tool": "create_report", "reasoning": "enough sources gathered",` +
		` "title": "Go Structured Logging", "content": "## Findings\n\nslog [1] is standard.",` +
		` "citations": [1, 2], "confidence": "high"}`

	for _, chunk := range []int{1, 3, 7, len(payload)} {
		p := New(allKinds())
		deltas := feedAll(p, payload, chunk)

		require.True(t, p.Done(), "chunk size %d", chunk)
		assert.Equal(t, "## Findings\n\nslog [1] is standard.", concatField(deltas, "content"))
		assert.Equal(t, "Go Structured Logging", concatField(deltas, "title"))

		action, err := schema.Validate([]byte(p.Raw()))
		require.NoError(t, err)
		report, ok := action.(*schema.CreateReport)
		require.True(t, ok)
		assert.Equal(t, concatField(deltas, "content"), report.Body)
	}
}

func TestDeterministicAcrossChunkings(t *testing.T) {
	payload := `{"tool": "generate_plan", "reasoning": "fresh task",` +
		` "research_goal": "compare go loggers", "planned_steps": ["survey", "benchmark", "summarize"],` +
		` "search_strategies": ["official docs first"]}`

	fine := feedAll(New(allKinds()), payload, 2)
	coarse := feedAll(New(allKinds()), payload, len(payload))

	assert.Equal(t, collapse(fine), collapse(coarse))
}

// collapse folds consecutive DeltaFieldText deltas so chunk-size differences
// in fragmentation do not affect comparison.
func collapse(deltas []Delta) []Delta {
	var out []Delta
	for _, d := range deltas {
		if d.Kind == DeltaFieldText && len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.Kind == DeltaFieldText && prev.Field == d.Field {
				prev.Value += d.Value
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

func TestListItemsEmittedOnClose(t *testing.T) {
	payload := `{"tool": "adapt_plan", "reasoning": "search surfaced a better angle",` +
		` "updated_steps": ["read zap docs", "rerun comparison"], "reason": "new evidence"}`

	deltas := feedAll(New(allKinds()), payload, 4)

	var items []Delta
	for _, d := range deltas {
		if d.Kind == DeltaItem {
			items = append(items, d)
		}
	}
	require.Len(t, items, 2)
	assert.Equal(t, "updated_steps", items[0].Field)
	assert.Equal(t, 0, items[0].Index)
	assert.Equal(t, "read zap docs", items[0].Value)
	assert.Equal(t, 1, items[1].Index)
	assert.Equal(t, "rerun comparison", items[1].Value)
}

func TestNumericAndLiteralFields(t *testing.T) {
	payload := `{"tool": "web_search", "reasoning": "narrow query", "query": "golang viper", "max_results": 7}`

	deltas := feedAll(New(allKinds()), payload, 5)

	var maxResults string
	for _, d := range deltas {
		if d.Kind == DeltaFieldDone && d.Field == "max_results" {
			maxResults = d.Value
		}
	}
	assert.Equal(t, "7", maxResults)
}

func TestEscapesAcrossFragmentBoundaries(t *testing.T) {
	p := New(allKinds())
	var deltas []Delta
	deltas = append(deltas, p.Feed(`{"tool": "report_completion", "reasoning": "done", "summary": "line\`)...)
	deltas = append(deltas, p.Feed(`nbreak and \u00e9\`)...)
	deltas = append(deltas, p.Feed(`u00b5"}`)...)
	deltas = append(deltas, p.Close()...)

	require.True(t, p.Done())
	assert.Equal(t, "line\nbreak and \u00e9\u00b5", concatField(deltas, "summary"))
}

func TestSurrogatePairEscape(t *testing.T) {
	p := New(allKinds())
	deltas := feedAll(p, `{"tool": "report_completion", "reasoning": "r", "summary": "\ud83d\ude00"}`, 3)

	require.True(t, p.Done())
	assert.Equal(t, "\U0001F600", concatField(deltas, "summary"))
}

func TestTruncatedStream(t *testing.T) {
	p := New(allKinds())
	p.Feed(`{"tool": "web_search", "reasoning": "cut off mid`)

	deltas := p.Close()
	require.Len(t, deltas, 1)
	assert.Equal(t, DeltaError, deltas[0].Kind)
	require.Error(t, deltas[0].Err)
	assert.False(t, p.Done())
	assert.True(t, p.Failed())
}

func TestMalformedInput(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not an object", `["tool"]`},
		{"bare key", `{tool: "web_search"}`},
		{"missing colon", `{"tool" "web_search"}`},
		{"trailing garbage", `{"tool": "web_search", "reasoning": "r", "query": "q"} extra`},
		{"mismatched bracket", `{"tool": "web_search", "reasoning": "r", "query": ["a"}}`},
		{"bad literal", `{"tool": "web_search", "reasoning": "r", "max_results": 1e}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := New(allKinds())
			deltas := p.Feed(tc.payload)
			deltas = append(deltas, p.Close()...)
			var sawErr bool
			for _, d := range deltas {
				if d.Kind == DeltaError {
					sawErr = true
				}
			}
			assert.True(t, sawErr)
			assert.True(t, p.Failed())
		})
	}
}

func TestNestedContainersProduceNoFieldDeltas(t *testing.T) {
	// unknown nested structure is tolerated structurally; validation rejects
	// it later, but the scanner must not emit deltas for nested members
	payload := `{"tool": "web_search", "reasoning": "r", "query": "q", "extra": {"deep": ["x"]}}`

	deltas := feedAll(New(allKinds()), payload, 6)
	for _, d := range deltas {
		assert.NotEqual(t, "deep", d.Field)
	}
}

func TestRawAccumulatesVerbatim(t *testing.T) {
	payload := `{"tool": "clarification", "reasoning": "ambiguous", "questions": ["which version?"]}`
	p := New(allKinds())
	feedAll(p, payload, 9)
	assert.Equal(t, payload, p.Raw())
}
