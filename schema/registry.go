package schema

import (
	"encoding/json"
	"fmt"
)

// ErrorKind categorizes validation failures of raw structured payloads.
type ErrorKind string

const (
	// ErrUnknownAction means the "tool" tag does not name a known variant.
	ErrUnknownAction ErrorKind = "UNKNOWN_ACTION"
	// ErrMissingField means a required field of the variant is absent.
	ErrMissingField ErrorKind = "MISSING_FIELD"
	// ErrTypeMismatch means a field value has the wrong JSON type.
	ErrTypeMismatch ErrorKind = "TYPE_MISMATCH"
)

// Error is a strict-validation failure. It is recoverable: the loop records
// it, appends a corrective message and retries the step.
type Error struct {
	ErrKind ErrorKind
	Tag     string
	Field   string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema error [%s] field %q: %s", e.ErrKind, e.Field, e.Message)
	}
	return fmt.Sprintf("schema error [%s]: %s", e.ErrKind, e.Message)
}

// fieldSpec describes one field of a variant for schema emission and strict
// validation. jsonType is one of string, integer, array (of strings or
// integers per itemType).
type fieldSpec struct {
	name        string
	jsonType    string
	itemType    string
	required    bool
	description string
}

var variantFields = map[Kind][]fieldSpec{
	KindClarification: {
		{name: "reasoning", jsonType: "string", required: true, description: "Why clarification is needed"},
		{name: "unclear_terms", jsonType: "array", itemType: "string", description: "Unclear terms or concepts"},
		{name: "assumptions", jsonType: "array", itemType: "string", description: "Possible interpretations to verify"},
		{name: "questions", jsonType: "array", itemType: "string", required: true, description: "Specific clarifying questions"},
	},
	KindGeneratePlan: {
		{name: "reasoning", jsonType: "string", required: true, description: "Justification for the research approach"},
		{name: "research_goal", jsonType: "string", description: "Primary research objective"},
		{name: "planned_steps", jsonType: "array", itemType: "string", required: true, description: "Ordered planned steps"},
		{name: "search_strategies", jsonType: "array", itemType: "string", description: "Information search strategies"},
	},
	KindWebSearch: {
		{name: "reasoning", jsonType: "string", required: true, description: "Why this search is needed and what to expect"},
		{name: "query", jsonType: "string", required: true, description: "Search query in the language of the user request"},
		{name: "max_results", jsonType: "integer", description: "Maximum number of results"},
	},
	KindAdaptPlan: {
		{name: "reasoning", jsonType: "string", required: true, description: "Why the plan needs adaptation"},
		{name: "updated_steps", jsonType: "array", itemType: "string", required: true, description: "Updated remaining plan steps"},
		{name: "reason", jsonType: "string", required: true, description: "What changed in the findings"},
	},
	KindCreateReport: {
		{name: "reasoning", jsonType: "string", required: true, description: "Why the report can be written now"},
		{name: "title", jsonType: "string", required: true, description: "Report title"},
		{name: "content", jsonType: "string", required: true, description: "Comprehensive report body in markdown"},
		{name: "citations", jsonType: "array", itemType: "integer", description: "Citation numbers of referenced sources"},
		{name: "confidence", jsonType: "string", description: "Confidence in findings: high, medium or low"},
	},
	KindReportCompletion: {
		{name: "reasoning", jsonType: "string", required: true, description: "Why the research is complete"},
		{name: "summary", jsonType: "string", required: true, description: "Short completion summary"},
	},
}

var variantDescriptions = map[Kind]string{
	KindClarification:    "Ask clarifying questions when facing an ambiguous request",
	KindGeneratePlan:     "Generate a research plan for a clear user request",
	KindWebSearch:        "Search the web for information with credibility focus",
	KindAdaptPlan:        "Adapt the research plan based on new findings",
	KindCreateReport:     "Create a comprehensive research report with citations",
	KindReportCompletion: "Complete the research task",
}

// Known reports whether tag names a registered variant.
func Known(tag string) bool {
	_, ok := variantFields[Kind(tag)]
	return ok
}

// Description returns the natural language description of a variant,
// exposed to models alongside its schema.
func Description(k Kind) string { return variantDescriptions[k] }

// VariantSchema returns the JSON schema object for a single variant,
// including the constant "tool" discriminator.
func VariantSchema(k Kind) map[string]any {
	fields, ok := variantFields[k]
	if !ok {
		return nil
	}
	properties := map[string]any{
		"tool": map[string]any{"type": "string", "const": string(k)},
	}
	required := []string{"tool"}
	for _, f := range fields {
		prop := map[string]any{"type": f.jsonType}
		if f.jsonType == "array" {
			prop["items"] = map[string]any{"type": f.itemType}
		}
		if f.description != "" {
			prop["description"] = f.description
		}
		properties[f.name] = prop
		if f.required {
			required = append(required, f.name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"description":          variantDescriptions[k],
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// UnionSchema builds a oneOf schema over the allowed variant set,
// discriminated by the "tool" field. The model provider expresses this
// constraint natively (structured output) or as an enumerated function
// list; callers only depend on this structural description.
func UnionSchema(allowed []Kind) map[string]any {
	variants := make([]any, 0, len(allowed))
	for _, k := range allowed {
		if vs := VariantSchema(k); vs != nil {
			variants = append(variants, vs)
		}
	}
	return map[string]any{"oneOf": variants}
}

// Validate strictly parses a complete raw structured payload into a typed
// Action, returned as a pointer to the variant struct (*WebSearch,
// *CreateReport, ...) so callers dispatch with a single type switch. Unknown
// top-level tags, missing required fields and JSON type mismatches fail with
// a categorized *Error. No side effects.
func Validate(raw []byte) (Action, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &Error{ErrKind: ErrTypeMismatch, Message: fmt.Sprintf("payload is not a JSON object: %v", err)}
	}

	tagVal, ok := payload["tool"]
	if !ok {
		return nil, &Error{ErrKind: ErrMissingField, Field: "tool", Message: "action tag is missing"}
	}
	tag, ok := tagVal.(string)
	if !ok {
		return nil, &Error{ErrKind: ErrTypeMismatch, Field: "tool", Message: fmt.Sprintf("action tag must be a string, got %T", tagVal)}
	}
	kind := Kind(tag)
	fields, ok := variantFields[kind]
	if !ok {
		return nil, &Error{ErrKind: ErrUnknownAction, Tag: tag, Message: fmt.Sprintf("unknown action %q", tag)}
	}

	for _, f := range fields {
		v, present := payload[f.name]
		if !present || v == nil {
			if f.required {
				return nil, &Error{ErrKind: ErrMissingField, Tag: tag, Field: f.name, Message: "required field is missing"}
			}
			continue
		}
		if err := checkType(kind, f, v); err != nil {
			return nil, err
		}
	}

	return decode(kind, raw)
}

func checkType(k Kind, f fieldSpec, v any) error {
	mismatch := func() error {
		return &Error{
			ErrKind: ErrTypeMismatch,
			Tag:     string(k),
			Field:   f.name,
			Message: fmt.Sprintf("expected %s, got %T", f.jsonType, v),
		}
	}
	switch f.jsonType {
	case "string":
		if _, ok := v.(string); !ok {
			return mismatch()
		}
	case "integer":
		n, ok := v.(float64)
		if !ok || n != float64(int64(n)) {
			return mismatch()
		}
	case "array":
		items, ok := v.([]any)
		if !ok {
			return mismatch()
		}
		for _, item := range items {
			switch f.itemType {
			case "string":
				if _, ok := item.(string); !ok {
					return mismatch()
				}
			case "integer":
				n, ok := item.(float64)
				if !ok || n != float64(int64(n)) {
					return mismatch()
				}
			}
		}
	}
	return nil
}

func decode(k Kind, raw []byte) (Action, error) {
	var (
		action Action
		err    error
	)
	switch k {
	case KindClarification:
		var a Clarification
		err = json.Unmarshal(raw, &a)
		action = &a
	case KindGeneratePlan:
		var a GeneratePlan
		err = json.Unmarshal(raw, &a)
		action = &a
	case KindWebSearch:
		var a WebSearch
		err = json.Unmarshal(raw, &a)
		action = &a
	case KindAdaptPlan:
		var a AdaptPlan
		err = json.Unmarshal(raw, &a)
		action = &a
	case KindCreateReport:
		var a CreateReport
		err = json.Unmarshal(raw, &a)
		action = &a
	case KindReportCompletion:
		var a ReportCompletion
		err = json.Unmarshal(raw, &a)
		action = &a
	}
	if err != nil {
		return nil, &Error{ErrKind: ErrTypeMismatch, Tag: string(k), Message: err.Error()}
	}
	return action, nil
}

// Marshal serializes an action back to its wire payload including the
// "tool" discriminator. Used when recording the selected action in
// conversation history as a tool call.
func Marshal(a Action) (string, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	// Inject the discriminator the variant structs do not carry themselves.
	if len(body) >= 2 && body[0] == '{' {
		tag, _ := json.Marshal(string(a.Kind()))
		if len(body) == 2 {
			return fmt.Sprintf(`{"tool":%s}`, tag), nil
		}
		return fmt.Sprintf(`{"tool":%s,%s`, tag, body[1:]), nil
	}
	return string(body), nil
}
