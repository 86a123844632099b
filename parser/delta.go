// Package parser turns a lazy sequence of raw model-output fragments into a
// lazy sequence of typed, monotonically more complete action deltas. The
// payload is a single JSON object produced left to right; the parser emits
// field content while the object is still streaming so the protocol adapter
// can forward progress without waiting for the full payload.
//
// Deltas are a responsiveness optimization only. Authority over the final
// action rests with schema.Validate applied to the complete payload.
package parser

import "fmt"

// DeltaKind discriminates the incremental events emitted by the parser.
type DeltaKind string

const (
	// DeltaTag identifies the action variant. Emitted exactly once, as
	// soon as the streamed "tool" value unambiguously selects one variant
	// of the allowed set.
	DeltaTag DeltaKind = "tag"
	// DeltaFieldText carries newly appended text of a string field that is
	// still streaming. Concatenating all DeltaFieldText for a field yields
	// exactly the final field value.
	DeltaFieldText DeltaKind = "field_text"
	// DeltaFieldDone marks a scalar field complete. Value holds the final
	// field content and never changes afterwards.
	DeltaFieldDone DeltaKind = "field_done"
	// DeltaItem carries one fully closed element of a list field.
	DeltaItem DeltaKind = "item"
	// DeltaError is terminal. No further deltas follow; the caller must
	// treat the whole step as a validation failure.
	DeltaError DeltaKind = "error"
)

// Delta is one incremental event of an in-progress action.
type Delta struct {
	Kind   DeltaKind
	Action string // variant tag, set from DeltaTag onwards
	Field  string // top-level field name for field/item deltas
	Value  string // appended text, final scalar value or item value
	Index  int    // element index for DeltaItem
	Err    *ParseError
}

// ParseError reports unrecoverable stream corruption: broken bracket
// nesting, a truncated stream, or an action tag outside the allowed set.
type ParseError struct {
	Pos     int
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at byte %d: %s", e.Pos, e.Message)
}
