package optimizer

import "encoding/json"

// Kind is the wire name of an event, used as the SSE event field and the
// "type" member of the JSON payload.
type Kind string

const (
	KindStatus          Kind = "status"
	KindOriginalPrompt  Kind = "original_prompt"
	KindSuggestedPrompt Kind = "suggested_prompt"
	KindGuideline       Kind = "guideline"
	KindError           Kind = "error"
)

// Event is one item of an optimization run. The set of implementations is
// closed: Status, OriginalPrompt, SuggestedPrompt, Guideline and Error.
type Event interface {
	Kind() Kind
	isEvent()
}

// Status is a transient progress notice.
type Status struct {
	Message string `json:"message"`
}

// OriginalPrompt echoes the prompt the engine worked on.
type OriginalPrompt struct {
	Content string `json:"content"`
}

// SuggestedPrompt is the optimized prompt. At most one per run.
type SuggestedPrompt struct {
	Content string `json:"content"`
}

// Guideline is one improvement applied by the engine. Index is 1-based and
// follows the engine's ordering.
type Guideline struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Improvement string `json:"improvement"`
	Before      string `json:"before"`
	After       string `json:"after"`
}

// Error ends the productive part of a run. Always the last event if present.
type Error struct {
	Message string `json:"message"`
}

func (Status) Kind() Kind          { return KindStatus }
func (OriginalPrompt) Kind() Kind  { return KindOriginalPrompt }
func (SuggestedPrompt) Kind() Kind { return KindSuggestedPrompt }
func (Guideline) Kind() Kind       { return KindGuideline }
func (Error) Kind() Kind           { return KindError }

func (Status) isEvent()          {}
func (OriginalPrompt) isEvent()  {}
func (SuggestedPrompt) isEvent() {}
func (Guideline) isEvent()       {}
func (Error) isEvent()           {}

// MarshalEvent encodes ev as a flat JSON object tagged with its kind,
// e.g. {"type":"status","message":"..."}.
func MarshalEvent(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(ev.Kind())
	fields["type"] = kind
	return json.Marshal(fields)
}
