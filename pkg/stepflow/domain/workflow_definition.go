package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowDefinition is the immutable ordered list of steps registered under a workflow id.
type WorkflowDefinition struct {
	WorkflowID string
	Steps      []StepDefinition
	Created    time.Time
	Version    int
}

// TotalSteps is the authoritative number of steps used for sequencing decisions.
func (d *WorkflowDefinition) TotalSteps() int {
	return len(d.Steps)
}

// Step returns the step at index or false when the index is outside the definition.
func (d *WorkflowDefinition) Step(index int) (StepDefinition, bool) {
	if index < 0 || index >= len(d.Steps) {
		return StepDefinition{}, false
	}
	return d.Steps[index], true
}

// StepDefinition is a discriminated step: Type selects the executor, Params holds everything else.
// On the wire the params sit next to "type", e.g. {"type":"log","message":"hello"}.
type StepDefinition struct {
	Type   string
	Params map[string]any
}

// StepFromMap builds a StepDefinition from a flat map carrying a "type" key.
func StepFromMap(m map[string]any) (StepDefinition, error) {
	raw, ok := m["type"]
	if !ok {
		return StepDefinition{}, fmt.Errorf("%w: step is missing type", ErrInvalidInput)
	}
	t, ok := raw.(string)
	if !ok || t == "" {
		return StepDefinition{}, fmt.Errorf("%w: step type must be a non-empty string", ErrInvalidInput)
	}
	params := make(map[string]any, len(m)-1)
	for k, v := range m {
		if k == "type" {
			continue
		}
		params[k] = v
	}
	return StepDefinition{Type: t, Params: params}, nil
}

// ToMap flattens the step back into its wire form.
func (s StepDefinition) ToMap() map[string]any {
	m := make(map[string]any, len(s.Params)+1)
	for k, v := range s.Params {
		m[k] = v
	}
	m["type"] = s.Type
	return m
}

// StringParam returns a string parameter and whether it was present as a string.
func (s StepDefinition) StringParam(key string) (string, bool) {
	v, ok := s.Params[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// BoolParam returns a boolean parameter, false when absent or not a bool.
func (s StepDefinition) BoolParam(key string) bool {
	v, ok := s.Params[key].(bool)
	return ok && v
}

// IsZero reports whether the step carries neither a type nor params.
func (s StepDefinition) IsZero() bool {
	return s.Type == "" && len(s.Params) == 0
}

// MarshalJSON writes a zero step as null so it reads back as a zero step.
func (s StepDefinition) MarshalJSON() ([]byte, error) {
	if s.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(s.ToMap())
}

func (s *StepDefinition) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) == 0 {
		// null or {}
		*s = StepDefinition{}
		return nil
	}
	step, err := StepFromMap(m)
	if err != nil {
		return err
	}
	*s = step
	return nil
}

// DefinitionBody is the persisted JSON document of a workflow definition.
type DefinitionBody struct {
	Steps []StepDefinition `json:"steps"`
}
