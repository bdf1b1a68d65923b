package gateway

import (
	"encoding/json"
	"fmt"
)

// Frame is the envelope of every gateway message in both directions. Seq is
// present only on sequenced server dispatches.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Seq   *int64          `json:"seq,omitempty"`
}

// marshalFrame serialises an unsequenced frame.
func marshalFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// marshalDispatch serialises a sequenced dispatch frame.
func marshalDispatch(seq int64, event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: data, Seq: &seq})
}
