// Package queue holds the step queue delivery model and the non-SQL queue backends.
//
// Every backend gives at-least-once delivery: a received message is hidden for a
// visibility window and handed out again unless it is acked before the window expires.
// Ordering is not guaranteed, not even within one execution.
package queue

import (
	"encoding/json"
	"errors"

	"github.com/RealZimboGuy/stepflow/pkg/stepflow/domain"
)

// ErrStaleReceipt is returned when a delivery's receipt no longer owns the message,
// usually because the visibility window expired and another consumer received it.
var ErrStaleReceipt = errors.New("queue: stale receipt")

// Delivery is one receipt of a step message.
type Delivery struct {
	MessageID    string
	Receipt      string
	ReceiveCount int
	Message      domain.StepMessage
}

// EncodeMessage serialises a step message to its wire form.
func EncodeMessage(msg domain.StepMessage) (string, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeMessage parses the wire form of a step message.
func DecodeMessage(body string) (domain.StepMessage, error) {
	var msg domain.StepMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return domain.StepMessage{}, err
	}
	if msg.WorkflowID == "" || msg.ExecutionID == "" || msg.StepIndex < 0 || msg.Step.Type == "" {
		return domain.StepMessage{}, errors.New("queue: step message is missing required fields")
	}
	return msg, nil
}
