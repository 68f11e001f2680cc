package domain

import "time"

// DeadLetter is a step message that was given up on, kept for operational inspection.
type DeadLetter struct {
	ID           string      `json:"id"`
	Queue        string      `json:"queue"`
	Message      StepMessage `json:"message"`
	Reason       string      `json:"reason"`
	ReceiveCount int         `json:"receive_count"`
	FailedAt     time.Time   `json:"failed_at"`
}
