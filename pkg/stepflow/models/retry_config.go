package models

import "time"

// RetryConfig controls how long a step message stays hidden after a failed attempt
// before the queue hands it out again.
type RetryConfig struct {
	MaxReceiveCount  int
	RetryIntervalMin time.Duration
	RetryIntervalMax time.Duration
}

// SlidingInterval returns a retry interval between min and max based on the current receive count.
func (rc *RetryConfig) SlidingInterval(receiveCount int) time.Duration {
	if receiveCount <= 1 || rc.MaxReceiveCount <= 1 {
		return rc.RetryIntervalMin
	}
	if receiveCount >= rc.MaxReceiveCount {
		return rc.RetryIntervalMax
	}
	scale := float64(receiveCount-1) / float64(rc.MaxReceiveCount-1)
	return rc.RetryIntervalMin + time.Duration(scale*float64(rc.RetryIntervalMax-rc.RetryIntervalMin))
}
