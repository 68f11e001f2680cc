package domain

import "time"

type Executor struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Started    time.Time `json:"started"`
	LastActive time.Time `json:"last_active"`
}
