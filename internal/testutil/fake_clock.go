// Package testutil holds shared fixtures for package tests: a controllable clock,
// a migrated SQLite database and container-backed Postgres, MySQL and Redis instances.
package testutil

import (
	"sync"
	"time"
)

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// FakeClock implements core.Clock. Time only moves through Add or Set, and After
// channels fire once the fake time reaches their deadline.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &waiter{deadline: c.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		w.ch <- c.now
		return w.ch
	}
	c.waiters = append(c.waiters, w)
	return w.ch
}

func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Add moves fake time forward by d.
func (c *FakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveTo(c.now.Add(d))
}

// Set jumps fake time to t. Moving backwards is allowed and fires nothing.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moveTo(t)
}

// Pending is the number of After channels that have not fired yet.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *FakeClock) moveTo(t time.Time) {
	c.now = t
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if w.deadline.After(t) {
			kept = append(kept, w)
			continue
		}
		w.ch <- t
	}
	c.waiters = kept
}
