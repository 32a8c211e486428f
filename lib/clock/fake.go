// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time only moves when Advance is
// called. Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	counter uint64
}

type fakeTimer struct {
	deadline time.Time
	order    uint64
	callback func()
	channel  chan time.Time
	done     bool
}

// Fake returns a FakeClock set to start.
func Fake(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock has been
// advanced by d. A non-positive d delivers immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.schedule(d, &fakeTimer{channel: channel})
	return channel
}

// AfterFunc schedules f. Callbacks run synchronously inside Advance on
// the advancing goroutine; a non-positive d runs f before returning.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mu.Lock()
	timer := &fakeTimer{callback: f}
	c.schedule(d, timer)
	c.mu.Unlock()

	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.done {
			return false
		}
		timer.done = true
		return true
	}}
}

// schedule registers timer. Caller holds c.mu.
func (c *FakeClock) schedule(d time.Duration, timer *fakeTimer) {
	c.counter++
	timer.deadline = c.now.Add(d)
	timer.order = c.counter
	c.pending = append(c.pending, timer)
}

// Advance moves the clock forward by d and fires every timer whose
// deadline is reached, earliest first. Timers scheduled by a callback
// fire within the same Advance if their deadline is also reached.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		if next.deadline.After(c.now) {
			c.now = next.deadline
		}
		fireTime := c.now
		c.mu.Unlock()

		if next.callback != nil {
			next.callback()
		} else {
			select {
			case next.channel <- fireTime:
			default:
			}
		}
	}
}

// nextDueLocked removes finished timers and returns the earliest timer
// due at or before target, or nil.
func (c *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	live := c.pending[:0]
	for _, timer := range c.pending {
		if !timer.done {
			live = append(live, timer)
		}
	}
	c.pending = live

	sort.Slice(c.pending, func(i, j int) bool {
		if !c.pending[i].deadline.Equal(c.pending[j].deadline) {
			return c.pending[i].deadline.Before(c.pending[j].deadline)
		}
		return c.pending[i].order < c.pending[j].order
	})
	if len(c.pending) == 0 || c.pending[0].deadline.After(target) {
		return nil
	}
	return c.pending[0]
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, timer := range c.pending {
		if !timer.done {
			count++
		}
	}
	return count
}
