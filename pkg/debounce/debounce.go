// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package debounce collapses bursts of calls into a single delayed call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs only the most recently submitted function once no new
// submission has arrived for the configured delay.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	latest  func()
	stopped bool
}

// New creates a new Debouncer with the specified delay.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Do schedules fn, replacing any function still waiting to run.
// After Stop, fn runs synchronously.
func (d *Debouncer) Do(fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		fn()
		return
	}

	d.latest = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
	d.mu.Unlock()
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.latest
	d.latest = nil
	d.timer = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Queued reports whether a function is waiting to run.
func (d *Debouncer) Queued() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest != nil
}

// Stop flushes a pending function immediately and makes later calls synchronous.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fn := d.latest
	d.latest = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}
