// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scheduler fires jobs on cron expressions. A job never overlaps
// itself and may trigger other jobs when it finishes.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog/log"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Observer is told about every finished run.
type Observer func(job string, duration time.Duration, err error)

type entry struct {
	job      Job
	schedule string
	then     []string
	running  atomic.Bool
}

type Scheduler struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	order    []string
	observer Observer
	wg       sync.WaitGroup
	now      func() time.Time
}

func New(observer Observer) *Scheduler {
	return &Scheduler{
		entries:  make(map[string]*entry),
		observer: observer,
		now:      time.Now,
	}
}

// Register adds job. An empty schedule registers a job that only runs when
// triggered manually or chained.
func (s *Scheduler) Register(job Job, schedule string) error {
	if schedule != "" && !gronx.IsValid(schedule) {
		return fmt.Errorf("invalid schedule %q for %s", schedule, job.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	s.entries[job.Name()] = &entry{job: job, schedule: schedule}
	s.order = append(s.order, job.Name())
	return nil
}

// Chain makes next run right after every run of after.
func (s *Scheduler) Chain(after, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[after]
	if !ok {
		return fmt.Errorf("unknown job %s", after)
	}
	if _, ok := s.entries[next]; !ok {
		return fmt.Errorf("unknown job %s", next)
	}
	e.then = append(e.then, next)
	return nil
}

// Start launches one timer loop per scheduled job. It returns immediately;
// loops stop when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, name := range s.order {
		e := s.entries[name]
		if e.schedule == "" {
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, e)
		}()

		log.Info().Str("job", name).Str("schedule", e.schedule).Msg("job scheduled")
	}
}

// Wait blocks until every loop and running job has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	for {
		next, err := gronx.NextTickAfter(e.schedule, s.now(), false)
		if err != nil {
			log.Error().Err(err).Str("job", e.job.Name()).Msg("could not compute next run, job disabled")
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ctx, e)
		}()
	}
}

// Trigger runs the named job and its chain synchronously. It reports false
// when the job was already running and the call was skipped.
func (s *Scheduler) Trigger(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("unknown job %s", name)
	}
	return s.run(ctx, e), nil
}

func (s *Scheduler) run(ctx context.Context, e *entry) bool {
	name := e.job.Name()

	if !e.running.CompareAndSwap(false, true) {
		log.Warn().Str("job", name).Msg("job still running, skipping this trigger")
		return false
	}

	start := s.now()
	log.Debug().Str("job", name).Msg("job started")

	err := e.job.Run(ctx)
	duration := time.Since(start)
	e.running.Store(false)

	if err != nil {
		log.Error().Err(err).Str("job", name).Dur("duration", duration).Msg("job failed")
	} else {
		log.Info().Str("job", name).Dur("duration", duration).Msg("job finished")
	}

	if s.observer != nil {
		s.observer(name, duration, err)
	}

	s.mu.RLock()
	then := append([]string(nil), e.then...)
	s.mu.RUnlock()

	for _, next := range then {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.Trigger(ctx, next); err != nil {
			log.Error().Err(err).Str("job", next).Msg("could not run chained job")
		}
	}

	return true
}
