// Package pool owns the fixed set of model-execution slots. Each slot wraps
// one engine instance bound to one device; a slot is held by at most one
// request at a time and the free-slot channel is the only shared state.
package pool

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"vlmd/internal/engine"
)

// Slot is one exclusive checkout unit. The engine handle must only be used
// between Acquire and Release.
type Slot struct {
	id       int
	eng      engine.Engine
	released atomic.Bool
	broken   atomic.Bool
}

func (s *Slot) ID() int               { return s.id }
func (s *Slot) Engine() engine.Engine { return s.eng }

// Pool pre-creates size slots and hands them out one checkout at a time.
type Pool struct {
	log            zerolog.Logger
	size           int
	acquireTimeout time.Duration

	free    chan *Slot
	closing chan struct{}
	nudge   chan struct{}

	brokenCount atomic.Int32
	closed      atomic.Bool
}

// New eagerly constructs size engine instances via factory. Any construction
// failure tears down the instances built so far and fails startup: slots are
// never backed by half-alive engines.
func New(size int, acquireTimeout time.Duration, factory engine.Factory, log zerolog.Logger) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", size)
	}
	p := &Pool{
		log:            log,
		size:           size,
		acquireTimeout: acquireTimeout,
		free:           make(chan *Slot, size),
		closing:        make(chan struct{}),
		nudge:          make(chan struct{}, size),
	}
	for i := 1; i <= size; i++ {
		eng, err := factory(i)
		if err != nil {
			for n := len(p.free); n > 0; n-- {
				s := <-p.free
				_ = s.eng.Close()
			}
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		p.free <- &Slot{id: i, eng: eng}
	}
	log.Info().Int("slots", size).Msg("pool ready")
	return p, nil
}

// Acquire checks out a free slot. It fails with an exhausted error once the
// configured wait elapses, and with ctx.Err() when the caller gives up first.
func (p *Pool) Acquire(ctx context.Context) (*Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()
	for {
		select {
		case s := <-p.free:
			if s.broken.Load() {
				continue // retired while queued
			}
			s.released.Store(false)
			return s, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, exhaustedError{wait: p.acquireTimeout}
		case <-p.closing:
			return nil, closedError{}
		}
	}
}

// Release returns a slot to the free set. Safe to call more than once per
// checkout; extra calls are ignored. Broken slots are dropped, shrinking
// capacity. Never blocks.
func (p *Pool) Release(s *Slot) {
	if s == nil {
		return
	}
	if s.released.Swap(true) {
		return
	}
	if s.broken.Load() {
		return
	}
	p.free <- s
}

// MarkBroken retires a slot after a fatal engine failure. Must be called by
// the holder before Release. The engine is closed immediately; the slot never
// re-enters the free set.
func (p *Pool) MarkBroken(s *Slot, cause error) {
	if s == nil || s.broken.Swap(true) {
		return
	}
	n := p.brokenCount.Add(1)
	p.log.Error().Err(cause).Int("slot", s.id).Int32("broken_total", n).
		Msg("slot retired after fatal engine failure")
	if err := s.eng.Close(); err != nil {
		p.log.Warn().Err(err).Int("slot", s.id).Msg("closing broken engine")
	}
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

// Stats is a point-in-time snapshot for health and metrics.
type Stats struct {
	Size   int
	Free   int
	Busy   int
	Broken int
}

func (p *Pool) Stats() Stats {
	free := len(p.free)
	broken := int(p.brokenCount.Load())
	busy := p.size - free - broken
	if busy < 0 {
		busy = 0
	}
	return Stats{Size: p.size, Free: free, Busy: busy, Broken: broken}
}

// Close stops admissions, waits for held slots to come back and closes every
// surviving engine. Idempotent; ctx bounds the wait.
func (p *Pool) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	close(p.closing)
	var errs *multierror.Error
	received := 0
	for received+int(p.brokenCount.Load()) < p.size {
		select {
		case s := <-p.free:
			received++
			if s.broken.Load() {
				continue
			}
			if err := s.eng.Close(); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("slot %d: %w", s.id, err))
			}
		case <-p.nudge:
			// a slot broke while we waited; re-check the exit condition
		case <-ctx.Done():
			errs = multierror.Append(errs, fmt.Errorf("pool close: %w", ctx.Err()))
			return errs.ErrorOrNil()
		}
	}
	p.log.Info().Int("closed", received).Msg("pool shut down")
	return errs.ErrorOrNil()
}
