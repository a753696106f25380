// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package workpool runs blocking work (file writes, name persistence, operator
// forwarding) off the network read path on a bounded set of workers.
package workpool

import (
	"context"
	"errors"
	"hash/fnv"
	"runtime"
	"runtime/debug"
	"sync"

	xglog "github.com/ManuGH/audiocenter/internal/log"
	"github.com/ManuGH/audiocenter/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrQueueFull is returned by TrySubmit when no capacity is left.
	ErrQueueFull = errors.New("workpool: queue full")

	// ErrPoolClosed is returned once Stop has been called.
	ErrPoolClosed = errors.New("workpool: pool closed")
)

// Config defines pool sizing.
type Config struct {
	// Workers is the number of goroutines executing tasks. Zero selects
	// twice the logical CPU count.
	Workers int
	// QueueSize bounds tasks that are accepted but not finished.
	QueueSize int
}

const laneShards = 32

// Pool executes tasks on a fixed set of workers. Capacity (queued plus
// running) is bounded by QueueSize; tasks submitted under the same key run
// strictly in submission order and never concurrently.
type Pool struct {
	workers int
	size    int64
	sem     *semaphore.Weighted
	jobs    chan func()

	mu     sync.RWMutex
	closed bool

	shards [laneShards]laneShard

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	logger zerolog.Logger
}

type laneShard struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	queue   []func()
	running bool
}

// New builds a pool; call Start before submitting.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2 * runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}

	p := &Pool{
		workers: cfg.Workers,
		size:    int64(cfg.QueueSize),
		sem:     semaphore.NewWeighted(int64(cfg.QueueSize)),
		// every queued job holds at least one semaphore unit, so sends never block
		jobs:   make(chan func(), cfg.QueueSize),
		logger: xglog.WithComponent("workpool"),
	}
	for i := range p.shards {
		p.shards[i].lanes = make(map[string]*lane)
	}
	return p
}

// Workers reports the configured worker count.
func (p *Pool) Workers() int { return p.workers }

// Start launches the workers. Safe to call more than once.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				for job := range p.jobs {
					job()
				}
			}()
		}
		p.logger.Info().
			Str(xglog.FieldEvent, "workpool.started").
			Int("workers", p.workers).
			Int64("queue_size", p.size).
			Msg("worker pool started")
	})
}

// Stop refuses new work, runs everything already accepted and waits for the
// workers to exit.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()

		p.Start() // accepted work must still drain if Start was never called
		p.wg.Wait()
		p.logger.Info().Str(xglog.FieldEvent, "workpool.stopped").Msg("worker pool stopped")
	})
}

// Submit queues fn, blocking while the pool is at capacity until ctx is done.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	return p.enqueue(fn)
}

// TrySubmit queues fn or fails fast with ErrQueueFull.
func (p *Pool) TrySubmit(fn func()) error {
	if !p.sem.TryAcquire(1) {
		metrics.WorkpoolRejectedTotal.Inc()
		return ErrQueueFull
	}
	return p.enqueue(fn)
}

func (p *Pool) enqueue(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.sem.Release(1)
		return ErrPoolClosed
	}
	metrics.AddWorkpoolPending(1)
	p.jobs <- func() { p.run(fn) }
	return nil
}

// SubmitKeyed queues fn behind every earlier task submitted with the same key.
func (p *Pool) SubmitKeyed(ctx context.Context, key string, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.sem.Release(1)
		return ErrPoolClosed
	}
	metrics.AddWorkpoolPending(1)

	sh := p.shard(key)
	sh.mu.Lock()
	l, ok := sh.lanes[key]
	if !ok {
		l = &lane{}
		sh.lanes[key] = l
	}
	l.queue = append(l.queue, fn)
	if l.running {
		sh.mu.Unlock()
		return nil
	}
	l.running = true
	sh.mu.Unlock()

	p.jobs <- func() { p.drain(sh, key, l) }
	return nil
}

// drain runs a lane's queue on the current worker until it is empty.
func (p *Pool) drain(sh *laneShard, key string, l *lane) {
	for {
		sh.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			delete(sh.lanes, key)
			sh.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		sh.mu.Unlock()

		p.run(fn)
	}
}

func (p *Pool) run(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.WorkpoolPanicsTotal.Inc()
			p.logger.Error().
				Str(xglog.FieldEvent, "workpool.task_panic").
				Interface("panic_value", rec).
				Str("stack_trace", string(debug.Stack())).
				Msg("panic recovered in pooled task")
		}
		metrics.AddWorkpoolPending(-1)
		p.sem.Release(1)
	}()
	fn()
}

// Pending reports whether any lane still has queued work for key.
func (p *Pool) Pending(key string) bool {
	sh := p.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.lanes[key]
	return ok
}

func (p *Pool) shard(key string) *laneShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &p.shards[h.Sum32()%laneShards]
}
