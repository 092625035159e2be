// Package worker runs background jobs on a fixed interval.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one run of a periodic task.
type Job func(ctx context.Context) error

// Config holds configuration for a periodic worker.
type Config struct {
	// Name identifies the worker in logs.
	Name string

	// Interval between runs. Default: 15 minutes.
	Interval time.Duration

	// Timeout bounds a single run. Default: 5 minutes.
	Timeout time.Duration

	// RunOnStart runs the job immediately instead of waiting one interval.
	RunOnStart bool
}

// Periodic calls a Job on a ticker until stopped. Runs never overlap.
type Periodic struct {
	config  Config
	job     Job
	logger  *zerolog.Logger
	trigger chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewPeriodic(config Config, job Job, logger *zerolog.Logger) *Periodic {
	if config.Interval <= 0 {
		config.Interval = 15 * time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	if config.Name == "" {
		config.Name = "worker"
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Periodic{
		config:  config,
		job:     job,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}
}

// Start begins the loop. ctx cancellation stops it like Stop does.
func (p *Periodic) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.wg.Add(1)
	p.mu.Unlock()

	go p.loop(ctx, stopCh)

	p.logger.Info().
		Str("worker", p.config.Name).
		Dur("interval", p.config.Interval).
		Msg("periodic worker started")
}

// Stop waits for an in-flight run to finish.
func (p *Periodic) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info().Str("worker", p.config.Name).Msg("periodic worker stopped")
}

// Trigger asks for an extra run as soon as the current one (if any) is done.
// Requests made while one is already pending are merged.
func (p *Periodic) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *Periodic) loop(ctx context.Context, stopCh chan struct{}) {
	defer p.wg.Done()
	defer func() {
		// Let a later Start run again when ctx ended the loop. A newer
		// Start owns a different stopCh and is left alone.
		p.mu.Lock()
		if p.stopCh == stopCh {
			p.running = false
		}
		p.mu.Unlock()
	}()

	if p.config.RunOnStart {
		p.run(ctx)
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.run(ctx)
		case <-p.trigger:
			p.run(ctx)
		}
	}
}

func (p *Periodic) run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, p.config.Timeout)
	defer cancel()

	start := time.Now()
	if err := p.job(ctx); err != nil {
		p.logger.Error().Err(err).Str("worker", p.config.Name).Msg("periodic job failed")
		return
	}
	p.logger.Debug().
		Str("worker", p.config.Name).
		Dur("took", time.Since(start)).
		Msg("periodic job finished")
}
