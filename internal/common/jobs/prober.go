package jobs

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// ProbeFunc checks one external dependency and returns an error describing
// why it is unreachable, or nil if it answered.
type ProbeFunc func(ctx context.Context) error

// ProberConfig holds the recurring health-probe job's configuration.
type ProberConfig struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
}

// DefaultProberConfig returns sensible polling defaults.
func DefaultProberConfig() *ProberConfig {
	return &ProberConfig{
		Interval:     30 * time.Second,
		ProbeTimeout: 5 * time.Second,
	}
}

// ProbeResult is the last outcome of a named probe.
type ProbeResult struct {
	Healthy bool
	Error   string
	At      time.Time
}

// Prober is the engine's only background job: it periodically calls the
// road-routing service and checks the solver binary's availability, and
// caches the result so the health endpoint never blocks a caller on a
// slow/unreachable external dependency. Structurally this follows the
// teacher's Worker (ctx/cancel/wg-guarded run loop, Start/Stop lifecycle)
// repointed from a Redis-backed job queue to a fixed set of named probes,
// since this service has no other asynchronous work to schedule.
type Prober struct {
	config  *ProberConfig
	probes  map[string]ProbeFunc
	results map[string]ProbeResult
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewProber creates a prober with the given named probes (e.g. "road_service",
// "solver").
func NewProber(config *ProberConfig, probes map[string]ProbeFunc) *Prober {
	if config == nil {
		config = DefaultProberConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Prober{
		config:  config,
		probes:  probes,
		results: make(map[string]ProbeResult, len(probes)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start runs the probe loop in a background goroutine. It probes once
// immediately so /health/ready has a result available before the first tick.
func (p *Prober) Start() {
	p.runOnce()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.runOnce()
			}
		}
	}()
}

// Stop cancels the probe loop and waits for it to exit.
func (p *Prober) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Prober) runOnce() {
	for name, probe := range p.probes {
		ctx, cancel := context.WithTimeout(p.ctx, p.config.ProbeTimeout)
		err := probe(ctx)
		cancel()

		result := ProbeResult{Healthy: err == nil, At: time.Now()}
		if err != nil {
			result.Error = err.Error()
		}

		p.mu.Lock()
		p.results[name] = result
		p.mu.Unlock()
	}
}

// Result returns the last cached outcome for a named probe.
func (p *Prober) Result(name string) (ProbeResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.results[name]
	return r, ok
}

// AsDependencyProbe adapts a cached probe result into the shape
// health.DependencyProbe expects, so the HTTP readiness check never blocks
// on a live call to the road service or solver binary.
func (p *Prober) AsDependencyProbe(name string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		result, ok := p.Result(name)
		if !ok {
			return fmt.Errorf("probe %q has not run yet", name)
		}
		if !result.Healthy {
			return fmt.Errorf("%s", result.Error)
		}
		return nil
	}
}

// SolverBinaryProbe returns a ProbeFunc that checks the configured solver
// binary exists and is executable, without spawning it.
func SolverBinaryProbe(binaryPath string) ProbeFunc {
	return func(ctx context.Context) error {
		info, err := os.Stat(binaryPath)
		if err != nil {
			return fmt.Errorf("solver binary %q: %w", binaryPath, err)
		}
		if info.Mode()&0o111 == 0 {
			return fmt.Errorf("solver binary %q is not executable", binaryPath)
		}
		return nil
	}
}
