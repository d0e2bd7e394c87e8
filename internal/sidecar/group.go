package sidecar

import (
	"context"
	"fmt"
	"sync"
)

// Group supervises a fixed set of processes together.
type Group struct {
	procs []*Process
}

// NewGroup builds one Process per config. Names must be unique.
func NewGroup(cfgs []Config) (*Group, error) {
	g := &Group{procs: make([]*Process, 0, len(cfgs))}
	seen := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		if seen[cfg.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, cfg.Name)
		}
		seen[cfg.Name] = true

		p, err := New(cfg)
		if err != nil {
			return nil, err
		}
		g.procs = append(g.procs, p)
	}
	return g, nil
}

// SetLogger sets the logger on every process.
func (g *Group) SetLogger(logger Logger) {
	for _, p := range g.procs {
		p.SetLogger(logger)
	}
}

// Len returns the number of processes.
func (g *Group) Len() int {
	return len(g.procs)
}

// Start launches every process in order. If one fails to launch, those
// already started are stopped again.
func (g *Group) Start(ctx context.Context) error {
	for i, p := range g.procs {
		if err := p.Start(ctx); err != nil {
			stopAll(g.procs[:i])
			return err
		}
	}
	return nil
}

// Stop stops every process in parallel and waits for all of them.
func (g *Group) Stop() {
	stopAll(g.procs)
}

// Stats returns per-process statistics in configuration order.
func (g *Group) Stats() []Stats {
	out := make([]Stats, 0, len(g.procs))
	for _, p := range g.procs {
		out = append(out, p.Stats())
	}
	return out
}

func stopAll(procs []*Process) {
	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Go(p.Stop)
	}
	wg.Wait()
}
