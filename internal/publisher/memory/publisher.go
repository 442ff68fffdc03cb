// Package memory contains in-memory publisher implementations for tests.
package memory

import (
	"context"
	"sync"

	"github.com/chescofire/cadwatch/internal/cad"
)

// Publisher stores published incidents and summaries for inspection.
type Publisher struct {
	mu        sync.RWMutex
	incidents []cad.Incident
	summaries []cad.Summary
	err       error
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Fail makes every subsequent publish return err. Pass nil to heal.
func (p *Publisher) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the incident.
func (p *Publisher) Publish(_ context.Context, incident cad.Incident) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.incidents = append(p.incidents, incident)
	return nil
}

// PublishSummary records the summary.
func (p *Publisher) PublishSummary(_ context.Context, summary cad.Summary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.summaries = append(p.summaries, summary)
	return nil
}

// Incidents returns the recorded incident publishes.
func (p *Publisher) Incidents() []cad.Incident {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]cad.Incident, len(p.incidents))
	copy(out, p.incidents)
	return out
}

// Summaries returns the recorded summary publishes.
func (p *Publisher) Summaries() []cad.Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]cad.Summary, len(p.summaries))
	copy(out, p.summaries)
	return out
}
