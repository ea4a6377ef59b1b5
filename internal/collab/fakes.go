package collab

import (
	"context"
	"sync"

	"github.com/waqiti/amlguard/internal/model"
)

// MemoryAlertPublisher records published decisions. Used in tests and as a
// stand-in when no broker is configured.
type MemoryAlertPublisher struct {
	mu        sync.Mutex
	decisions []*model.Decision
	err       error
}

// NewMemoryAlertPublisher creates an empty in-memory publisher.
func NewMemoryAlertPublisher() *MemoryAlertPublisher { return &MemoryAlertPublisher{} }

// PublishDecision records the decision, or returns the injected error.
func (p *MemoryAlertPublisher) PublishDecision(_ context.Context, decision *model.Decision) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.decisions = append(p.decisions, decision)
	return nil
}

// Decisions returns the recorded decisions.
func (p *MemoryAlertPublisher) Decisions() []*model.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*model.Decision(nil), p.decisions...)
}

// FailWith makes subsequent publishes return err.
func (p *MemoryAlertPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// MemoryDeadLetterSink records dead-lettered events.
type MemoryDeadLetterSink struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
}

// DeadLetterEntry pairs a dead-lettered event with its reason.
type DeadLetterEntry struct {
	Event  *model.InboundEvent
	Reason string
}

// NewMemoryDeadLetterSink creates an empty in-memory sink.
func NewMemoryDeadLetterSink() *MemoryDeadLetterSink { return &MemoryDeadLetterSink{} }

// DeadLetter records the event and reason.
func (s *MemoryDeadLetterSink) DeadLetter(_ context.Context, event *model.InboundEvent, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, DeadLetterEntry{Event: event, Reason: reason})
	return nil
}

// Entries returns the recorded dead letters.
func (s *MemoryDeadLetterSink) Entries() []DeadLetterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeadLetterEntry(nil), s.entries...)
}
