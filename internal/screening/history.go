package screening

import (
	"sync"
	"time"

	"github.com/waqiti/amlguard/internal/model"
)

// ScreeningEvent is one recorded screening call for an actor.
type ScreeningEvent struct {
	SearchTerm   string    `json:"search_term"`
	ScreenedAt   time.Time `json:"screened_at"`
	TotalMatches int       `json:"total_matches"`
	HighestScore float64   `json:"highest_score"`
	ManualReview bool      `json:"manual_review"`
}

// ActorHistory summarizes screening activity for one actor.
type ActorHistory struct {
	ActorID      string           `json:"actor_id"`
	Events       []ScreeningEvent `json:"events"`
	LastScreened time.Time        `json:"last_screened"`
	HighestScore float64          `json:"highest_score"`
}

// History keeps a bounded per-actor record of screening events.
type History struct {
	mu     sync.RWMutex
	actors map[string]*ActorHistory
	limit  int
}

// NewHistory creates a screening history with the given per-actor event cap.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 100
	}
	return &History{
		actors: make(map[string]*ActorHistory),
		limit:  limit,
	}
}

// Record appends a screening event for the actor.
func (h *History) Record(actorID, searchTerm string, results []model.MatchResult) {
	if actorID == "" {
		return
	}

	event := ScreeningEvent{
		SearchTerm:   searchTerm,
		ScreenedAt:   time.Now(),
		TotalMatches: len(results),
	}
	for _, result := range results {
		if result.Score > event.HighestScore {
			event.HighestScore = result.Score
		}
		if result.ManualReview {
			event.ManualReview = true
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	actor, exists := h.actors[actorID]
	if !exists {
		actor = &ActorHistory{ActorID: actorID}
		h.actors[actorID] = actor
	}

	actor.Events = append(actor.Events, event)
	if len(actor.Events) > h.limit {
		actor.Events = actor.Events[len(actor.Events)-h.limit:]
	}
	actor.LastScreened = event.ScreenedAt
	if event.HighestScore > actor.HighestScore {
		actor.HighestScore = event.HighestScore
	}
}

// Get returns a copy of the actor's history, or nil if never screened.
func (h *History) Get(actorID string) *ActorHistory {
	h.mu.RLock()
	defer h.mu.RUnlock()

	actor, exists := h.actors[actorID]
	if !exists {
		return nil
	}

	out := &ActorHistory{
		ActorID:      actor.ActorID,
		Events:       make([]ScreeningEvent, len(actor.Events)),
		LastScreened: actor.LastScreened,
		HighestScore: actor.HighestScore,
	}
	copy(out.Events, actor.Events)
	return out
}
