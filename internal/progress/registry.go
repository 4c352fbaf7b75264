package progress

import (
	"context"
	"fmt"
	"sync"

	"github.com/2beens/workoutsync/internal/localcache"

	log "github.com/sirupsen/logrus"
)

type cardPosition struct {
	week, index int
}

// CardRegistry resolves workout ids to the in-memory cards of all weeks.
type CardRegistry struct {
	mu    sync.RWMutex
	weeks CardWeeks
	index map[string]cardPosition
}

func NewCardRegistry(weeks CardWeeks) *CardRegistry {
	r := &CardRegistry{}
	r.reset(weeks)
	return r
}

// LoadCardRegistry reads the card snapshot from the local cache. A missing
// snapshot leaves the registry empty.
func LoadCardRegistry(ctx context.Context, store localcache.Store) (*CardRegistry, error) {
	var weeks CardWeeks
	_, found, err := localcache.ReadJSON(ctx, store, localcache.KeyWorkoutCards, &weeks)
	if err != nil {
		return nil, fmt.Errorf("load workout cards: %w", err)
	}
	if !found {
		log.Debugln("card registry: no workout cards stored yet")
	}
	return NewCardRegistry(weeks), nil
}

func (r *CardRegistry) reset(weeks CardWeeks) {
	r.weeks = weeks
	r.index = make(map[string]cardPosition)
	for w, week := range weeks {
		for i, card := range week {
			// first occurrence wins
			if _, ok := r.index[card.ID]; !ok {
				r.index[card.ID] = cardPosition{week: w, index: i}
			}
		}
	}
}

// FindByID returns a copy of the first card with the given id.
func (r *CardRegistry) FindByID(id string) (Card, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.index[id]
	if !ok {
		return Card{}, false
	}
	return r.weeks[pos.week][pos.index].clone(), true
}

// Apply copies card into the registry entry with the same id. It reports
// false when the registry holds no such card.
func (r *CardRegistry) Apply(card Card) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[card.ID]
	if !ok {
		return false
	}
	r.weeks[pos.week][pos.index] = card.clone()
	return true
}

// Snapshot returns a deep copy of all weeks, ready to be persisted.
func (r *CardRegistry) Snapshot() CardWeeks {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(CardWeeks, len(r.weeks))
	for w, week := range r.weeks {
		snapshot[w] = make([]Card, len(week))
		for i, card := range week {
			snapshot[w][i] = card.clone()
		}
	}
	return snapshot
}

func (r *CardRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}
