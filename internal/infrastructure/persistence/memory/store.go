// Package memory provides process-local implementations of the progress
// ports. They back the server when no database is configured and serve as
// the fakes in application tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notewise/notewise-backend/internal/domain/progress"
	"github.com/notewise/notewise-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS STORE
// ══════════════════════════════════════════════════════════════════════════════

var (
	_ progress.Repository      = (*ProgressStore)(nil)
	_ progress.BadgeRepository = (*BadgeStore)(nil)
)

// ProgressStore keeps progress records in a map.
type ProgressStore struct {
	mu      sync.RWMutex
	records map[shared.UserID]progress.UserProgress

	// BeforeWrite, when set, runs inside CompareAndSet before the version
	// check. Tests use it to inject concurrent writers or failures.
	BeforeWrite func(next progress.UserProgress) error
}

// NewProgressStore creates an empty store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{records: make(map[shared.UserID]progress.UserProgress)}
}

// Get implements progress.Repository.
func (s *ProgressStore) Get(ctx context.Context, userID shared.UserID) (progress.UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.records[userID]
	if !ok {
		return progress.UserProgress{}, shared.ErrProgressNotFound
	}
	return clone(p), nil
}

// Set implements progress.Repository.
func (s *ProgressStore) Set(ctx context.Context, p progress.UserProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[p.UserID] = clone(p)
	return nil
}

// CompareAndSet implements progress.Repository.
func (s *ProgressStore) CompareAndSet(ctx context.Context, next progress.UserProgress, expectedUpdatedAt *time.Time) error {
	if hook := s.BeforeWrite; hook != nil {
		if err := hook(next); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.records[next.UserID]
	switch {
	case expectedUpdatedAt == nil && exists:
		return shared.ErrProgressConflict
	case expectedUpdatedAt != nil && (!exists || !current.UpdatedAt.Equal(*expectedUpdatedAt)):
		return shared.ErrProgressConflict
	}

	s.records[next.UserID] = clone(next)
	return nil
}

// Top implements progress.Repository.
func (s *ProgressStore) Top(ctx context.Context, limit int) ([]progress.UserProgress, error) {
	s.mu.RLock()
	out := make([]progress.UserProgress, 0, len(s.records))
	for _, p := range s.records {
		out = append(out, clone(p))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].XP != out[j].XP {
			return out[i].XP > out[j].XP
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *ProgressStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func clone(p progress.UserProgress) progress.UserProgress {
	if p.LastActiveDate != nil {
		d := *p.LastActiveDate
		p.LastActiveDate = &d
	}
	return p
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE STORE
// ══════════════════════════════════════════════════════════════════════════════

// BadgeStore keeps owned badges in a map.
type BadgeStore struct {
	mu     sync.RWMutex
	badges map[shared.UserID][]progress.Badge
}

// NewBadgeStore creates an empty store.
func NewBadgeStore() *BadgeStore {
	return &BadgeStore{badges: make(map[shared.UserID][]progress.Badge)}
}

// List implements progress.BadgeRepository.
func (s *BadgeStore) List(ctx context.Context, userID shared.UserID) ([]progress.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := s.badges[userID]
	out := make([]progress.Badge, len(owned))
	copy(out, owned)
	return out, nil
}

// Award implements progress.BadgeRepository.
func (s *BadgeStore) Award(ctx context.Context, userID shared.UserID, codes []progress.BadgeCode, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.badges[userID]
	have := make(map[progress.BadgeCode]bool, len(owned))
	for _, b := range owned {
		have[b.Code] = true
	}
	for _, code := range codes {
		if have[code] {
			continue
		}
		have[code] = true
		owned = append(owned, progress.Badge{Code: code, AwardedAt: at})
	}
	s.badges[userID] = owned
	return nil
}
