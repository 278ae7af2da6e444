package history

import (
	"context"
	"sync"
	"time"

	"github.com/zhouzirui/idolchat/internal/model/chat"
)

// MemoryStore keeps history in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]chat.Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]chat.Turn)}
}

func (s *MemoryStore) Append(_ context.Context, userID string, turns []chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[userID] = append(s.turns[userID], turns...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.turns[userID]
	copied := make([]chat.Turn, len(stored))
	copy(copied, stored)
	return copied
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, turns := range s.turns {
		kept, n := pruneTurns(turns, cutoff)
		removed += n
		if len(kept) == 0 {
			delete(s.turns, userID)
			continue
		}
		s.turns[userID] = kept
	}
	return removed, nil
}

// pruneTurns returns the turns stamped at or after cutoff.
func pruneTurns(turns []chat.Turn, cutoff time.Time) ([]chat.Turn, int) {
	kept := make([]chat.Turn, 0, len(turns))
	for _, turn := range turns {
		if turn.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, turn)
	}
	return kept, len(turns) - len(kept)
}
