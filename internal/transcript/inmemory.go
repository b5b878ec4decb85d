package transcript

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]ChatRecord
	index   map[string]map[string]float64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]ChatRecord),
		index:   make(map[string]map[string]float64),
	}
}

func (s *InMemoryStore) SaveChat(_ context.Context, rec ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Messages = append([]Message(nil), rec.Messages...)
	s.records[ChatKey(rec.ID)] = rec
	return nil
}

func (s *InMemoryStore) IndexChat(_ context.Context, userID string, entry IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.index[userID]
	if !ok {
		members = make(map[string]float64)
		s.index[userID] = members
	}
	members[entry.Member] = entry.Score()
	return nil
}

func (s *InMemoryStore) GetChat(_ context.Context, id string) (ChatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[ChatKey(id)]
	if !ok {
		return ChatRecord{}, ErrNotFound
	}
	rec.Messages = append([]Message(nil), rec.Messages...)
	return rec, nil
}

func (s *InMemoryStore) ListChats(_ context.Context, userID string, limit int) ([]ChatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		member string
		score  float64
	}
	members := make([]scored, 0, len(s.index[userID]))
	for m, sc := range s.index[userID] {
		members = append(members, scored{member: m, score: sc})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].score == members[j].score {
			return members[i].member > members[j].member
		}
		return members[i].score > members[j].score
	})
	if limit > 0 && len(members) > limit {
		members = members[:limit]
	}

	out := make([]ChatRecord, 0, len(members))
	for _, m := range members {
		rec, ok := s.records[m.member]
		if !ok || rec.UserID != userID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// IndexScore reports the score stored for member in the user's index.
func (s *InMemoryStore) IndexScore(userID, member string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.index[userID][member]
	return sc, ok
}

// IndexLen reports how many chats the user's index holds.
func (s *InMemoryStore) IndexLen(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index[userID])
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
