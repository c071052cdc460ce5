package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"studio/internal/domain"
)

// MemoryStore is the in-process history store used in tests and DB-less
// development runs.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, entry domain.HistoryEntry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	items := make([]ItemRecord, 0, len(entry.Items))
	for _, it := range entry.Items {
		items = append(items, itemRecord(it, "", ""))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{
		ID:        id,
		Params:    paramsRecord(entry.Params),
		Items:     items,
		CreatedAt: createdAt,
	})
	return id, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records {
		if rec.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

func (s *MemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []Record
	var purged int64
	for _, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return purged, nil
}

var _ Store = (*MemoryStore)(nil)
