package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fiscaldata/invoice-agent/internal/audit"
)

// Store is an in-memory implementation of audit.Store. Data is lost on
// restart; the BigQuery sink is the durable record when configured.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*audit.QuestionLog
}

// NewStore creates a new in-memory audit store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*audit.QuestionLog),
	}
}

// Save saves or updates an entry in memory.
func (s *Store) Save(ctx context.Context, entry *audit.QuestionLog) error {
	if entry.EntryID == "" {
		return fmt.Errorf("entry ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to avoid external modifications.
	entryCopy := *entry
	s.entries[entry.EntryID] = &entryCopy

	return nil
}

// Get retrieves an entry by ID.
func (s *Store) Get(ctx context.Context, entryID string) (*audit.QuestionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[entryID]
	if !exists {
		return nil, fmt.Errorf("audit entry not found: %s", entryID)
	}

	entryCopy := *entry
	return &entryCopy, nil
}

// List retrieves entries matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]*audit.QuestionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*audit.QuestionLog
	for _, entry := range s.entries {
		if filter.SessionID != "" && entry.SessionID != filter.SessionID {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		entryCopy := *entry
		result = append(result, &entryCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AskedAt.After(result[j].AskedAt)
	})

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Ensure Store implements the audit.Store interface.
var _ audit.Store = (*Store)(nil)
