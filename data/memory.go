package data

import (
	"fmt"
	"sort"
	"sync"

	"github.com/oysterpack/oysterpack-smart/ledger"
)

// InMemoryStore implements Store for tests and DSN-less development runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	auctions map[ledger.AppID]Record
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		auctions: make(map[ledger.AppID]Record),
	}
}

// UpsertAuction stores a copy of the record.
func (s *InMemoryStore) UpsertAuction(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[rec.AppID] = copyRecord(rec)
	return nil
}

// GetAuction retrieves one record.
func (s *InMemoryStore) GetAuction(appID ledger.AppID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.auctions[appID]
	if !ok {
		return Record{}, fmt.Errorf("auction %d: %w", appID, ledger.ErrNotFound)
	}
	return copyRecord(rec), nil
}

// SearchAuctions returns records matching the filter, ranked by highest bid
// descending with the app ID as tie-break.
func (s *InMemoryStore) SearchAuctions(f Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Record
	for _, rec := range s.auctions {
		if f.matches(rec) {
			matched = append(matched, copyRecord(rec))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].HighestBid != matched[j].HighestBid {
			return matched[i].HighestBid > matched[j].HighestBid
		}
		return matched[i].AppID < matched[j].AppID
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if limit := f.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// DeleteAuction removes a record. Deleting an unknown auction is a no-op.
func (s *InMemoryStore) DeleteAuction(appID ledger.AppID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.auctions, appID)
	return nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}

func copyRecord(rec Record) Record {
	if len(rec.Holdings) > 0 {
		holdings := make([]Holding, len(rec.Holdings))
		copy(holdings, rec.Holdings)
		rec.Holdings = holdings
	}
	return rec
}
