package client

import (
	"sort"
	"sync"

	"github.com/noah-isme/campus-key-api/internal/models"
)

// KeyStore is the local reconciliation cache. It keeps the last known
// server state: a primary view of every key and a secondary view of the
// keys held by the local user. Events apply last-write-wins in arrival
// order; a fetch replaces the affected view wholesale.
type KeyStore struct {
	userID string

	mu          sync.RWMutex
	keys        map[string]models.KeyView
	mine        map[string]models.KeyView
	mineFetched bool
}

// NewKeyStore builds an empty store for the given local user.
func NewKeyStore(userID string) *KeyStore {
	return &KeyStore{
		userID: userID,
		keys:   make(map[string]models.KeyView),
		mine:   make(map[string]models.KeyView),
	}
}

// ReplaceAll swaps the primary view for a freshly fetched key list.
func (s *KeyStore) ReplaceAll(keys []models.KeyView) {
	next := make(map[string]models.KeyView, len(keys))
	for _, key := range keys {
		next[key.ID] = key
	}

	s.mu.Lock()
	s.keys = next
	s.mu.Unlock()
}

// ReplaceMine swaps the taken-by-me view for a freshly fetched list and
// marks the dedicated fetch as having succeeded at least once.
func (s *KeyStore) ReplaceMine(keys []models.KeyView) {
	next := make(map[string]models.KeyView, len(keys))
	for _, key := range keys {
		next[key.ID] = key
	}

	s.mu.Lock()
	s.mine = next
	s.mineFetched = true
	s.mu.Unlock()
}

// ApplyEvent folds one broadcast event into both views. Events carry the
// full post-transition key, so applying is an upsert (or a removal for
// deletes) regardless of what the cache held before.
func (s *KeyStore) ApplyEvent(event models.KeyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Action == models.EventDelete {
		delete(s.keys, event.Key.ID)
		delete(s.mine, event.Key.ID)
		return
	}

	s.keys[event.Key.ID] = event.Key

	// Mirror into the mine view: present exactly when the local user is
	// the current holder.
	if event.Key.HolderRef != nil && event.Key.HolderRef.ID == s.userID {
		s.mine[event.Key.ID] = event.Key
	} else {
		delete(s.mine, event.Key.ID)
	}
}

// Keys returns a snapshot of the primary view sorted by key number.
func (s *KeyStore) Keys() []models.KeyView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.keys)
}

// Get returns one key from the primary view.
func (s *KeyStore) Get(id string) (models.KeyView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[id]
	return key, ok
}

// MyTaken returns the keys the local user holds. Until the dedicated fetch
// has succeeded once, it degrades to filtering the primary view by holder,
// which can under-report if the primary view is also stale.
func (s *KeyStore) MyTaken() []models.KeyView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.mineFetched {
		return sortedValues(s.mine)
	}

	fallback := make(map[string]models.KeyView)
	for id, key := range s.keys {
		if key.HolderRef != nil && key.HolderRef.ID == s.userID {
			fallback[id] = key
		}
	}
	return sortedValues(fallback)
}

// Len reports the number of keys in the primary view.
func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

func sortedValues(m map[string]models.KeyView) []models.KeyView {
	result := make([]models.KeyView, 0, len(m))
	for _, key := range m {
		result = append(result, key)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].KeyNumber < result[j].KeyNumber
	})
	return result
}
