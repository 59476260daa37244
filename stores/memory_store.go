package stores

import (
	"context"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	pe "pinfeed.io/pinfeed/errors"
	md "pinfeed.io/pinfeed/models"
)

// MemoryPinStore is the demo-mode PinStore: an in-process list used when the
// durable backend is unreachable at startup. Nothing survives a restart -
// that is the documented contract of demo mode, not a bug. It reproduces the
// durable store's filter/order/paging behavior exactly by routing matching
// through md.Pin.Matches and ordering through md.FeedLess.
type MemoryPinStore struct {
	mu   sync.RWMutex
	pins []md.Pin
}

func NewMemoryPinStore() *MemoryPinStore {
	return &MemoryPinStore{pins: []md.Pin{}}
}

func (s *MemoryPinStore) FindMatching(_ context.Context, q Query) ([]md.Pin, *pe.PinErr) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.matching(q.Search)
	// same skip/limit slicing as the durable path; bounds-checked so a page
	// past the end comes back empty rather than panicking
	if q.Skip >= len(matched) {
		return []md.Pin{}, nil
	}
	end := q.Skip + q.Limit
	if q.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	out := make([]md.Pin, end-q.Skip)
	copy(out, matched[q.Skip:end])
	return out, nil
}

func (s *MemoryPinStore) CountMatching(_ context.Context, search string) (int, *pe.PinErr) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for i := range s.pins {
		if s.pins[i].Matches(search) {
			n++
		}
	}
	return n, nil
}

// matching returns matches in feed order. Callers must hold at least the
// read lock.
func (s *MemoryPinStore) matching(search string) []md.Pin {
	search = strings.TrimSpace(search)
	matched := []md.Pin{}
	for i := range s.pins {
		if s.pins[i].Matches(search) {
			matched = append(matched, s.pins[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return md.FeedLess(&matched[i], &matched[j])
	})
	return matched
}

func (s *MemoryPinStore) FindByOwner(_ context.Context, ownerID string) ([]md.Pin, *pe.PinErr) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owned := []md.Pin{}
	for i := range s.pins {
		if s.pins[i].OwnerID == ownerID {
			owned = append(owned, s.pins[i])
		}
	}
	sort.SliceStable(owned, func(i, j int) bool {
		return md.FeedLess(&owned[i], &owned[j])
	})
	return owned, nil
}

func (s *MemoryPinStore) Get(_ context.Context, pinID string) (*md.Pin, *pe.PinErr) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.pins {
		if s.pins[i].ID == pinID {
			p := s.pins[i]
			return &p, nil
		}
	}
	return nil, pe.ErrNotFound("pin not found")
}

func (s *MemoryPinStore) Insert(_ context.Context, p *md.Pin) *pe.PinErr {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pins {
		if s.pins[i].ID == p.ID {
			return pe.ErrExisted("pin id already exists")
		}
	}
	s.pins = append(s.pins, *p)
	return nil
}

func (s *MemoryPinStore) UpdateByID(_ context.Context, pinID string, u md.PinUpdate) (*md.Pin, *pe.PinErr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pins {
		if s.pins[i].ID == pinID {
			// apply on a copy, then swap the whole element so concurrent
			// readers never see a half-applied edit
			p := s.pins[i]
			u.Apply(&p)
			s.pins[i] = p
			out := p
			return &out, nil
		}
	}
	return nil, pe.ErrNotFound("pin not found")
}

func (s *MemoryPinStore) DeleteByID(_ context.Context, pinID string) *pe.PinErr {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pins {
		if s.pins[i].ID == pinID {
			s.pins = append(s.pins[:i], s.pins[i+1:]...)
			return nil
		}
	}
	return pe.ErrNotFound("pin not found")
}

func (s *MemoryPinStore) Mode() string {
	return ModeDemo
}

func (s *MemoryPinStore) Close() *pe.PinErr {
	log.Debug("closing demo-mode pin store; data is discarded")
	return nil
}
