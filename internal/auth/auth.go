// Package auth decides which Telegram users may talk to the assistant.
package auth

import (
	"sort"
	"sync"
)

// Service is an allowlist of user IDs. An empty allowlist admits everyone.
type Service struct {
	mu      sync.RWMutex
	allowed map[int64]struct{}
}

func New(initial []int64) *Service {
	s := &Service{allowed: make(map[int64]struct{}, len(initial))}
	for _, id := range initial {
		s.allowed[id] = struct{}{}
	}
	return s
}

func (s *Service) IsAllowed(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.allowed) == 0 {
		return true
	}
	_, ok := s.allowed[userID]
	return ok
}

func (s *Service) Allow(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed[userID] = struct{}{}
}

// List returns the allowlisted IDs in ascending order.
func (s *Service) List() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.allowed))
	for id := range s.allowed {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
