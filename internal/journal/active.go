package journal

import (
	"sort"
	"sync"
)

// ActiveSet: символы, по которым идёт сверка истории.
type ActiveSet struct {
	mu   sync.Mutex
	syms map[string]struct{}
}

func NewActiveSet(seed ...string) *ActiveSet {
	s := &ActiveSet{syms: make(map[string]struct{}, len(seed))}
	for _, sym := range seed {
		if sym != "" {
			s.syms[sym] = struct{}{}
		}
	}
	return s
}

// Add возвращает true, если символ новый.
func (s *ActiveSet) Add(sym string) bool {
	if sym == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.syms[sym]; ok {
		return false
	}
	s.syms[sym] = struct{}{}
	return true
}

func (s *ActiveSet) Contains(sym string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.syms[sym]
	return ok
}

// Symbols: отсортированная копия.
func (s *ActiveSet) Symbols() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.syms))
	for sym := range s.syms {
		out = append(out, sym)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

func (s *ActiveSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.syms)
}
