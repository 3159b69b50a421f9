package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/ryandielhenn/sudokumesh/pkg/grid"
)

type entry struct {
	key      string
	solution grid.Grid
	expireAt time.Time
}

// Store remembers solutions keyed by the puzzle they answer, with TTL and
// LRU eviction once it holds more than capacity entries.
type Store struct {
	mu       sync.Mutex
	data     map[string]*list.Element
	ll       *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewStore returns a store holding at most capacity solutions. A ttl of 0
// keeps entries until they are evicted.
func NewStore(capacity int, ttl time.Duration) *Store {
	return &Store{
		data:     make(map[string]*list.Element),
		ll:       list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *Store) Put(puzzle, solution grid.Grid) {
	if s == nil || s.capacity <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var exp time.Time
	if s.ttl > 0 {
		exp = s.now().Add(s.ttl)
	}

	key := puzzle.Key()
	if el, ok := s.data[key]; ok {
		e := el.Value.(*entry)
		e.solution = solution
		e.expireAt = exp
		s.ll.MoveToFront(el)
	} else {
		el := s.ll.PushFront(&entry{key: key, solution: solution, expireAt: exp})
		s.data[key] = el
	}
	for s.ll.Len() > s.capacity {
		s.removeElement(s.ll.Back())
	}
}

func (s *Store) Get(puzzle grid.Grid) (grid.Grid, bool) {
	if s == nil {
		return grid.Grid{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.data[puzzle.Key()]
	if !ok {
		return grid.Grid{}, false
	}
	e := el.Value.(*entry)
	if !e.expireAt.IsZero() && s.now().After(e.expireAt) {
		s.removeElement(el)
		return grid.Grid{}, false
	}
	s.ll.MoveToFront(el)
	return e.solution, true
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *Store) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	delete(s.data, e.key)
	s.ll.Remove(el)
}
