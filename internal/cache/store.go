package cache

import "time"

// tierStore holds the hot and warm tiers. It is not synchronized; the
// engine serializes access with its own lock.
type tierStore struct {
	hot          map[Key]*Entry
	warm         map[Key]*Entry
	hotCapacity  int
	warmCapacity int
}

func newTierStore(hotCapacity, warmCapacity int) *tierStore {
	return &tierStore{
		hot:          make(map[Key]*Entry),
		warm:         make(map[Key]*Entry),
		hotCapacity:  hotCapacity,
		warmCapacity: warmCapacity,
	}
}

func (s *tierStore) tier(t Tier) map[Key]*Entry {
	if t == TierHot {
		return s.hot
	}
	return s.warm
}

func (s *tierStore) capacity(t Tier) int {
	if t == TierHot {
		return s.hotCapacity
	}
	return s.warmCapacity
}

func (s *tierStore) full(t Tier) bool {
	return len(s.tier(t)) >= s.capacity(t)
}

// lookup checks hot first, then warm
func (s *tierStore) lookup(key Key) (*Entry, bool) {
	if e, ok := s.hot[key]; ok {
		return e, true
	}
	e, ok := s.warm[key]
	return e, ok
}

// put places an entry without any capacity check
func (s *tierStore) put(e *Entry, t Tier) {
	e.Tier = t
	s.tier(t)[e.Key] = e
}

// remove deletes key from whichever tier holds it
func (s *tierStore) remove(key Key) (*Entry, bool) {
	if e, ok := s.hot[key]; ok {
		delete(s.hot, key)
		return e, true
	}
	if e, ok := s.warm[key]; ok {
		delete(s.warm, key)
		return e, true
	}
	return nil, false
}

// expiredKeys snapshots the keys expired at now across both tiers
func (s *tierStore) expiredKeys(now time.Time) []Key {
	var keys []Key
	for _, entries := range []map[Key]*Entry{s.hot, s.warm} {
		for key, e := range entries {
			if e.IsExpired(now) {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

func (s *tierStore) sizes() (hot, warm int) {
	return len(s.hot), len(s.warm)
}

func (s *tierStore) clear() {
	s.hot = make(map[Key]*Entry)
	s.warm = make(map[Key]*Entry)
}
