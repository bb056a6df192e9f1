package session

import (
	"sync"
	"time"
)

// defaultInFlightTTL bounds how long a handled key is remembered: long enough
// that every concurrent observer of one session error sees it as handled,
// short enough that the set doesn't grow for the life of the process.
const defaultInFlightTTL = time.Hour

// inFlightSet is a set with an atomic test-and-add and TTL eviction, used to
// make error-driven logouts idempotent per session id.
type inFlightSet struct {
	m   sync.Map // key -> time.Time added
	ttl time.Duration
}

// add returns true only for the first caller for a given key within the TTL
// window. Stale entries are swept on each call.
func (s *inFlightSet) add(key string) bool {
	ttl := s.ttl
	if ttl <= 0 {
		ttl = defaultInFlightTTL
	}
	now := time.Now()
	s.m.Range(func(k, v interface{}) bool {
		if now.Sub(v.(time.Time)) > ttl {
			s.m.Delete(k)
		}
		return true
	})
	_, loaded := s.m.LoadOrStore(key, now)
	return !loaded
}
