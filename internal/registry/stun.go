package registry

import (
	"net"
	"sync"
	"time"

	"github.com/TrueBrain/game-coordinator/internal/ids"
)

// StunObservation is one reflexive address report for an interface number
// under a prefixed key.
type StunObservation struct {
	IP       net.IP
	Port     uint16
	Observed time.Time
}

// StunStore maps (prefix||token, interface-id) -> observed (ip, port); the
// prefix is part of the key so a Verify and a Connect observation under the
// same bare token never collide. It also tracks
// observation age so unclaimed entries can be garbage-collected; nothing
// else indexes by wall-clock time, so without this a STUN connection whose
// result is never consumed would stay in memory for the life of the
// process.
type StunStore struct {
	mu   sync.Mutex
	data map[string]map[uint8]StunObservation
}

func NewStunStore() *StunStore {
	return &StunStore{data: make(map[string]map[uint8]StunObservation)}
}

func (s *StunStore) Put(prefixedToken string, interfaceNumber uint8, ip net.IP, port uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[prefixedToken] == nil {
		s.data[prefixedToken] = make(map[uint8]StunObservation)
	}
	s.data[prefixedToken][interfaceNumber] = StunObservation{IP: ip, Port: port, Observed: time.Now()}
}

func (s *StunStore) Get(prefixedToken string, interfaceNumber uint8) (StunObservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byInterface, ok := s.data[prefixedToken]
	if !ok {
		return StunObservation{}, false
	}
	obs, ok := byInterface[interfaceNumber]
	return obs, ok
}

// DeleteAllPrefixes removes every role-prefixed entry for a bare token
// (V/S/C), matching Application.delete_token purging storage_stun by bare
// token even though keys are stored with a role prefix.
func (s *StunStore) DeleteAllPrefixes(bareToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(ids.RoleVerify)+bareToken)
	delete(s.data, string(ids.RoleConnectServer)+bareToken)
	delete(s.data, string(ids.RoleConnectClient)+bareToken)
}

// GCOlderThan drops every observation (and its parent key, once empty)
// whose age exceeds maxAge, returning the number of keys removed.
func (s *StunStore) GCOlderThan(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := time.Now()
	for key, byInterface := range s.data {
		for iface, obs := range byInterface {
			if now.Sub(obs.Observed) > maxAge {
				delete(byInterface, iface)
			}
		}
		if len(byInterface) == 0 {
			delete(s.data, key)
			removed++
		}
	}
	return removed
}
