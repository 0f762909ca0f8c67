package registry

import (
	"fmt"
	"net"
	"sync"

	"github.com/TrueBrain/game-coordinator/internal/ids"
	"github.com/TrueBrain/game-coordinator/internal/wire"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

// Server is a single registered server: its source connection, its
// per-family observed address and classification, and its latest info
// blob. The source TCP connection exclusively owns exactly one Server.
type Server struct {
	mu sync.Mutex

	JoinKey    string
	Source     Conn
	GameType   wire.ServerGameType
	ServerPort uint16

	ServerIP       map[wire.Family]net.IP
	ConnectionType map[wire.Family]wire.ConnectionType

	Info    wire.GameInfo
	HasInfo bool

	// VerifyToken is the bare token of the server's in-flight Verify
	// cycle, if any. Only one runs at a time per Server.
	VerifyToken string
}

func newServer(joinKey string, source Conn, gameType wire.ServerGameType, serverPort uint16) *Server {
	return &Server{
		JoinKey:    joinKey,
		Source:     source,
		GameType:   gameType,
		ServerPort: serverPort,
		ServerIP:   make(map[wire.Family]net.IP),
		ConnectionType: map[wire.Family]wire.ConnectionType{
			wire.FamilyIPv4: wire.ConnectionTypeIsolated,
			wire.FamilyIPv6: wire.ConnectionTypeIsolated,
		},
	}
}

// Update replaces the server's info blob wholesale, inheriting the
// previous NewGRF list when the update omitted one.
func (s *Server) Update(info wire.GameInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !info.HasNewgrfs {
		info.Newgrfs = s.Info.Newgrfs
		info.HasNewgrfs = s.Info.HasNewgrfs
	}
	s.Info = info
	s.HasInfo = true

	if e := log.Debug(); e.Enabled() {
		dump, _ := jsoniter.MarshalToString(info)
		e.Str("join_key", s.JoinKey).Str("info", dump).Msg("server info updated")
	}
}

// SetConnectionType upgrades family's classification if ct is strictly
// better than what's on record, per the monotonic-non-decreasing
// invariant: a classification is never downgraded mid-cycle.
func (s *Server) SetConnectionType(family wire.Family, ct wire.ConnectionType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ct.Better(s.ConnectionType[family]) {
		s.ConnectionType[family] = ct
	}
}

// SetServerIP records the reflexive address observed for family.
func (s *Server) SetServerIP(family wire.Family, ip net.IP) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ServerIP[family] = ip
}

// BestConnectionType computes the best classification across families,
// priority DIRECT > STUN > TURN > ISOLATED.
func (s *Server) BestConnectionType() wire.ConnectionType {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := wire.ConnectionTypeIsolated
	for _, ct := range s.ConnectionType {
		if ct.Better(best) {
			best = ct
		}
	}
	return best
}

// Snapshot returns copies of the family maps, safe to read without holding
// the server's lock afterward.
func (s *Server) Snapshot() (map[wire.Family]net.IP, map[wire.Family]wire.ConnectionType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ip := make(map[wire.Family]net.IP, len(s.ServerIP))
	for k, v := range s.ServerIP {
		ip[k] = v
	}
	ct := make(map[wire.Family]wire.ConnectionType, len(s.ConnectionType))
	for k, v := range s.ConnectionType {
		ct[k] = v
	}
	return ip, ct
}

// Servers is the join-key -> *Server table.
type Servers struct {
	mu      sync.Mutex
	servers map[string]*Server
}

func NewServers() *Servers {
	return &Servers{servers: make(map[string]*Server)}
}

// GetOrCreate returns the existing Server for joinKey if one was supplied
// (a reused registration), otherwise allocates a fresh join-key and Server.
// Mirrors coordinator.py's "reuse the join-key if possible" REGISTER
// handling.
func (s *Servers) GetOrCreate(existingJoinKey string, source Conn, gameType wire.ServerGameType, serverPort uint16) (*Server, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingJoinKey != "" {
		if srv, ok := s.servers[existingJoinKey]; ok {
			return srv, nil
		}
	}

	joinKey, err := ids.GenerateJoinKey(func(k string) bool {
		_, exists := s.servers[k]
		return exists
	})
	if err != nil {
		return nil, fmt.Errorf("error allocating join-key: %w", err)
	}

	srv := newServer(joinKey, source, gameType, serverPort)
	s.servers[joinKey] = srv
	return srv, nil
}

func (s *Servers) Get(joinKey string) (*Server, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[joinKey]
	return srv, ok
}

func (s *Servers) Delete(joinKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.servers, joinKey)
}

// List returns every currently registered server, for LISTING.
func (s *Servers) List() []*Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Server, 0, len(s.servers))
	for _, srv := range s.servers {
		out = append(out, srv)
	}
	return out
}
