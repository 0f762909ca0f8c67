package coordinator

import (
	"sync"

	"github.com/TrueBrain/game-coordinator/config"
	"github.com/TrueBrain/game-coordinator/internal/connectflow"
)

// RotatingTurnPool hands out TURN endpoints from a configured pool in
// round-robin order, satisfying connectflow.TurnPool.
type RotatingTurnPool struct {
	mu        sync.Mutex
	endpoints []connectflow.TurnEndpoint
	next      int
}

func NewRotatingTurnPool(cfg *config.TurnPoolConfig) *RotatingTurnPool {
	endpoints := make([]connectflow.TurnEndpoint, 0, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		endpoints = append(endpoints, connectflow.TurnEndpoint{ID: e.ID, Host: e.Host, Port: e.Port})
	}
	return &RotatingTurnPool{endpoints: endpoints}
}

func (p *RotatingTurnPool) Pick() connectflow.TurnEndpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return connectflow.TurnEndpoint{Host: config.DefaultTurnHost, Port: config.DefaultTurnPort}
	}

	endpoint := p.endpoints[p.next%len(p.endpoints)]
	p.next++
	return endpoint
}
