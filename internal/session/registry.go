package session

import (
	"fmt"

	"github.com/bastion/server/internal/config"
)

// Registry owns the ordered session list. Order matches configuration order
// and is position-aligned with the recovery cache and the supervisor's
// process table.
type Registry struct {
	sessions []*State
}

func NewRegistry(servers []config.Server) (*Registry, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("at least one server must be configured")
	}
	eligible := 0
	ports := make(map[int]string, len(servers))
	for _, cfg := range servers {
		if cfg.Broadcast {
			eligible++
		}
		if other, ok := ports[cfg.Port]; ok {
			return nil, fmt.Errorf("servers %q and %q share port %d", other, cfg.Name, cfg.Port)
		}
		ports[cfg.Port] = cfg.Name
	}
	if eligible > 1 {
		return nil, fmt.Errorf("at most one server may be broadcast-eligible, got %d", eligible)
	}

	r := &Registry{sessions: make([]*State, len(servers))}
	for i, cfg := range servers {
		r.sessions[i] = NewState(cfg)
	}
	return r, nil
}

func (r *Registry) Len() int {
	return len(r.sessions)
}

func (r *Registry) At(i int) *State {
	return r.sessions[i]
}

func (r *Registry) All() []*State {
	return r.sessions
}

// ByPassword resolves a restart request to a server. It returns the session
// together with its position, and only matches when the non-empty password
// identifies exactly one server.
func (r *Registry) ByPassword(password string) (*State, int, bool) {
	if password == "" {
		return nil, 0, false
	}
	found := -1
	for i, s := range r.sessions {
		if s.Config.Password == password {
			if found >= 0 {
				return nil, 0, false
			}
			found = i
		}
	}
	if found < 0 {
		return nil, 0, false
	}
	return r.sessions[found], found, true
}

// Snapshots returns the spectator-safe view of every session, in
// configuration order.
func (r *Registry) Snapshots() []Snapshot {
	snaps := make([]Snapshot, len(r.sessions))
	for i, s := range r.sessions {
		snaps[i] = s.Snapshot()
	}
	return snaps
}
