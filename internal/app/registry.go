package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/bounce/internal/core"
)

// Registry is the process-wide set of live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	log.Info().Str("module", "app.registry").Str("sid", string(s.ID)).Str("role", string(s.Role)).Msg("bound session")
}

// Remove reports whether sid was present.
func (r *Registry) Remove(sid core.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; !ok {
		return false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return true
}

func (r *Registry) Get(sid core.SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

type SessionInfo struct {
	ID        core.SessionID `json:"id"`
	Role      Role           `json:"role"`
	State     string         `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
}

// Snapshot lists live sessions ordered by creation time.
func (r *Registry) Snapshot() []SessionInfo {
	r.mu.RLock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, SessionInfo{
			ID:        s.ID,
			Role:      s.Role,
			State:     s.State().String(),
			CreatedAt: s.CreatedAt,
		})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CloseAll closes every live session concurrently and empties the registry.
// It returns early with ctx's error if ctx ends first; sessions keep closing
// in the background.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.sessions = make(map[core.SessionID]*Session)
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Int("sessions", len(live)).Msg("closing all sessions")

	var g errgroup.Group
	for _, s := range live {
		g.Go(s.Close)
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
