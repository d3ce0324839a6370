/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package dragonseeker

import (
	"context"
	"crypto/rand"
	"math/big"
	rnd "math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

const (
	gameIDLength  = 8
	gameIDLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Options configures a Registry. Zero values get defaults.
type Options struct {
	// IdleTimeout evicts sessions in any phase after this long without a
	// mutation.
	IdleTimeout time.Duration

	// FinishedTimeout evicts finished sessions after this long without a
	// mutation.
	FinishedTimeout time.Duration

	Words       *WordBank
	Broadcaster *Broadcaster

	// NewRand returns the random source for a new session.
	NewRand func() *rnd.Rand

	Now  func() time.Time
	Logf func(format string, args ...any)
}

// Stats is an aggregate view of the registry.
type Stats struct {
	ActiveSessions  int    `json:"active_games"`
	TotalPlayers    int    `json:"total_players"`
	SessionsCreated uint64 `json:"games_created"`
}

// Registry holds every live session keyed by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	created  atomic.Uint64

	idleTimeout     time.Duration
	finishedTimeout time.Duration

	words       *WordBank
	broadcaster *Broadcaster
	newRand     func() *rnd.Rand
	now         func() time.Time
	logf        func(format string, args ...any)
}

// NewRegistry returns an empty registry.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		sessions:        make(map[string]*Session),
		idleTimeout:     opts.IdleTimeout,
		finishedTimeout: opts.FinishedTimeout,
		words:           opts.Words,
		broadcaster:     opts.Broadcaster,
		newRand:         opts.NewRand,
		now:             opts.Now,
		logf:            opts.Logf,
	}

	if r.idleTimeout <= 0 {
		r.idleTimeout = 60 * time.Minute
	}
	if r.finishedTimeout <= 0 {
		r.finishedTimeout = 10 * time.Minute
	}
	if r.words == nil {
		r.words = DefaultWordBank()
	}
	if r.logf == nil {
		r.logf = func(string, ...any) {}
	}
	if r.broadcaster == nil {
		r.broadcaster = NewBroadcaster(r.logf)
	}
	if r.newRand == nil {
		r.newRand = NewRand
	}
	if r.now == nil {
		r.now = time.Now
	}

	return r
}

// Broadcaster returns the broadcaster shared by every session.
func (r *Registry) Broadcaster() *Broadcaster {
	return r.broadcaster
}

// newGameID generates a crypto-random game ID.
func newGameID() string {
	out := make([]byte, gameIDLength)
	limit := big.NewInt(int64(len(gameIDLetters)))

	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out[i] = gameIDLetters[n.Int64()]
	}

	return string(out)
}

// CreateSession starts a new session in the lobby with hostName as host.
// The id is drawn and inserted under the registry lock, so concurrent
// creations can never collide.
func (r *Registry) CreateSession(hostName string) (sessionID, hostID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := newGameID()
	for {
		if _, exists := r.sessions[id]; !exists {
			break
		}
		id = newGameID()
	}

	s, hostID, err := newSession(id, hostName, sessionDeps{
		rng:         r.newRand(),
		words:       r.words,
		now:         r.now,
		broadcaster: r.broadcaster,
	})
	if err != nil {
		return "", "", err
	}

	r.sessions[id] = s
	r.created.Add(1)

	r.logf("GAMES: Created game %s", id)

	return id, hostID, nil
}

// Get looks up a session. A missing session is not an error.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]

	return s, ok
}

// Lookup is Get that reports a missing session as ErrSessionNotFound.
func (r *Registry) Lookup(sessionID string) (*Session, error) {
	s, ok := r.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	return s, nil
}

func (r *Registry) expiredLocked(s *Session, now time.Time) bool {
	idle := now.Sub(s.lastActive)
	if s.phase == PhaseFinished && idle > r.finishedTimeout {
		return true
	}

	return idle > r.idleTimeout
}

// RemoveExpired evicts idle sessions and returns how many were removed.
// Each candidate is rechecked under its own write lock and marked closed
// before removal, so an in-flight mutation always finishes first and any
// later mutation through a stale pointer fails with ErrSessionNotFound.
func (r *Registry) RemoveExpired() int {
	now := r.now()

	r.mu.Lock()
	var evicted []string
	for id, s := range r.sessions {
		s.mu.Lock()
		if r.expiredLocked(s, now) {
			s.closed = true
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
		s.mu.Unlock()
	}
	r.mu.Unlock()

	for _, id := range evicted {
		r.broadcaster.Close(id)
		r.logf("GAMES: Removed idle game %s", id)
	}

	return len(evicted)
}

// Stats returns aggregate counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		ActiveSessions:  len(r.sessions),
		SessionsCreated: r.created.Load(),
	}

	for _, s := range r.sessions {
		st.TotalPlayers += s.PlayerCount()
	}

	return st
}

// Run removes expired sessions periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(min(r.idleTimeout, r.finishedTimeout) / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RemoveExpired()
		}
	}
}
