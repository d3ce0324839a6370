package dragonseeker

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, clock *fakeClock) *Registry {
	t.Helper()

	var seed uint64
	return NewRegistry(Options{
		NewRand: func() *rand.Rand {
			seed++
			return rand.New(rand.NewPCG(seed, 42))
		},
		Now: clock.Now,
	})
}

// lobby creates a session with a host plus extra players and returns the
// session and every player id, host first.
func lobby(t *testing.T, r *Registry, n int) (*Session, []string) {
	t.Helper()

	id, host, err := r.CreateSession("Alice")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	s, ok := r.Get(id)
	if !ok {
		t.Fatalf("session %s not found after create", id)
	}

	names := []string{"Bob", "Carol", "Dave", "Erin", "Frank", "Grace", "Heidi", "Ivan", "Judy", "Mallory", "Niaj"}
	ids := []string{host}
	for i := 0; i < n-1; i++ {
		pid, err := s.Join(names[i])
		if err != nil {
			t.Fatalf("Join(%s): %v", names[i], err)
		}
		ids = append(ids, pid)
	}

	return s, ids
}

// started returns a session in PLAYING with n players.
func started(t *testing.T, r *Registry, n int) (*Session, []string) {
	t.Helper()

	s, ids := lobby(t, r, n)
	if err := s.StartGame(ids[0]); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	return s, ids
}

// setRoles overrides the dealt roles so a test can fix who the dragon is.
func setRoles(s *Session, dragon string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	knightDealt := false
	for _, id := range s.order {
		p := s.players[id]
		switch {
		case id == dragon:
			p.Role = RoleDragon
		case !knightDealt:
			p.Role = RoleKnight
			knightDealt = true
		default:
			p.Role = RoleVillager
		}
		p.KnowsWord = p.Role.KnowsWord()
	}
}

func dragonOf(t *testing.T, s *Session) string {
	t.Helper()

	for _, p := range s.Players() {
		if p.Role == RoleDragon {
			return p.ID
		}
	}

	t.Fatal("no dragon dealt")

	return ""
}

func mustVote(t *testing.T, s *Session, voter, target string) VoteOutcome {
	t.Helper()

	out, err := s.SubmitVote(voter, target)
	if err != nil {
		t.Fatalf("SubmitVote(%s, %s): %v", voter, target, err)
	}

	return out
}

func intPtr(n int) *int {
	return &n
}
