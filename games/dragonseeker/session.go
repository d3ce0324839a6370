/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package dragonseeker holds the rules and live state of Dragonseeker games.
// Every exported Session method is safe for concurrent use.
package dragonseeker

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Phase is a session's lifecycle state.
type Phase string

const (
	PhaseLobby       Phase = "lobby"
	PhasePlaying     Phase = "playing"
	PhaseVoting      Phase = "voting"
	PhaseDragonGuess Phase = "dragon_guess"
	PhaseFinished    Phase = "finished"
)

// Winner is the side that won a finished session.
type Winner string

const (
	WinnerNone      Winner = ""
	WinnerVillagers Winner = "villagers"
	WinnerDragon    Winner = "dragon"
)

const (
	maxNameLength  = 20
	maxGuessLength = 50
)

// Player holds the data we store server-side.
type Player struct {
	ID        string
	Name      string
	IsHost    bool
	IsAlive   bool
	Role      Role
	KnowsWord bool
}

// Session is one play-through from lobby to finish. All state is guarded by
// mu; exported methods take the lock, *Locked methods assume it is held.
type Session struct {
	id string

	mu sync.RWMutex

	players map[string]*Player
	order   []string // player ids in join order
	hostID  string

	phase       Phase
	round       int
	commonWord  string
	specialWord string

	votes     map[string]string // voter id -> target id
	lastTally *TallyResult

	winner      Winner
	dragonGuess string

	timerSeconds    int // 0 when no timer is configured
	votingStartedAt time.Time

	createdAt  time.Time
	lastActive time.Time
	version    uint64
	closed     bool

	rng         *rand.Rand
	words       *WordBank
	now         func() time.Time
	broadcaster *Broadcaster
}

type sessionDeps struct {
	rng         *rand.Rand
	words       *WordBank
	now         func() time.Time
	broadcaster *Broadcaster
}

func newSession(id, hostName string, deps sessionDeps) (*Session, string, error) {
	name, err := cleanName(hostName)
	if err != nil {
		return nil, "", err
	}

	now := deps.now()
	s := &Session{
		id:          id,
		players:     make(map[string]*Player),
		phase:       PhaseLobby,
		votes:       make(map[string]string),
		createdAt:   now,
		lastActive:  now,
		version:     1,
		rng:         deps.rng,
		words:       deps.words,
		now:         deps.now,
		broadcaster: deps.broadcaster,
	}

	host := s.addPlayerLocked(name)
	host.IsHost = true
	s.hostID = host.ID

	return s, host.ID, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)

	n := utf8.RuneCountInString(name)
	if n == 0 || n > maxNameLength {
		return "", fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidName, maxNameLength)
	}

	return name, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// mutate runs fn as one critical section. State only advances (version and
// last activity) when fn succeeds, and fn must not change anything before
// it has validated its input.
func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionNotFound
	}

	if err := fn(); err != nil {
		return err
	}

	s.touchLocked()

	return nil
}

func (s *Session) touchLocked() {
	s.version++
	s.lastActive = s.now()
}

func (s *Session) addPlayerLocked(name string) *Player {
	p := &Player{
		ID:      uuid.NewString(),
		Name:    name,
		IsAlive: true,
	}
	s.players[p.ID] = p
	s.order = append(s.order, p.ID)

	return p
}

func (s *Session) requireHostLocked(actorID string) error {
	p, ok := s.players[actorID]
	if !ok {
		return ErrPlayerNotFound
	}
	if !p.IsHost {
		return ErrNotHost
	}

	return nil
}

func (s *Session) aliveCountLocked() int {
	n := 0
	for _, p := range s.players {
		if p.IsAlive {
			n++
		}
	}

	return n
}

// Join adds a non-host player. Only valid in the lobby.
func (s *Session) Join(name string) (string, error) {
	var id string

	err := s.mutate(func() error {
		if s.phase != PhaseLobby {
			return ErrGameAlreadyStarted
		}

		clean, err := cleanName(name)
		if err != nil {
			return err
		}

		if len(s.players) >= MaxPlayers {
			return fmt.Errorf("%w: at most %d players", ErrSessionFull, MaxPlayers)
		}

		for _, p := range s.players {
			if strings.EqualFold(p.Name, clean) {
				return fmt.Errorf("%w: %q is already taken", ErrInvalidName, clean)
			}
		}

		id = s.addPlayerLocked(clean).ID

		return nil
	})

	return id, err
}

// SetVotingTimer configures the per-round voting timer. A nil value
// disables it. Host only, lobby only.
func (s *Session) SetVotingTimer(actorID string, seconds *int) error {
	return s.mutate(func() error {
		if err := s.requireHostLocked(actorID); err != nil {
			return err
		}

		if s.phase != PhaseLobby {
			return fmt.Errorf("%w: the timer can only be set in the lobby", ErrInvalidPhase)
		}

		if seconds == nil {
			s.timerSeconds = 0

			return nil
		}

		if !validTimer(*seconds) {
			return fmt.Errorf("%w: got %d", ErrInvalidTimerValue, *seconds)
		}

		s.timerSeconds = *seconds

		return nil
	})
}

// CanStartGame reports why the game cannot start yet, or nil.
func (s *Session) CanStartGame() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.canStartGameLocked()
}

func (s *Session) canStartGameLocked() error {
	if s.phase != PhaseLobby {
		return ErrGameAlreadyStarted
	}

	if len(s.players) < MinPlayers {
		return fmt.Errorf("%w: need at least %d players", ErrNotEnoughPlayers, MinPlayers)
	}

	return nil
}

// StartGame draws the words, deals the roles and moves to PLAYING. Roles and
// words never change after this. Host only.
func (s *Session) StartGame(actorID string) error {
	return s.mutate(func() error {
		if err := s.requireHostLocked(actorID); err != nil {
			return err
		}

		if err := s.canStartGameLocked(); err != nil {
			return err
		}

		roles, err := AssignRoles(s.order, s.rng)
		if err != nil {
			return err
		}

		pair := s.words.Draw(s.rng)
		s.commonWord = pair.Common
		s.specialWord = pair.Special

		for id, role := range roles {
			p := s.players[id]
			p.Role = role
			p.KnowsWord = role.KnowsWord()
		}

		s.round = 1
		s.phase = PhasePlaying

		return nil
	})
}

// CanStartVoting reports why voting cannot begin, or nil.
func (s *Session) CanStartVoting() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.canStartVotingLocked()
}

func (s *Session) canStartVotingLocked() error {
	if s.phase != PhasePlaying {
		return fmt.Errorf("%w: voting can only start while playing", ErrInvalidPhase)
	}

	return nil
}

// TransitionToVoting opens a voting round. The timer, if any, starts now.
// Host only.
func (s *Session) TransitionToVoting(actorID string) error {
	return s.mutate(func() error {
		if err := s.requireHostLocked(actorID); err != nil {
			return err
		}

		if err := s.canStartVotingLocked(); err != nil {
			return err
		}

		clear(s.votes)
		s.phase = PhaseVoting

		if s.timerSeconds > 0 {
			s.votingStartedAt = s.now()
		} else {
			s.votingStartedAt = time.Time{}
		}

		return nil
	})
}

// enterPlayingLocked ends a voting round and starts the next discussion.
func (s *Session) enterPlayingLocked() {
	clear(s.votes)
	s.votingStartedAt = time.Time{}
	s.round++
	s.phase = PhasePlaying
}

// finishLocked is the only way into FINISHED.
func (s *Session) finishLocked(w Winner) {
	if w == WinnerNone {
		panic(fmt.Sprintf("dragonseeker: session %s finished without a winner", s.id))
	}

	clear(s.votes)
	s.votingStartedAt = time.Time{}
	s.winner = w
	s.phase = PhaseFinished
}

// GuessOutcome is the result of the dragon's guess.
type GuessOutcome struct {
	Correct bool
	Winner  Winner
}

// GuessWord is the dragon's last chance after being voted out: naming the
// villagers' word wins the game for the dragon.
func (s *Session) GuessWord(actorID, guess string) (GuessOutcome, error) {
	var out GuessOutcome

	err := s.mutate(func() error {
		p, ok := s.players[actorID]
		if !ok {
			return ErrPlayerNotFound
		}
		if p.Role != RoleDragon {
			return ErrNotDragon
		}

		if s.phase != PhaseDragonGuess {
			return fmt.Errorf("%w: not in the dragon guess phase", ErrInvalidPhase)
		}

		guess = strings.ToLower(strings.TrimSpace(guess))

		switch n := utf8.RuneCountInString(guess); {
		case n == 0:
			return fmt.Errorf("%w: guess cannot be empty", ErrInvalidGuess)
		case n > maxGuessLength:
			return fmt.Errorf("%w: guess too long (max %d characters)", ErrInvalidGuess, maxGuessLength)
		}

		out.Correct = guess == strings.ToLower(s.commonWord)
		out.Winner = WinnerVillagers
		if out.Correct {
			out.Winner = WinnerDragon
		}

		s.dragonGuess = guess
		s.finishLocked(out.Winner)

		return nil
	})

	return out, err
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.phase
}

// Winner returns the winner, or WinnerNone before the game has finished.
func (s *Session) Winner() Winner {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.winner
}

// Player returns a copy of one player.
func (s *Session) Player(id string) (Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}

	return *p, true
}

// Players returns copies of every player in join order.
func (s *Session) Players() []Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Player, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.players[id])
	}

	return out
}

// PlayerCount returns the roster size.
func (s *Session) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.players)
}

// TimerSeconds returns the configured voting timer.
func (s *Session) TimerSeconds() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.timerSeconds, s.timerSeconds > 0
}

// Publish pushes the current public state to every subscriber. Call it
// after a mutation has returned, never from inside one.
func (s *Session) Publish() {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(s)
	}
}
