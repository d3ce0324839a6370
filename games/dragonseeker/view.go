/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package dragonseeker

import "maps"

// VotingTimeRemaining returns the seconds left in the current voting round.
// ok is false when no timer is configured.
func (s *Session) VotingTimeRemaining() (remaining int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.votingTimeRemainingLocked()
}

func (s *Session) votingTimeRemainingLocked() (int, bool) {
	if s.timerSeconds == 0 {
		return 0, false
	}

	if s.phase != PhaseVoting || s.votingStartedAt.IsZero() {
		return s.timerSeconds, true
	}

	return remainingSeconds(s.timerSeconds, s.votingStartedAt, s.now()), true
}

// TimerStatus is what a timer poll sees.
type TimerStatus struct {
	Running   bool  // a timed voting round is in progress
	Remaining int   // seconds left while Running
	Expired   bool  // this poll ended the voting round
	Phase     Phase // phase after the poll
}

// PollTimer reports the voting countdown for playerID and, once it has run
// out, ends the round. Only the poll that performed the transition sees
// Expired.
func (s *Session) PollTimer(playerID string) (TimerStatus, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()

		return TimerStatus{}, ErrSessionNotFound
	}

	p, ok := s.players[playerID]
	if !ok {
		s.mu.RUnlock()

		return TimerStatus{}, ErrPlayerNotFound
	}

	st := TimerStatus{Phase: s.phase}
	if p.IsAlive && s.phase == PhaseVoting && s.timerSeconds > 0 {
		st.Running = true
		st.Remaining, _ = s.votingTimeRemainingLocked()
	}
	s.mu.RUnlock()

	if !st.Running || st.Remaining > 0 {
		return st, nil
	}

	st.Running = false
	st.Expired = s.ExpireVoting()
	st.Phase = s.Phase()

	return st, nil
}

// PlayerSummary is one roster entry as everyone sees it.
type PlayerSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsHost   bool   `json:"is_host"`
	IsAlive  bool   `json:"is_alive"`
	HasVoted bool   `json:"has_voted"`
	Role     Role   `json:"role,omitempty"` // revealed once finished
}

// TallyView is a round result with names resolved.
type TallyView struct {
	Counts         map[string]int `json:"counts"`
	Eliminated     string         `json:"eliminated,omitempty"`
	EliminatedName string         `json:"eliminated_name,omitempty"`
	Tie            bool           `json:"tie"`
	TimedOut       bool           `json:"timed_out"`
}

// PublicState is the secret-free snapshot broadcast to every subscriber.
type PublicState struct {
	Type          string          `json:"type"` // "game_state"
	GameID        string          `json:"game_id"`
	Version       uint64          `json:"version"`
	Phase         Phase           `json:"phase"`
	Round         int             `json:"round"`
	Players       []PlayerSummary `json:"players"`
	MinPlayers    int             `json:"min_players"`
	VotesCast     int             `json:"votes_cast"`
	AlivePlayers  int             `json:"alive_players"`
	TimerSeconds  *int            `json:"timer_seconds,omitempty"`
	TimeRemaining *int            `json:"time_remaining,omitempty"`
	LastTally     *TallyView      `json:"last_tally,omitempty"`
	Winner        Winner          `json:"winner,omitempty"`
	CommonWord    string          `json:"common_word,omitempty"`
	SpecialWord   string          `json:"special_word,omitempty"`
	DragonGuess   string          `json:"dragon_guess,omitempty"`
}

// PlayerView is PublicState plus what only one player may know.
type PlayerView struct {
	Type      string      `json:"type"` // "player_view"
	PlayerID  string      `json:"player_id"`
	Name      string      `json:"name"`
	IsHost    bool        `json:"is_host"`
	IsAlive   bool        `json:"is_alive"`
	Role      Role        `json:"role,omitempty"`
	KnowsWord bool        `json:"knows_word"`
	Word      string      `json:"word,omitempty"`
	HasVoted  bool        `json:"has_voted"`
	VotedFor  string      `json:"voted_for,omitempty"`
	State     PublicState `json:"state"`
}

// PublicState returns the snapshot that is broadcast.
func (s *Session) PublicState() PublicState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.publicStateLocked()
}

func (s *Session) publicStateLocked() PublicState {
	finished := s.phase == PhaseFinished

	st := PublicState{
		Type:         "game_state",
		GameID:       s.id,
		Version:      s.version,
		Phase:        s.phase,
		Round:        s.round,
		Players:      make([]PlayerSummary, 0, len(s.order)),
		MinPlayers:   MinPlayers,
		VotesCast:    len(s.votes),
		AlivePlayers: s.aliveCountLocked(),
		Winner:       s.winner,
	}

	for _, id := range s.order {
		p := s.players[id]
		_, voted := s.votes[id]

		sum := PlayerSummary{
			ID:       p.ID,
			Name:     p.Name,
			IsHost:   p.IsHost,
			IsAlive:  p.IsAlive,
			HasVoted: voted,
		}
		if finished {
			sum.Role = p.Role
		}

		st.Players = append(st.Players, sum)
	}

	if s.timerSeconds > 0 {
		seconds := s.timerSeconds
		st.TimerSeconds = &seconds

		if s.phase == PhaseVoting {
			remaining, _ := s.votingTimeRemainingLocked()
			st.TimeRemaining = &remaining
		}
	}

	if t := s.lastTally; t != nil {
		tv := &TallyView{
			Counts:     maps.Clone(t.Counts),
			Eliminated: t.Eliminated,
			Tie:        t.Tie,
			TimedOut:   t.TimedOut,
		}
		if p, ok := s.players[t.Eliminated]; ok {
			tv.EliminatedName = p.Name
		}

		st.LastTally = tv
	}

	if finished {
		st.CommonWord = s.commonWord
		st.SpecialWord = s.specialWord
		st.DragonGuess = s.dragonGuess
	}

	return st
}

// View returns the snapshot for playerID, including their role and word.
func (s *Session) View(playerID string) (PlayerView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return PlayerView{}, ErrSessionNotFound
	}

	p, ok := s.players[playerID]
	if !ok {
		return PlayerView{}, ErrPlayerNotFound
	}

	target, voted := s.votes[playerID]

	return PlayerView{
		Type:      "player_view",
		PlayerID:  p.ID,
		Name:      p.Name,
		IsHost:    p.IsHost,
		IsAlive:   p.IsAlive,
		Role:      p.Role,
		KnowsWord: p.KnowsWord,
		Word:      VisibleWord(p.Role, s.commonWord, s.specialWord),
		HasVoted:  voted,
		VotedFor:  target,
		State:     s.publicStateLocked(),
	}, nil
}
