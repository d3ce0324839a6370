/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package dragonseeker

import (
	"fmt"
	"maps"
	"time"
)

// TallyResult is the outcome of one voting round.
type TallyResult struct {
	Counts     map[string]int // target id -> votes received
	Eliminated string         // empty when nobody was eliminated
	Tie        bool
	TimedOut   bool // the round ended because the timer ran out
}

func (t *TallyResult) clone() *TallyResult {
	if t == nil {
		return nil
	}

	c := *t
	c.Counts = maps.Clone(t.Counts)

	return &c
}

// VoteOutcome describes what a submitted vote caused.
type VoteOutcome struct {
	Complete     bool         // this vote closed the round
	Tally        *TallyResult // set when Complete
	Winner       Winner
	Phase        Phase
	VotesCast    int
	AlivePlayers int
}

// CanVote reports why playerID cannot vote right now, or nil.
func (s *Session) CanVote(playerID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.canVoteLocked(playerID)
}

func (s *Session) canVoteLocked(playerID string) error {
	if s.phase != PhaseVoting {
		return fmt.Errorf("%w: not in the voting phase", ErrInvalidPhase)
	}

	p, ok := s.players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}

	if !p.IsAlive {
		return fmt.Errorf("%w: eliminated players cannot vote", ErrVoterIneligible)
	}

	if _, voted := s.votes[playerID]; voted {
		return fmt.Errorf("%w: already voted this round", ErrVoterIneligible)
	}

	return nil
}

// AllVotesSubmitted reports whether every alive player has voted.
func (s *Session) AllVotesSubmitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.allVotesSubmittedLocked()
}

func (s *Session) allVotesSubmittedLocked() bool {
	return len(s.votes) == s.aliveCountLocked()
}

// SubmitVote records voterID's vote for targetID. The vote that completes
// the round also tallies it and moves the session on, inside the same
// critical section, so exactly one caller ever sees Complete.
func (s *Session) SubmitVote(voterID, targetID string) (VoteOutcome, error) {
	var out VoteOutcome

	err := s.mutate(func() error {
		if err := s.canVoteLocked(voterID); err != nil {
			return err
		}

		target, ok := s.players[targetID]
		if !ok {
			return fmt.Errorf("%w: unknown vote target", ErrPlayerNotFound)
		}
		if !target.IsAlive {
			return fmt.Errorf("%w: %s has already been eliminated", ErrInvalidTarget, target.Name)
		}

		s.votes[voterID] = targetID

		out.VotesCast = len(s.votes)
		out.AlivePlayers = s.aliveCountLocked()

		if s.allVotesSubmittedLocked() {
			out.Complete = true
			out.Tally = s.tallyVotesLocked().clone()
			s.resolveRoundLocked()
		}

		out.Phase = s.phase
		out.Winner = s.winner

		return nil
	})

	return out, err
}

// countVotesLocked counts votes cast by alive voters.
func (s *Session) countVotesLocked() map[string]int {
	counts := make(map[string]int)
	for voter, target := range s.votes {
		if p, ok := s.players[voter]; ok && p.IsAlive {
			counts[target]++
		}
	}

	return counts
}

// tallyVotesLocked eliminates the target with a strict plurality. Any tie
// at the top eliminates nobody.
func (s *Session) tallyVotesLocked() *TallyResult {
	counts := s.countVotesLocked()

	best, leaders := 0, 0
	var leader string
	for target, n := range counts {
		switch {
		case n > best:
			best, leaders, leader = n, 1, target
		case n == best:
			leaders++
		}
	}

	result := &TallyResult{Counts: counts}

	switch {
	case leaders > 1:
		result.Tie = true
	case leaders == 1:
		result.Eliminated = leader
		s.players[leader].IsAlive = false
	}

	s.lastTally = result

	return result
}

// resolveRoundLocked applies the outcome of the tally just taken.
func (s *Session) resolveRoundLocked() {
	switch {
	case s.dragonEliminatedLocked():
		clear(s.votes)
		s.votingStartedAt = time.Time{}
		s.phase = PhaseDragonGuess
	case s.determineWinnerLocked() != WinnerNone:
		s.finishLocked(s.determineWinnerLocked())
	default:
		s.enterPlayingLocked()
	}
}

// ExpireVoting ends a timed-out voting round without an elimination. The
// phase and deadline are checked under the same lock that applies the
// transition, so among concurrent callers at most one gets true.
func (s *Session) ExpireVoting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.phase != PhaseVoting || s.timerSeconds == 0 {
		return false
	}

	if remainingSeconds(s.timerSeconds, s.votingStartedAt, s.now()) > 0 {
		return false
	}

	s.lastTally = &TallyResult{
		Counts:   s.countVotesLocked(),
		TimedOut: true,
	}
	s.enterPlayingLocked()
	s.touchLocked()

	return true
}

// LastTally returns the most recent round's result.
func (s *Session) LastTally() *TallyResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastTally.clone()
}
