/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package dragonseeker

// DragonEliminated reports whether the last tally voted out the dragon.
func (s *Session) DragonEliminated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.dragonEliminatedLocked()
}

func (s *Session) dragonEliminatedLocked() bool {
	if s.lastTally == nil || s.lastTally.Eliminated == "" {
		return false
	}

	p, ok := s.players[s.lastTally.Eliminated]

	return ok && p.Role == RoleDragon
}

// DetermineWinner returns the winner decided by the current board, if any.
// A freshly eliminated dragon yields no winner: the dragon still gets to
// guess the word.
func (s *Session) DetermineWinner() Winner {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.winner != WinnerNone {
		return s.winner
	}

	return s.determineWinnerLocked()
}

// determineWinnerLocked evaluates the rules in order; the first match
// decides.
func (s *Session) determineWinnerLocked() Winner {
	if s.dragonEliminatedLocked() {
		return WinnerNone
	}

	others := 0
	for _, p := range s.players {
		if p.IsAlive && p.Role != RoleDragon {
			others++
		}
	}

	if others < 2 {
		return WinnerDragon
	}

	return WinnerNone
}
