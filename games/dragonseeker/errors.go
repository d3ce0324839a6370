/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package dragonseeker

import "errors"

// Kind classifies an error so callers can react without matching
// individual sentinels.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidPhase
	KindValidation
	KindInsufficientPlayers
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidPhase:
		return "invalid_phase"
	case KindValidation:
		return "validation_error"
	case KindInsufficientPlayers:
		return "insufficient_players"
	default:
		return "unknown"
	}
}

// Error is a rejected operation. Sentinels below are compared by identity
// with errors.Is; wrap them with fmt.Errorf("%w: ...") to add detail.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrSessionNotFound = newError(KindNotFound, "game not found")
	ErrPlayerNotFound  = newError(KindNotFound, "player not found")

	ErrNotHost   = newError(KindForbidden, "only the host can do that")
	ErrNotDragon = newError(KindForbidden, "only the dragon can guess the word")

	ErrGameAlreadyStarted = newError(KindInvalidPhase, "game already started")
	ErrInvalidPhase       = newError(KindInvalidPhase, "not allowed in the current phase")

	ErrInvalidTimerValue = newError(KindValidation, "timer must be between 30 and 180 seconds")
	ErrVoterIneligible   = newError(KindValidation, "player cannot vote")
	ErrInvalidTarget     = newError(KindValidation, "invalid vote target")
	ErrInvalidGuess      = newError(KindValidation, "invalid guess")
	ErrInvalidName       = newError(KindValidation, "invalid player name")
	ErrSessionFull       = newError(KindValidation, "game is full")

	ErrNotEnoughPlayers = newError(KindInsufficientPlayers, "not enough players")
)

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
