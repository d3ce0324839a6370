/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package dragonseeker

import (
	"fmt"
	"math/rand/v2"
)

// Role is one of the three fixed roles. The zero value means unassigned.
type Role string

const (
	RoleNone     Role = ""
	RoleVillager Role = "villager"
	RoleKnight   Role = "knight"
	RoleDragon   Role = "dragon"
)

const (
	// MinPlayers is the smallest roster that can start a game.
	MinPlayers = 3

	// MaxPlayers caps the roster so a lobby can't grow without bound.
	MaxPlayers = 12

	// playersPerKnight sets the knight ratio: one knight per six players,
	// never fewer than one.
	playersPerKnight = 6
)

// KnowsWord reports whether the role is told a secret word.
func (r Role) KnowsWord() bool {
	return r == RoleVillager || r == RoleKnight
}

// VisibleWord returns the word a player with role r is shown.
func VisibleWord(r Role, common, special string) string {
	switch r {
	case RoleVillager:
		return common
	case RoleKnight:
		return special
	default:
		return ""
	}
}

// Distribution is the number of each role for a roster size.
type Distribution struct {
	Dragons   int
	Knights   int
	Villagers int
}

// RoleDistribution computes the role counts for n players.
func RoleDistribution(n int) (Distribution, error) {
	if n < MinPlayers {
		return Distribution{}, fmt.Errorf("%w: need at least %d, have %d", ErrNotEnoughPlayers, MinPlayers, n)
	}

	knights := max(1, n/playersPerKnight)

	return Distribution{
		Dragons:   1,
		Knights:   knights,
		Villagers: n - 1 - knights,
	}, nil
}

// AssignRoles deals roles to every id in the roster. The role multiset is
// shuffled with Fisher-Yates, so each arrangement of roles over players is
// equally likely for an unbiased rng.
func AssignRoles(ids []string, rng *rand.Rand) (map[string]Role, error) {
	dist, err := RoleDistribution(len(ids))
	if err != nil {
		return nil, err
	}

	deck := make([]Role, 0, len(ids))
	deck = append(deck, RoleDragon)
	for range dist.Knights {
		deck = append(deck, RoleKnight)
	}
	for range dist.Villagers {
		deck = append(deck, RoleVillager)
	}

	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	roles := make(map[string]Role, len(ids))
	for i, id := range ids {
		roles[id] = deck[i]
	}

	return roles, nil
}
