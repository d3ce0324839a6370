/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package dragonseeker

import (
	crand "crypto/rand"
	"math/rand/v2"
)

// NewRand returns a ChaCha8 generator seeded from crypto/rand. A *rand.Rand
// is not safe for concurrent use; each session owns its own.
func NewRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	return rand.New(rand.NewChaCha8(seed))
}
