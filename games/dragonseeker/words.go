/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package dragonseeker

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
)

// WordPair is a related pair of words: villagers are told Common, knights
// are told Special.
type WordPair struct {
	Common  string
	Special string
}

// WordBank is an immutable catalog of word pairs.
type WordBank struct {
	pairs []WordPair
}

var defaultPairs = []WordPair{
	{"apple", "pear"},
	{"beach", "desert"},
	{"bicycle", "motorcycle"},
	{"castle", "palace"},
	{"cat", "tiger"},
	{"coffee", "tea"},
	{"doctor", "nurse"},
	{"guitar", "violin"},
	{"hospital", "pharmacy"},
	{"lake", "ocean"},
	{"library", "bookstore"},
	{"moon", "sun"},
	{"mountain", "volcano"},
	{"piano", "organ"},
	{"pizza", "pasta"},
	{"rain", "snow"},
	{"river", "canal"},
	{"rocket", "airplane"},
	{"school", "university"},
	{"shark", "dolphin"},
	{"soccer", "rugby"},
	{"spoon", "fork"},
	{"sword", "dagger"},
	{"train", "subway"},
	{"wizard", "witch"},
	{"wolf", "fox"},
	{"candle", "lantern"},
	{"crown", "helmet"},
	{"dragonfly", "butterfly"},
	{"forest", "jungle"},
	{"honey", "syrup"},
	{"knight", "samurai"},
	{"map", "compass"},
	{"pirate", "viking"},
	{"treasure", "gold"},
	{"wine", "beer"},
}

// DefaultWordBank returns the built-in catalog.
func DefaultWordBank() *WordBank {
	return &WordBank{pairs: defaultPairs}
}

// NewWordBank builds a catalog from pairs. Every pair must have two
// non-empty, distinct words.
func NewWordBank(pairs []WordPair) (*WordBank, error) {
	if len(pairs) == 0 {
		return nil, errors.New("word bank is empty")
	}

	out := make([]WordPair, 0, len(pairs))
	for i, p := range pairs {
		common := strings.TrimSpace(p.Common)
		special := strings.TrimSpace(p.Special)

		switch {
		case common == "" || special == "":
			return nil, fmt.Errorf("word pair %d: both words are required", i+1)
		case strings.EqualFold(common, special):
			return nil, fmt.Errorf("word pair %d: %q is used for both words", i+1, common)
		}

		out = append(out, WordPair{Common: common, Special: special})
	}

	return &WordBank{pairs: out}, nil
}

// LoadWordBank reads one "common,special" pair per line. Blank lines and
// lines starting with '#' are skipped.
func LoadWordBank(r io.Reader) (*WordBank, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}

	pairs := make([]WordPair, 0, len(records))
	for _, rec := range records {
		pairs = append(pairs, WordPair{Common: rec[0], Special: rec[1]})
	}

	return NewWordBank(pairs)
}

// Len returns the number of pairs in the catalog.
func (b *WordBank) Len() int {
	return len(b.pairs)
}

// Draw picks a pair uniformly at random.
func (b *WordBank) Draw(rng *rand.Rand) WordPair {
	return b.pairs[rng.IntN(len(b.pairs))]
}
