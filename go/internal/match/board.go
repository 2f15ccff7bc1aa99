package match

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/mcdev12/memoria/go/internal/models"
)

var (
	// ErrInvalidCardCount is returned when a board size is odd or below two.
	ErrInvalidCardCount = errors.New("card count must be even and at least 2")
	// ErrInsufficientSymbols is returned when the palette cannot cover a board.
	ErrInsufficientSymbols = errors.New("not enough symbols in palette")
)

// palette holds the symbols of the multiplayer board, in deal order.
var palette = []string{"🔥", "❄️", "🧠", "🌿", "🌙", "⭐", "💎", "🔮", "⚡", "💥", "🌋", "🧊"}

// Palette returns a copy of the symbol palette.
func Palette() []string {
	return append([]string(nil), palette...)
}

// DealBoard builds a shuffled board of n cards: the first n/2 palette
// symbols, each twice. Card ids are board positions.
func DealBoard(n int, rng *rand.Rand) ([]models.Card, error) {
	return dealFrom(palette, n, rng)
}

func dealFrom(symbols []string, n int, rng *rand.Rand) ([]models.Card, error) {
	if n < 2 || n%2 != 0 {
		return nil, fmt.Errorf("deal %d cards: %w", n, ErrInvalidCardCount)
	}
	pairs := n / 2
	if pairs > len(symbols) {
		return nil, fmt.Errorf("deal %d pairs from %d symbols: %w", pairs, len(symbols), ErrInsufficientSymbols)
	}

	deck := make([]string, 0, n)
	for _, s := range symbols[:pairs] {
		deck = append(deck, s, s)
	}

	// Fisher-Yates
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}

	board := make([]models.Card, n)
	for i, s := range deck {
		board[i] = models.Card{ID: i, Symbol: s}
	}
	return board, nil
}

// IsMatch reports whether two distinct cards carry the same symbol.
func IsMatch(a, b models.Card) bool {
	return a.Symbol == b.Symbol && a.ID != b.ID
}

// Remaining counts the pairs on the board that are not matched yet.
func Remaining(board []models.Card) int {
	n := 0
	for _, c := range board {
		if !c.Matched {
			n++
		}
	}
	return n / 2
}
