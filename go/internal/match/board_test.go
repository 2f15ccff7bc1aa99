package match

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/memoria/go/internal/models"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestDealBoard_EachSymbolTwice(t *testing.T) {
	for _, n := range []int{2, 8, 12, 16, 20, 24} {
		board, err := DealBoard(n, testRNG())
		require.NoError(t, err)
		require.Len(t, board, n)

		counts := map[string]int{}
		for i, c := range board {
			assert.Equal(t, i, c.ID)
			assert.False(t, c.Flipped)
			assert.False(t, c.Matched)
			counts[c.Symbol]++
		}
		assert.Len(t, counts, n/2)
		for sym, cnt := range counts {
			assert.Equal(t, 2, cnt, "symbol %s", sym)
		}
	}
}

func TestDealBoard_PermutationOfMultiset(t *testing.T) {
	board, err := DealBoard(16, testRNG())
	require.NoError(t, err)

	var got []string
	for _, c := range board {
		got = append(got, c.Symbol)
	}
	var want []string
	for _, s := range palette[:8] {
		want = append(want, s, s)
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func TestDealBoard_Shuffles(t *testing.T) {
	rng := testRNG()
	first, err := DealBoard(24, rng)
	require.NoError(t, err)

	differs := false
	for i := 0; i < 10 && !differs; i++ {
		next, err := DealBoard(24, rng)
		require.NoError(t, err)
		for j := range next {
			if next[j].Symbol != first[j].Symbol {
				differs = true
				break
			}
		}
	}
	assert.True(t, differs)
}

func TestDealBoard_Errors(t *testing.T) {
	_, err := DealBoard(0, testRNG())
	assert.ErrorIs(t, err, ErrInvalidCardCount)

	_, err = DealBoard(7, testRNG())
	assert.ErrorIs(t, err, ErrInvalidCardCount)

	_, err = DealBoard(2*len(palette)+2, testRNG())
	assert.ErrorIs(t, err, ErrInsufficientSymbols)

	_, err = dealFrom([]string{"a"}, 4, testRNG())
	assert.ErrorIs(t, err, ErrInsufficientSymbols)
}

func TestIsMatch(t *testing.T) {
	a := models.Card{ID: 0, Symbol: "🔥"}
	b := models.Card{ID: 3, Symbol: "🔥"}
	c := models.Card{ID: 4, Symbol: "🧊"}

	assert.True(t, IsMatch(a, b))
	assert.False(t, IsMatch(a, c))
	assert.False(t, IsMatch(a, a))
}

func TestRemaining(t *testing.T) {
	board, err := DealBoard(8, testRNG())
	require.NoError(t, err)
	assert.Equal(t, 4, Remaining(board))

	board[0].Matched = true
	board[1].Matched = true
	assert.Equal(t, 3, Remaining(board))
}

func TestDealer_SameSeedSameBoard(t *testing.T) {
	a, err := NewDealer(42).Deal(12)
	require.NoError(t, err)
	b, err := NewDealer(42).Deal(12)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewSeed(t *testing.T) {
	s1, err := NewSeed()
	require.NoError(t, err)
	s2, err := NewSeed()
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}
