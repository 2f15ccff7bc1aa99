package models

// Card is one face-down tile on the board. ID is the card's board position.
type Card struct {
	ID      int    `json:"id"`
	Symbol  string `json:"symbol"`
	Flipped bool   `json:"isFlipped"`
	Matched bool   `json:"isMatched"`
}

// RoundConfig defines the board size and turn clock of one round.
type RoundConfig struct {
	Round       int    `json:"round" yaml:"round"`
	CardCount   int    `json:"cards" yaml:"cards"`
	TurnSeconds int    `json:"timePerTurn" yaml:"time_per_turn"`
	Difficulty  string `json:"difficulty" yaml:"difficulty"`
}

// Pairs returns the number of pairs dealt in the round.
func (c RoundConfig) Pairs() int {
	return c.CardCount / 2
}
