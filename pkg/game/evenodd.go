// Package game defines the pluggable game engine contract and the built-in
// even/odd game used by the league runtime.
package game

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Parity is a player's choice: "even" or "odd".
type Parity string

// Parity values.
const (
	Even Parity = "even"
	Odd  Parity = "odd"
)

// ParseParity normalizes and validates a parity choice.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(s) {
	case string(Even):
		return Even, nil
	case string(Odd):
		return Odd, nil
	default:
		return "", fmt.Errorf("invalid parity choice %q", s)
	}
}

// ParityOf returns the parity of a number.
func ParityOf(n int) Parity {
	if n%2 == 0 {
		return Even
	}
	return Odd
}

// Result is the outcome of one adjudicated game. Winner is empty on a draw.
type Result struct {
	Winner       string
	DrawnNumber  int
	NumberParity Parity
	Choices      map[string]Parity
	Score        map[string]int
	Reason       string
}

// Engine adjudicates one game between two players given their choices.
type Engine interface {
	GameType() string
	Play(playerA, playerB string, choiceA, choiceB Parity) (*Result, error)
}

// Points awarded by the even/odd game.
const (
	winPoints  = 3
	losePoints = 0
)

// EvenOdd draws a uniform random number in [min, max] and awards the win to
// whichever player chose the matching parity.
type EvenOdd struct {
	min  int
	max  int
	roll func(n int) int
}

// NewEvenOdd creates an engine drawing from [min, max].
func NewEvenOdd(min, max int) *EvenOdd {
	return &EvenOdd{min: min, max: max, roll: rand.IntN}
}

// NewEvenOddWithRoll creates an engine with an injected roll function
// (roll(n) must return a value in [0, n)). Used for deterministic tests.
func NewEvenOddWithRoll(min, max int, roll func(n int) int) *EvenOdd {
	return &EvenOdd{min: min, max: max, roll: roll}
}

// GameType implements Engine.
func (g *EvenOdd) GameType() string { return "even_odd" }

// Play implements Engine. Player A's choice is checked first, so on the
// impossible case of identical choices both matching, A wins.
func (g *EvenOdd) Play(playerA, playerB string, choiceA, choiceB Parity) (*Result, error) {
	if _, err := ParseParity(string(choiceA)); err != nil {
		return nil, fmt.Errorf("player %s: %w", playerA, err)
	}
	if _, err := ParseParity(string(choiceB)); err != nil {
		return nil, fmt.Errorf("player %s: %w", playerB, err)
	}

	drawn := g.min + g.roll(g.max-g.min+1)
	parity := ParityOf(drawn)

	res := &Result{
		DrawnNumber:  drawn,
		NumberParity: parity,
		Choices:      map[string]Parity{playerA: choiceA, playerB: choiceB},
		Score:        map[string]int{playerA: losePoints, playerB: losePoints},
	}

	switch {
	case choiceA == parity:
		res.Winner = playerA
		res.Score[playerA] = winPoints
		res.Reason = fmt.Sprintf("%s chose %s, number was %d (%s)", playerA, choiceA, drawn, parity)
	case choiceB == parity:
		res.Winner = playerB
		res.Score[playerB] = winPoints
		res.Reason = fmt.Sprintf("%s chose %s, number was %d (%s)", playerB, choiceB, drawn, parity)
	default:
		// Unreachable with choices restricted to {even, odd}; kept for the
		// engine contract.
		res.Reason = fmt.Sprintf("Both players chose incorrectly. Number was %d (%s)", drawn, parity)
	}
	return res, nil
}
