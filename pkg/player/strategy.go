package player

import (
	"math/rand/v2"

	"github.com/talsheldon/mcp-league/pkg/game"
	"github.com/talsheldon/mcp-league/pkg/protocol"
)

// ChoiceContext is what a strategy sees when asked for a parity choice.
type ChoiceContext struct {
	RoundID int
	History []protocol.HistoryEntry
}

// Strategy produces a parity choice for one game.
type Strategy interface {
	Name() string
	Choose(opponentID string, ctx ChoiceContext) game.Parity
}

// Random picks even or odd uniformly.
type Random struct{}

// Name implements Strategy.
func (Random) Name() string { return "random" }

// Choose implements Strategy.
func (Random) Choose(string, ChoiceContext) game.Parity {
	if rand.IntN(2) == 0 {
		return game.Even
	}
	return game.Odd
}

// CounterFrequency picks against the opponent's most frequent past choice:
// when the histories differ, exactly one side matches the drawn parity and
// the match cannot end in the opponent-favoring draw. Falls back to random
// with no history against this opponent.
type CounterFrequency struct {
	fallback Strategy
}

// NewCounterFrequency creates the history-based strategy.
func NewCounterFrequency() *CounterFrequency {
	return &CounterFrequency{fallback: Random{}}
}

// Name implements Strategy.
func (*CounterFrequency) Name() string { return "counter_frequency" }

// Choose implements Strategy.
func (s *CounterFrequency) Choose(opponentID string, ctx ChoiceContext) game.Parity {
	even, odd := 0, 0
	for _, entry := range ctx.History {
		if entry.Opponent != opponentID {
			continue
		}
		switch entry.OpponentChoice {
		case string(game.Even):
			even++
		case string(game.Odd):
			odd++
		}
	}
	switch {
	case even > odd:
		return game.Odd
	case odd > even:
		return game.Even
	default:
		return s.fallback.Choose(opponentID, ctx)
	}
}
