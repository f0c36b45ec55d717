package manager

import (
	"fmt"

	"github.com/talsheldon/mcp-league/pkg/protocol"
)

// Round is one schedule partition: the matches announced and completed
// together.
type Round struct {
	ID      int
	Matches []protocol.MatchRecord
}

// SequentialSchedule packs all unordered player pairs into rounds of capacity
// ⌊n/2⌋ (n even) or ⌊(n-1)/2⌋ (n odd), preserving the pair enumeration
// order over the registration-ordered player sequence. It does not guarantee
// a player plays at most once per round (see BalancedSchedule).
func SequentialSchedule(playerIDs []string, gameType string) []Round {
	n := len(playerIDs)
	if n < 2 {
		return nil
	}

	var pairs [][2]string
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, [2]string{playerIDs[i], playerIDs[j]})
		}
	}

	perRound := n / 2
	if n%2 != 0 {
		perRound = (n - 1) / 2
	}

	var rounds []Round
	matchNum := 1
	for start := 0; start < len(pairs); start += perRound {
		end := start + perRound
		if end > len(pairs) {
			end = len(pairs)
		}
		roundID := len(rounds) + 1
		round := Round{ID: roundID}
		for _, pair := range pairs[start:end] {
			round.Matches = append(round.Matches, protocol.MatchRecord{
				MatchID:   fmt.Sprintf("R%dM%d", roundID, matchNum),
				GameType:  gameType,
				PlayerAID: pair[0],
				PlayerBID: pair[1],
			})
			matchNum++
		}
		if len(round.Matches) > 0 {
			rounds = append(rounds, round)
		}
	}
	return rounds
}

// BalancedSchedule packs the same pair set with the circle method, so every
// player appears at most once per round. Match ids stay monotonic across the
// whole schedule. Opt-in via the balanced_rounds configuration flag.
func BalancedSchedule(playerIDs []string, gameType string) []Round {
	n := len(playerIDs)
	if n < 2 {
		return nil
	}

	// Registration index, used to keep player A the earlier-registered side.
	index := make(map[string]int, n)
	for i, id := range playerIDs {
		index[id] = i
	}

	ring := append([]string(nil), playerIDs...)
	if len(ring)%2 != 0 {
		ring = append(ring, "") // bye
	}
	size := len(ring)

	var rounds []Round
	matchNum := 1
	for r := 0; r < size-1; r++ {
		round := Round{ID: len(rounds) + 1}
		for i := 0; i < size/2; i++ {
			a, b := ring[i], ring[size-1-i]
			if a == "" || b == "" {
				continue
			}
			if index[a] > index[b] {
				a, b = b, a
			}
			round.Matches = append(round.Matches, protocol.MatchRecord{
				MatchID:   fmt.Sprintf("R%dM%d", round.ID, matchNum),
				GameType:  gameType,
				PlayerAID: a,
				PlayerBID: b,
			})
			matchNum++
		}
		if len(round.Matches) > 0 {
			rounds = append(rounds, round)
		}
		// Rotate all but the first position.
		last := ring[size-1]
		copy(ring[2:], ring[1:size-1])
		ring[1] = last
	}
	return rounds
}
