package tournament

import (
	"fmt"

	"betting_ledger/internal/apperr"

	"github.com/shopspring/decimal"
)

// eliminate marks the named active entries as knocked out in round and
// returns the indexes it changed. The last remaining active entry, if any,
// becomes the winner.
func eliminate(entries []TournamentEntry, eliminated []string, round int) (changed []int, winner int, err error) {
	if len(eliminated) == 0 {
		return nil, -1, apperr.Invalid("eliminated", "must name at least one entrant")
	}

	index := make(map[string]int, len(entries))
	active := 0
	for i, e := range entries {
		index[e.UserID] = i
		if e.Status == EntryActive {
			active++
		}
	}

	seen := make(map[string]bool, len(eliminated))
	for _, userID := range eliminated {
		i, ok := index[userID]
		if !ok {
			return nil, -1, apperr.Invalid("eliminated", fmt.Sprintf("user %s is not registered", userID))
		}
		if entries[i].Status != EntryActive {
			return nil, -1, apperr.Invalid("eliminated", fmt.Sprintf("user %s is no longer active", userID))
		}
		if seen[userID] {
			return nil, -1, apperr.Invalid("eliminated", fmt.Sprintf("user %s listed twice", userID))
		}
		seen[userID] = true
	}
	if len(seen) >= active {
		return nil, -1, apperr.Invalid("eliminated", "at least one entrant must survive the round")
	}

	for _, userID := range eliminated {
		i := index[userID]
		r := round
		entries[i].Status = EntryEliminated
		entries[i].EliminatedRound = &r
		changed = append(changed, i)
	}

	winner = -1
	if active-len(seen) == 1 {
		for i := range entries {
			if entries[i].Status == EntryActive {
				entries[i].Status = EntryWinner
				winner = i
				changed = append(changed, i)
				break
			}
		}
	}
	return changed, winner, nil
}

// prize splits the pool between the winner and the house, the winner's part
// rounded down to the cent
func prize(pool, houseCutRate decimal.Decimal) (winner, house decimal.Decimal) {
	winner = pool.Mul(decimal.NewFromInt(1).Sub(houseCutRate)).RoundDown(2)
	return winner, pool.Sub(winner)
}
