package game

import (
	"fmt"

	"betting_ledger/internal/apperr"
	"betting_ledger/internal/ledger"

	"github.com/shopspring/decimal"
)

// Stake is one entrant's contribution to the pot
type Stake struct {
	UserID string
	Amount decimal.Decimal
}

// Payout is what one entrant receives when the game completes
type Payout struct {
	UserID string
	Result Result
	Amount decimal.Decimal
}

// TxType is the ledger type of the credit paying this entrant out:
// winnings for a win, the refund inverse of the stake for a draw.
func (p Payout) TxType() ledger.TxType {
	if p.Result == ResultWin {
		return ledger.TxTypeGameWin
	}
	return ledger.TxTypeGameLoss
}

// PotSplit divides a pot between entrants and the house
type PotSplit struct {
	Payouts  []Payout
	HouseCut decimal.Decimal
}

func (s PotSplit) Total() decimal.Decimal {
	total := s.HouseCut
	for _, p := range s.Payouts {
		total = total.Add(p.Amount)
	}
	return total
}

// SplitPot applies the payout policy. Draws are refunded their stake less the
// draw cut. Winners share what is left of the pot less the house cut, each
// share rounded down to the cent. Everything not paid to an entrant goes to
// the house, so the split always sums to pot.
func SplitPot(pot decimal.Decimal, stakes []Stake, outcomes map[string]Result, houseCutRate, drawCutRate decimal.Decimal) (PotSplit, error) {
	if len(outcomes) != len(stakes) {
		return PotSplit{}, apperr.Invalid("outcomes", fmt.Sprintf("expected %d outcomes, got %d", len(stakes), len(outcomes)))
	}

	one := decimal.NewFromInt(1)
	drawStakes := decimal.Zero
	paid := decimal.Zero
	winners := 0

	payouts := make([]Payout, 0, len(stakes))
	for _, st := range stakes {
		result, ok := outcomes[st.UserID]
		if !ok {
			return PotSplit{}, apperr.Invalid("outcomes", fmt.Sprintf("missing outcome for entrant %s", st.UserID))
		}
		if !result.Valid() {
			return PotSplit{}, apperr.Invalid("outcomes", fmt.Sprintf("unknown result %q", result))
		}

		p := Payout{UserID: st.UserID, Result: result, Amount: decimal.Zero}
		switch result {
		case ResultDraw:
			drawStakes = drawStakes.Add(st.Amount)
			p.Amount = st.Amount.Mul(one.Sub(drawCutRate)).RoundDown(2)
			paid = paid.Add(p.Amount)
		case ResultWin:
			winners++
		}
		payouts = append(payouts, p)
	}

	remaining := pot.Sub(drawStakes)
	if remaining.IsNegative() {
		return PotSplit{}, fmt.Errorf("pot %s is smaller than the drawn stakes %s", pot, drawStakes)
	}

	if winners > 0 {
		share := remaining.Mul(one.Sub(houseCutRate)).
			Div(decimal.NewFromInt(int64(winners))).
			RoundDown(2)
		for i := range payouts {
			if payouts[i].Result == ResultWin {
				payouts[i].Amount = share
				paid = paid.Add(share)
			}
		}
	}

	return PotSplit{
		Payouts:  payouts,
		HouseCut: pot.Sub(paid),
	}, nil
}
