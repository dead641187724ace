package portfolio

import (
	"fmt"
	"sort"

	"stock-trading-sim-go/internal/models"
)

// lotState tracks the unconsumed remainder of one BUY trade during FIFO
// matching.
type lotState struct {
	tradeID   uint
	price     float64
	remaining int64
}

// sellResult is the outcome of FIFO-matching one SELL against prior BUY lots.
type sellResult struct {
	matchedQuantity      int64
	matchedCost          float64
	averageBuyPrice      float64
	profitLoss           float64
	profitLossPercentage float64
}

// matchSell consumes BUY lots oldest-first to cover a SELL of quantity shares
// at sellPrice. Lots are mutated in place: their remaining quantities shrink
// as shares are matched.
//
// The caller is responsible for verifying net holdings beforehand; if the
// lots cannot cover the full quantity, the result covers only the matched
// portion. Zero matched shares yields an all-zero result rather than NaN.
func matchSell(lots []lotState, quantity int64, sellPrice float64) sellResult {
	var res sellResult
	remainingToSell := quantity

	for i := range lots {
		if remainingToSell == 0 {
			break
		}
		if lots[i].remaining <= 0 {
			continue
		}
		sharesToUse := remainingToSell
		if lots[i].remaining < sharesToUse {
			sharesToUse = lots[i].remaining
		}
		res.matchedCost += float64(sharesToUse) * lots[i].price
		lots[i].remaining -= sharesToUse
		remainingToSell -= sharesToUse
		res.matchedQuantity += sharesToUse
	}

	if res.matchedQuantity == 0 {
		return sellResult{}
	}

	res.averageBuyPrice = res.matchedCost / float64(res.matchedQuantity)
	res.profitLoss = (sellPrice - res.averageBuyPrice) * float64(res.matchedQuantity)
	if res.matchedCost > 0 {
		res.profitLossPercentage = res.profitLoss / res.matchedCost * 100
	}
	return res
}

// sellOutcome pairs a SELL trade with its recomputed realized figures.
type sellOutcome struct {
	tradeID              uint
	profitLoss           float64
	profitLossPercentage float64
}

// replayHistory replays a single (user, symbol) trade history in
// chronological order, FIFO-matching every SELL as it occurs. It returns the
// realized outcome of each SELL and the BUY lots still open afterwards.
//
// A SELL that exceeds the shares held at its point in the history makes the
// whole log inconsistent; that is reported as ErrInsufficientShares and the
// caller decides whether it means a rejected order or a corrupted history.
func replayHistory(trades []models.Trade) ([]sellOutcome, []lotState, error) {
	sorted := make([]models.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TradeDate.Equal(sorted[j].TradeDate) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].TradeDate.Before(sorted[j].TradeDate)
	})

	var lots []lotState
	var outcomes []sellOutcome

	for _, t := range sorted {
		switch t.Action {
		case models.ActionBuy:
			lots = append(lots, lotState{tradeID: t.ID, price: t.Price, remaining: t.Quantity})
		case models.ActionSell:
			var held int64
			for _, l := range lots {
				held += l.remaining
			}
			if t.Quantity > held {
				return nil, nil, fmt.Errorf("%w: sell of %d %s shares against %d held",
					ErrInsufficientShares, t.Quantity, t.Symbol, held)
			}
			res := matchSell(lots, t.Quantity, t.Price)
			outcomes = append(outcomes, sellOutcome{
				tradeID:              t.ID,
				profitLoss:           res.profitLoss,
				profitLossPercentage: res.profitLossPercentage,
			})
		default:
			return nil, nil, fmt.Errorf("%w: unknown trade action %q", ErrDataIntegrity, t.Action)
		}
	}

	return outcomes, lots, nil
}

// openQuantity sums the unconsumed shares across lots.
func openQuantity(lots []lotState) int64 {
	var held int64
	for _, l := range lots {
		held += l.remaining
	}
	return held
}
