package portfolio

import (
	"fmt"
	"sort"

	"stock-trading-sim-go/internal/models"
)

// Position is a user's current net holding in one symbol. It is derived from
// the trade history on every request and never persisted, so it cannot drift
// from the trade log.
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     int64   `json:"quantity"`
	TotalCost    float64 `json:"total_cost"`
	AveragePrice float64 `json:"average_price"`
}

// computePositions reduces a user's full trade list into current holdings per
// symbol by replaying each symbol's history through the FIFO matcher. The
// cost basis of what remains is the cost of the unconsumed BUY lots, so the
// average price always agrees with what later sells will be matched against.
//
// Fully liquidated symbols (quantity exactly zero) are dropped from the
// output. A history whose sells exceed its buys is corrupted and returns
// ErrDataIntegrity; quantities are never clamped.
func computePositions(trades []models.Trade) ([]Position, error) {
	bySymbol := make(map[string][]models.Trade)
	for _, t := range trades {
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
	}

	positions := make([]Position, 0, len(bySymbol))
	for symbol, symTrades := range bySymbol {
		_, lots, err := replayHistory(symTrades)
		if err != nil {
			return nil, fmt.Errorf("%w: symbol %s: %v", ErrDataIntegrity, symbol, err)
		}

		var quantity int64
		var totalCost float64
		for _, l := range lots {
			quantity += l.remaining
			totalCost += float64(l.remaining) * l.price
		}

		if quantity == 0 {
			continue
		}
		positions = append(positions, Position{
			Symbol:       symbol,
			Quantity:     quantity,
			TotalCost:    totalCost,
			AveragePrice: totalCost / float64(quantity),
		})
	}

	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}
