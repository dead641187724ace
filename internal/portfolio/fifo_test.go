package portfolio

import (
	"testing"
	"time"

	"stock-trading-sim-go/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestMatchSell_FIFOWorkedExample(t *testing.T) {
	// BUY 10@$10, BUY 10@$20, SELL 15@$30:
	// matched cost = 10*10 + 5*20 = 200, avg buy = 13.33, P/L ~ 250.05
	lots := []lotState{
		{tradeID: 1, price: 10, remaining: 10},
		{tradeID: 2, price: 20, remaining: 10},
	}

	res := matchSell(lots, 15, 30)

	assert.Equal(t, int64(15), res.matchedQuantity)
	assert.InDelta(t, 200.0, res.matchedCost, 1e-9)
	assert.InDelta(t, 200.0/15.0, res.averageBuyPrice, 1e-9)
	assert.InDelta(t, (30-200.0/15.0)*15, res.profitLoss, 1e-9)
	assert.InDelta(t, 125.0, res.profitLossPercentage, 1e-9) // 250/200*100

	// First lot fully consumed, second lot keeps 5 shares at $20.
	assert.Equal(t, int64(0), lots[0].remaining)
	assert.Equal(t, int64(5), lots[1].remaining)
}

func TestMatchSell_PartialLot(t *testing.T) {
	lots := []lotState{{tradeID: 1, price: 50, remaining: 100}}

	res := matchSell(lots, 40, 60)

	assert.Equal(t, int64(40), res.matchedQuantity)
	assert.InDelta(t, 2000.0, res.matchedCost, 1e-9)
	assert.InDelta(t, 50.0, res.averageBuyPrice, 1e-9)
	assert.InDelta(t, 400.0, res.profitLoss, 1e-9)
	assert.Equal(t, int64(60), lots[0].remaining)
}

func TestMatchSell_ZeroMatchedShares(t *testing.T) {
	// No lots to match against must yield zeros, never NaN.
	res := matchSell(nil, 10, 25)

	assert.Equal(t, int64(0), res.matchedQuantity)
	assert.Equal(t, 0.0, res.profitLoss)
	assert.Equal(t, 0.0, res.averageBuyPrice)
	assert.Equal(t, 0.0, res.profitLossPercentage)
}

func TestMatchSell_SkipsExhaustedLots(t *testing.T) {
	lots := []lotState{
		{tradeID: 1, price: 10, remaining: 0},
		{tradeID: 2, price: 20, remaining: 10},
	}

	res := matchSell(lots, 5, 30)

	assert.InDelta(t, 100.0, res.matchedCost, 1e-9)
	assert.InDelta(t, 20.0, res.averageBuyPrice, 1e-9)
}

func tradeAt(id uint, symbol, action string, qty int64, price float64, at time.Time) models.Trade {
	t := models.Trade{
		Symbol:      symbol,
		Action:      action,
		Quantity:    qty,
		Price:       price,
		TotalAmount: float64(qty) * price,
		TradeDate:   at,
	}
	t.ID = id
	return t
}

func TestReplayHistory_ComputesPerSellOutcomes(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		tradeAt(1, "AAPL", models.ActionBuy, 10, 10, base),
		tradeAt(2, "AAPL", models.ActionBuy, 10, 20, base.Add(time.Hour)),
		tradeAt(3, "AAPL", models.ActionSell, 15, 30, base.Add(2*time.Hour)),
		tradeAt(4, "AAPL", models.ActionSell, 5, 10, base.Add(3*time.Hour)),
	}

	outcomes, lots, err := replayHistory(trades)

	assert.NoError(t, err)
	assert.Len(t, outcomes, 2)
	assert.Equal(t, uint(3), outcomes[0].tradeID)
	assert.InDelta(t, (30-200.0/15.0)*15, outcomes[0].profitLoss, 1e-9)
	// Second sell consumes the remaining 5 shares from the $20 lot.
	assert.Equal(t, uint(4), outcomes[1].tradeID)
	assert.InDelta(t, (10.0-20.0)*5, outcomes[1].profitLoss, 1e-9)
	assert.Equal(t, int64(0), openQuantity(lots))
}

func TestReplayHistory_UnorderedInputIsSorted(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	// Same history as above, delivered out of order.
	trades := []models.Trade{
		tradeAt(3, "AAPL", models.ActionSell, 15, 30, base.Add(2*time.Hour)),
		tradeAt(1, "AAPL", models.ActionBuy, 10, 10, base),
		tradeAt(2, "AAPL", models.ActionBuy, 10, 20, base.Add(time.Hour)),
	}

	outcomes, lots, err := replayHistory(trades)

	assert.NoError(t, err)
	assert.Len(t, outcomes, 1)
	assert.InDelta(t, (30-200.0/15.0)*15, outcomes[0].profitLoss, 1e-9)
	assert.Equal(t, int64(5), openQuantity(lots))
}

func TestReplayHistory_OversoldHistory(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		tradeAt(1, "AAPL", models.ActionBuy, 5, 10, base),
		tradeAt(2, "AAPL", models.ActionSell, 8, 12, base.Add(time.Hour)),
	}

	_, _, err := replayHistory(trades)

	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestReplayHistory_UnknownAction(t *testing.T) {
	trades := []models.Trade{
		tradeAt(1, "AAPL", "SHORT", 5, 10, time.Now()),
	}

	_, _, err := replayHistory(trades)

	assert.ErrorIs(t, err, ErrDataIntegrity)
}
