package portfolio

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stock-trading-sim-go/internal/models"

	"go.uber.org/zap"
)

// Window is a named reporting period for performance summaries.
type Window string

const (
	WindowToday Window = "today"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowYear  Window = "year"
	WindowAll   Window = "all"
)

// ParseWindow validates a window name from user input.
func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case WindowToday, WindowWeek, WindowMonth, WindowYear, WindowAll:
		return Window(s), nil
	case "":
		return WindowAll, nil
	}
	return "", fmt.Errorf("%w: unknown window %q", ErrValidation, s)
}

// windowStart returns the inclusive lower bound of a window ending at now.
// Week, month and year are rolling periods relative to now (7 days, one
// calendar month, one calendar year); today starts at local midnight. The
// second return is false for the unbounded all-time window.
func windowStart(w Window, now time.Time) (time.Time, bool) {
	switch w {
	case WindowToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case WindowWeek:
		return now.AddDate(0, 0, -7), true
	case WindowMonth:
		return now.AddDate(0, -1, 0), true
	case WindowYear:
		return now.AddDate(-1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// Holding is an open position enriched with live market data. When the quote
// provider cannot price the symbol, PriceUnavailable is set and the
// market-derived fields stay zero.
type Holding struct {
	Position
	CurrentPrice        float64 `json:"current_price"`
	MarketValue         float64 `json:"market_value"`
	UnrealizedPL        float64 `json:"unrealized_pl"`
	UnrealizedPLPercent float64 `json:"unrealized_pl_percent"`
	PriceUnavailable    bool    `json:"price_unavailable"`
}

// PerformanceSnapshot summarizes a user's results over a window.
//
// Realized figures are restricted to SELL trades inside the window.
// UnrealizedProfit is always computed over the all-time open positions,
// whatever the window: paper gains reflect current state, not a period. That
// asymmetry is deliberate and callers must not "correct" it.
type PerformanceSnapshot struct {
	Window           Window    `json:"window"`
	From             time.Time `json:"from,omitempty"`
	To               time.Time `json:"to"`
	TotalTrades      int       `json:"total_trades"`
	SellTrades       int       `json:"sell_trades"`
	WinningTrades    int       `json:"winning_trades"`
	RealizedProfit   float64   `json:"realized_profit"`
	UnrealizedProfit float64   `json:"unrealized_profit"`
	WinRate          float64   `json:"win_rate"`
	TotalValue       float64   `json:"total_value"`
	TotalInvested    float64   `json:"total_invested"`
	QuoteFailures    int       `json:"quote_failures"`
}

// aggregateRealized fills the windowed, trade-log-only part of a snapshot.
func aggregateRealized(trades []models.Trade, from time.Time, bounded bool) PerformanceSnapshot {
	var snap PerformanceSnapshot
	for _, t := range trades {
		if bounded && t.TradeDate.Before(from) {
			continue
		}
		snap.TotalTrades++
		if t.Action != models.ActionSell {
			continue
		}
		snap.SellTrades++
		snap.RealizedProfit += t.ProfitLoss
		if t.ProfitLoss > 0 {
			snap.WinningTrades++
		}
	}
	// Zero sells in the window means a 0 win rate, not a division error.
	if snap.SellTrades > 0 {
		snap.WinRate = float64(snap.WinningTrades) / float64(snap.SellTrades) * 100
	}
	return snap
}

// priced pairs a position with its quote lookup outcome during fan-out.
type priced struct {
	holding Holding
	err     error
}

// ComputeHoldings returns the user's open positions enriched with live
// quotes. Quotes are fetched concurrently, one request per symbol, and a
// failure for one symbol degrades only that holding: it comes back with
// PriceUnavailable set while the others carry real prices.
func (e *Engine) ComputeHoldings(ctx context.Context, userID uint) ([]Holding, error) {
	positions, err := e.ComputePositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	results := make(chan priced, len(positions))

	for _, p := range positions {
		wg.Add(1)
		go func(pos Position) {
			defer wg.Done()
			h := Holding{Position: pos}
			quote, err := e.quotes.GetQuote(ctx, pos.Symbol)
			if err != nil {
				h.PriceUnavailable = true
				results <- priced{holding: h, err: err}
				return
			}
			h.CurrentPrice = quote.CurrentPrice
			h.MarketValue = quote.CurrentPrice * float64(pos.Quantity)
			h.UnrealizedPL = (quote.CurrentPrice - pos.AveragePrice) * float64(pos.Quantity)
			if pos.TotalCost > 0 {
				h.UnrealizedPLPercent = h.UnrealizedPL / pos.TotalCost * 100
			}
			results <- priced{holding: h}
		}(p)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	holdings := make([]Holding, 0, len(positions))
	for r := range results {
		if r.err != nil {
			e.logger.Warn("Quote lookup failed, degrading holding",
				zap.String("symbol", r.holding.Symbol), zap.Error(r.err))
		}
		holdings = append(holdings, r.holding)
	}

	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })
	return holdings, nil
}

// ComputeMetrics builds a PerformanceSnapshot for the user over the window.
// The full trade history is re-read and reduced from scratch on every call;
// there is no cached state to go stale.
func (e *Engine) ComputeMetrics(ctx context.Context, userID uint, window Window) (*PerformanceSnapshot, error) {
	trades, err := e.store.FindTrades(ctx, userID, TradeFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	now := time.Now()
	from, bounded := windowStart(window, now)

	snap := aggregateRealized(trades, from, bounded)
	snap.Window = window
	snap.To = now
	if bounded {
		snap.From = from
	}

	holdings, err := e.ComputeHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, h := range holdings {
		snap.TotalInvested += h.TotalCost
		if h.PriceUnavailable {
			snap.QuoteFailures++
			continue
		}
		snap.UnrealizedProfit += h.UnrealizedPL
		snap.TotalValue += h.MarketValue
	}

	return &snap, nil
}
