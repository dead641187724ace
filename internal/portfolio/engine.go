package portfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"stock-trading-sim-go/internal/models"
	"stock-trading-sim-go/internal/quotes"

	"go.uber.org/zap"
)

// Engine is the portfolio accounting engine. It treats the trade store as the
// single source of truth and recomputes positions and metrics from the full
// history on every request; nothing derived is ever cached or persisted.
type Engine struct {
	store  TradeStore
	quotes quotes.ClientInterface
	logger *zap.Logger
	locks  keyedMutex
}

// NewEngine creates an accounting engine over a trade store and a quote
// provider.
func NewEngine(store TradeStore, quoteClient quotes.ClientInterface, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		quotes: quoteClient,
		logger: logger,
	}
}

// keyedMutex serializes operations per (user, symbol). The SELL path is a
// read-then-write: check net holdings, then insert. Two concurrent sells for
// the same symbol could both pass the check against the same snapshot, so
// they must take the same lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func tradeKey(userID uint, symbol string) string {
	return fmt.Sprintf("%d/%s", userID, symbol)
}

// validateOrder rejects malformed input before any state change.
func validateOrder(symbol string, quantity int64, price float64) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", ErrValidation)
	}
	if quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be positive, got %d", ErrValidation, quantity)
	}
	if price <= 0 {
		return "", fmt.Errorf("%w: price must be positive, got %v", ErrValidation, price)
	}
	return symbol, nil
}

// RecordBuy validates and persists a simulated BUY order.
func (e *Engine) RecordBuy(ctx context.Context, userID uint, symbol string, quantity int64, price float64) (*models.Trade, error) {
	symbol, err := validateOrder(symbol, quantity, price)
	if err != nil {
		return nil, err
	}

	trade := &models.Trade{
		UserID:      userID,
		Symbol:      symbol,
		Action:      models.ActionBuy,
		Quantity:    quantity,
		Price:       price,
		TotalAmount: float64(quantity) * price,
		TradeDate:   time.Now(),
	}
	if err := e.store.CreateTrade(ctx, trade); err != nil {
		return nil, err
	}

	e.logger.Info("Recorded buy",
		zap.Uint("user_id", userID),
		zap.String("symbol", symbol),
		zap.Int64("quantity", quantity),
		zap.Float64("price", price),
	)
	return trade, nil
}

// RecordSell validates a simulated SELL order, FIFO-matches it against the
// user's prior BUY lots and persists it with its realized profit/loss.
//
// The insufficient-shares check runs strictly before matching; a rejected
// sell leaves no trade record and no state change. The check and the insert
// run under the per-(user, symbol) lock and inside one transaction, so
// concurrent sells cannot jointly oversell a position.
func (e *Engine) RecordSell(ctx context.Context, userID uint, symbol string, quantity int64, price float64) (*models.Trade, error) {
	symbol, err := validateOrder(symbol, quantity, price)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(tradeKey(userID, symbol))
	defer unlock()

	var trade *models.Trade
	err = e.store.Transaction(ctx, func(tx TradeStore) error {
		history, err := tx.FindTrades(ctx, userID, TradeFilter{Symbol: symbol})
		if err != nil {
			return err
		}
		_, lots, err := replayHistory(history)
		if err != nil {
			// An inconsistent stored history is a bug, not a user error.
			return fmt.Errorf("%w: replay of %s history failed: %v", ErrDataIntegrity, symbol, err)
		}

		if held := openQuantity(lots); quantity > held {
			return fmt.Errorf("%w: want to sell %d %s shares, hold %d",
				ErrInsufficientShares, quantity, symbol, held)
		}

		res := matchSell(lots, quantity, price)
		trade = &models.Trade{
			UserID:               userID,
			Symbol:               symbol,
			Action:               models.ActionSell,
			Quantity:             quantity,
			Price:                price,
			TotalAmount:          float64(quantity) * price,
			TradeDate:            time.Now(),
			ProfitLoss:           res.profitLoss,
			ProfitLossPercentage: res.profitLossPercentage,
		}
		return tx.CreateTrade(ctx, trade)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Recorded sell",
		zap.Uint("user_id", userID),
		zap.String("symbol", symbol),
		zap.Int64("quantity", quantity),
		zap.Float64("price", price),
		zap.Float64("profit_loss", trade.ProfitLoss),
	)
	return trade, nil
}

// DeleteTrade removes a trade as a correction and repairs the realized
// figures of every remaining SELL of the same symbol by replaying FIFO over
// what is left. If the deletion would leave a later SELL uncovered (deleting
// a BUY that it was matched against), the whole operation is rejected and
// nothing changes.
func (e *Engine) DeleteTrade(ctx context.Context, userID, tradeID uint) error {
	trade, err := e.store.GetTrade(ctx, userID, tradeID)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(tradeKey(userID, trade.Symbol))
	defer unlock()

	err = e.store.Transaction(ctx, func(tx TradeStore) error {
		if err := tx.DeleteTrade(ctx, userID, tradeID); err != nil {
			return err
		}
		remaining, err := tx.FindTrades(ctx, userID, TradeFilter{Symbol: trade.Symbol})
		if err != nil {
			return err
		}
		outcomes, _, err := replayHistory(remaining)
		if err != nil {
			return fmt.Errorf("%w: deleting trade %d would leave %s history unbalanced: %v",
				ErrDataIntegrity, tradeID, trade.Symbol, err)
		}
		for _, o := range outcomes {
			if err := tx.UpdateProfitLoss(ctx, o.tradeID, o.profitLoss, o.profitLossPercentage); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("Deleted trade and recomputed sibling profit/loss",
		zap.Uint("user_id", userID),
		zap.Uint("trade_id", tradeID),
		zap.String("symbol", trade.Symbol),
	)
	return nil
}

// ComputePositions derives the user's current open positions from the full
// trade history.
func (e *Engine) ComputePositions(ctx context.Context, userID uint) ([]Position, error) {
	trades, err := e.store.FindTrades(ctx, userID, TradeFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}
	return computePositions(trades)
}

// RealizedTrade pairs a SELL trade with its FIFO-recomputed realized figures.
type RealizedTrade struct {
	Trade                models.Trade `json:"trade"`
	ProfitLoss           float64      `json:"profit_loss"`
	ProfitLossPercentage float64      `json:"profit_loss_percentage"`
}

// ComputeRealizedPL recomputes realized profit/loss for every SELL in the
// given trade list from scratch, ignoring the stored figures. It is a pure
// function of its input; the engine uses it for audits and the delete path
// uses the same replay internally.
func ComputeRealizedPL(trades []models.Trade) ([]RealizedTrade, error) {
	bySymbol := make(map[string][]models.Trade)
	for _, t := range trades {
		bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
	}

	byID := make(map[uint]models.Trade, len(trades))
	for _, t := range trades {
		byID[t.ID] = t
	}

	var out []RealizedTrade
	for symbol, symTrades := range bySymbol {
		outcomes, _, err := replayHistory(symTrades)
		if err != nil {
			return nil, fmt.Errorf("replay of %s history failed: %w", symbol, err)
		}
		for _, o := range outcomes {
			out = append(out, RealizedTrade{
				Trade:                byID[o.tradeID],
				ProfitLoss:           o.profitLoss,
				ProfitLossPercentage: o.profitLossPercentage,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Trade.TradeDate.Equal(out[j].Trade.TradeDate) {
			return out[i].Trade.ID < out[j].Trade.ID
		}
		return out[i].Trade.TradeDate.Before(out[j].Trade.TradeDate)
	})
	return out, nil
}
