package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-trading-sim-go/internal/models"

	"gorm.io/gorm"
)

// TradeFilter narrows a trade query. Zero values mean no constraint.
type TradeFilter struct {
	Symbol string
	From   time.Time
	To     time.Time
}

// TradeStore is the persistence boundary the engine computes against.
// Trades are strictly additive; the only destructive operation is the
// correction path DeleteTrade, and UpdateProfitLoss exists solely so that
// recompute-on-delete can repair sibling SELL figures.
type TradeStore interface {
	CreateTrade(ctx context.Context, trade *models.Trade) error
	FindTrades(ctx context.Context, userID uint, filter TradeFilter) ([]models.Trade, error)
	GetTrade(ctx context.Context, userID, tradeID uint) (*models.Trade, error)
	DeleteTrade(ctx context.Context, userID, tradeID uint) error
	UpdateProfitLoss(ctx context.Context, tradeID uint, profitLoss, percentage float64) error
	Transaction(ctx context.Context, fn func(TradeStore) error) error
}

// GormTradeStore implements TradeStore on a gorm database.
type GormTradeStore struct {
	db *gorm.DB
}

var _ TradeStore = (*GormTradeStore)(nil)

// NewGormTradeStore creates a TradeStore backed by the given database.
func NewGormTradeStore(db *gorm.DB) *GormTradeStore {
	return &GormTradeStore{db: db}
}

func (s *GormTradeStore) CreateTrade(ctx context.Context, trade *models.Trade) error {
	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

func (s *GormTradeStore) FindTrades(ctx context.Context, userID uint, filter TradeFilter) ([]models.Trade, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", filter.Symbol)
	}
	if !filter.From.IsZero() {
		q = q.Where("trade_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("trade_date <= ?", filter.To)
	}

	var trades []models.Trade
	if err := q.Order("trade_date asc, id asc").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return trades, nil
}

func (s *GormTradeStore) GetTrade(ctx context.Context, userID, tradeID uint) (*models.Trade, error) {
	var trade models.Trade
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&trade, tradeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: trade %d", ErrNotFound, tradeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trade: %w", err)
	}
	return &trade, nil
}

func (s *GormTradeStore) DeleteTrade(ctx context.Context, userID, tradeID uint) error {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Trade{}, tradeID)
	if res.Error != nil {
		return fmt.Errorf("failed to delete trade: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: trade %d", ErrNotFound, tradeID)
	}
	return nil
}

func (s *GormTradeStore) UpdateProfitLoss(ctx context.Context, tradeID uint, profitLoss, percentage float64) error {
	err := s.db.WithContext(ctx).Model(&models.Trade{}).Where("id = ?", tradeID).
		Updates(map[string]interface{}{
			"profit_loss":            profitLoss,
			"profit_loss_percentage": percentage,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update trade profit/loss: %w", err)
	}
	return nil
}

// Transaction runs fn against a store bound to a database transaction;
// returning an error rolls everything back.
func (s *GormTradeStore) Transaction(ctx context.Context, fn func(TradeStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormTradeStore{db: tx})
	})
}
