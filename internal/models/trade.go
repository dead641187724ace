package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Trade represents a single executed simulated order. Trades are append-only:
// once created they are never updated, with one exception: deleting a trade
// recomputes ProfitLoss on the remaining SELL trades of the same symbol.
type Trade struct {
	gorm.Model
	UserID               uint      `gorm:"index;not null" json:"user_id"`
	Symbol               string    `gorm:"index;not null" json:"symbol"`
	Action               string    `gorm:"not null" json:"action"` // "BUY" or "SELL"
	Quantity             int64     `gorm:"not null" json:"quantity"`
	Price                float64   `gorm:"not null" json:"price"`
	TotalAmount          float64   `gorm:"not null" json:"total_amount"`
	TradeDate            time.Time `gorm:"index;not null" json:"trade_date"`
	ProfitLoss           float64   `json:"profit_loss"`            // populated on SELL only
	ProfitLossPercentage float64   `json:"profit_loss_percentage"` // relative to matched cost basis
}
