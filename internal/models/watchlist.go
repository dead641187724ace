package models

import "gorm.io/gorm"

// WatchlistItem is a symbol a user follows.
type WatchlistItem struct {
	gorm.Model
	UserID uint   `gorm:"uniqueIndex:idx_user_symbol;not null" json:"user_id"`
	Symbol string `gorm:"uniqueIndex:idx_user_symbol;not null" json:"symbol"`
}
