package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is a quantity-bearing stock record. Rows are tombstoned via
// IsDeleted, never removed, so waste and audit history keep valid references.
type InventoryItem struct {
	ID             uint            `gorm:"primaryKey"`
	Name           string          `gorm:"size:150;not null;index:idx_items_name"`
	Category       string          `gorm:"size:50;not null;index:idx_items_category"`
	Description    *string         `gorm:"type:text"`
	Quantity       float64         `gorm:"not null;default:0"`
	Unit           string          `gorm:"size:20;not null;default:unit"`
	MinThreshold   float64         `gorm:"column:min_threshold;not null;default:10"`
	UnitCost       decimal.Decimal `gorm:"column:unit_cost;type:numeric(12,4);not null;default:0"`
	ExpirationDate *time.Time      `gorm:"column:expiration_date;index:idx_items_expiration"`
	Location       *string         `gorm:"size:100"`
	IsDeleted      bool            `gorm:"column:is_deleted;not null;default:false;index:idx_items_deleted"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryItem) TableName() string {
	return "inventory_items"
}

// BelowThreshold reports whether the on-hand quantity is under the minimum.
func (i *InventoryItem) BelowThreshold() bool {
	return i.Quantity < i.MinThreshold
}

// ExpiringWithin reports whether the item expires in the next N days.
func (i *InventoryItem) ExpiringWithin(days int, now time.Time) bool {
	if i.ExpirationDate == nil {
		return false
	}
	until := i.ExpirationDate.Sub(now)
	return until >= 0 && until <= time.Duration(days)*24*time.Hour
}

// Expired reports whether the expiration date has passed.
func (i *InventoryItem) Expired(now time.Time) bool {
	return i.ExpirationDate != nil && i.ExpirationDate.Before(now)
}

// StockValue returns quantity x unit cost.
func (i *InventoryItem) StockValue() decimal.Decimal {
	return decimal.NewFromFloat(i.Quantity).Mul(i.UnitCost)
}
