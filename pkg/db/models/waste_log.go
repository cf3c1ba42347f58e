package models

import (
	"time"

	"github.com/brewmetric/brewmetric-core/pkg/enums"
)

// WasteLog is an immutable write-off record. It is only ever inserted in the
// same transaction as the stock decrement it documents.
type WasteLog struct {
	ID              uint              `gorm:"primaryKey"`
	InventoryItemID uint              `gorm:"column:inventory_item_id;not null;index:idx_waste_item"`
	UserID          uint              `gorm:"column:user_id;not null;index:idx_waste_user"`
	Quantity        float64           `gorm:"not null"`
	Reason          enums.WasteReason `gorm:"size:50;not null"`
	Notes           *string           `gorm:"type:text"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime;index:idx_waste_created"`
}

func (WasteLog) TableName() string {
	return "waste_logs"
}
