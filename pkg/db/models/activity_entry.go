package models

import "time"

// ActivityEntry is a best-effort, human-readable feed row. It is not
// security-authoritative and may be dropped on failure; the audit trail is
// the source of truth.
type ActivityEntry struct {
	ID              uint      `gorm:"primaryKey"`
	UserID          uint      `gorm:"column:user_id;not null"`
	InventoryItemID *uint     `gorm:"column:inventory_item_id"`
	Action          string    `gorm:"size:100;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime;index:idx_feed_created"`
}

func (ActivityEntry) TableName() string {
	return "activity_feed"
}
