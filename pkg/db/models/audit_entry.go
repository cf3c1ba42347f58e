package models

import (
	"time"

	"github.com/brewmetric/brewmetric-core/pkg/enums"
)

// AuditEntry is one immutable record of a state-changing or security-relevant
// event. Entries are appended inside the transaction of the mutation they
// document and are never updated or deleted.
type AuditEntry struct {
	ID              uint              `gorm:"primaryKey"`
	UserID          uint              `gorm:"column:user_id;not null;index:idx_audit_user"`
	InventoryItemID *uint             `gorm:"column:inventory_item_id"`
	Action          enums.AuditAction `gorm:"size:50;not null;index:idx_audit_action"`
	EntityType      enums.EntityType  `gorm:"column:entity_type;size:50;not null"`
	EntityID        uint              `gorm:"column:entity_id;not null"`
	OldValues       *string           `gorm:"column:old_values;type:text"`
	NewValues       *string           `gorm:"column:new_values;type:text"`
	Description     *string           `gorm:"type:text"`
	SessionID       *string           `gorm:"column:session_id;size:100"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime;index:idx_audit_created"`
}

func (AuditEntry) TableName() string {
	return "audit_trails"
}
