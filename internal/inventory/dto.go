package inventory

import (
	"time"

	"github.com/brewmetric/brewmetric-core/pkg/db/models"
	"github.com/brewmetric/brewmetric-core/pkg/enums"
	"github.com/shopspring/decimal"
)

// ItemDTO is the transport shape for a stock record, with the derived
// low-stock and expiry flags collaborators render directly.
type ItemDTO struct {
	ID             uint            `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Description    *string         `json:"description,omitempty"`
	Quantity       float64         `json:"quantity"`
	Unit           string          `json:"unit"`
	MinThreshold   float64         `json:"min_threshold"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	StockValue     decimal.Decimal `json:"stock_value"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
	Location       *string         `json:"location,omitempty"`
	LowStock       bool            `json:"low_stock"`
	Expired        bool            `json:"expired"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateItemInput holds the data required to add a stock record.
type CreateItemInput struct {
	Name           string          `json:"name" validate:"required,max=150"`
	Category       string          `json:"category" validate:"required,max=50"`
	Description    *string         `json:"description,omitempty"`
	Quantity       float64         `json:"quantity" validate:"gte=0"`
	Unit           string          `json:"unit" validate:"max=20"`
	MinThreshold   float64         `json:"min_threshold" validate:"gte=0"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
	Location       *string         `json:"location,omitempty"`

	SessionID *string `json:"-"`
}

// UpdateItemInput is a partial update; nil fields keep their current value.
// Quantity is deliberately absent: stock levels only move through AdjustStock
// and RecordWaste so every movement is audited with a delta.
type UpdateItemInput struct {
	Name           *string          `json:"name,omitempty" validate:"omitempty,max=150"`
	Category       *string          `json:"category,omitempty" validate:"omitempty,max=50"`
	Description    *string          `json:"description,omitempty"`
	Unit           *string          `json:"unit,omitempty" validate:"omitempty,max=20"`
	MinThreshold   *float64         `json:"min_threshold,omitempty" validate:"omitempty,gte=0"`
	UnitCost       *decimal.Decimal `json:"unit_cost,omitempty"`
	ExpirationDate *time.Time       `json:"expiration_date,omitempty"`
	Location       *string          `json:"location,omitempty"`

	SessionID *string `json:"-"`
}

// AdjustStockInput moves the on-hand quantity by a signed delta.
type AdjustStockInput struct {
	ItemID uint    `json:"item_id" validate:"required"`
	Delta  float64 `json:"delta"`
	Note   string  `json:"note,omitempty" validate:"max=500"`

	SessionID *string `json:"-"`
}

// RecordWasteInput is one write-off request.
type RecordWasteInput struct {
	ItemID   uint              `json:"item_id" validate:"required"`
	Quantity float64           `json:"quantity" validate:"gt=0"`
	Reason   enums.WasteReason `json:"reason" validate:"required"`
	Notes    *string           `json:"notes,omitempty"`

	SessionID *string `json:"-"`
}

// WasteStatus tracks a write-off request through its lifecycle.
type WasteStatus string

const (
	WasteRequested WasteStatus = "requested"
	WasteValidated WasteStatus = "validated"
	WasteApplied   WasteStatus = "applied"
	WasteRejected  WasteStatus = "rejected"
)

// WasteResult reports an applied write-off. The log row always stores the
// requested quantity even when the decrement clamped at zero.
type WasteResult struct {
	Status           WasteStatus      `json:"status"`
	Log              *models.WasteLog `json:"log"`
	PreviousQuantity float64          `json:"previous_quantity"`
	NewQuantity      float64          `json:"new_quantity"`
	Clamped          bool             `json:"clamped"`
}

// MonthlyWaste aggregates write-offs for one calendar month.
type MonthlyWaste struct {
	Month         string  `json:"month"`
	TotalQuantity float64 `json:"total_quantity"`
	Entries       int     `json:"entries"`
}

func itemDTO(item *models.InventoryItem, now time.Time) *ItemDTO {
	if item == nil {
		return nil
	}
	return &ItemDTO{
		ID:             item.ID,
		Name:           item.Name,
		Category:       item.Category,
		Description:    item.Description,
		Quantity:       item.Quantity,
		Unit:           item.Unit,
		MinThreshold:   item.MinThreshold,
		UnitCost:       item.UnitCost,
		StockValue:     item.StockValue(),
		ExpirationDate: item.ExpirationDate,
		Location:       item.Location,
		LowStock:       item.BelowThreshold(),
		Expired:        item.Expired(now),
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

func itemDTOs(items []models.InventoryItem, now time.Time) []ItemDTO {
	out := make([]ItemDTO, 0, len(items))
	for i := range items {
		out = append(out, *itemDTO(&items[i], now))
	}
	return out
}

// snapshot is the audit before/after shape for an item mutation.
type snapshot struct {
	Name           string     `json:"name"`
	Category       string     `json:"category"`
	Quantity       float64    `json:"quantity"`
	Unit           string     `json:"unit"`
	MinThreshold   float64    `json:"min_threshold"`
	UnitCost       string     `json:"unit_cost"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	Location       *string    `json:"location,omitempty"`
	IsDeleted      bool       `json:"is_deleted"`
}

func snapshotOf(item *models.InventoryItem) snapshot {
	return snapshot{
		Name:           item.Name,
		Category:       item.Category,
		Quantity:       item.Quantity,
		Unit:           item.Unit,
		MinThreshold:   item.MinThreshold,
		UnitCost:       item.UnitCost.String(),
		ExpirationDate: item.ExpirationDate,
		Location:       item.Location,
		IsDeleted:      item.IsDeleted,
	}
}
