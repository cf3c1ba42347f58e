package inventory

import (
	"context"
	"time"

	"github.com/brewmetric/brewmetric-core/pkg/db/models"
	"gorm.io/gorm"
)

// Repository manages persistence for stock records and waste logs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, item *models.InventoryItem) error
	FindByID(ctx context.Context, id uint) (*models.InventoryItem, error)
	Save(ctx context.Context, item *models.InventoryItem) error

	ListActive(ctx context.Context) ([]models.InventoryItem, error)
	ListByCategory(ctx context.Context, category string) ([]models.InventoryItem, error)
	ListLowStock(ctx context.Context) ([]models.InventoryItem, error)
	ListExpiring(ctx context.Context, until time.Time) ([]models.InventoryItem, error)

	CreateWaste(ctx context.Context, log *models.WasteLog) error
	ListWaste(ctx context.Context, limit int) ([]models.WasteLog, error)
	ListWasteBetween(ctx context.Context, start, end time.Time) ([]models.WasteLog, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// FindByID returns the row regardless of the tombstone flag; services decide
// whether a soft-deleted item is visible.
func (r *repository) FindByID(ctx context.Context, id uint) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) Save(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("is_deleted = ?", false)
}

func (r *repository) ListActive(ctx context.Context) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	if err := r.active(ctx).Order("category ASC, name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListByCategory(ctx context.Context, category string) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	if err := r.active(ctx).
		Where("category = ?", category).
		Order("name ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListLowStock(ctx context.Context) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	if err := r.active(ctx).
		Where("quantity < min_threshold").
		Order("quantity ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListExpiring(ctx context.Context, until time.Time) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	if err := r.active(ctx).
		Where("expiration_date IS NOT NULL AND expiration_date <= ?", until).
		Order("expiration_date ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CreateWaste(ctx context.Context, log *models.WasteLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repository) ListWaste(ctx context.Context, limit int) ([]models.WasteLog, error) {
	query := r.db.WithContext(ctx).Model(&models.WasteLog{})
	if limit > 0 {
		query = query.Limit(limit)
	}
	var logs []models.WasteLog
	if err := query.Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *repository) ListWasteBetween(ctx context.Context, start, end time.Time) ([]models.WasteLog, error) {
	var logs []models.WasteLog
	if err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at ASC, id ASC").
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
