package audit

import (
	"context"

	"github.com/brewmetric/brewmetric-core/pkg/db/models"
	"github.com/brewmetric/brewmetric-core/pkg/enums"
	"gorm.io/gorm"
)

// Filter narrows an audit trail query. Results are always newest-first.
type Filter struct {
	ByUserID *uint
	ByAction *enums.AuditAction
	Limit    int
}

// Repository manages persistence for audit and activity rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, filter Filter) ([]models.AuditEntry, error)
	CreateActivity(ctx context.Context, entry *models.ActivityEntry) error
	ListActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.AuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, filter Filter) ([]models.AuditEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditEntry{})
	if filter.ByUserID != nil {
		query = query.Where("user_id = ?", *filter.ByUserID)
	}
	if filter.ByAction != nil {
		query = query.Where("action = ?", *filter.ByAction)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []models.AuditEntry
	if err := query.Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) CreateActivity(ctx context.Context, entry *models.ActivityEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListActivity(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	query := r.db.WithContext(ctx).Model(&models.ActivityEntry{})
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []models.ActivityEntry
	if err := query.Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
