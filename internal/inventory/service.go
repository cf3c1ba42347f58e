package inventory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/brewmetric/brewmetric-core/internal/audit"
	"github.com/brewmetric/brewmetric-core/internal/authz"
	"github.com/brewmetric/brewmetric-core/pkg/config"
	"github.com/brewmetric/brewmetric-core/pkg/db"
	"github.com/brewmetric/brewmetric-core/pkg/db/models"
	"github.com/brewmetric/brewmetric-core/pkg/enums"
	pkgerrors "github.com/brewmetric/brewmetric-core/pkg/errors"
	"github.com/brewmetric/brewmetric-core/pkg/logger"
	"github.com/brewmetric/brewmetric-core/pkg/metrics"
	"github.com/brewmetric/brewmetric-core/pkg/validate"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service manages stock records, waste write-offs and their audit coupling.
// Every mutation commits its audit entry in the same transaction; a mutation
// whose trail cannot be written does not happen.
type Service struct {
	client  *db.Client
	repo    Repository
	audit   *audit.Service
	log     *logger.Logger
	metrics *metrics.CoreMetrics
	policy  config.PolicyConfig
}

// ServiceParams bundles the dependencies required to build an inventory service.
type ServiceParams struct {
	Client  *db.Client
	Repo    Repository
	Audit   *audit.Service
	Logger  *logger.Logger
	Metrics *metrics.CoreMetrics
	Policy  config.PolicyConfig
}

// NewService wires an inventory service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	return &Service{
		client:  params.Client,
		repo:    params.Repo,
		audit:   params.Audit,
		log:     params.Logger,
		metrics: params.Metrics,
		policy:  params.Policy,
	}, nil
}

// CreateItem adds a stock record and audits the creation.
func (s *Service) CreateItem(ctx context.Context, actor *models.User, input CreateItemInput) (*ItemDTO, error) {
	if err := authz.Require(actor, enums.PermissionAddItem); err != nil {
		return nil, err
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if input.UnitCost.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit cost cannot be negative")
	}

	item := &models.InventoryItem{
		Name:           input.Name,
		Category:       input.Category,
		Description:    input.Description,
		Quantity:       input.Quantity,
		Unit:           input.Unit,
		MinThreshold:   input.MinThreshold,
		UnitCost:       input.UnitCost,
		ExpirationDate: input.ExpirationDate,
		Location:       input.Location,
	}
	if item.Unit == "" {
		item.Unit = "unit"
	}

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create item")
		}
		_, err := s.audit.Record(ctx, tx, audit.RecordInput{
			Actor:       actor,
			Action:      enums.AuditActionCreate,
			EntityType:  enums.EntityTypeInventoryItem,
			EntityID:    item.ID,
			ItemID:      &item.ID,
			After:       snapshotOf(item),
			Description: fmt.Sprintf("added item %s", item.Name),
			SessionID:   input.SessionID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Publish(ctx, actor, &item.ID, fmt.Sprintf("%s added %s (%s %s)",
		actor.Username, item.Name, trimFloat(item.Quantity), item.Unit))
	return itemDTO(item, time.Now().UTC()), nil
}

// GetItem returns one active stock record.
func (s *Service) GetItem(ctx context.Context, actor *models.User, id uint) (*ItemDTO, error) {
	if err := authz.Require(actor, enums.PermissionViewInventory); err != nil {
		return nil, err
	}
	item, err := s.loadActive(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	return itemDTO(item, time.Now().UTC()), nil
}

// UpdateItem applies a partial update to item metadata. Stock levels are out
// of scope here; they only move through AdjustStock and RecordWaste.
func (s *Service) UpdateItem(ctx context.Context, actor *models.User, id uint, input UpdateItemInput) (*ItemDTO, error) {
	if err := authz.Require(actor, enums.PermissionUpdateItem); err != nil {
		return nil, err
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if input.UnitCost != nil && input.UnitCost.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit cost cannot be negative")
	}

	var updated *models.InventoryItem
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := s.loadActive(ctx, repo, id)
		if err != nil {
			return err
		}
		before := snapshotOf(item)

		if input.Name != nil {
			item.Name = *input.Name
		}
		if input.Category != nil {
			item.Category = *input.Category
		}
		if input.Description != nil {
			item.Description = input.Description
		}
		if input.Unit != nil {
			item.Unit = *input.Unit
		}
		if input.MinThreshold != nil {
			item.MinThreshold = *input.MinThreshold
		}
		if input.UnitCost != nil {
			item.UnitCost = *input.UnitCost
		}
		if input.ExpirationDate != nil {
			item.ExpirationDate = input.ExpirationDate
		}
		if input.Location != nil {
			item.Location = input.Location
		}

		if err := repo.Save(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update item")
		}
		updated = item

		_, err = s.audit.Record(ctx, tx, audit.RecordInput{
			Actor:       actor,
			Action:      enums.AuditActionUpdate,
			EntityType:  enums.EntityTypeInventoryItem,
			EntityID:    item.ID,
			ItemID:      &item.ID,
			Before:      before,
			After:       snapshotOf(item),
			Description: fmt.Sprintf("updated item %s", item.Name),
			SessionID:   input.SessionID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return itemDTO(updated, time.Now().UTC()), nil
}

// AdjustStock moves the on-hand quantity by a signed delta, floored at zero.
func (s *Service) AdjustStock(ctx context.Context, actor *models.User, input AdjustStockInput) (*ItemDTO, error) {
	if err := authz.Require(actor, enums.PermissionAdjustStock); err != nil {
		return nil, err
	}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta cannot be zero")
	}

	var adjusted *models.InventoryItem
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := s.loadActive(ctx, repo, input.ItemID)
		if err != nil {
			return err
		}
		before := snapshotOf(item)

		next := item.Quantity + input.Delta
		if next < 0 {
			next = 0
		}
		item.Quantity = next

		if err := repo.Save(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "adjust stock")
		}
		adjusted = item

		desc := fmt.Sprintf("adjusted stock of %s by %s", item.Name, trimFloat(input.Delta))
		if input.Note != "" {
			desc += ": " + input.Note
		}
		_, err = s.audit.Record(ctx, tx, audit.RecordInput{
			Actor:       actor,
			Action:      enums.AuditActionUpdate,
			EntityType:  enums.EntityTypeInventoryItem,
			EntityID:    item.ID,
			ItemID:      &item.ID,
			Before:      before,
			After:       snapshotOf(item),
			Description: desc,
			SessionID:   input.SessionID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Publish(ctx, actor, &adjusted.ID, fmt.Sprintf("%s adjusted %s to %s %s",
		actor.Username, adjusted.Name, trimFloat(adjusted.Quantity), adjusted.Unit))
	return itemDTO(adjusted, time.Now().UTC()), nil
}

// DeleteItem tombstones a stock record. Waste and audit history keep pointing
// at the row; repeated deletion is a no-op.
func (s *Service) DeleteItem(ctx context.Context, actor *models.User, id uint, sessionID *string) error {
	if err := authz.Require(actor, enums.PermissionDeleteItem); err != nil {
		return err
	}

	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load item")
		}
		if item.IsDeleted {
			return nil
		}

		before := snapshotOf(item)
		item.IsDeleted = true
		if err := repo.Save(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "delete item")
		}

		_, err = s.audit.Record(ctx, tx, audit.RecordInput{
			Actor:       actor,
			Action:      enums.AuditActionDelete,
			EntityType:  enums.EntityTypeInventoryItem,
			EntityID:    item.ID,
			ItemID:      &item.ID,
			Before:      before,
			After:       snapshotOf(item),
			Description: fmt.Sprintf("removed item %s", item.Name),
			SessionID:   sessionID,
		})
		return err
	})
}

// RecordWaste applies one write-off. The request moves through
// requested -> validated -> applied or rejected; an applied write-off
// decrements stock (clamped at zero), inserts the waste log with the
// requested quantity, and appends the WASTE audit entry, all atomically.
func (s *Service) RecordWaste(ctx context.Context, actor *models.User, input RecordWasteInput) (*WasteResult, error) {
	if err := authz.Require(actor, enums.PermissionRecordWaste); err != nil {
		s.metrics.IncWaste(string(WasteRejected))
		return nil, err
	}

	result := &WasteResult{Status: WasteRequested}
	if err := s.validateWaste(input); err != nil {
		result.Status = WasteRejected
		s.metrics.IncWaste(string(WasteRejected))
		return nil, err
	}
	result.Status = WasteValidated

	var item *models.InventoryItem
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := s.loadActive(ctx, repo, input.ItemID)
		if err != nil {
			return err
		}
		item = loaded
		before := snapshotOf(item)

		result.PreviousQuantity = item.Quantity
		next := item.Quantity - input.Quantity
		if next < 0 {
			next = 0
			result.Clamped = true
		}
		item.Quantity = next
		result.NewQuantity = next

		if err := repo.Save(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "decrement stock")
		}

		// The log keeps the requested quantity, not the applied delta.
		wasteLog := &models.WasteLog{
			InventoryItemID: item.ID,
			UserID:          actor.ID,
			Quantity:        input.Quantity,
			Reason:          input.Reason,
			Notes:           input.Notes,
		}
		if err := repo.CreateWaste(ctx, wasteLog); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "insert waste log")
		}
		result.Log = wasteLog

		_, err = s.audit.Record(ctx, tx, audit.RecordInput{
			Actor:      actor,
			Action:     enums.AuditActionWaste,
			EntityType: enums.EntityTypeInventoryItem,
			EntityID:   item.ID,
			ItemID:     &item.ID,
			Before:     before,
			After:      snapshotOf(item),
			Description: fmt.Sprintf("recorded waste: %s %s of %s (%s)",
				trimFloat(input.Quantity), item.Unit, item.Name, input.Reason),
			SessionID: input.SessionID,
		})
		return err
	})
	if err != nil {
		result.Status = WasteRejected
		s.metrics.IncWaste(string(WasteRejected))
		return nil, err
	}
	result.Status = WasteApplied
	s.metrics.IncWaste(string(WasteApplied))

	s.audit.Publish(ctx, actor, &item.ID, fmt.Sprintf("%s recorded waste: %s %s of %s (%s)",
		actor.Username, trimFloat(input.Quantity), item.Unit, item.Name, input.Reason))

	if s.log != nil && result.Clamped {
		s.log.Warn(s.log.WithField(ctx, "item_id", item.ID),
			fmt.Sprintf("waste exceeded stock; clamped %s to zero", item.Name))
	}
	return result, nil
}

func (s *Service) validateWaste(input RecordWasteInput) error {
	if err := validate.Struct(input); err != nil {
		return err
	}
	if !input.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid waste reason %q", input.Reason))
	}
	return nil
}

// Snapshot returns all active items ordered by category and name.
func (s *Service) Snapshot(ctx context.Context, actor *models.User) ([]ItemDTO, error) {
	if err := authz.Require(actor, enums.PermissionViewInventory); err != nil {
		return nil, err
	}
	items, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list items")
	}
	return itemDTOs(items, time.Now().UTC()), nil
}

// ByCategory returns active items in one category.
func (s *Service) ByCategory(ctx context.Context, actor *models.User, category string) ([]ItemDTO, error) {
	if err := authz.Require(actor, enums.PermissionViewInventory); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByCategory(ctx, category)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list items by category")
	}
	return itemDTOs(items, time.Now().UTC()), nil
}

// LowStock returns active items below their minimum threshold.
func (s *Service) LowStock(ctx context.Context, actor *models.User) ([]ItemDTO, error) {
	if err := authz.Require(actor, enums.PermissionViewInventory); err != nil {
		return nil, err
	}
	items, err := s.repo.ListLowStock(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list low stock")
	}
	return itemDTOs(items, time.Now().UTC()), nil
}

// Expiring returns active items expiring within the next N days; days <= 0
// falls back to the configured window.
func (s *Service) Expiring(ctx context.Context, actor *models.User, days int) ([]ItemDTO, error) {
	if err := authz.Require(actor, enums.PermissionViewInventory); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = s.policy.ExpiringSoonDays
	}
	if days <= 0 {
		days = 7
	}
	until := time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)
	items, err := s.repo.ListExpiring(ctx, until)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list expiring items")
	}
	return itemDTOs(items, time.Now().UTC()), nil
}

// TotalValue returns the summed stock value of all active items. Money math
// stays in decimals end to end.
func (s *Service) TotalValue(ctx context.Context, actor *models.User) (decimal.Decimal, error) {
	if err := authz.Require(actor, enums.PermissionViewInventory); err != nil {
		return decimal.Zero, err
	}
	items, err := s.repo.ListActive(ctx)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list items")
	}
	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].StockValue())
	}
	return total, nil
}

// RecentWaste returns the newest write-offs.
func (s *Service) RecentWaste(ctx context.Context, actor *models.User, limit int) ([]models.WasteLog, error) {
	if err := authz.Require(actor, enums.PermissionViewInventory); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.policy.ActivityLimit
	}
	if limit <= 0 {
		limit = 50
	}
	logs, err := s.repo.ListWaste(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list waste")
	}
	return logs, nil
}

// WasteBetween returns write-offs in [start, end), oldest first.
func (s *Service) WasteBetween(ctx context.Context, actor *models.User, start, end time.Time) ([]models.WasteLog, error) {
	if err := authz.Require(actor, enums.PermissionViewInventory); err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	logs, err := s.repo.ListWasteBetween(ctx, start, end)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list waste between")
	}
	return logs, nil
}

// MonthlyWasteSummary aggregates write-offs per calendar month over [start,
// end), oldest month first.
func (s *Service) MonthlyWasteSummary(ctx context.Context, actor *models.User, start, end time.Time) ([]MonthlyWaste, error) {
	logs, err := s.WasteBetween(ctx, actor, start, end)
	if err != nil {
		return nil, err
	}

	totals := map[string]*MonthlyWaste{}
	order := []string{}
	for i := range logs {
		month := logs[i].CreatedAt.UTC().Format("2006-01")
		row, ok := totals[month]
		if !ok {
			row = &MonthlyWaste{Month: month}
			totals[month] = row
			order = append(order, month)
		}
		row.TotalQuantity += logs[i].Quantity
		row.Entries++
	}

	out := make([]MonthlyWaste, 0, len(order))
	for _, month := range order {
		out = append(out, *totals[month])
	}
	return out, nil
}

// ExportCSV writes the active inventory as CSV.
func (s *Service) ExportCSV(ctx context.Context, actor *models.User, w io.Writer) error {
	if err := authz.Require(actor, enums.PermissionExportInventory); err != nil {
		return err
	}
	items, err := s.repo.ListActive(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list items")
	}

	writer := csv.NewWriter(w)
	header := []string{"id", "name", "category", "quantity", "unit", "min_threshold", "unit_cost", "stock_value", "expiration_date", "location"}
	if err := writer.Write(header); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write csv header")
	}
	for i := range items {
		item := &items[i]
		expiration := ""
		if item.ExpirationDate != nil {
			expiration = item.ExpirationDate.UTC().Format("2006-01-02")
		}
		location := ""
		if item.Location != nil {
			location = *item.Location
		}
		row := []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Name,
			item.Category,
			trimFloat(item.Quantity),
			item.Unit,
			trimFloat(item.MinThreshold),
			item.UnitCost.String(),
			item.StockValue().String(),
			expiration,
			location,
		}
		if err := writer.Write(row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write csv row")
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flush csv")
	}
	return nil
}

// ExportWasteCSV writes the write-offs in [start, end) as CSV. Reports are an
// admin surface.
func (s *Service) ExportWasteCSV(ctx context.Context, actor *models.User, w io.Writer, start, end time.Time) error {
	if err := authz.Require(actor, enums.PermissionExportReports); err != nil {
		return err
	}
	logs, err := s.repo.ListWasteBetween(ctx, start, end)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list waste between")
	}

	writer := csv.NewWriter(w)
	header := []string{"id", "item_id", "user_id", "quantity", "reason", "notes", "created_at"}
	if err := writer.Write(header); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write csv header")
	}
	for i := range logs {
		log := &logs[i]
		notes := ""
		if log.Notes != nil {
			notes = *log.Notes
		}
		row := []string{
			strconv.FormatUint(uint64(log.ID), 10),
			strconv.FormatUint(uint64(log.InventoryItemID), 10),
			strconv.FormatUint(uint64(log.UserID), 10),
			trimFloat(log.Quantity),
			log.Reason.String(),
			notes,
			log.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write csv row")
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flush csv")
	}
	return nil
}

func (s *Service) loadActive(ctx context.Context, repo Repository, id uint) (*models.InventoryItem, error) {
	item, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load item")
	}
	if item.IsDeleted {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	return item, nil
}

func trimFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
