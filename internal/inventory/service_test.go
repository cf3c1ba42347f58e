package inventory

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/brewmetric/brewmetric-core/internal/audit"
	"github.com/brewmetric/brewmetric-core/pkg/config"
	"github.com/brewmetric/brewmetric-core/pkg/db"
	"github.com/brewmetric/brewmetric-core/pkg/db/models"
	"github.com/brewmetric/brewmetric-core/pkg/enums"
	pkgerrors "github.com/brewmetric/brewmetric-core/pkg/errors"
	"github.com/brewmetric/brewmetric-core/pkg/migrate"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	client *db.Client
	svc    *Service
	admin  *models.User
	staff  *models.User
}

func setupInventory(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cfg := config.DBConfig{
		Driver: config.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	}
	client, err := db.New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	require.NoError(t, migrate.Up(ctx, sqlDB, cfg))

	auditSvc, err := audit.NewService(audit.ServiceParams{Repo: audit.NewRepository(client.DB())})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Client: client,
		Repo:   NewRepository(client.DB()),
		Audit:  auditSvc,
		Policy: config.PolicyConfig{ExpiringSoonDays: 7, ActivityLimit: 50},
	})
	require.NoError(t, err)

	admin := &models.User{Username: "root_admin", Email: "root@brewmetric.local", PasswordHash: "x", FullName: "Root", Role: enums.RoleAdmin, IsActive: true}
	staff := &models.User{Username: "brewer_jane", Email: "jane@brewmetric.local", PasswordHash: "x", FullName: "Jane", Role: enums.RoleStaff, IsActive: true}
	require.NoError(t, client.DB().Create(admin).Error)
	require.NoError(t, client.DB().Create(staff).Error)

	return &fixture{client: client, svc: svc, admin: admin, staff: staff}
}

func (f *fixture) mustCreateItem(t *testing.T, input CreateItemInput) *ItemDTO {
	t.Helper()
	item, err := f.svc.CreateItem(context.Background(), f.admin, input)
	require.NoError(t, err)
	return item
}

func hopsInput() CreateItemInput {
	return CreateItemInput{
		Name:         "Cascade Hops",
		Category:     "hops",
		Quantity:     10,
		Unit:         "kg",
		MinThreshold: 2,
		UnitCost:     decimal.RequireFromString("14.50"),
	}
}

func (f *fixture) auditCount(t *testing.T, action enums.AuditAction) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.client.DB().Model(&models.AuditEntry{}).
		Where("action = ?", action).Count(&count).Error)
	return count
}

func TestCreateItem(t *testing.T) {
	f := setupInventory(t)
	ctx := context.Background()

	t.Run("staff may add items", func(t *testing.T) {
		item, err := f.svc.CreateItem(ctx, f.staff, hopsInput())
		require.NoError(t, err)
		assert.NotZero(t, item.ID)
		assert.Equal(t, "kg", item.Unit)
		assert.Equal(t, "145", item.StockValue.String())
		assert.EqualValues(t, 1, f.auditCount(t, enums.AuditActionCreate))
	})

	t.Run("nil actor denied", func(t *testing.T) {
		_, err := f.svc.CreateItem(ctx, nil, hopsInput())
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	})

	t.Run("validation", func(t *testing.T) {
		input := hopsInput()
		input.Name = ""
		_, err := f.svc.CreateItem(ctx, f.staff, input)
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

		input = hopsInput()
		input.Quantity = -1
		_, err = f.svc.CreateItem(ctx, f.staff, input)
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

		input = hopsInput()
		input.UnitCost = decimal.RequireFromString("-1")
		_, err = f.svc.CreateItem(ctx, f.staff, input)
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})

	t.Run("defaults unit", func(t *testing.T) {
		input := hopsInput()
		input.Name = "Irish Moss"
		input.Unit = ""
		item, err := f.svc.CreateItem(ctx, f.staff, input)
		require.NoError(t, err)
		assert.Equal(t, "unit", item.Unit)
	})
}

func TestUpdateItem(t *testing.T) {
	f := setupInventory(t)
	ctx := context.Background()
	item := f.mustCreateItem(t, hopsInput())

	t.Run("staff denied", func(t *testing.T) {
		name := "Citra Hops"
		_, err := f.svc.UpdateItem(ctx, f.staff, item.ID, UpdateItemInput{Name: &name})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	})

	t.Run("partial update audited", func(t *testing.T) {
		name := "Citra Hops"
		cost := decimal.RequireFromString("16.25")
		updated, err := f.svc.UpdateItem(ctx, f.admin, item.ID, UpdateItemInput{Name: &name, UnitCost: &cost})
		require.NoError(t, err)
		assert.Equal(t, "Citra Hops", updated.Name)
		assert.Equal(t, "hops", updated.Category)
		assert.True(t, cost.Equal(updated.UnitCost))

		var entries []models.AuditEntry
		require.NoError(t, f.client.DB().
			Where("action = ? AND entity_id = ?", enums.AuditActionUpdate, item.ID).
			Find(&entries).Error)
		require.Len(t, entries, 1)
		require.NotNil(t, entries[0].OldValues)
		assert.Contains(t, *entries[0].OldValues, "Cascade Hops")
		require.NotNil(t, entries[0].NewValues)
		assert.Contains(t, *entries[0].NewValues, "Citra Hops")
	})

	t.Run("missing item", func(t *testing.T) {
		name := "nope"
		_, err := f.svc.UpdateItem(ctx, f.admin, 9999, UpdateItemInput{Name: &name})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	})
}

func TestAdjustStock(t *testing.T) {
	f := setupInventory(t)
	ctx := context.Background()
	item := f.mustCreateItem(t, hopsInput())

	t.Run("staff may adjust", func(t *testing.T) {
		adjusted, err := f.svc.AdjustStock(ctx, f.staff, AdjustStockInput{ItemID: item.ID, Delta: -4, Note: "brew day"})
		require.NoError(t, err)
		assert.Equal(t, 6.0, adjusted.Quantity)
	})

	t.Run("floors at zero", func(t *testing.T) {
		adjusted, err := f.svc.AdjustStock(ctx, f.staff, AdjustStockInput{ItemID: item.ID, Delta: -100})
		require.NoError(t, err)
		assert.Equal(t, 0.0, adjusted.Quantity)
	})

	t.Run("zero delta rejected", func(t *testing.T) {
		_, err := f.svc.AdjustStock(ctx, f.staff, AdjustStockInput{ItemID: item.ID, Delta: 0})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})
}

func TestDeleteItem(t *testing.T) {
	f := setupInventory(t)
	ctx := context.Background()
	item := f.mustCreateItem(t, hopsInput())

	t.Run("staff denied", func(t *testing.T) {
		err := f.svc.DeleteItem(ctx, f.staff, item.ID, nil)
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	})

	t.Run("soft delete hides the row", func(t *testing.T) {
		require.NoError(t, f.svc.DeleteItem(ctx, f.admin, item.ID, nil))

		_, err := f.svc.GetItem(ctx, f.staff, item.ID)
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

		items, err := f.svc.Snapshot(ctx, f.staff)
		require.NoError(t, err)
		assert.Empty(t, items)

		// The row itself survives for history.
		var raw models.InventoryItem
		require.NoError(t, f.client.DB().First(&raw, "id = ?", item.ID).Error)
		assert.True(t, raw.IsDeleted)
		assert.EqualValues(t, 1, f.auditCount(t, enums.AuditActionDelete))
	})

	t.Run("repeat delete is a no-op", func(t *testing.T) {
		require.NoError(t, f.svc.DeleteItem(ctx, f.admin, item.ID, nil))
		assert.EqualValues(t, 1, f.auditCount(t, enums.AuditActionDelete))
	})
}

func TestRecordWaste(t *testing.T) {
	f := setupInventory(t)
	ctx := context.Background()
	item := f.mustCreateItem(t, hopsInput())

	t.Run("applied decrements stock", func(t *testing.T) {
		result, err := f.svc.RecordWaste(ctx, f.staff, RecordWasteInput{
			ItemID:   item.ID,
			Quantity: 2.5,
			Reason:   enums.WasteReasonSpill,
		})
		require.NoError(t, err)
		assert.Equal(t, WasteApplied, result.Status)
		assert.Equal(t, 10.0, result.PreviousQuantity)
		assert.Equal(t, 7.5, result.NewQuantity)
		assert.False(t, result.Clamped)
		require.NotNil(t, result.Log)
		assert.Equal(t, 2.5, result.Log.Quantity)
		assert.Equal(t, f.staff.ID, result.Log.UserID)
	})

	t.Run("over-withdrawal clamps but logs requested quantity", func(t *testing.T) {
		result, err := f.svc.RecordWaste(ctx, f.staff, RecordWasteInput{
			ItemID:   item.ID,
			Quantity: 50,
			Reason:   enums.WasteReasonExpired,
		})
		require.NoError(t, err)
		assert.True(t, result.Clamped)
		assert.Equal(t, 0.0, result.NewQuantity)
		assert.Equal(t, 50.0, result.Log.Quantity)
	})

	t.Run("waste log count matches WASTE audit count", func(t *testing.T) {
		var logs int64
		require.NoError(t, f.client.DB().Model(&models.WasteLog{}).
			Where("inventory_item_id = ?", item.ID).Count(&logs).Error)
		assert.EqualValues(t, logs, f.auditCount(t, enums.AuditActionWaste))
	})

	t.Run("validation", func(t *testing.T) {
		_, err := f.svc.RecordWaste(ctx, f.staff, RecordWasteInput{ItemID: item.ID, Quantity: 0, Reason: enums.WasteReasonSpill})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

		_, err = f.svc.RecordWaste(ctx, f.staff, RecordWasteInput{ItemID: item.ID, Quantity: 1, Reason: enums.WasteReason("vibes")})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})

	t.Run("missing item", func(t *testing.T) {
		_, err := f.svc.RecordWaste(ctx, f.staff, RecordWasteInput{ItemID: 9999, Quantity: 1, Reason: enums.WasteReasonSpill})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	})

	t.Run("soft-deleted item rejected", func(t *testing.T) {
		require.NoError(t, f.svc.DeleteItem(ctx, f.admin, item.ID, nil))
		_, err := f.svc.RecordWaste(ctx, f.staff, RecordWasteInput{ItemID: item.ID, Quantity: 1, Reason: enums.WasteReasonSpill})
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	})
}

// failingAuditRepo lets everything through except audit-entry inserts, which
// simulates a trail failure after the stock decrement already happened.
type failingAuditRepo struct {
	audit.Repository
}

func (f *failingAuditRepo) WithTx(tx *gorm.DB) audit.Repository {
	return &failingAuditRepo{Repository: f.Repository.WithTx(tx)}
}

func (f *failingAuditRepo) Create(_ context.Context, _ *models.AuditEntry) error {
	return fmt.Errorf("audit store unavailable")
}

func TestWasteRollsBackWhenAuditFails(t *testing.T) {
	f := setupInventory(t)
	ctx := context.Background()
	item := f.mustCreateItem(t, hopsInput())

	// Swap in an audit service whose entry inserts always fail.
	failing, err := audit.NewService(audit.ServiceParams{
		Repo: &failingAuditRepo{Repository: audit.NewRepository(f.client.DB())},
	})
	require.NoError(t, err)
	broken, err := NewService(ServiceParams{
		Client: f.client,
		Repo:   NewRepository(f.client.DB()),
		Audit:  failing,
	})
	require.NoError(t, err)

	_, err = broken.RecordWaste(ctx, f.staff, RecordWasteInput{
		ItemID:   item.ID,
		Quantity: 2,
		Reason:   enums.WasteReasonSpill,
	})
	require.Error(t, err)

	// Decrement and waste log both rolled back with the audit failure.
	reloaded, err := f.svc.GetItem(ctx, f.staff, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, reloaded.Quantity)

	var logs int64
	require.NoError(t, f.client.DB().Model(&models.WasteLog{}).Count(&logs).Error)
	assert.Zero(t, logs)
}

func TestQueries(t *testing.T) {
	f := setupInventory(t)
	ctx := context.Background()

	soon := time.Now().UTC().Add(3 * 24 * time.Hour)
	far := time.Now().UTC().Add(60 * 24 * time.Hour)

	f.mustCreateItem(t, CreateItemInput{Name: "Pale Malt", Category: "grain", Quantity: 25, Unit: "kg", MinThreshold: 5, UnitCost: decimal.RequireFromString("1.80")})
	f.mustCreateItem(t, CreateItemInput{Name: "Cascade Hops", Category: "hops", Quantity: 1, Unit: "kg", MinThreshold: 2, UnitCost: decimal.RequireFromString("14.50"), ExpirationDate: &soon})
	f.mustCreateItem(t, CreateItemInput{Name: "US-05 Yeast", Category: "yeast", Quantity: 20, Unit: "pack", MinThreshold: 4, UnitCost: decimal.RequireFromString("3.25"), ExpirationDate: &far})

	t.Run("snapshot orders by category then name", func(t *testing.T) {
		items, err := f.svc.Snapshot(ctx, f.staff)
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, "Pale Malt", items[0].Name)
		assert.Equal(t, "Cascade Hops", items[1].Name)
		assert.Equal(t, "US-05 Yeast", items[2].Name)
	})

	t.Run("low stock", func(t *testing.T) {
		items, err := f.svc.LowStock(ctx, f.staff)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Cascade Hops", items[0].Name)
		assert.True(t, items[0].LowStock)
	})

	t.Run("expiring window", func(t *testing.T) {
		items, err := f.svc.Expiring(ctx, f.staff, 7)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Cascade Hops", items[0].Name)
	})

	t.Run("by category", func(t *testing.T) {
		items, err := f.svc.ByCategory(ctx, f.staff, "grain")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Pale Malt", items[0].Name)
	})

	t.Run("total value", func(t *testing.T) {
		total, err := f.svc.TotalValue(ctx, f.staff)
		require.NoError(t, err)
		// 25*1.80 + 1*14.50 + 20*3.25 = 124.50
		assert.Equal(t, "124.5", total.String())
	})
}

func TestWasteQueries(t *testing.T) {
	f := setupInventory(t)
	ctx := context.Background()
	item := f.mustCreateItem(t, hopsInput())

	// Backdated logs inserted directly; RecordWaste always stamps now.
	jan := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)
	for _, row := range []models.WasteLog{
		{InventoryItemID: item.ID, UserID: f.staff.ID, Quantity: 1.5, Reason: enums.WasteReasonSpill, CreatedAt: jan},
		{InventoryItemID: item.ID, UserID: f.staff.ID, Quantity: 2, Reason: enums.WasteReasonExpired, CreatedAt: jan.Add(24 * time.Hour)},
		{InventoryItemID: item.ID, UserID: f.staff.ID, Quantity: 0.5, Reason: enums.WasteReasonSpill, CreatedAt: feb},
	} {
		require.NoError(t, f.client.DB().Create(&row).Error)
	}

	t.Run("recent waste newest first", func(t *testing.T) {
		logs, err := f.svc.RecentWaste(ctx, f.staff, 2)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, 0.5, logs[0].Quantity)
	})

	t.Run("between is half-open", func(t *testing.T) {
		logs, err := f.svc.WasteBetween(ctx, f.staff, jan, feb)
		require.NoError(t, err)
		assert.Len(t, logs, 2)

		_, err = f.svc.WasteBetween(ctx, f.staff, feb, jan)
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	})

	t.Run("monthly summary", func(t *testing.T) {
		rows, err := f.svc.MonthlyWasteSummary(ctx, f.staff, jan, feb.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "2026-01", rows[0].Month)
		assert.Equal(t, 3.5, rows[0].TotalQuantity)
		assert.Equal(t, 2, rows[0].Entries)
		assert.Equal(t, "2026-02", rows[1].Month)
		assert.Equal(t, 0.5, rows[1].TotalQuantity)
	})
}

func TestExports(t *testing.T) {
	f := setupInventory(t)
	ctx := context.Background()
	f.mustCreateItem(t, hopsInput())

	t.Run("inventory csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, f.svc.ExportCSV(ctx, f.staff, &buf))

		rows, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "name", rows[0][1])
		assert.Equal(t, "Cascade Hops", rows[1][1])
		assert.Equal(t, "145", rows[1][7])
	})

	t.Run("waste report is admin only", func(t *testing.T) {
		var buf bytes.Buffer
		err := f.svc.ExportWasteCSV(ctx, f.staff, &buf, time.Time{}, time.Now())
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

		require.NoError(t, f.svc.ExportWasteCSV(ctx, f.admin, &buf, time.Time{}, time.Now()))
	})
}
