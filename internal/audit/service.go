package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brewmetric/brewmetric-core/internal/authz"
	"github.com/brewmetric/brewmetric-core/pkg/db/models"
	"github.com/brewmetric/brewmetric-core/pkg/enums"
	pkgerrors "github.com/brewmetric/brewmetric-core/pkg/errors"
	"github.com/brewmetric/brewmetric-core/pkg/logger"
	"github.com/brewmetric/brewmetric-core/pkg/metrics"
	"gorm.io/gorm"
)

// RecordInput captures the immutable data an audit entry requires. Before and
// After snapshots are serialized as JSON when present.
type RecordInput struct {
	Actor       *models.User
	Action      enums.AuditAction
	EntityType  enums.EntityType
	EntityID    uint
	ItemID      *uint
	Before      any
	After       any
	Description string
	SessionID   *string
}

// Service appends and queries the audit trail and serves the best-effort
// activity feed.
type Service struct {
	repo         Repository
	feed         *Feed
	log          *logger.Logger
	metrics      *metrics.CoreMetrics
	defaultLimit int
}

// ServiceParams bundles the dependencies required to build an audit service.
type ServiceParams struct {
	Repo         Repository
	Feed         *Feed
	Logger       *logger.Logger
	Metrics      *metrics.CoreMetrics
	DefaultLimit int
}

// NewService wires an audit service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	limit := params.DefaultLimit
	if limit <= 0 {
		limit = 100
	}
	return &Service{
		repo:         params.Repo,
		feed:         params.Feed,
		log:          params.Logger,
		metrics:      params.Metrics,
		defaultLimit: limit,
	}, nil
}

// Record appends one immutable entry on the caller's transaction. The entry
// commits or rolls back together with the mutation it documents; callers must
// never record outside the mutation's transactional scope.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AuditEntry, error) {
	if input.Actor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "audit actor is required")
	}
	if !input.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid audit action %q", input.Action))
	}
	if !input.EntityType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid entity type %q", input.EntityType))
	}

	before, err := marshalSnapshot(input.Before)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serialize before snapshot")
	}
	after, err := marshalSnapshot(input.After)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serialize after snapshot")
	}

	entry := &models.AuditEntry{
		UserID:          input.Actor.ID,
		InventoryItemID: input.ItemID,
		Action:          input.Action,
		EntityType:      input.EntityType,
		EntityID:        input.EntityID,
		OldValues:       before,
		NewValues:       after,
		SessionID:       input.SessionID,
	}
	if input.Description != "" {
		desc := input.Description
		entry.Description = &desc
	}

	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "append audit entry")
	}
	s.metrics.IncAudit(input.Action.String())
	return entry, nil
}

// Query returns audit entries newest-first. The actor needs the audit-view
// permission; an unset limit falls back to the configured default so
// unbounded scans never reach the store.
func (s *Service) Query(ctx context.Context, actor *models.User, filter Filter) ([]models.AuditEntry, error) {
	if err := authz.Require(actor, enums.PermissionViewAudit); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = s.defaultLimit
	}
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "query audit trail")
	}
	return entries, nil
}

// Publish writes a feed entry after the authoritative commit. Failures are
// logged and swallowed; the audit trail stays the source of truth.
func (s *Service) Publish(ctx context.Context, actor *models.User, itemID *uint, text string) {
	if s.feed == nil || actor == nil || text == "" {
		return
	}
	s.feed.Publish(ctx, actor.ID, itemID, text)
}

// RecentActivity returns the newest feed entries. The actor needs the
// activity-view permission.
func (s *Service) RecentActivity(ctx context.Context, actor *models.User, limit int) ([]models.ActivityEntry, error) {
	if err := authz.Require(actor, enums.PermissionViewActivity); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	entries, err := s.repo.ListActivity(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "query activity feed")
	}
	return entries, nil
}

func marshalSnapshot(value any) (*string, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	encoded := string(raw)
	return &encoded, nil
}
