package audit

import (
	"context"

	"github.com/brewmetric/brewmetric-core/pkg/db/models"
	"github.com/brewmetric/brewmetric-core/pkg/logger"
	"github.com/brewmetric/brewmetric-core/pkg/redis"
)

// FeedCache is the optional fan-out target for recent-activity lines.
type FeedCache interface {
	PushCapped(ctx context.Context, key string, maxLen int64, values ...any) error
}

// Feed writes human-readable activity rows after the authoritative audit
// commit. Every write is best-effort: a failed feed row is logged and
// dropped, never surfaced to the caller and never rolled back against the
// mutation it summarizes.
type Feed struct {
	repo      Repository
	cache     FeedCache
	log       *logger.Logger
	cacheSize int64
}

// NewFeed builds the activity feed writer. cache may be nil.
func NewFeed(repo Repository, cache FeedCache, log *logger.Logger, cacheSize int) *Feed {
	size := int64(cacheSize)
	if size <= 0 {
		size = 100
	}
	return &Feed{
		repo:      repo,
		cache:     cache,
		log:       log,
		cacheSize: size,
	}
}

// Publish appends one feed row and mirrors it into the cache when one is
// configured.
func (f *Feed) Publish(ctx context.Context, userID uint, itemID *uint, text string) {
	if f == nil || f.repo == nil {
		return
	}

	entry := &models.ActivityEntry{
		UserID:          userID,
		InventoryItemID: itemID,
		Action:          text,
	}
	if err := f.repo.CreateActivity(ctx, entry); err != nil {
		if f.log != nil {
			f.log.Warn(f.log.WithField(ctx, "activity", text), "dropping activity feed entry: "+err.Error())
		}
		return
	}

	if f.cache == nil {
		return
	}
	if err := f.cache.PushCapped(ctx, redis.FeedKey(), f.cacheSize, text); err != nil && f.log != nil {
		f.log.Warn(f.log.WithField(ctx, "activity", text), "activity feed cache write failed: "+err.Error())
	}
}
