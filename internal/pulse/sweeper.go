package pulse

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pulseapp/pulse-backend/internal/models"
)

// Sweeper retires dead posts and their dependent rows. Expiry itself is
// computed from ExpiresAt, so no write is needed to hide a post; the
// sweeper only purges.
//
// Reactions and reveal requests are purged once their post has been dead
// longer than the reveal grace window. The reciprocity check never reads
// further back than that window, so a purge cannot race an in-flight
// mutual-reveal resolution. Post rows themselves are hard-deleted only
// after the longer retention window.
type Sweeper struct {
	db  *gorm.DB
	log *zap.SugaredLogger

	interval time.Duration
	grace    time.Duration
	retain   time.Duration

	now func() time.Time
}

func NewSweeper(db *gorm.DB, log *zap.SugaredLogger, interval time.Duration, opts Options) *Sweeper {
	opts.withDefaults()
	return &Sweeper{
		db:       db,
		log:      log,
		interval: interval,
		grace:    opts.RevealGrace,
		retain:   opts.Retention,
		now:      time.Now,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.Warnw("sweep failed", "err", err)
			}
		}
	}
}

// Sweep performs a single pass. Also usable for lazy or one-shot
// deployments without the background loop.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.now()
	graceCutoff := now.Add(-s.grace)
	retainCutoff := now.Add(-s.retain)

	deadPosts := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Post{}).
			Select("id").
			Where("expires_at < ? OR (deleted_at IS NOT NULL AND deleted_at < ?)", graceCutoff, graceCutoff)
	}

	res := s.db.WithContext(ctx).
		Where("post_id IN (?)", deadPosts()).
		Delete(&models.Reaction{})
	if res.Error != nil {
		return classifyStorageErr(res.Error)
	}
	reactions := res.RowsAffected

	res = s.db.WithContext(ctx).
		Where("post_id IN (?)", deadPosts()).
		Delete(&models.RevealRequest{})
	if res.Error != nil {
		return classifyStorageErr(res.Error)
	}
	requests := res.RowsAffected

	res = s.db.WithContext(ctx).
		Where("expires_at < ? OR (deleted_at IS NOT NULL AND deleted_at < ?)", retainCutoff, retainCutoff).
		Delete(&models.Post{})
	if res.Error != nil {
		return classifyStorageErr(res.Error)
	}

	if reactions+requests+res.RowsAffected > 0 {
		s.log.Infow("sweep complete",
			"reactions", reactions, "revealRequests", requests, "posts", res.RowsAffected)
	}
	return nil
}
