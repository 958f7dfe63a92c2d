package pulse

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pulseapp/pulse-backend/internal/models"
)

// ReactionResult is the outcome of a toggle: the viewer's resulting slot
// and the post's derived per-type counts.
type ReactionResult struct {
	PostID string                        `json:"postId"`
	Active *models.ReactionType          `json:"active"`
	Counts map[models.ReactionType]int64 `json:"counts"`
}

// ToggleReaction applies the single-slot vote semantics for one viewer on
// one post: no slot creates one, the same type clears it, a different
// type replaces it. Exactly one outcome happens per call; the composite
// unique index on (post, viewer) makes concurrent double-taps collide
// instead of double-counting, and the loser is retried.
func (s *Service) ToggleReaction(ctx context.Context, postID, viewerID string, typ models.ReactionType) (*ReactionResult, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown reaction type %q", ErrValidation, typ)
	}

	res := &ReactionResult{PostID: postID}

	err := withRetry(func() error {
		res.Active = nil
		return classifyStorageErr(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := s.livePost(tx, postID); err != nil {
				return err
			}

			var existing models.Reaction
			err := tx.Where("post_id = ? AND viewer_id = ?", postID, viewerID).First(&existing).Error

			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				reaction := models.Reaction{PostID: postID, ViewerID: viewerID, Type: typ}
				if err := tx.Create(&reaction).Error; err != nil {
					return err
				}
				res.Active = &typ

			case err != nil:
				return err

			case existing.Type == typ:
				if err := tx.Delete(&existing).Error; err != nil {
					return err
				}

			default:
				if err := tx.Model(&existing).Update("type", typ).Error; err != nil {
					return err
				}
				res.Active = &typ
			}

			counts, err := reactionCounts(tx, postID)
			if err != nil {
				return err
			}
			res.Counts = counts
			return nil
		}))
	})
	if err != nil {
		return nil, err
	}

	s.notifyReaction(ctx, viewerID, res)
	return res, nil
}

// notifyReaction pings the post's author when someone reacts to their
// post. Best effort, never blocks the toggle result.
func (s *Service) notifyReaction(ctx context.Context, viewerID string, res *ReactionResult) {
	if res.Active == nil || s.notifier == nil {
		return
	}
	post, err := s.GetPost(ctx, res.PostID)
	if err != nil || post.AuthorID == viewerID {
		return
	}
	s.notifier.Notify(ctx, post.AuthorID, NotifyReaction, res)
}

// reactionCounts derives the aggregate counts from the ledger rows. The
// counts are never stored, so they cannot drift from the rows.
func reactionCounts(tx *gorm.DB, postID string) (map[models.ReactionType]int64, error) {
	var rows []struct {
		Type  models.ReactionType
		Count int64
	}
	err := tx.Model(&models.Reaction{}).
		Select("type, count(*) as count").
		Where("post_id = ?", postID).
		Group("type").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.ReactionType]int64, len(rows))
	for _, row := range rows {
		counts[row.Type] = row.Count
	}
	return counts, nil
}
