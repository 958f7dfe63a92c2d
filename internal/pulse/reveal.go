package pulse

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pulseapp/pulse-backend/internal/models"
)

// RevealResult is what a reveal request resolves to. Profiles are only
// populated when the pair is mutual.
type RevealResult struct {
	Mutual    bool `json:"mutual"`
	Requested bool `json:"requested"`

	RequesterProfile *Profile `json:"requesterProfile,omitempty"`
	AuthorProfile    *Profile `json:"authorProfile,omitempty"`
}

// RequestReveal records that requesterID wants to learn the identity
// behind the post's author and resolves mutuality.
//
// Mutuality is pairwise over users, not posts: the pair becomes mutual as
// soon as each side holds a request on any live (or recently live) post
// authored by the other. The reciprocity check and promotion run under a
// lock on the unordered user pair, so two reciprocal requests racing each
// other cannot both observe "not yet mutual".
func (s *Service) RequestReveal(ctx context.Context, postID, requesterID string) (*RevealResult, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !post.Live(s.now()) {
		return nil, ErrNotFound
	}
	if !post.IsAnonymous {
		return nil, fmt.Errorf("%w: post is not anonymous", ErrInvalidReveal)
	}
	if post.AuthorID == requesterID {
		return nil, fmt.Errorf("%w: cannot request a reveal on your own post", ErrInvalidReveal)
	}

	unlock := s.locks.Lock(requesterID, post.AuthorID)

	var mutual, newlyMutual bool
	err = withRetry(func() error {
		return classifyStorageErr(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			req := models.RevealRequest{
				PostID:      postID,
				RequesterID: requesterID,
				AuthorID:    post.AuthorID,
				CreatedAt:   s.now(),
			}
			// Idempotent: repeat calls leave the existing row untouched.
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "post_id"}, {Name: "requester_id"}},
				DoNothing: true,
			}).Create(&req).Error; err != nil {
				return err
			}

			reciprocal, err := s.hasReciprocalRequest(tx, post.AuthorID, requesterID)
			if err != nil {
				return err
			}
			if !reciprocal {
				mutual, newlyMutual = false, false
				return nil
			}
			mutual = true

			// The pair match row is the once-only delivery record: only
			// the transaction that inserts it dispatches notifications.
			lo, hi := models.PairKey(requesterID, post.AuthorID)
			match := models.RevealMatch{UserLo: lo, UserHi: hi, NotifiedAt: s.now(), CreatedAt: s.now()}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_lo"}, {Name: "user_hi"}},
				DoNothing: true,
			}).Create(&match)
			if res.Error != nil {
				return res.Error
			}
			newlyMutual = res.RowsAffected == 1
			return nil
		}))
	})
	unlock()
	if err != nil {
		return nil, err
	}

	result := &RevealResult{Requested: true, Mutual: mutual}
	if !mutual {
		return result, nil
	}

	// Profile lookups stay outside the lock and the transaction.
	requesterProfile, err := s.profiles.GetProfile(ctx, requesterID)
	if err != nil {
		s.log.Warnw("profile lookup failed", "user", requesterID, "err", err)
	}
	authorProfile, err := s.profiles.GetProfile(ctx, post.AuthorID)
	if err != nil {
		s.log.Warnw("profile lookup failed", "user", post.AuthorID, "err", err)
	}
	result.RequesterProfile = requesterProfile
	result.AuthorProfile = authorProfile

	// Both parties get the same payload, fetched once; each side picks
	// out the counterpart's profile client-side.
	if newlyMutual && s.notifier != nil {
		s.log.Infow("mutual reveal", "requester", requesterID, "author", post.AuthorID)
		s.notifier.Notify(ctx, requesterID, NotifyMutualReveal, result)
		s.notifier.Notify(ctx, post.AuthorID, NotifyMutualReveal, result)
	}
	return result, nil
}

// hasReciprocalRequest reports whether author already holds a reveal
// request on any post of requester's that is live or dead for less than
// the grace window. The window also bounds what the sweeper may purge,
// so this read can never race a cleanup.
func (s *Service) hasReciprocalRequest(tx *gorm.DB, authorID, requesterID string) (bool, error) {
	cutoff := s.now().Add(-s.opts.RevealGrace)

	var count int64
	err := tx.Model(&models.RevealRequest{}).
		Joins("JOIN posts ON posts.id = reveal_requests.post_id").
		Where("reveal_requests.requester_id = ? AND reveal_requests.author_id = ?", authorID, requesterID).
		Where("posts.deleted_at IS NULL OR posts.deleted_at > ?", cutoff).
		Where("posts.expires_at > ?", cutoff).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsMutual reports whether the unordered pair has already resolved to a
// mutual reveal. Used by the feed assembler.
func (s *Service) IsMutual(ctx context.Context, a, b string) (bool, error) {
	lo, hi := models.PairKey(a, b)
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RevealMatch{}).
		Where("user_lo = ? AND user_hi = ?", lo, hi).
		Count(&count).Error
	if err != nil {
		return false, classifyStorageErr(err)
	}
	return count > 0, nil
}
