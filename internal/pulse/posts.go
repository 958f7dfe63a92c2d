package pulse

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pulseapp/pulse-backend/internal/models"
)

// MaxContentLength bounds post content in Unicode code points.
const MaxContentLength = 280

// CreatePost validates and persists a new post. Expiry is computed from
// the creation time and the configured lifetime.
func (s *Service) CreatePost(ctx context.Context, authorID, content string, category models.Category, isAnonymous bool) (*models.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content must not be empty", ErrValidation)
	}
	if n := utf8.RuneCountInString(content); n > MaxContentLength {
		return nil, fmt.Errorf("%w: content is %d code points, max %d", ErrValidation, n, MaxContentLength)
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, category)
	}

	now := s.now()
	post := &models.Post{
		ID:          uuid.NewString(),
		AuthorID:    authorID,
		Content:     content,
		Category:    category,
		IsAnonymous: isAnonymous,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.opts.PostLifetime),
	}

	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, classifyStorageErr(err)
	}

	s.log.Infow("post created", "post", post.ID, "category", post.Category, "anonymous", post.IsAnonymous)
	return post, nil
}

// GetPost fetches a post by id regardless of liveness.
func (s *Service) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ?", postID).Error; err != nil {
		return nil, classifyStorageErr(err)
	}
	return &post, nil
}

// DeletePost soft-deletes the post. Only the author may delete; deleting
// an already-deleted post is a no-op success.
func (s *Service) DeletePost(ctx context.Context, postID, requesterID string) error {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != requesterID {
		return fmt.Errorf("%w: only the author can delete a post", ErrForbidden)
	}
	if post.DeletedAt != nil {
		return nil
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(post).Update("deleted_at", now).Error; err != nil {
		return classifyStorageErr(err)
	}

	s.log.Infow("post deleted", "post", post.ID)
	return nil
}

// livePost loads a post and fails with ErrNotFound unless it is live.
// Deleted and expired posts are indistinguishable from missing ones to
// keep anonymity intact.
func (s *Service) livePost(tx *gorm.DB, postID string) (*models.Post, error) {
	var post models.Post
	if err := tx.First(&post, "id = ?", postID).Error; err != nil {
		return nil, classifyStorageErr(err)
	}
	if !post.Live(s.now()) {
		return nil, ErrNotFound
	}
	return &post, nil
}
