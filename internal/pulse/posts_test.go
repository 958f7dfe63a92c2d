package pulse

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulseapp/pulse-backend/internal/models"
)

func TestCreatePost(t *testing.T) {
	t.Parallel()

	t.Run("computes expiry from lifetime", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		post, err := svc.CreatePost(context.Background(), "alice", strings.Repeat("a", 280), models.CategoryConfession, true)
		require.NoError(t, err)
		require.NotEmpty(t, post.ID)
		require.True(t, post.IsAnonymous)
		require.WithinDuration(t, post.CreatedAt.Add(24*time.Hour), post.ExpiresAt, time.Second)

		got, err := svc.GetPost(context.Background(), post.ID)
		require.NoError(t, err)
		require.Equal(t, post.ID, got.ID)
	})

	t.Run("rejects content over 280 code points", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		_, err := svc.CreatePost(context.Background(), "alice", strings.Repeat("hi", 141), models.CategoryConfession, true)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("counts code points, not bytes", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		// 280 multibyte runes are fine even though they exceed 280 bytes.
		_, err := svc.CreatePost(context.Background(), "alice", strings.Repeat("é", 280), models.CategoryConfession, true)
		require.NoError(t, err)
	})

	t.Run("rejects empty content after trim", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		_, err := svc.CreatePost(context.Background(), "alice", "   \n\t ", models.CategoryConfession, true)
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		_, err := svc.CreatePost(context.Background(), "alice", "hello", models.Category("gossip"), true)
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestDeletePost(t *testing.T) {
	t.Parallel()

	t.Run("author can delete, idempotently", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		post := mustCreatePost(t, svc, "alice", true)

		require.NoError(t, svc.DeletePost(context.Background(), post.ID, "alice"))
		require.NoError(t, svc.DeletePost(context.Background(), post.ID, "alice"))

		got, err := svc.GetPost(context.Background(), post.ID)
		require.NoError(t, err)
		require.NotNil(t, got.DeletedAt)
		require.False(t, got.Live(time.Now()))
	})

	t.Run("non-author is rejected", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		post := mustCreatePost(t, svc, "alice", true)

		err := svc.DeletePost(context.Background(), post.ID, "bob")
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("missing post", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		err := svc.DeletePost(context.Background(), "nope", "alice")
		require.ErrorIs(t, err, ErrNotFound)
	})
}
