package pulse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulseapp/pulse-backend/internal/models"
)

func TestToggleReaction(t *testing.T) {
	t.Parallel()

	t.Run("full cycle none to type to none", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		post := mustCreatePost(t, svc, "alice", true)

		res, err := svc.ToggleReaction(context.Background(), post.ID, "bob", models.ReactionFire)
		require.NoError(t, err)
		require.NotNil(t, res.Active)
		require.Equal(t, models.ReactionFire, *res.Active)
		require.Equal(t, int64(1), res.Counts[models.ReactionFire])

		res, err = svc.ToggleReaction(context.Background(), post.ID, "bob", models.ReactionFire)
		require.NoError(t, err)
		require.Nil(t, res.Active)
		require.Zero(t, res.Counts[models.ReactionFire])
	})

	t.Run("different type replaces the slot", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		post := mustCreatePost(t, svc, "alice", true)

		_, err := svc.ToggleReaction(context.Background(), post.ID, "bob", models.ReactionFire)
		require.NoError(t, err)

		res, err := svc.ToggleReaction(context.Background(), post.ID, "bob", models.ReactionSkull)
		require.NoError(t, err)
		require.Equal(t, models.ReactionSkull, *res.Active)
		require.Zero(t, res.Counts[models.ReactionFire])
		require.Equal(t, int64(1), res.Counts[models.ReactionSkull])
	})

	t.Run("counts always match the ledger rows", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		post := mustCreatePost(t, svc, "alice", true)

		viewers := []string{"bob", "carol", "dave"}
		for _, v := range viewers {
			_, err := svc.ToggleReaction(context.Background(), post.ID, v, models.ReactionHeart)
			require.NoError(t, err)
		}

		res, err := svc.ToggleReaction(context.Background(), post.ID, "carol", models.ReactionHeart)
		require.NoError(t, err)
		require.Equal(t, int64(2), res.Counts[models.ReactionHeart])

		var rows int64
		require.NoError(t, svc.db.Model(&models.Reaction{}).
			Where("post_id = ? AND type = ?", post.ID, models.ReactionHeart).
			Count(&rows).Error)
		require.Equal(t, int64(2), rows)
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		post := mustCreatePost(t, svc, "alice", true)

		_, err := svc.ToggleReaction(context.Background(), post.ID, "bob", models.ReactionType("clap"))
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("dead posts reject reactions", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		deleted := mustCreatePost(t, svc, "alice", true)
		require.NoError(t, svc.DeletePost(context.Background(), deleted.ID, "alice"))
		_, err := svc.ToggleReaction(context.Background(), deleted.ID, "bob", models.ReactionFire)
		require.ErrorIs(t, err, ErrNotFound)

		expired := mustCreatePost(t, svc, "alice", true)
		_, err = svc.ToggleReaction(context.Background(), expired.ID, "bob", models.ReactionFire)
		require.NoError(t, err)

		advance(svc, 25*time.Hour)
		_, err = svc.ToggleReaction(context.Background(), expired.ID, "bob", models.ReactionFire)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("notifies the author once per new reaction", func(t *testing.T) {
		t.Parallel()
		svc, notifier := newTestService(t)
		post := mustCreatePost(t, svc, "alice", true)

		_, err := svc.ToggleReaction(context.Background(), post.ID, "bob", models.ReactionFire)
		require.NoError(t, err)
		require.Equal(t, 1, notifier.count("alice", NotifyReaction))

		// Un-reacting is not a notification.
		_, err = svc.ToggleReaction(context.Background(), post.ID, "bob", models.ReactionFire)
		require.NoError(t, err)
		require.Equal(t, 1, notifier.count("alice", NotifyReaction))
	})
}
