package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulseapp/pulse-backend/internal/models"
	"github.com/pulseapp/pulse-backend/internal/pulse"
	"github.com/pulseapp/pulse-backend/internal/ws"
)

// staticSessions resolves "token-<user>" to "<user>".
type staticSessions struct{}

func (staticSessions) Resolve(_ context.Context, token string) (string, error) {
	user, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return "", fmt.Errorf("unknown token %q", token)
	}
	return user, nil
}

type nullProfiles struct{}

func (nullProfiles) GetProfile(_ context.Context, userID string) (*pulse.Profile, error) {
	return &pulse.Profile{ID: userID, Name: userID}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(models.All()...))

	log := zap.NewNop().Sugar()
	hub := ws.NewHub(log)
	svc := pulse.NewService(gdb, log, nullProfiles{}, hub, pulse.Options{})

	router := gin.New()
	SetupRoutes(router, &Env{Svc: svc, Hub: hub, Log: log}, staticSessions{}, "*")
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer token-"+user)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/feed", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreatePostValidation(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/posts", "alice", gin.H{
		"content":     strings.Repeat("hi", 141),
		"category":    "confession",
		"isAnonymous": true,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[map[string]any](t, w)
	require.Equal(t, "INVALID_DATA", resp["code"])
}

func TestPulseEndToEnd(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	// Alice posts anonymously with exactly 280 code points.
	w := doJSON(t, router, http.MethodPost, "/api/posts", "alice", gin.H{
		"content":     strings.Repeat("a", 280),
		"category":    "confession",
		"isAnonymous": true,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	post := decode[models.Post](t, w)
	require.NotEmpty(t, post.ID)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), post.ExpiresAt, time.Minute)

	// Someone else cannot delete it.
	w = doJSON(t, router, http.MethodDelete, "/api/posts/"+post.ID, "bob", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "FORBIDDEN", decode[map[string]any](t, w)["code"])

	// Bob toggles fire then skull: the slot is replaced, not stacked.
	w = doJSON(t, router, http.MethodPost, "/api/posts/"+post.ID+"/react", "bob", gin.H{"type": "fire"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/posts/"+post.ID+"/react", "bob", gin.H{"type": "skull"})
	require.Equal(t, http.StatusOK, w.Code)
	reaction := decode[pulse.ReactionResult](t, w)
	require.NotNil(t, reaction.Active)
	require.Equal(t, models.ReactionSkull, *reaction.Active)
	require.Zero(t, reaction.Counts[models.ReactionFire])
	require.Equal(t, int64(1), reaction.Counts[models.ReactionSkull])

	// Bob requests a reveal: pending until alice reciprocates.
	w = doJSON(t, router, http.MethodPost, "/api/posts/"+post.ID+"/reveal", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reveal := decode[pulse.RevealResult](t, w)
	require.False(t, reveal.Mutual)
	require.True(t, reveal.Requested)

	// Bob's feed shows his reaction and pending reveal, but no author.
	w = doJSON(t, router, http.MethodGet, "/api/feed?category=confession", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[pulse.FeedPage](t, w)
	require.Len(t, page.Posts, 1)
	view := page.Posts[0]
	require.Equal(t, post.ID, view.ID)
	require.Empty(t, view.AuthorID)
	require.NotEmpty(t, view.Pseudonym)
	require.True(t, view.RevealRequested)
	require.NotNil(t, view.MyReaction)
	require.Equal(t, models.ReactionSkull, *view.MyReaction)

	// Alice deletes her post; a second delete stays a no-op success.
	w = doJSON(t, router, http.MethodDelete, "/api/posts/"+post.ID, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodDelete, "/api/posts/"+post.ID, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Dead posts reject reactions and reveals with NOT_FOUND.
	w = doJSON(t, router, http.MethodPost, "/api/posts/"+post.ID+"/react", "bob", gin.H{"type": "fire"})
	require.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, router, http.MethodPost, "/api/posts/"+post.ID+"/reveal", "bob", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRevealInvalidOnNonAnonymous(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/posts", "alice", gin.H{
		"content":  "open mic friday",
		"category": "campus",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	post := decode[models.Post](t, w)

	w = doJSON(t, router, http.MethodPost, "/api/posts/"+post.ID+"/reveal", "bob", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "INVALID_REVEAL", decode[map[string]any](t, w)["code"])
}
