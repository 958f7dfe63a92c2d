package pulse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pulseapp/pulse-backend/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every goroutine on the same in-memory
	// database and serializes access the way a row-locking store would.
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(models.All()...))
	return gdb
}

type fakeProfiles struct{}

func (fakeProfiles) GetProfile(_ context.Context, userID string) (*Profile, error) {
	return &Profile{ID: userID, Name: "user-" + userID}, nil
}

type notification struct {
	UserID string
	Kind   string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (f *fakeNotifier) Notify(_ context.Context, userID, kind string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, notification{UserID: userID, Kind: kind})
}

func (f *fakeNotifier) count(userID, kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.UserID == userID && e.Kind == kind {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T) (*Service, *fakeNotifier) {
	t.Helper()
	notifier := &fakeNotifier{}
	svc := NewService(testDB(t), zap.NewNop().Sugar(), fakeProfiles{}, notifier, Options{})
	return svc, notifier
}

// advance shifts the service clock forward by d.
func advance(svc *Service, d time.Duration) {
	prev := svc.now
	svc.now = func() time.Time { return prev().Add(d) }
}

func mustCreatePost(t *testing.T, svc *Service, authorID string, anonymous bool) *models.Post {
	t.Helper()
	post, err := svc.CreatePost(context.Background(), authorID, "something happened at the dining hall", models.CategoryConfession, anonymous)
	require.NoError(t, err)
	return post
}
