package pulse

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Profile is the slice of a user profile the reveal flow needs.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// ProfileClient looks up user profiles from the profile service.
type ProfileClient interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// Notifier delivers a notification to a single user. Implementations must
// tolerate being called for offline users.
type Notifier interface {
	Notify(ctx context.Context, userID, kind string, payload any)
}

// Notification kinds dispatched by the service.
const (
	NotifyMutualReveal = "mutual_reveal"
	NotifyReaction     = "reaction"
)

// Options tune the time windows of the pulse core.
type Options struct {
	// PostLifetime is the window between a post's creation and expiry.
	PostLifetime time.Duration
	// RevealGrace is how long after a post dies its reveal requests still
	// count toward reciprocity and stay safe from the sweeper.
	RevealGrace time.Duration
	// Retention is how long dead post rows are kept before hard deletion.
	Retention time.Duration
}

func (o *Options) withDefaults() {
	if o.PostLifetime == 0 {
		o.PostLifetime = 24 * time.Hour
	}
	if o.RevealGrace == 0 {
		o.RevealGrace = time.Hour
	}
	if o.Retention == 0 {
		o.Retention = 72 * time.Hour
	}
}

// Service implements the pulse core: post store, reaction ledger, reveal
// coordinator and feed assembler against a shared gorm store.
type Service struct {
	db       *gorm.DB
	log      *zap.SugaredLogger
	profiles ProfileClient
	notifier Notifier
	locks    *pairLocks
	opts     Options

	// now is swapped in tests to step through expiry windows.
	now func() time.Time
}

func NewService(db *gorm.DB, log *zap.SugaredLogger, profiles ProfileClient, notifier Notifier, opts Options) *Service {
	opts.withDefaults()
	return &Service{
		db:       db,
		log:      log,
		profiles: profiles,
		notifier: notifier,
		locks:    newPairLocks(),
		opts:     opts,
		now:      time.Now,
	}
}
