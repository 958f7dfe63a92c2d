package models

import (
	"time"
)

// Category is the closed set of feed categories a post can belong to.
type Category string

const (
	CategoryConfession Category = "confession"
	CategoryCrush      Category = "crush"
	CategoryRant       Category = "rant"
	CategoryQuestion   Category = "question"
	CategoryCampus     Category = "campus"
)

var categories = map[Category]struct{}{
	CategoryConfession: {},
	CategoryCrush:      {},
	CategoryRant:       {},
	CategoryQuestion:   {},
	CategoryCampus:     {},
}

func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

// ReactionType is the closed set of reactions a viewer can hold on a post.
type ReactionType string

const (
	ReactionFire  ReactionType = "fire"
	ReactionHeart ReactionType = "heart"
	ReactionLaugh ReactionType = "laugh"
	ReactionSkull ReactionType = "skull"
	ReactionEyes  ReactionType = "eyes"
)

var reactionTypes = map[ReactionType]struct{}{
	ReactionFire:  {},
	ReactionHeart: {},
	ReactionLaugh: {},
	ReactionSkull: {},
	ReactionEyes:  {},
}

func (r ReactionType) Valid() bool {
	_, ok := reactionTypes[r]
	return ok
}

// Post represents a single ephemeral pulse post.
// Content and IsAnonymous are immutable after creation; the only
// post-level mutation is the owner's soft delete.
type Post struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	AuthorID    string     `gorm:"not null;index;size:36" json:"-"`
	Content     string     `gorm:"not null" json:"content"`
	Category    Category   `gorm:"not null;index;size:32" json:"category"`
	IsAnonymous bool       `gorm:"not null" json:"isAnonymous"`
	CreatedAt   time.Time  `gorm:"index" json:"createdAt"`
	ExpiresAt   time.Time  `gorm:"not null;index" json:"expiresAt"`
	DeletedAt   *time.Time `gorm:"index" json:"-"`
}

// Live reports whether the post is visible and operable: not soft-deleted
// and not past its expiry.
func (p *Post) Live(now time.Time) bool {
	return p.DeletedAt == nil && now.Before(p.ExpiresAt)
}

// Reaction is the single slot a viewer holds on a post. The combination
// of PostID and ViewerID must be unique; re-voting replaces Type in place.
type Reaction struct {
	ID        uint         `gorm:"primarykey" json:"-"`
	PostID    string       `gorm:"not null;uniqueIndex:idx_post_viewer;size:36" json:"postId"`
	ViewerID  string       `gorm:"not null;uniqueIndex:idx_post_viewer;size:36" json:"-"`
	Type      ReactionType `gorm:"not null;size:16" json:"type"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"-"`
}

// RevealRequest records that a requester wants to learn the identity
// behind an anonymous post. AuthorID denormalizes the post's author so
// reciprocity can be resolved pairwise without joining posts twice.
// Rows are never mutated after creation.
type RevealRequest struct {
	ID          uint   `gorm:"primarykey"`
	PostID      string `gorm:"not null;uniqueIndex:idx_post_requester;size:36"`
	RequesterID string `gorm:"not null;uniqueIndex:idx_post_requester;index;size:36"`
	AuthorID    string `gorm:"not null;index;size:36"`
	CreatedAt   time.Time
}

// RevealMatch records that a pair of users became mutual and both were
// notified. The unordered-pair unique index makes the notification
// exactly-once: whichever transaction inserts the row first dispatches.
type RevealMatch struct {
	ID         uint      `gorm:"primarykey"`
	UserLo     string    `gorm:"not null;uniqueIndex:idx_reveal_pair;size:36"`
	UserHi     string    `gorm:"not null;uniqueIndex:idx_reveal_pair;size:36"`
	NotifiedAt time.Time `gorm:"not null"`
	CreatedAt  time.Time
}

// PairKey orders two user ids into the canonical (lo, hi) form used by
// RevealMatch rows and the pair-scoped locks.
func PairKey(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// All returns every model registered for migration.
func All() []any {
	return []any{&Post{}, &Reaction{}, &RevealRequest{}, &RevealMatch{}}
}
