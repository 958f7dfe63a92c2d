package pulse

import (
	"context"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/pulseapp/pulse-backend/internal/models"
)

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 50
)

// PostView is a feed entry annotated for one viewer. The real author id
// is present only for non-anonymous posts and mutual pairs; everything
// else carries just a presentation pseudonym.
type PostView struct {
	ID          string          `json:"id"`
	Content     string          `json:"content"`
	Category    models.Category `json:"category"`
	IsAnonymous bool            `json:"isAnonymous"`
	CreatedAt   time.Time       `json:"createdAt"`
	ExpiresAt   time.Time       `json:"expiresAt"`

	AuthorID  string `json:"authorId,omitempty"`
	Pseudonym string `json:"pseudonym,omitempty"`
	Mine      bool   `json:"mine"`

	MyReaction      *models.ReactionType          `json:"myReaction"`
	ReactionCounts  map[models.ReactionType]int64 `json:"reactionCounts"`
	RevealRequested bool                          `json:"revealRequested"`
	RevealMutual    bool                          `json:"revealMutual"`
}

// FeedPage is one page of the feed plus the cursor for the next one.
type FeedPage struct {
	Posts      []*PostView `json:"posts"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

// ListFeed returns live posts in reverse-chronological order, optionally
// filtered by category, keyset-paginated so the page stays stable while
// posts expire mid-scroll.
func (s *Service) ListFeed(ctx context.Context, viewerID string, category *models.Category, cursor string, limit int) (*FeedPage, error) {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	if category != nil && !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, *category)
	}

	now := s.now()
	q := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("deleted_at IS NULL AND expires_at > ?", now)
	if category != nil {
		q = q.Where("category = ?", *category)
	}
	if cursor != "" {
		at, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", at, at, id)
	}

	var posts []*models.Post
	if err := q.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&posts).Error; err != nil {
		return nil, classifyStorageErr(err)
	}

	page := &FeedPage{}
	if len(posts) > limit {
		posts = posts[:limit]
		last := posts[len(posts)-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	if len(posts) == 0 {
		page.Posts = []*PostView{}
		return page, nil
	}

	ann, err := s.feedAnnotations(ctx, viewerID, posts)
	if err != nil {
		return nil, err
	}

	page.Posts = lo.Map(posts, func(p *models.Post, _ int) *PostView {
		return ann.view(viewerID, p)
	})
	return page, nil
}

// feedAnnotations batches the per-viewer lookups for one page: reaction
// counts, the viewer's own slots, outstanding reveal requests, and the
// viewer's mutual pairs.
type feedAnnotations struct {
	counts      map[string]map[models.ReactionType]int64
	myReactions map[string]models.ReactionType
	requested   map[string]bool
	mutualWith  map[string]bool
}

func (s *Service) feedAnnotations(ctx context.Context, viewerID string, posts []*models.Post) (*feedAnnotations, error) {
	postIDs := lo.Map(posts, func(p *models.Post, _ int) string { return p.ID })

	var countRows []struct {
		PostID string
		Type   models.ReactionType
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.Reaction{}).
		Select("post_id, type, count(*) as count").
		Where("post_id IN ?", postIDs).
		Group("post_id, type").
		Find(&countRows).Error
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	counts := make(map[string]map[models.ReactionType]int64, len(posts))
	for _, row := range countRows {
		if counts[row.PostID] == nil {
			counts[row.PostID] = make(map[models.ReactionType]int64)
		}
		counts[row.PostID][row.Type] = row.Count
	}

	var mine []models.Reaction
	err = s.db.WithContext(ctx).
		Where("viewer_id = ? AND post_id IN ?", viewerID, postIDs).
		Find(&mine).Error
	if err != nil {
		return nil, classifyStorageErr(err)
	}

	var requests []models.RevealRequest
	err = s.db.WithContext(ctx).
		Where("requester_id = ? AND post_id IN ?", viewerID, postIDs).
		Find(&requests).Error
	if err != nil {
		return nil, classifyStorageErr(err)
	}

	var matches []models.RevealMatch
	err = s.db.WithContext(ctx).
		Where("user_lo = ? OR user_hi = ?", viewerID, viewerID).
		Find(&matches).Error
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	mutualWith := lo.Associate(matches, func(m models.RevealMatch) (string, bool) {
		if m.UserLo == viewerID {
			return m.UserHi, true
		}
		return m.UserLo, true
	})

	return &feedAnnotations{
		counts: counts,
		myReactions: lo.Associate(mine, func(r models.Reaction) (string, models.ReactionType) {
			return r.PostID, r.Type
		}),
		requested: lo.Associate(requests, func(r models.RevealRequest) (string, bool) {
			return r.PostID, true
		}),
		mutualWith: mutualWith,
	}, nil
}

func (a *feedAnnotations) view(viewerID string, p *models.Post) *PostView {
	v := &PostView{
		ID:              p.ID,
		Content:         p.Content,
		Category:        p.Category,
		IsAnonymous:     p.IsAnonymous,
		CreatedAt:       p.CreatedAt,
		ExpiresAt:       p.ExpiresAt,
		Mine:            p.AuthorID == viewerID,
		ReactionCounts:  a.counts[p.ID],
		RevealRequested: a.requested[p.ID],
		RevealMutual:    a.mutualWith[p.AuthorID],
	}
	if v.ReactionCounts == nil {
		v.ReactionCounts = map[models.ReactionType]int64{}
	}
	if typ, ok := a.myReactions[p.ID]; ok {
		t := typ
		v.MyReaction = &t
	}
	if !p.IsAnonymous || v.Mine || v.RevealMutual {
		v.AuthorID = p.AuthorID
	} else {
		v.Pseudonym = Pseudonym(p.ID)
	}
	return v
}

// Cursor format: base64url("unixNano|postID"). Opaque to clients.
func encodeCursor(at time.Time, id string) string {
	raw := strconv.FormatInt(at.UnixNano(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	nanos, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	return time.Unix(0, nanos), id, nil
}

var pseudonymAdjectives = []string{
	"Sleepy", "Caffeinated", "Mysterious", "Brave", "Sly",
	"Quiet", "Restless", "Lucky", "Midnight", "Wandering",
}

var pseudonymAnimals = []string{
	"Owl", "Fox", "Wildcat", "Raven", "Otter",
	"Moose", "Hawk", "Badger", "Heron", "Lynx",
}

// Pseudonym derives a stable presentation name from the post id, so the
// same anonymous post shows the same name to everyone without ever
// exposing the author.
func Pseudonym(postID string) string {
	h := fnv.New32a()
	h.Write([]byte(postID))
	sum := h.Sum32()
	adj := pseudonymAdjectives[sum%uint32(len(pseudonymAdjectives))]
	animal := pseudonymAnimals[(sum/7)%uint32(len(pseudonymAnimals))]
	return fmt.Sprintf("%s %s #%d", adj, animal, sum%1000)
}
