package http

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pulseapp/pulse-backend/internal/models"
	"github.com/pulseapp/pulse-backend/internal/pulse"
	"github.com/pulseapp/pulse-backend/internal/ws"
)

const (
	// One post per 30 seconds per IP, with a small burst.
	createPostRPS   = 1.0 / 30.0
	createPostBurst = 2
)

// API error codes mirrored in client code.
const (
	codeInvalidData   = "INVALID_DATA"
	codeForbidden     = "FORBIDDEN"
	codeNotFound      = "NOT_FOUND"
	codeInvalidReveal = "INVALID_REVEAL"
	codeTryAgain      = "TRY_AGAIN"
	codeInternal      = "INTERNAL_ERROR"
)

type CreatePostInput struct {
	Content     string `json:"content" binding:"required"`
	Category    string `json:"category" binding:"required"`
	IsAnonymous bool   `json:"isAnonymous"`
}

type ReactInput struct {
	Type string `json:"type" binding:"required"`
}

// Env carries the handlers' dependencies.
type Env struct {
	Svc *pulse.Service
	Hub *ws.Hub
	Log *zap.SugaredLogger
}

func writeError(c *gin.Context, log *zap.SugaredLogger, err error) {
	switch {
	case errors.Is(err, pulse.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeInvalidData})
	case errors.Is(err, pulse.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": codeForbidden})
	case errors.Is(err, pulse.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": codeNotFound})
	case errors.Is(err, pulse.ErrInvalidReveal):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeInvalidReveal})
	case errors.Is(err, pulse.ErrTransient):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary failure, try again", "code": codeTryAgain})
	default:
		log.Errorw("unhandled error", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": codeInternal})
	}
}

func (e *Env) CreatePost(c *gin.Context) {
	var input CreatePostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error(), "code": codeInvalidData})
		return
	}

	post, err := e.Svc.CreatePost(c.Request.Context(), CurrentUserID(c), input.Content, models.Category(input.Category), input.IsAnonymous)
	if err != nil {
		writeError(c, e.Log, err)
		return
	}

	e.Hub.BroadcastEvent("new_post", gin.H{
		"id":        post.ID,
		"category":  post.Category,
		"createdAt": post.CreatedAt,
	})
	c.JSON(http.StatusCreated, post)
}

func (e *Env) DeletePost(c *gin.Context) {
	postID := c.Param("id")
	if err := e.Svc.DeletePost(c.Request.Context(), postID, CurrentUserID(c)); err != nil {
		writeError(c, e.Log, err)
		return
	}

	e.Hub.BroadcastEvent("post_deleted", gin.H{"id": postID})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (e *Env) GetPost(c *gin.Context) {
	post, err := e.Svc.GetPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, e.Log, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (e *Env) ToggleReaction(c *gin.Context) {
	var input ReactInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error(), "code": codeInvalidData})
		return
	}

	res, err := e.Svc.ToggleReaction(c.Request.Context(), c.Param("id"), CurrentUserID(c), models.ReactionType(input.Type))
	if err != nil {
		writeError(c, e.Log, err)
		return
	}

	e.Hub.BroadcastEvent("reaction", res)
	c.JSON(http.StatusOK, res)
}

func (e *Env) RequestReveal(c *gin.Context) {
	res, err := e.Svc.RequestReveal(c.Request.Context(), c.Param("id"), CurrentUserID(c))
	if err != nil {
		writeError(c, e.Log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (e *Env) ListFeed(c *gin.Context) {
	var query struct {
		Category string `form:"category"`
		Cursor   string `form:"cursor"`
		Limit    int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error(), "code": codeInvalidData})
		return
	}

	var category *models.Category
	if query.Category != "" {
		cat := models.Category(query.Category)
		category = &cat
	}

	page, err := e.Svc.ListFeed(c.Request.Context(), CurrentUserID(c), category, query.Cursor, query.Limit)
	if err != nil {
		writeError(c, e.Log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// --- Rate limiter ---

type IPRateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*rate.Limiter),
		rps:      r,
		burst:    b,
	}
}

func (rl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, exists := rl.visitors[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.visitors[ip] = limiter
	}
	return limiter
}

// Cleanup drops limiters that have refilled, i.e. idle visitors.
func (rl *IPRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if v.Tokens() >= float64(rl.burst) {
			delete(rl.visitors, ip)
		}
	}
}

func RateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, slow down"})
			return
		}
		c.Next()
	}
}
