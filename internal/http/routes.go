package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/pulseapp/pulse-backend/internal/ws"
)

// SetupRoutes wires middleware and the API surface onto the router.
func SetupRoutes(router *gin.Engine, env *Env, sessions SessionResolver, corsOrigin string) {
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	if corsOrigin == "" {
		corsOrigin = "*"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	limiter := NewIPRateLimiter(rate.Limit(createPostRPS), createPostBurst)
	go func() {
		for {
			time.Sleep(10 * time.Minute)
			limiter.Cleanup()
		}
	}()

	api := router.Group("/api", RequireUser(sessions))
	{
		api.GET("/feed", env.ListFeed)
		api.POST("/posts", RateLimitMiddleware(limiter), env.CreatePost)
		api.GET("/posts/:id", env.GetPost)
		api.DELETE("/posts/:id", env.DeletePost)
		api.POST("/posts/:id/react", env.ToggleReaction)
		api.POST("/posts/:id/reveal", env.RequestReveal)
	}

	// Browsers cannot set headers on websocket dials, so the token rides
	// in the query string. Anonymous connections still get broadcasts,
	// just no targeted frames.
	router.GET("/ws", func(c *gin.Context) {
		var userID string
		if token := c.Query("token"); token != "" {
			if id, err := sessions.Resolve(c.Request.Context(), token); err == nil {
				userID = id
			}
		}
		ws.ServeWs(env.Hub, userID, c.Writer, c.Request)
	})
}
