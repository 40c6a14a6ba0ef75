package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/anancus/anancus/activitypub"
	"github.com/anancus/anancus/db"
	"github.com/anancus/anancus/domain"
	"github.com/anancus/anancus/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Server wires the HTTP surface: the ActivityPub server side, the
// authenticated local API and the RSS feeds. All federation semantics
// live in the engine; handlers here translate HTTP to engine calls.
type Server struct {
	engine *activitypub.Engine
	store  *db.DB
	conf   *util.AppConfig
}

func NewServer(engine *activitypub.Engine, store *db.DB, conf *util.AppConfig) *Server {
	return &Server{engine: engine, store: store, conf: conf}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// RSS feeds
	g.GET("/feed", s.handleFeed)
	g.GET("/feed/:username", s.handleUserFeed)

	if s.conf.Conf.WithAp {
		// Stricter rate limit for ActivityPub endpoints: 5 req/sec per IP,
		// and inbound activities are capped at 1MB
		apLimiter := RateLimitMiddleware(NewRateLimiter(rate.Limit(5), 10))
		maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

		g.GET("/.well-known/webfinger", s.handleWebfinger)
		g.GET("/users/:username", s.handleActor)
		g.GET("/users/:username/followers", s.handleFollowers)
		g.GET("/users/:username/following", s.handleFollowing)
		g.GET("/users/:username/outbox", s.handleOutbox)
		g.GET("/posts/:publicId", s.handlePost)

		g.POST("/inbox", apLimiter, maxBodySize, s.handleInbox)
		g.POST("/users/:username/inbox", apLimiter, maxBodySize, s.handleInbox)
	}

	// Registration stays outside the auth group so new instances can
	// bootstrap; Closed gates it inside the handler.
	g.POST("/api/register", s.handleRegister)

	api := g.Group("/api", BasicAuthMiddleware(s.store))
	{
		api.POST("/posts", s.handleCompose)
		api.PUT("/posts/:publicId", s.handleEditPost)
		api.DELETE("/posts/:publicId", s.handleDeletePost)
		api.GET("/posts/:publicId/thread", s.handleThread)
		api.POST("/posts/:publicId/like", s.handleLike)
		api.DELETE("/posts/:publicId/like", s.handleUnlike)
		api.POST("/posts/:publicId/boost", s.handleBoost)
		api.DELETE("/posts/:publicId/boost", s.handleUnboost)
		api.POST("/posts/:publicId/submit", s.handleSubmit)
		api.POST("/follow", s.handleFollow)
		api.POST("/unfollow", s.handleUnfollow)
		api.PUT("/profile", s.handleUpdateProfile)
		api.GET("/timeline/home", s.handleHomeTimeline)
		api.GET("/timeline/local", s.handleLocalTimeline)
		api.GET("/notifications", s.handleNotifications)
	}

	return g
}

// Run serves the router on the configured port, blocking.
func (s *Server) Run() error {
	log.Info().Msgf("Starting HTTP server on %s:%d", s.conf.Conf.Host, s.conf.Conf.HttpPort)
	return s.Router().Run(fmt.Sprintf(":%d", s.conf.Conf.HttpPort))
}

// handleInbox accepts signed activity POSTs on the shared and the
// per-user inbox; both feed the same pipeline, which routes by the
// activity's own addressing. Side-effect failures are absorbed by the
// engine, so anything that parses and verifies is acknowledged.
func (s *Server) handleInbox(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read body"})
		return
	}

	if err := s.engine.ProcessInbound(c.Request, body); err != nil {
		switch {
		case errors.Is(err, activitypub.ErrMalformed):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed activity"})
		case errors.Is(err, activitypub.ErrBadSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature rejected"})
		default:
			log.Error().Err(err).Msg("Inbox: processing failed")
			c.Status(http.StatusInternalServerError)
		}
		return
	}
	c.Status(http.StatusAccepted)
}

// localActor resolves a username to its account and actor rows, for the
// document handlers. Only local users resolve.
func (s *Server) localActor(username string) (*domain.Account, *domain.Actor, error) {
	err, acc := s.store.ReadAccByUsername(username)
	if err != nil {
		return nil, nil, err
	}
	err, actor := s.store.ReadActorByAccountId(acc.Id)
	if err != nil {
		return nil, nil, err
	}
	return acc, actor, nil
}

func (s *Server) baseURL() string {
	return "https://" + s.conf.Conf.SslDomain
}
