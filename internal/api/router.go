// Package api exposes the game engine over HTTP and streams session events
// over websockets.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"geez-bingo/internal/engine"
	"geez-bingo/internal/notify"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// LastEvents returns the most recent event published for a session.
type LastEvents interface {
	Last(ctx context.Context, topic int64) (*engine.Event, bool, error)
}

// DropCounter reports how many events were discarded before delivery.
type DropCounter interface {
	Dropped() int64
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	engine  *engine.Engine
	hub     *notify.Hub
	checks  map[string]HealthCheck
	last    LastEvents
	dropped DropCounter
}

// Option configures optional routes and health details.
type Option func(*Server)

// WithLastEvents serves GET /api/games/:id/last from src.
func WithLastEvents(src LastEvents) Option {
	return func(s *Server) { s.last = src }
}

// WithDropCounter reports dropped events in GET /health.
func WithDropCounter(d DropCounter) Option {
	return func(s *Server) { s.dropped = d }
}

// NewRouter builds the gin engine with every route registered.
// hub may be nil, in which case the websocket route is not served.
// checks are run by GET /health.
func NewRouter(eng *engine.Engine, hub *notify.Hub, checks map[string]HealthCheck, opts ...Option) *gin.Engine {
	s := &Server{engine: eng, hub: hub, checks: checks}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(RequestLogger(), gin.Recovery())

	r.GET("/", s.root)
	r.GET("/health", s.health)

	api := r.Group("/api")
	api.POST("/users", s.createUser)
	api.GET("/users/:external_id", s.getUser)
	api.GET("/users/:external_id/transactions", s.userTransactions)
	api.GET("/leaderboard", s.leaderboard)

	api.GET("/games/current", s.currentGame)
	api.GET("/games/:id", s.getGame)
	api.POST("/games/:id/join", s.joinGame)
	api.POST("/games/:id/start", s.startGame)
	api.GET("/games/:id/players", s.gamePlayers)
	api.GET("/games/:id/cards/:card", s.gameCard)
	api.GET("/available-cards/:id", s.availableCards)
	if s.last != nil {
		api.GET("/games/:id/last", s.lastEvent)
	}

	if hub != nil {
		r.GET("/ws/:id", s.stream)
	}

	return r
}

// RequestLogger logs each request with zerolog.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUserNotFound),
		errors.Is(err, engine.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUserExists),
		errors.Is(err, engine.ErrCardTaken),
		errors.Is(err, engine.ErrAlreadyJoined),
		errors.Is(err, engine.ErrAlreadyStarted),
		errors.Is(err, engine.ErrNotJoinable):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, engine.ErrInvalidCard),
		errors.Is(err, engine.ErrNoPlayers):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
