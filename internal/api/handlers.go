package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	TelegramID int64  `json:"telegram_id" binding:"required"`
	Username   string `json:"username" binding:"required"`
}

// JoinRequest is the body of POST /api/games/:id/join.
type JoinRequest struct {
	UserID     int64 `json:"user_id" binding:"required"`
	CardNumber int   `json:"card_number" binding:"required"`
}

const defaultHistoryLimit = 50

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Geez Bingo API", "status": "running"})
}

func (s *Server) health(c *gin.Context) {
	failed := gin.H{}
	for name, check := range s.checks {
		if err := check(c.Request.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failed": failed})
		return
	}
	resp := gin.H{"status": "ok", "live_sessions": s.engine.LiveSessions()}
	if s.dropped != nil {
		resp["dropped_events"] = s.dropped.Dropped()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) createUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := s.engine.CreateUser(c.Request.Context(), req.TelegramID, req.Username)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) getUser(c *gin.Context) {
	externalID, ok := int64Param(c, "external_id")
	if !ok {
		return
	}

	user, err := s.engine.GetUser(c.Request.Context(), externalID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) userTransactions(c *gin.Context) {
	externalID, ok := int64Param(c, "external_id")
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	user, err := s.engine.GetUser(ctx, externalID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	txs, err := s.engine.Transactions(ctx, user.ID, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": user.Balance, "transactions": txs})
}

func (s *Server) leaderboard(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	users, err := s.engine.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) currentGame(c *gin.Context) {
	sess, err := s.engine.OpenSession(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) getGame(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}

	sess, err := s.engine.GetSession(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) joinGame(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := s.engine.Join(c.Request.Context(), id, req.UserID, req.CardNumber)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game":    res.Session,
		"player":  res.Player,
		"card":    res.Card,
	})
}

func (s *Server) startGame(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}

	if err := s.engine.Start(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Game started"})
}

func (s *Server) gamePlayers(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}

	players, err := s.engine.ListPlayers(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, players)
}

func (s *Server) gameCard(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("card"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid card number"})
		return
	}

	card, err := s.engine.Card(n)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"card_number": n, "card": card})
}

func (s *Server) availableCards(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}

	free, err := s.engine.AvailableCards(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available_cards": free, "total_cards": len(free)})
}

func (s *Server) lastEvent(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := s.engine.GetSession(ctx, id); err != nil {
		abortWithError(c, err)
		return
	}

	ev, found, err := s.last.Last(ctx, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no events yet"})
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (s *Server) stream(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}

	if _, err := s.engine.GetSession(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}

	if err := s.hub.Serve(c.Writer, c.Request, id); err != nil {
		log.Debug().Err(err).Int64("session_id", id).Msg("Websocket upgrade failed")
	}
}

// int64Param parses a path parameter, writing a 400 response on failure.
func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}
