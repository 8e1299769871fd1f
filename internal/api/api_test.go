package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geez-bingo/internal/engine"
	"geez-bingo/internal/game/bingo"
	"geez-bingo/internal/model"
	"geez-bingo/internal/notify"
	"geez-bingo/internal/repository/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	eng    *engine.Engine
	hub    *notify.Hub
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	hub := notify.NewHub()
	disp := notify.NewDispatcher(64, hub)

	eng, err := engine.New(store, nil, engine.Options{
		EntryFee:       10,
		Pattern:        bingo.PatternLine,
		InitialBalance: 200,
		CallInterval:   time.Hour,
		CardMin:        145,
		CardMax:        544,
		Notifier:       disp,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		eng.Close()
		disp.Close()
		hub.Close()
	})

	return &testServer{eng: eng, hub: hub, router: NewRouter(eng, hub, nil)}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{engine.ErrUserNotFound, http.StatusNotFound},
		{engine.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", engine.ErrSessionNotFound), http.StatusNotFound},
		{engine.ErrUserExists, http.StatusConflict},
		{engine.ErrCardTaken, http.StatusConflict},
		{engine.ErrNotJoinable, http.StatusConflict},
		{engine.ErrAlreadyJoined, http.StatusConflict},
		{engine.ErrAlreadyStarted, http.StatusConflict},
		{engine.ErrInsufficientFunds, http.StatusPaymentRequired},
		{engine.ErrInvalidCard, http.StatusBadRequest},
		{engine.ErrNoPlayers, http.StatusBadRequest},
		{engine.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestAPI_UserLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/users", CreateUserRequest{TelegramID: 555, Username: "abebe"})
	require.Equal(t, http.StatusCreated, w.Code)
	user := decode[model.User](t, w)
	assert.Equal(t, int64(555), user.ExternalID)
	assert.Equal(t, int64(200), user.Balance)

	w = s.do(t, http.MethodPost, "/api/users", CreateUserRequest{TelegramID: 555, Username: "abebe"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/users", map[string]any{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/users/555", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.ID, decode[model.User](t, w).ID)

	w = s.do(t, http.MethodGet, "/api/users/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/users/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_Leaderboard(t *testing.T) {
	s := newTestServer(t)

	for i := range 3 {
		w := s.do(t, http.MethodPost, "/api/users", CreateUserRequest{TelegramID: int64(i + 1), Username: fmt.Sprintf("u%d", i)})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(t, http.MethodGet, "/api/leaderboard?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.User](t, w), 2)

	w = s.do(t, http.MethodGet, "/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.User](t, w), 3)

	w = s.do(t, http.MethodGet, "/api/leaderboard?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_JoinAndStart(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/users", CreateUserRequest{TelegramID: 1, Username: "abebe"})
	require.Equal(t, http.StatusCreated, w.Code)
	user := decode[model.User](t, w)

	w = s.do(t, http.MethodGet, "/api/games/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	game := decode[model.Session](t, w)
	assert.Equal(t, model.StatusWaiting, game.Status)
	assert.Equal(t, int64(10), game.EntryFee)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/games/%d/start", game.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/games/%d/join", game.ID), JoinRequest{UserID: user.ID, CardNumber: 150})
	require.Equal(t, http.StatusOK, w.Code)
	joined := decode[struct {
		Success bool             `json:"success"`
		Game    model.Session    `json:"game"`
		Player  model.Player     `json:"player"`
		Card    map[string][]any `json:"card"`
	}](t, w)
	assert.True(t, joined.Success)
	assert.Equal(t, int64(10), joined.Game.Pot)
	assert.Equal(t, 150, joined.Player.CardNumber)
	assert.Len(t, joined.Card, 5)
	assert.Equal(t, "FREE", joined.Card["N"][2])

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/games/%d/join", game.ID), JoinRequest{UserID: user.ID, CardNumber: 150})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/games/%d/join", game.ID), JoinRequest{UserID: user.ID, CardNumber: 9000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/games/999/join", JoinRequest{UserID: user.ID, CardNumber: 151})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/available-cards/%d", game.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	avail := decode[struct {
		AvailableCards []int `json:"available_cards"`
		TotalCards     int   `json:"total_cards"`
	}](t, w)
	assert.Equal(t, 399, avail.TotalCards)
	assert.NotContains(t, avail.AvailableCards, 150)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/games/%d/players", game.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	players := decode[[]model.Player](t, w)
	require.Len(t, players, 1)
	assert.Equal(t, "abebe", players[0].UserName)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/games/%d/start", game.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/games/%d/start", game.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/games/%d", game.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusActive, decode[model.Session](t, w).Status)

	w = s.do(t, http.MethodGet, "/api/users/1/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[struct {
		Balance      int64               `json:"balance"`
		Transactions []model.Transaction `json:"transactions"`
	}](t, w)
	assert.Equal(t, int64(190), history.Balance)
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, int64(-10), history.Transactions[0].Amount)
}

func TestAPI_InsufficientFunds(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	user, err := s.eng.CreateUser(ctx, 1, "u")
	require.NoError(t, err)
	game, err := s.eng.OpenSession(ctx)
	require.NoError(t, err)

	for i := range 20 {
		_, err := s.eng.Join(ctx, game.ID, user.ID, 145+i)
		require.NoError(t, err)
	}

	w := s.do(t, http.MethodPost, fmt.Sprintf("/api/games/%d/join", game.ID), JoinRequest{UserID: user.ID, CardNumber: 200})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestAPI_Card(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/games/1/cards/145", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"card_number":145`)

	w = s.do(t, http.MethodGet, "/api/games/1/cards/1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_Health(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = s.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Geez Bingo API")

	failing := NewRouter(s.eng, nil, map[string]HealthCheck{
		"database": func(context.Context) error { return errors.New("connection refused") },
	})
	w = httptest.NewRecorder()
	failing.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

// recordingEvents keeps the last event per session in memory.
type recordingEvents struct {
	events map[int64]*engine.Event
	err    error
}

func (r *recordingEvents) Last(_ context.Context, topic int64) (*engine.Event, bool, error) {
	if r.err != nil {
		return nil, false, r.err
	}
	ev, ok := r.events[topic]
	return ev, ok, nil
}

type fixedDrops int64

func (f fixedDrops) Dropped() int64 { return int64(f) }

func TestAPI_LastEvent(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	game, err := s.eng.OpenSession(ctx)
	require.NoError(t, err)

	// Without a source the route is not registered.
	w := s.do(t, http.MethodGet, fmt.Sprintf("/api/games/%d/last", game.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	src := &recordingEvents{events: map[int64]*engine.Event{}}
	router := NewRouter(s.eng, nil, nil, WithLastEvents(src))
	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w = get(fmt.Sprintf("/api/games/%d/last", game.ID))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no events yet")

	src.events[game.ID] = &engine.Event{ID: "ev-1", Type: engine.EventPlayerJoined, SessionID: game.ID}
	w = get(fmt.Sprintf("/api/games/%d/last", game.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"player_joined"`)
	assert.Contains(t, w.Body.String(), `"id":"ev-1"`)

	w = get("/api/games/999/last")
	assert.Equal(t, http.StatusNotFound, w.Code)

	src.err = errors.New("redis down")
	w = get(fmt.Sprintf("/api/games/%d/last", game.ID))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAPI_HealthReportsDroppedEvents(t *testing.T) {
	s := newTestServer(t)

	router := NewRouter(s.eng, nil, nil, WithDropCounter(fixedDrops(3)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"dropped_events":3`)

	w = s.do(t, http.MethodGet, "/health", nil)
	assert.NotContains(t, w.Body.String(), "dropped_events")
}

func TestAPI_WebsocketReceivesJoinEvents(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	game, err := s.eng.OpenSession(ctx)
	require.NoError(t, err)
	user, err := s.eng.CreateUser(ctx, 1, "abebe")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/ws/%d", game.ID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.Subscribers(game.ID) == 1 }, time.Second, 5*time.Millisecond)

	_, err = s.eng.Join(ctx, game.ID, user.ID, 145)
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"type":"player_joined"`)
	assert.Contains(t, string(msg), `"name":"abebe"`)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/999", nil)
	assert.Error(t, err)
}
