package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"geez-bingo/internal/engine"
	"geez-bingo/internal/game/bingo"
	"geez-bingo/internal/model"
	"geez-bingo/internal/repository/memory"
)

// fakeContext implements the tele.Context methods the handlers use.
type fakeContext struct {
	tele.Context
	sender  *tele.User
	args    []string
	replies []string
}

func (f *fakeContext) Sender() *tele.User { return f.sender }
func (f *fakeContext) Chat() *tele.Chat   { return &tele.Chat{ID: -1, Type: tele.ChatGroup} }
func (f *fakeContext) Args() []string     { return f.args }
func (f *fakeContext) Text() string       { return "" }

func (f *fakeContext) Reply(what interface{}, _ ...interface{}) error {
	f.replies = append(f.replies, what.(string))
	return nil
}

func (f *fakeContext) last() string {
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(memory.New(), nil, engine.Options{
		EntryFee:       10,
		Pattern:        bingo.PatternFullHouse,
		InitialBalance: 25,
		CallInterval:   time.Hour,
		CardMin:        145,
		CardMax:        544,
		OneCardPerUser: true,
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng
}

func user(id int64, name string) *tele.User {
	return &tele.User{ID: id, Username: name}
}

func TestAccountHandler_StartAndBalance(t *testing.T) {
	eng := newTestEngine(t)
	h := NewAccountHandler(eng)

	c := &fakeContext{sender: user(1, "abebe")}
	require.NoError(t, h.HandleStart(c))
	assert.Contains(t, c.last(), "Welcome abebe")
	assert.Contains(t, c.last(), "25 tokens")

	require.NoError(t, h.HandleStart(c))
	assert.Contains(t, c.last(), "Welcome back")

	require.NoError(t, h.HandleBalance(c))
	assert.Equal(t, "💰 Balance: 25 tokens", c.last())

	require.NoError(t, h.HandleHistory(c))
	assert.Equal(t, "📜 No transactions yet", c.last())

	anon := &fakeContext{}
	require.NoError(t, h.HandleStart(anon))
	assert.Empty(t, anon.replies)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "abebe", displayName(&tele.User{Username: "abebe", FirstName: "A"}))
	assert.Equal(t, "Abebe Kebede", displayName(&tele.User{FirstName: "Abebe", LastName: "Kebede"}))
	assert.Equal(t, "Abebe", displayName(&tele.User{FirstName: "Abebe"}))
}

func TestGameHandler_JoinFlow(t *testing.T) {
	eng := newTestEngine(t)
	h := NewGameHandler(eng)
	ctx := context.Background()

	c := &fakeContext{sender: user(1, "abebe")}

	c.args = nil
	require.NoError(t, h.HandleJoin(c))
	assert.Contains(t, c.last(), "Usage")

	c.args = []string{"abc"}
	require.NoError(t, h.HandleJoin(c))
	assert.Contains(t, c.last(), "must be a number")

	c.args = []string{"150"}
	require.NoError(t, h.HandleJoin(c))
	assert.Contains(t, c.last(), "Joined game #1 with card #150")
	assert.Contains(t, c.last(), "<pre>")

	c.args = []string{"151"}
	require.NoError(t, h.HandleJoin(c))
	assert.Contains(t, c.last(), "already hold a card")

	other := &fakeContext{sender: user(2, "kebede"), args: []string{"150"}}
	require.NoError(t, h.HandleJoin(other))
	assert.Contains(t, other.last(), "already taken")

	other.args = []string{"9"}
	require.NoError(t, h.HandleJoin(other))
	assert.Contains(t, other.last(), "No such card")

	require.NoError(t, h.HandleCards(other))
	assert.Contains(t, other.last(), "399 free cards")
	assert.NotContains(t, other.last(), " 150 ")

	require.NoError(t, h.HandleGame(other))
	assert.Contains(t, other.last(), "Players: 1")
	assert.Contains(t, other.last(), "abebe (card #150)")

	require.NoError(t, h.HandlePlay(other))
	assert.Contains(t, other.last(), "Game #1 is starting")

	sess, err := eng.GetSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, sess.Status)

	require.NoError(t, h.HandlePlay(other))
	assert.Contains(t, other.last(), "No game is waiting")

	acct := NewAccountHandler(eng)
	require.NoError(t, acct.HandleHistory(c))
	assert.Contains(t, c.last(), "stake -10 (game #1)")
	assert.Contains(t, c.last(), "Balance: 15 tokens")
}

func TestGameHandler_PlayWithoutPlayers(t *testing.T) {
	eng := newTestEngine(t)
	h := NewGameHandler(eng)

	_, err := eng.OpenSession(context.Background())
	require.NoError(t, err)

	c := &fakeContext{sender: user(1, "abebe")}
	require.NoError(t, h.HandlePlay(c))
	assert.Contains(t, c.last(), "Nobody has joined")
}

func TestGameHandler_InsufficientFunds(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	u, err := eng.CreateUser(ctx, 1, "abebe")
	require.NoError(t, err)
	sess, err := eng.OpenSession(ctx)
	require.NoError(t, err)
	_, err = eng.Join(ctx, sess.ID, u.ID, 145)
	require.NoError(t, err)
	require.NoError(t, eng.Start(ctx, sess.ID))

	next, err := eng.OpenSession(ctx)
	require.NoError(t, err)
	_, err = eng.Join(ctx, next.ID, u.ID, 145)
	require.NoError(t, err)

	h := NewGameHandler(eng)
	require.NoError(t, eng.Start(ctx, next.ID))

	c := &fakeContext{sender: user(1, "abebe"), args: []string{"146"}}
	require.NoError(t, h.HandleJoin(c))
	assert.Contains(t, c.last(), "Insufficient balance, the entry fee is 10")
}

func TestFormatCards_Truncates(t *testing.T) {
	free := make([]int, 100)
	for i := range free {
		free[i] = 145 + i
	}
	msg := formatCards(3, free)
	assert.Contains(t, msg, "100 free cards")
	assert.Contains(t, msg, "184 …")
	assert.NotContains(t, msg, "185")

	assert.Contains(t, formatCards(3, nil), "every card is taken")
}

func TestRenderCard(t *testing.T) {
	card := bingo.GenerateCard(145)
	out := renderCard(card)
	assert.Contains(t, out, "   B   I   N   G   O")
	assert.Contains(t, out, "★")
	assert.Equal(t, 6, len(splitLines(out)))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := range len(s) {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}

func TestRankingHandler_Top(t *testing.T) {
	eng := newTestEngine(t)
	h := NewRankingHandler(eng)
	ctx := context.Background()

	c := &fakeContext{sender: user(1, "abebe")}
	require.NoError(t, h.HandleTop(c))
	assert.Contains(t, c.last(), "No players yet")

	_, err := eng.CreateUser(ctx, 1, "abebe")
	require.NoError(t, err)
	_, err = eng.CreateUser(ctx, 2, "")
	require.NoError(t, err)

	require.NoError(t, h.HandleTop(c))
	assert.Contains(t, c.last(), "🥇 abebe: 25")
	assert.Contains(t, c.last(), "🥈 User2: 25")
}

func TestAdminHandler_AddAndSub(t *testing.T) {
	eng := newTestEngine(t)
	h := NewAdminHandler(eng)
	ctx := context.Background()

	_, err := eng.CreateUser(ctx, 42, "abebe")
	require.NoError(t, err)

	admin := user(1, "admin")

	c := &fakeContext{sender: admin, args: []string{"42", "100"}}
	require.NoError(t, h.HandleAdminAdd(c))
	assert.Contains(t, c.last(), "Added: 100 tokens")
	assert.Contains(t, c.last(), "Balance: 125 tokens")

	c = &fakeContext{sender: admin, args: []string{"42", "500"}}
	require.NoError(t, h.HandleAdminSub(c))
	assert.Equal(t, "❌ Balance too low for this deduction", c.last())

	c = &fakeContext{sender: admin, args: []string{"42", "25"}}
	require.NoError(t, h.HandleAdminSub(c))
	assert.Contains(t, c.last(), "Balance: 100 tokens")

	c = &fakeContext{sender: admin, args: []string{"7", "10"}}
	require.NoError(t, h.HandleAdminAdd(c))
	assert.Equal(t, "❌ User not found", c.last())

	c = &fakeContext{sender: admin, args: []string{"42"}}
	require.NoError(t, h.HandleAdminAdd(c))
	assert.Contains(t, c.last(), "Usage: /admin_add")

	c = &fakeContext{sender: admin, args: []string{"42", "-5"}}
	require.NoError(t, h.HandleAdminAdd(c))
	assert.Equal(t, "❌ Amount must be greater than 0", c.last())
}
