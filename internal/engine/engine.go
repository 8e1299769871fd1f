// Package engine runs bingo rounds: it owns the session state machines, the
// session directory and the calling loops, and settles wins through the ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"geez-bingo/internal/config"
	"geez-bingo/internal/game/bingo"
	"geez-bingo/internal/ledger"
	"geez-bingo/internal/model"
	"geez-bingo/internal/repository"
)

const defaultLeaderboardSize = 10

// Options configures new sessions and the calling loop.
type Options struct {
	EntryFee       int64
	Pattern        bingo.Pattern
	InitialBalance int64
	CallInterval   time.Duration
	CardMin        int
	CardMax        int
	OneCardPerUser bool

	// Drawer picks called numbers; nil means uniform random.
	Drawer Drawer
	// Notifier receives session events; nil discards them.
	Notifier Notifier
}

// OptionsFromConfig maps game configuration onto engine options.
func OptionsFromConfig(cfg config.GameConfig) Options {
	return Options{
		EntryFee:       cfg.EntryFee,
		Pattern:        bingo.Pattern(cfg.Pattern),
		InitialBalance: cfg.InitialBalance,
		CallInterval:   cfg.CallInterval,
		CardMin:        cfg.CardMin,
		CardMax:        cfg.CardMax,
		OneCardPerUser: cfg.OneCardPerUser,
	}
}

// Engine is the entry point for every game operation.
type Engine struct {
	store  repository.Store
	ledger *ledger.Ledger
	opts   Options
	dir    *directory

	ctx    context.Context
	cancel context.CancelFunc
	quit   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates an Engine. Call Recover before serving traffic to resume
// sessions left over from a previous run.
func New(store repository.Store, l *ledger.Ledger, opts Options) (*Engine, error) {
	if _, ok := bingo.ParsePattern(string(opts.Pattern)); !ok {
		return nil, fmt.Errorf("unknown win pattern %q", opts.Pattern)
	}
	if opts.EntryFee <= 0 {
		return nil, fmt.Errorf("entry fee must be positive, got %d", opts.EntryFee)
	}
	if opts.CardMin > opts.CardMax {
		return nil, fmt.Errorf("invalid card range %d-%d", opts.CardMin, opts.CardMax)
	}
	if opts.CallInterval <= 0 {
		opts.CallInterval = 10 * time.Second
	}
	if opts.Drawer == nil {
		opts.Drawer = randomDrawer{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if l == nil {
		l = ledger.New(store, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:  store,
		ledger: l,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		quit:   make(chan struct{}),
	}
	e.dir = newDirectory(e)
	return e, nil
}

// Recover restarts goroutines for waiting and active sessions found in the store.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	return e.dir.reload(ctx)
}

// Close stops every session goroutine between steps and waits for them.
// Stored state is left as is, so a later Recover picks the sessions up again.
func (e *Engine) Close() {
	e.once.Do(func() {
		e.dir.shutdown()
		close(e.quit)
		e.wg.Wait()
		e.cancel()
		log.Info().Msg("Game engine stopped")
	})
}

func (e *Engine) publish(t EventType, sessionID int64, data any) {
	e.opts.Notifier.Publish(e.ctx, sessionID, newEvent(t, sessionID, data))
}

// CreateUser registers a user with the configured opening balance.
// Returns ErrUserExists if the external id is already registered.
func (e *Engine) CreateUser(ctx context.Context, externalID int64, name string) (*model.User, error) {
	user, err := e.store.CreateUser(ctx, externalID, name, e.opts.InitialBalance)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", user.ID).
		Int64("external_id", externalID).
		Msg("User created")

	return user, nil
}

// GetUser returns the user registered under an external id.
func (e *Engine) GetUser(ctx context.Context, externalID int64) (*model.User, error) {
	return e.store.GetUserByExternalID(ctx, externalID)
}

// EnsureUser returns the user for externalID, creating it if necessary.
// The boolean reports whether the user was created by this call.
func (e *Engine) EnsureUser(ctx context.Context, externalID int64, name string) (*model.User, bool, error) {
	user, err := e.GetUser(ctx, externalID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = e.CreateUser(ctx, externalID, name)
	if err != nil {
		// Another request may have created the user first.
		if errors.Is(err, ErrUserExists) {
			user, err = e.GetUser(ctx, externalID)
			if err != nil {
				return nil, false, err
			}
			return user, false, nil
		}
		return nil, false, err
	}
	return user, true, nil
}

// OpenSession returns the session currently accepting players, creating one
// with the default fee and pattern if there is none.
func (e *Engine) OpenSession(ctx context.Context) (*model.Session, error) {
	return e.dir.open(ctx)
}

// PeekOpenSession returns the open session if one exists, without creating one.
func (e *Engine) PeekOpenSession(ctx context.Context) (*model.Session, bool, error) {
	id, ok := e.dir.peekOpen()
	if !ok {
		return nil, false, nil
	}
	s, err := e.store.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// GetSession returns the committed state of a session.
func (e *Engine) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	return e.store.GetSession(ctx, id)
}

// Join stakes the entry fee for userID and assigns cardNumber in the session.
// Rejections leave balances, pot, players and transactions untouched.
func (e *Engine) Join(ctx context.Context, sessionID, userID int64, cardNumber int) (*JoinResult, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	s, err := e.dir.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var res *JoinResult
	var joinErr error
	if err := s.do(ctx, func() { res, joinErr = s.join(ctx, user, cardNumber) }); err != nil {
		if errors.Is(err, errSessionGone) {
			return nil, ErrNotJoinable
		}
		return nil, err
	}
	if joinErr != nil {
		log.Debug().Err(joinErr).
			Int64("session_id", sessionID).
			Int64("user_id", userID).
			Int("card_number", cardNumber).
			Msg("Join rejected")
		return nil, joinErr
	}
	return res, nil
}

// Start moves a waiting session with at least one player into play.
func (e *Engine) Start(ctx context.Context, sessionID int64) error {
	return e.dir.start(ctx, sessionID)
}

// ListPlayers returns the session's players in join order.
func (e *Engine) ListPlayers(ctx context.Context, sessionID int64) ([]*model.Player, error) {
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return e.store.ListPlayers(ctx, sessionID)
}

// AvailableCards returns the card numbers in the configured range that are
// still free in the session, ascending.
func (e *Engine) AvailableCards(ctx context.Context, sessionID int64) ([]int, error) {
	players, err := e.ListPlayers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	taken := make(map[int]struct{}, len(players))
	for _, p := range players {
		taken[p.CardNumber] = struct{}{}
	}

	free := make([]int, 0, e.opts.CardMax-e.opts.CardMin+1-len(taken))
	for n := e.opts.CardMin; n <= e.opts.CardMax; n++ {
		if _, ok := taken[n]; !ok {
			free = append(free, n)
		}
	}
	return free, nil
}

// Card returns the card for a card number.
func (e *Engine) Card(cardNumber int) (bingo.Card, error) {
	if cardNumber < e.opts.CardMin || cardNumber > e.opts.CardMax {
		return bingo.Card{}, ErrInvalidCard
	}
	return bingo.GenerateCard(cardNumber), nil
}

// Balance returns a user's committed wallet balance.
func (e *Engine) Balance(ctx context.Context, userID int64) (int64, error) {
	return e.ledger.Balance(ctx, userID)
}

// Transactions returns a user's ledger entries, newest first.
func (e *Engine) Transactions(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	return e.ledger.History(ctx, userID, limit)
}

// Adjust credits (delta > 0) or debits (delta < 0) the wallet of the user
// registered under externalID, recording an adjust transaction.
func (e *Engine) Adjust(ctx context.Context, externalID, delta int64) (*model.User, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}
	user, err := e.GetUser(ctx, externalID)
	if err != nil {
		return nil, err
	}

	entry := ledger.Entry{UserID: user.ID, Kind: model.TxKindAdjust, Amount: delta}
	if delta > 0 {
		user, err = e.ledger.Credit(ctx, entry, nil)
	} else {
		entry.Amount = -delta
		user, err = e.ledger.Debit(ctx, entry, nil)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", user.ID).
		Int64("delta", delta).
		Int64("balance", user.Balance).
		Msg("Balance adjusted")

	return user, nil
}

// Leaderboard returns the richest users, at most limit of them.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]*model.User, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	users, err := e.store.ListTopUsers(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	return users, nil
}

// LiveSessions returns how many session goroutines are running.
func (e *Engine) LiveSessions() int {
	return e.dir.count()
}
