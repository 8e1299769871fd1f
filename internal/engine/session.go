package engine

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"geez-bingo/internal/game/bingo"
	"geez-bingo/internal/ledger"
	"geez-bingo/internal/model"
	"geez-bingo/internal/repository"
)

// Drawer picks the next token from the uncalled pool. pool is never empty.
type Drawer interface {
	Draw(pool []string) string
}

// DrawerFunc adapts a function to Drawer.
type DrawerFunc func(pool []string) string

// Draw calls f.
func (f DrawerFunc) Draw(pool []string) string { return f(pool) }

// randomDrawer draws uniformly from the pool.
type randomDrawer struct{}

func (randomDrawer) Draw(pool []string) string {
	return pool[rand.IntN(len(pool))]
}

// JoinResult is returned by a successful join.
type JoinResult struct {
	Session *model.Session `json:"game"`
	Player  *model.Player  `json:"player"`
	Card    bingo.Card     `json:"card"`
}

type playerState struct {
	rec   *model.Player
	card  bingo.Card
	marks bingo.MarkSet
}

// session owns one round. Every mutation runs on its goroutine: commands
// from callers and calling-loop steps never overlap. State in memory is only
// replaced after the store has committed the same change.
type session struct {
	eng *Engine

	state   *model.Session
	players []*playerState // ascending player id
	taken   map[int]struct{}
	perUser map[int64]int

	// pending is a winner whose settlement has not been committed yet.
	pending *playerState

	cmds chan func()
	done chan struct{}
}

func newSession(eng *Engine, rec *model.Session, players []*model.Player) *session {
	s := &session{
		eng:     eng,
		state:   rec.Clone(),
		taken:   make(map[int]struct{}, len(players)),
		perUser: make(map[int64]int, len(players)),
		cmds:    make(chan func()),
		done:    make(chan struct{}),
	}
	for _, p := range players {
		s.add(p)
	}

	// A win can be committed to the called list without its settlement if
	// the process stopped in between; pick it up again.
	if s.state.Status == model.StatusActive {
		for _, p := range s.players {
			if bingo.CheckWin(p.card, p.marks, s.pattern()) {
				s.pending = p
				break
			}
		}
	}
	return s
}

func (s *session) add(p *model.Player) *playerState {
	ps := &playerState{
		rec:   p.Clone(),
		card:  bingo.GenerateCard(p.CardNumber),
		marks: bingo.NewMarkSet(p.Marked...),
	}
	s.players = append(s.players, ps)
	s.taken[p.CardNumber] = struct{}{}
	s.perUser[p.UserID]++
	return ps
}

func (s *session) pattern() bingo.Pattern {
	return bingo.Pattern(s.state.Pattern)
}

// do runs fn on the session goroutine and waits for it to finish.
func (s *session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return errSessionGone
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// run is the session goroutine. It drains commands while waiting and
// performs one call per interval while active.
func (s *session) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var tick <-chan time.Time
	arm := func(d time.Duration) {
		timer.Reset(d)
		tick = timer.C
	}
	if s.state.Status == model.StatusActive {
		arm(0)
	}

	for s.state.Status != model.StatusEnded {
		select {
		case <-s.eng.quit:
			return
		case cmd := <-s.cmds:
			wasActive := s.state.Status == model.StatusActive
			cmd()
			if !wasActive && s.state.Status == model.StatusActive {
				arm(0)
			}
		case <-tick:
			tick = nil
			s.step(s.eng.ctx)
			if s.state.Status == model.StatusActive {
				arm(s.eng.opts.CallInterval)
			}
		}
	}

	log.Info().
		Int64("session_id", s.state.ID).
		Int("called", len(s.state.Called)).
		Int64("payout", s.state.Payout).
		Msg("Session ended")
}

func (s *session) join(ctx context.Context, user *model.User, cardNumber int) (*JoinResult, error) {
	opts := s.eng.opts

	if s.state.Status != model.StatusWaiting {
		return nil, ErrNotJoinable
	}
	if cardNumber < opts.CardMin || cardNumber > opts.CardMax {
		return nil, ErrInvalidCard
	}
	if _, ok := s.taken[cardNumber]; ok {
		return nil, ErrCardTaken
	}
	if opts.OneCardPerUser && s.perUser[user.ID] > 0 {
		return nil, ErrAlreadyJoined
	}

	next := s.state.Clone()
	next.Pot += next.EntryFee

	var created *model.Player
	_, err := s.eng.ledger.Debit(ctx, ledger.Entry{
		UserID:    user.ID,
		Kind:      model.TxKindStake,
		Amount:    next.EntryFee,
		SessionID: &next.ID,
	}, func(q repository.Queries) error {
		if err := q.UpdateSession(ctx, next); err != nil {
			return err
		}
		p, err := q.CreatePlayer(ctx, &model.Player{
			SessionID:  next.ID,
			UserID:     user.ID,
			CardNumber: cardNumber,
			Marked:     []string{},
		})
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	created.UserName = user.Name
	s.state = next
	ps := s.add(created)

	log.Info().
		Int64("session_id", next.ID).
		Int64("user_id", user.ID).
		Int("card_number", cardNumber).
		Int64("pot", next.Pot).
		Msg("Player joined")

	s.eng.publish(EventPlayerJoined, next.ID, PlayerJoined{
		PlayerCount: len(s.players),
		PotAmount:   next.Pot,
		CardNumber:  cardNumber,
		Name:        user.Name,
	})

	return &JoinResult{Session: next.Clone(), Player: ps.rec.Clone(), Card: ps.card}, nil
}

func (s *session) start(ctx context.Context) error {
	switch s.state.Status {
	case model.StatusWaiting:
	case model.StatusActive:
		return ErrAlreadyStarted
	default:
		return ErrNotJoinable
	}
	if len(s.players) == 0 {
		return ErrNoPlayers
	}

	next := s.state.Clone()
	now := time.Now()
	next.Status = model.StatusActive
	next.StartedAt = &now
	if err := s.eng.store.UpdateSession(ctx, next); err != nil {
		return err
	}
	s.state = next

	log.Info().
		Int64("session_id", next.ID).
		Int("players", len(s.players)).
		Int64("pot", next.Pot).
		Str("pattern", next.Pattern).
		Msg("Session started")

	s.eng.publish(EventGameStarted, next.ID, GameStarted{
		PlayerCount: len(s.players),
		PotAmount:   next.Pot,
		Pattern:     next.Pattern,
	})
	return nil
}

// step performs one call: draw, mark, persist, evaluate. A failed write
// leaves memory untouched and the step is retried on the next tick.
func (s *session) step(ctx context.Context) {
	if s.pending != nil {
		s.settle(ctx)
		return
	}

	pool := bingo.Remaining(s.state.Called)
	if len(pool) == 0 {
		s.exhaust(ctx)
		return
	}

	token := s.eng.opts.Drawer.Draw(pool)
	next := s.state.Clone()
	next.Called = append(next.Called, token)
	next.CurrentNumber = &token

	var touched []*playerState
	var updates []*model.Player
	for _, p := range s.players {
		if p.card.Contains(token) && !p.marks.Has(token) {
			rec := p.rec.Clone()
			rec.Marked = append(rec.Marked, token)
			touched = append(touched, p)
			updates = append(updates, rec)
		}
	}

	err := s.eng.store.WithTx(ctx, func(q repository.Queries) error {
		if err := q.UpdateSession(ctx, next); err != nil {
			return err
		}
		for _, rec := range updates {
			if err := q.UpdatePlayer(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).
			Int64("session_id", next.ID).
			Str("number", token).
			Msg("Failed to persist call, retrying next tick")
		return
	}

	s.state = next
	for i, p := range touched {
		p.rec = updates[i]
		p.marks[token] = struct{}{}
	}

	log.Debug().
		Int64("session_id", next.ID).
		Str("number", token).
		Int("called", len(next.Called)).
		Int("marked_players", len(touched)).
		Msg("Number called")

	// touched follows s.players, so the lowest player id wins ties.
	for _, p := range touched {
		if bingo.CheckWin(p.card, p.marks, s.pattern()) {
			s.pending = p
			s.settle(ctx)
			return
		}
	}

	s.eng.publish(EventNumberCalled, next.ID, NumberCalled{
		Number:      token,
		CalledCount: len(next.Called),
	})
}

// settle pays the pot to the pending winner and ends the session, all in
// one store transaction.
func (s *session) settle(ctx context.Context) {
	w := s.pending
	pot := s.state.Pot

	next := s.state.Clone()
	now := time.Now()
	next.Status = model.StatusEnded
	next.EndedAt = &now
	next.WinnerPlayerID = &w.rec.ID
	next.Payout = pot
	next.Pot = 0

	won := w.rec.Clone()
	won.Won = true

	within := func(q repository.Queries) error {
		if err := q.UpdatePlayer(ctx, won); err != nil {
			return err
		}
		return q.UpdateSession(ctx, next)
	}

	var err error
	if pot > 0 {
		_, err = s.eng.ledger.Credit(ctx, ledger.Entry{
			UserID:    w.rec.UserID,
			Kind:      model.TxKindWin,
			Amount:    pot,
			SessionID: &next.ID,
		}, within)
	} else {
		err = s.eng.store.WithTx(ctx, within)
	}
	if err != nil {
		log.Error().Err(err).
			Int64("session_id", next.ID).
			Int64("player_id", w.rec.ID).
			Msg("Failed to settle winner, retrying next tick")
		return
	}

	s.state = next
	w.rec = won
	s.pending = nil

	number := ""
	if next.CurrentNumber != nil {
		number = *next.CurrentNumber
	}

	log.Info().
		Int64("session_id", next.ID).
		Int64("user_id", won.UserID).
		Int("card_number", won.CardNumber).
		Int64("payout", pot).
		Msg("Winner declared")

	s.eng.publish(EventWinner, next.ID, Winner{
		Winner:     won.UserName,
		UserID:     won.UserID,
		PotAmount:  pot,
		CardNumber: won.CardNumber,
		Number:     number,
	})
}

// exhaust ends a session whose pool ran out. The pot stays where it is.
func (s *session) exhaust(ctx context.Context) {
	next := s.state.Clone()
	now := time.Now()
	next.Status = model.StatusEnded
	next.EndedAt = &now

	if err := s.eng.store.UpdateSession(ctx, next); err != nil {
		log.Error().Err(err).
			Int64("session_id", next.ID).
			Msg("Failed to end exhausted session, retrying next tick")
		return
	}
	s.state = next

	log.Warn().
		Int64("session_id", next.ID).
		Int64("pot", next.Pot).
		Msg("All numbers called without a winner")

	s.eng.publish(EventGameEnded, next.ID, GameEnded{
		Reason:      "exhausted",
		PotAmount:   next.Pot,
		CalledCount: len(next.Called),
	})
}
