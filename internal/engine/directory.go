package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"geez-bingo/internal/model"
)

// directory tracks live sessions and the single open (waiting) one.
// The open session is created under mu, and the slot is only cleared under
// mu after the session has left waiting, so concurrent callers can never see
// two open sessions.
type directory struct {
	eng *Engine

	mu      sync.Mutex
	openID  int64
	live    map[int64]*session
	closing bool
}

func newDirectory(eng *Engine) *directory {
	return &directory{eng: eng, live: make(map[int64]*session)}
}

// spawn starts the goroutine for a session. Caller holds d.mu.
func (d *directory) spawn(rec *model.Session, players []*model.Player) *session {
	s := newSession(d.eng, rec, players)
	d.live[rec.ID] = s

	d.eng.wg.Add(2)
	go func() {
		defer d.eng.wg.Done()
		s.run()
	}()
	go func() {
		defer d.eng.wg.Done()
		<-s.done
		d.mu.Lock()
		if d.live[rec.ID] == s {
			delete(d.live, rec.ID)
		}
		if d.openID == rec.ID {
			d.openID = 0
		}
		d.mu.Unlock()
	}()
	return s
}

// open returns the waiting session, creating one with the default rules if needed.
func (d *directory) open(ctx context.Context) (*model.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closing {
		return nil, ErrClosed
	}

	if d.openID != 0 {
		return d.eng.store.GetSession(ctx, d.openID)
	}

	rec, err := d.eng.store.CreateSession(ctx, d.eng.opts.EntryFee, string(d.eng.opts.Pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	d.spawn(rec, nil)
	d.openID = rec.ID

	log.Info().
		Int64("session_id", rec.ID).
		Int64("entry_fee", rec.EntryFee).
		Str("pattern", rec.Pattern).
		Msg("Session opened")

	return rec.Clone(), nil
}

// peekOpen returns the open session id without creating one.
func (d *directory) peekOpen() (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openID, d.openID != 0
}

// lookup returns the live session for id. A session that exists but is no
// longer live (ended) yields ErrNotJoinable.
func (d *directory) lookup(ctx context.Context, id int64) (*session, error) {
	d.mu.Lock()
	s, ok := d.live[id]
	d.mu.Unlock()
	if ok {
		return s, nil
	}
	if _, err := d.eng.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrNotJoinable
}

// start moves a session out of waiting and clears the open slot.
// d.mu is not held while the session goroutine works, so joins and lookups
// for other sessions are not held up by a slow start.
func (d *directory) start(ctx context.Context, id int64) error {
	d.mu.Lock()
	s, ok := d.live[id]
	d.mu.Unlock()

	if !ok {
		rec, err := d.eng.store.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status == model.StatusEnded {
			return ErrNotJoinable
		}
		return ErrAlreadyStarted
	}

	var startErr error
	if err := s.do(ctx, func() { startErr = s.start(ctx) }); err != nil {
		if errors.Is(err, errSessionGone) {
			return ErrNotJoinable
		}
		return err
	}
	if startErr != nil {
		return startErr
	}

	d.mu.Lock()
	if d.openID == id {
		d.openID = 0
	}
	d.mu.Unlock()
	return nil
}

// reload reloads waiting and active sessions from the store and restarts
// their goroutines. Active sessions resume calling from their stored history.
func (d *directory) reload(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closing {
		return 0, ErrClosed
	}

	resumed := 0
	for _, status := range []model.SessionStatus{model.StatusWaiting, model.StatusActive} {
		sessions, err := d.eng.store.ListSessionsByStatus(ctx, status)
		if err != nil {
			return resumed, fmt.Errorf("failed to list %s sessions: %w", status, err)
		}
		for _, rec := range sessions {
			if _, ok := d.live[rec.ID]; ok {
				continue
			}
			players, err := d.eng.store.ListPlayers(ctx, rec.ID)
			if err != nil {
				return resumed, fmt.Errorf("failed to load players for session %d: %w", rec.ID, err)
			}
			d.spawn(rec, players)
			if status == model.StatusWaiting {
				d.openID = rec.ID
			}
			resumed++

			log.Info().
				Int64("session_id", rec.ID).
				Str("status", string(rec.Status)).
				Int("players", len(players)).
				Int("called", len(rec.Called)).
				Msg("Session recovered")
		}
	}
	return resumed, nil
}

// shutdown stops new sessions from being spawned.
func (d *directory) shutdown() {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()
}

// count returns the number of live sessions.
func (d *directory) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}
