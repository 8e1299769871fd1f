// Package scheduler runs periodic background jobs for the game engine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"geez-bingo/internal/config"
	"geez-bingo/internal/engine"
	"geez-bingo/internal/model"
)

// Engine is the part of the game engine the auto-starter drives.
type Engine interface {
	OpenSession(ctx context.Context) (*model.Session, error)
	PeekOpenSession(ctx context.Context) (*model.Session, bool, error)
	ListPlayers(ctx context.Context, sessionID int64) ([]*model.Player, error)
	Start(ctx context.Context, sessionID int64) error
}

// AutoStarter keeps a lobby open and starts it once enough players joined.
type AutoStarter struct {
	eng        Engine
	interval   time.Duration
	minPlayers int
	sched      gocron.Scheduler
}

// NewAutoStarter creates an AutoStarter. Call Start to begin the job.
func NewAutoStarter(eng Engine, cfg config.AutoStartConfig) (*AutoStarter, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("autostart interval must be positive, got %s", cfg.Interval)
	}
	minPlayers := cfg.MinPlayers
	if minPlayers < 1 {
		minPlayers = 1
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &AutoStarter{
		eng:        eng,
		interval:   cfg.Interval,
		minPlayers: minPlayers,
		sched:      sched,
	}, nil
}

// Start registers the job and starts the scheduler.
func (a *AutoStarter) Start() error {
	_, err := a.sched.NewJob(
		gocron.DurationJob(a.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), a.interval)
			defer cancel()
			if _, err := a.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("Auto-start job failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule auto-start: %w", err)
	}

	a.sched.Start()

	log.Info().
		Dur("interval", a.interval).
		Int("min_players", a.minPlayers).
		Msg("Auto-start scheduler started")
	return nil
}

// Shutdown stops the scheduler and waits for a running job to finish.
func (a *AutoStarter) Shutdown() error {
	return a.sched.Shutdown()
}

// RunOnce starts the open session if it has enough players and makes sure a
// new lobby is open afterwards. It reports whether a session was started.
func (a *AutoStarter) RunOnce(ctx context.Context) (bool, error) {
	sess, ok, err := a.eng.PeekOpenSession(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get open session: %w", err)
	}
	if !ok {
		_, err := a.eng.OpenSession(ctx)
		return false, err
	}

	players, err := a.eng.ListPlayers(ctx, sess.ID)
	if err != nil {
		return false, fmt.Errorf("failed to list players: %w", err)
	}
	if len(players) < a.minPlayers {
		return false, nil
	}

	if err := a.eng.Start(ctx, sess.ID); err != nil {
		// Someone else started it between the peek and now.
		if errors.Is(err, engine.ErrAlreadyStarted) || errors.Is(err, engine.ErrNotJoinable) {
			return false, nil
		}
		return false, fmt.Errorf("failed to start session %d: %w", sess.ID, err)
	}

	log.Info().
		Int64("session_id", sess.ID).
		Int("players", len(players)).
		Msg("Session auto-started")

	if _, err := a.eng.OpenSession(ctx); err != nil {
		return true, fmt.Errorf("failed to open next session: %w", err)
	}
	return true, nil
}
