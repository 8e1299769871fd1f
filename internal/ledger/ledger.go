// Package ledger applies wallet debits and credits together with their
// transaction records as one atomic unit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"geez-bingo/internal/model"
	"geez-bingo/internal/pkg/lock"
	"geez-bingo/internal/repository"
)

// ErrInvalidAmount is returned for zero or negative amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// defaultLockTimeout bounds how long a wallet mutation waits for the user's lock.
const defaultLockTimeout = 10 * time.Second

// Entry describes one wallet movement. Amount is a positive magnitude;
// the sign stored on the transaction record follows the direction.
type Entry struct {
	UserID    int64
	Kind      string
	Amount    int64
	SessionID *int64
}

// Within runs extra writes in the same store transaction as the wallet movement.
// Returning an error undoes the movement as well.
type Within func(q repository.Queries) error

// Ledger serializes wallet mutations per user and keeps the balance and the
// transaction log in step.
type Ledger struct {
	store       repository.Store
	locks       *lock.UserLock
	lockTimeout time.Duration
}

// New creates a Ledger. A nil locks argument gets a private UserLock.
func New(store repository.Store, locks *lock.UserLock) *Ledger {
	if locks == nil {
		locks = lock.NewUserLock()
	}
	return &Ledger{store: store, locks: locks, lockTimeout: defaultLockTimeout}
}

// Debit removes e.Amount from the user's wallet.
// Returns repository.ErrInsufficientFunds, with nothing written, if the balance is too low.
func (l *Ledger) Debit(ctx context.Context, e Entry, within Within) (*model.User, error) {
	return l.apply(ctx, e, -e.Amount, within)
}

// Credit adds e.Amount to the user's wallet.
func (l *Ledger) Credit(ctx context.Context, e Entry, within Within) (*model.User, error) {
	return l.apply(ctx, e, e.Amount, within)
}

func (l *Ledger) apply(ctx context.Context, e Entry, delta int64, within Within) (*model.User, error) {
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var user *model.User
	err := l.locks.WithLockContext(ctx, e.UserID, l.lockTimeout, func() error {
		return l.store.WithTx(ctx, func(q repository.Queries) error {
			u, err := q.UpdateBalance(ctx, e.UserID, delta)
			if err != nil {
				return err
			}
			_, err = q.CreateTransaction(ctx, &model.Transaction{
				UserID:    e.UserID,
				Kind:      e.Kind,
				Amount:    delta,
				SessionID: e.SessionID,
			})
			if err != nil {
				return err
			}
			if within != nil {
				if err := within(q); err != nil {
					return err
				}
			}
			user = u
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int64("user_id", e.UserID).
		Str("kind", e.Kind).
		Int64("amount", delta).
		Int64("balance", user.Balance).
		Msg("Ledger entry applied")

	return user, nil
}

// Balance returns the user's committed balance.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int64, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return user.Balance, nil
}

// History returns the user's transactions, newest first.
func (l *Ledger) History(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	txs, err := l.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return txs, nil
}
