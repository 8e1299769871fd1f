package engine

import (
	"errors"

	"geez-bingo/internal/ledger"
	"geez-bingo/internal/repository"
)

// Errors returned by engine operations. Storage errors are shared with the
// repository package so errors.Is works across layers.
var (
	ErrUserNotFound      = repository.ErrUserNotFound
	ErrUserExists        = repository.ErrUserExists
	ErrSessionNotFound   = repository.ErrSessionNotFound
	ErrInsufficientFunds = repository.ErrInsufficientFunds
	ErrCardTaken         = repository.ErrCardTaken
	ErrInvalidAmount     = ledger.ErrInvalidAmount

	ErrNotJoinable    = errors.New("session is not accepting players")
	ErrInvalidCard    = errors.New("card number out of range")
	ErrAlreadyJoined  = errors.New("user already holds a card in this session")
	ErrNoPlayers      = errors.New("cannot start a session without players")
	ErrAlreadyStarted = errors.New("session already started")
	ErrClosed         = errors.New("engine closed")
)

// errSessionGone means the session goroutine exited before taking a command.
var errSessionGone = errors.New("session no longer live")
