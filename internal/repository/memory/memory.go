// Package memory provides an in-process repository.Store.
//
// It backs tests and the "memory" store driver. Transactions hold the store
// lock for their whole duration and restore a snapshot when fn fails, so they
// are atomic and fully serialized.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"geez-bingo/internal/model"
	"geez-bingo/internal/repository"
)

// Store is a mutex-guarded in-memory repository.Store.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ repository.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{st: newState()}
}

// WithTx runs fn atomically. fn must only use q, never the Store itself.
func (s *Store) WithTx(ctx context.Context, fn func(q repository.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.st.clone()
	if err := fn(s.st); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// CreateUser creates a user. Returns ErrUserExists for a taken external id.
func (s *Store) CreateUser(ctx context.Context, externalID int64, name string, balance int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateUser(ctx, externalID, name, balance)
}

// GetUser retrieves a user by internal id.
func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetUser(ctx, id)
}

// GetUserByExternalID retrieves a user by external id.
func (s *Store) GetUserByExternalID(ctx context.Context, externalID int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetUserByExternalID(ctx, externalID)
}

// UpdateBalance adds delta to a balance, refusing to go below zero.
func (s *Store) UpdateBalance(ctx context.Context, userID int64, delta int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateBalance(ctx, userID, delta)
}

// ListTopUsers returns the top N users by balance.
func (s *Store) ListTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListTopUsers(ctx, limit)
}

// CreateTransaction appends a ledger record.
func (s *Store) CreateTransaction(ctx context.Context, tx *model.Transaction) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateTransaction(ctx, tx)
}

// ListTransactions returns a user's records, newest first.
func (s *Store) ListTransactions(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListTransactions(ctx, userID, limit)
}

// CreateSession creates a waiting session. Returns ErrOpenSessionExists if one is already waiting.
func (s *Store) CreateSession(ctx context.Context, entryFee int64, pattern string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateSession(ctx, entryFee, pattern)
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetSession(ctx, id)
}

// UpdateSession overwrites a stored session.
func (s *Store) UpdateSession(ctx context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateSession(ctx, sess)
}

// ListSessionsByStatus returns sessions in a status, ascending by id.
func (s *Store) ListSessionsByStatus(ctx context.Context, status model.SessionStatus) ([]*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListSessionsByStatus(ctx, status)
}

// CreatePlayer adds a player. Returns ErrCardTaken if the card is held in the session.
func (s *Store) CreatePlayer(ctx context.Context, p *model.Player) (*model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreatePlayer(ctx, p)
}

// UpdatePlayer overwrites a stored player.
func (s *Store) UpdatePlayer(ctx context.Context, p *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdatePlayer(ctx, p)
}

// ListPlayers returns a session's players in ascending id order.
func (s *Store) ListPlayers(ctx context.Context, sessionID int64) ([]*model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListPlayers(ctx, sessionID)
}

// state holds the tables. Its methods assume the caller holds Store.mu.
type state struct {
	users        map[int64]*model.User
	byExternalID map[int64]int64
	sessions     map[int64]*model.Session
	players      map[int64]*model.Player
	transactions []*model.Transaction

	nextUserID    int64
	nextSessionID int64
	nextPlayerID  int64
	nextTxID      int64
}

func newState() *state {
	return &state{
		users:        make(map[int64]*model.User),
		byExternalID: make(map[int64]int64),
		sessions:     make(map[int64]*model.Session),
		players:      make(map[int64]*model.Player),
	}
}

// clone deep-copies every table for rollback.
func (st *state) clone() *state {
	c := newState()
	for id, u := range st.users {
		cu := *u
		c.users[id] = &cu
	}
	for ext, id := range st.byExternalID {
		c.byExternalID[ext] = id
	}
	for id, s := range st.sessions {
		c.sessions[id] = s.Clone()
	}
	for id, p := range st.players {
		c.players[id] = p.Clone()
	}
	c.transactions = append(c.transactions, st.transactions...)
	c.nextUserID = st.nextUserID
	c.nextSessionID = st.nextSessionID
	c.nextPlayerID = st.nextPlayerID
	c.nextTxID = st.nextTxID
	return c
}

func (st *state) CreateUser(_ context.Context, externalID int64, name string, balance int64) (*model.User, error) {
	if _, ok := st.byExternalID[externalID]; ok {
		return nil, repository.ErrUserExists
	}
	if balance < 0 {
		return nil, repository.ErrInsufficientFunds
	}
	st.nextUserID++
	now := time.Now()
	u := &model.User{
		ID:         st.nextUserID,
		ExternalID: externalID,
		Name:       name,
		Balance:    balance,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	st.users[u.ID] = u
	st.byExternalID[externalID] = u.ID
	out := *u
	return &out, nil
}

func (st *state) GetUser(_ context.Context, id int64) (*model.User, error) {
	u, ok := st.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (st *state) GetUserByExternalID(ctx context.Context, externalID int64) (*model.User, error) {
	id, ok := st.byExternalID[externalID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return st.GetUser(ctx, id)
}

func (st *state) UpdateBalance(_ context.Context, userID int64, delta int64) (*model.User, error) {
	u, ok := st.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if u.Balance+delta < 0 {
		return nil, repository.ErrInsufficientFunds
	}
	u.Balance += delta
	u.UpdatedAt = time.Now()
	out := *u
	return &out, nil
}

func (st *state) ListTopUsers(_ context.Context, limit int) ([]*model.User, error) {
	out := make([]*model.User, 0, len(st.users))
	for _, u := range st.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Balance != out[j].Balance {
			return out[i].Balance > out[j].Balance
		}
		return out[i].ID < out[j].ID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (st *state) CreateTransaction(_ context.Context, tx *model.Transaction) (*model.Transaction, error) {
	if _, ok := st.users[tx.UserID]; !ok {
		return nil, repository.ErrUserNotFound
	}
	st.nextTxID++
	rec := *tx
	rec.ID = st.nextTxID
	rec.CreatedAt = time.Now()
	st.transactions = append(st.transactions, &rec)
	out := rec
	return &out, nil
}

func (st *state) ListTransactions(_ context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	var out []*model.Transaction
	for i := len(st.transactions) - 1; i >= 0; i-- {
		tx := st.transactions[i]
		if tx.UserID != userID {
			continue
		}
		c := *tx
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (st *state) CreateSession(_ context.Context, entryFee int64, pattern string) (*model.Session, error) {
	for _, s := range st.sessions {
		if s.Status == model.StatusWaiting {
			return nil, repository.ErrOpenSessionExists
		}
	}
	st.nextSessionID++
	s := &model.Session{
		ID:        st.nextSessionID,
		Status:    model.StatusWaiting,
		EntryFee:  entryFee,
		Pattern:   pattern,
		Called:    []string{},
		CreatedAt: time.Now(),
	}
	st.sessions[s.ID] = s
	return s.Clone(), nil
}

func (st *state) GetSession(_ context.Context, id int64) (*model.Session, error) {
	s, ok := st.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (st *state) UpdateSession(_ context.Context, sess *model.Session) error {
	cur, ok := st.sessions[sess.ID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if sess.Status == model.StatusWaiting && cur.Status != model.StatusWaiting {
		for id, s := range st.sessions {
			if id != sess.ID && s.Status == model.StatusWaiting {
				return repository.ErrOpenSessionExists
			}
		}
	}
	next := sess.Clone()
	next.EntryFee = cur.EntryFee
	next.Pattern = cur.Pattern
	next.CreatedAt = cur.CreatedAt
	if next.Called == nil {
		next.Called = []string{}
	}
	st.sessions[sess.ID] = next
	return nil
}

func (st *state) ListSessionsByStatus(_ context.Context, status model.SessionStatus) ([]*model.Session, error) {
	var out []*model.Session
	for _, s := range st.sessions {
		if s.Status == status {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *state) CreatePlayer(_ context.Context, p *model.Player) (*model.Player, error) {
	if _, ok := st.sessions[p.SessionID]; !ok {
		return nil, repository.ErrSessionNotFound
	}
	u, ok := st.users[p.UserID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	for _, other := range st.players {
		if other.SessionID == p.SessionID && other.CardNumber == p.CardNumber {
			return nil, repository.ErrCardTaken
		}
	}
	st.nextPlayerID++
	rec := p.Clone()
	rec.ID = st.nextPlayerID
	rec.UserName = u.Name
	rec.Won = false
	rec.JoinedAt = time.Now()
	if rec.Marked == nil {
		rec.Marked = []string{}
	}
	st.players[rec.ID] = rec
	return rec.Clone(), nil
}

func (st *state) UpdatePlayer(_ context.Context, p *model.Player) error {
	cur, ok := st.players[p.ID]
	if !ok {
		return repository.ErrPlayerNotFound
	}
	cur.Marked = append([]string{}, p.Marked...)
	cur.Won = p.Won
	return nil
}

func (st *state) ListPlayers(_ context.Context, sessionID int64) ([]*model.Player, error) {
	var out []*model.Player
	for _, p := range st.players {
		if p.SessionID == sessionID {
			c := p.Clone()
			if u, ok := st.users[p.UserID]; ok {
				c.UserName = u.Name
			}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
