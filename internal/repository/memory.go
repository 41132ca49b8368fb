package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"telco-rewards/internal/ledger"
	"telco-rewards/internal/model"
)

// memoryDB is the shared state behind the in-memory stores. One mutex
// guards everything, which makes each operation atomic.
type memoryDB struct {
	mu          sync.RWMutex
	users       map[string]*model.User
	emails      map[string]string
	telegramIDs map[int64]string
	sessions    map[string]*model.Session
	journal     []*model.LedgerEntry
	nextEntryID int64
}

// Memory groups in-memory implementations of every store. It backs the
// "memory" database driver and tests.
type Memory struct {
	Users       *MemoryUserStore
	Sessions    *MemorySessionStore
	Journal     *MemoryJournal
	Leaderboard *MemoryLeaderboard
}

// NewMemory creates empty in-memory stores sharing one dataset.
func NewMemory() *Memory {
	db := &memoryDB{
		users:       make(map[string]*model.User),
		emails:      make(map[string]string),
		telegramIDs: make(map[int64]string),
		sessions:    make(map[string]*model.Session),
	}
	return &Memory{
		Users:       &MemoryUserStore{db: db},
		Sessions:    &MemorySessionStore{db: db},
		Journal:     &MemoryJournal{db: db},
		Leaderboard: &MemoryLeaderboard{db: db},
	}
}

func (db *memoryDB) appendEntry(e model.LedgerEntry) {
	db.nextEntryID++
	e.ID = db.nextEntryID
	db.journal = append(db.journal, &e)
}

// MemoryUserStore is the in-memory user store.
type MemoryUserStore struct {
	db *memoryDB
}

// Create inserts a new user.
func (s *MemoryUserStore) Create(_ context.Context, u *model.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.emails[u.Email]; ok {
		return ErrDuplicateEmail
	}
	if _, ok := s.db.users[u.ID]; ok {
		return ErrConstraintViolation
	}
	if u.TelegramID != nil {
		if _, ok := s.db.telegramIDs[*u.TelegramID]; ok {
			return ErrTelegramLinked
		}
		s.db.telegramIDs[*u.TelegramID] = u.ID
	}

	stored := u.Clone()
	stored.Level = ledger.DeriveLevel(stored.XP)
	stored.UpdatedAt = stored.CreatedAt
	s.db.users[u.ID] = stored
	s.db.emails[u.Email] = u.ID

	if u.Tokens > 0 {
		s.db.appendEntry(model.LedgerEntry{
			UserID:    u.ID,
			Tokens:    u.Tokens,
			Kind:      model.EntryWelcome,
			CreatedAt: u.CreatedAt,
		})
	}
	return nil
}

// GetByID retrieves a user. Returns ErrUserNotFound if missing.
func (s *MemoryUserStore) GetByID(_ context.Context, id string) (*model.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	u, ok := s.db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

// GetByEmail retrieves a user by email. Returns ErrUserNotFound if missing.
func (s *MemoryUserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.db.mu.RLock()
	id, ok := s.db.emails[email]
	s.db.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.GetByID(ctx, id)
}

// GetByTelegramID retrieves the user linked to a Telegram account.
func (s *MemoryUserStore) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	s.db.mu.RLock()
	id, ok := s.db.telegramIDs[telegramID]
	s.db.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.GetByID(ctx, id)
}

// ApplyDelta applies d atomically. See UserRepository.ApplyDelta.
func (s *MemoryUserStore) ApplyDelta(_ context.Context, id string, d ledger.Delta) (*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	cur, ok := s.db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	if cur.Version != d.BaseVersion {
		return nil, ErrVersionConflict
	}

	next, err := ledger.Apply(cur, d)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	s.db.users[id] = next

	if d.MovesBalance() {
		s.db.appendEntry(model.LedgerEntry{
			UserID:    id,
			Tokens:    d.Tokens,
			XP:        d.XP,
			Kind:      d.JournalKind(),
			Reference: d.Reference(),
			CreatedAt: entryTime(d, next),
		})
	}
	return next.Clone(), nil
}

// UpdateProfile changes the non-progression fields set in upd.
func (s *MemoryUserStore) UpdateProfile(_ context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	u, ok := s.db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	if upd.Email != nil && *upd.Email != u.Email {
		if _, taken := s.db.emails[*upd.Email]; taken {
			return nil, ErrDuplicateEmail
		}
		delete(s.db.emails, u.Email)
		s.db.emails[*upd.Email] = id
		u.Email = *upd.Email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Avatar != nil {
		u.Avatar = *upd.Avatar
	}
	if upd.Language != nil {
		u.Language = *upd.Language
	}
	if upd.TTSEnabled != nil {
		u.TTSEnabled = *upd.TTSEnabled
	}
	u.UpdatedAt = time.Now()
	return u.Clone(), nil
}

// LinkTelegram binds a Telegram account to the user.
func (s *MemoryUserStore) LinkTelegram(_ context.Context, id string, telegramID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	u, ok := s.db.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if owner, taken := s.db.telegramIDs[telegramID]; taken && owner != id {
		return ErrTelegramLinked
	}
	if u.TelegramID != nil {
		delete(s.db.telegramIDs, *u.TelegramID)
	}
	tid := telegramID
	u.TelegramID = &tid
	s.db.telegramIDs[telegramID] = id
	return nil
}

// Delete removes the user together with sessions and journal entries.
func (s *MemoryUserStore) Delete(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	u, ok := s.db.users[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(s.db.users, id)
	delete(s.db.emails, u.Email)
	if u.TelegramID != nil {
		delete(s.db.telegramIDs, *u.TelegramID)
	}
	for hash, sess := range s.db.sessions {
		if sess.UserID == id {
			delete(s.db.sessions, hash)
		}
	}
	kept := s.db.journal[:0]
	for _, e := range s.db.journal {
		if e.UserID != id {
			kept = append(kept, e)
		}
	}
	s.db.journal = kept
	return nil
}

// MemorySessionStore is the in-memory session store.
type MemorySessionStore struct {
	db *memoryDB
}

// Create stores a new session.
func (s *MemorySessionStore) Create(_ context.Context, sess *model.Session) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.users[sess.UserID]; !ok {
		return ErrConstraintViolation
	}
	if _, ok := s.db.sessions[sess.TokenHash]; ok {
		return ErrConstraintViolation
	}
	c := *sess
	s.db.sessions[sess.TokenHash] = &c
	return nil
}

// GetValid returns an unexpired session by token hash.
func (s *MemorySessionStore) GetValid(_ context.Context, tokenHash string, now time.Time) (*model.Session, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	sess, ok := s.db.sessions[tokenHash]
	if !ok || !sess.ExpiresAt.After(now) {
		return nil, ErrSessionNotFound
	}
	c := *sess
	return &c, nil
}

// Delete removes a session by token hash.
func (s *MemorySessionStore) Delete(_ context.Context, tokenHash string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.sessions[tokenHash]; !ok {
		return ErrSessionNotFound
	}
	delete(s.db.sessions, tokenHash)
	return nil
}

// DeleteExpired removes sessions that expired at or before now.
func (s *MemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var n int64
	for hash, sess := range s.db.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.db.sessions, hash)
			n++
		}
	}
	return n, nil
}

// MemoryJournal is the in-memory journal reader.
type MemoryJournal struct {
	db *memoryDB
}

// ListByUser returns a user's journal, newest first.
func (j *MemoryJournal) ListByUser(_ context.Context, userID string, limit int) ([]*model.LedgerEntry, error) {
	j.db.mu.RLock()
	defer j.db.mu.RUnlock()

	var entries []*model.LedgerEntry
	for i := len(j.db.journal) - 1; i >= 0 && len(entries) < limit; i-- {
		if e := j.db.journal[i]; e.UserID == userID {
			c := *e
			entries = append(entries, &c)
		}
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].CreatedAt.After(entries[b].CreatedAt)
	})
	return entries, nil
}

// TopEarnersSince ranks users by activity tokens earned since the given time.
func (j *MemoryJournal) TopEarnersSince(_ context.Context, since time.Time, limit int) ([]*model.EarnerRank, error) {
	j.db.mu.RLock()
	defer j.db.mu.RUnlock()

	earned := make(map[string]int64)
	for _, e := range j.db.journal {
		if e.Kind == model.EntryActivity && !e.CreatedAt.Before(since) {
			earned[e.UserID] += e.Tokens
		}
	}

	ranks := make([]*model.EarnerRank, 0, len(earned))
	for id, sum := range earned {
		if sum <= 0 {
			continue
		}
		name := ""
		if u, ok := j.db.users[id]; ok {
			name = u.Name
		}
		ranks = append(ranks, &model.EarnerRank{UserID: id, Name: name, Earned: sum})
	}
	sort.Slice(ranks, func(a, b int) bool {
		if ranks[a].Earned != ranks[b].Earned {
			return ranks[a].Earned > ranks[b].Earned
		}
		return ranks[a].UserID < ranks[b].UserID
	})
	if len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks, nil
}

// MemoryLeaderboard ranks the in-memory users.
type MemoryLeaderboard struct {
	db *memoryDB
}

// ranked returns all users in leaderboard order. Callers hold the read lock.
func (l *MemoryLeaderboard) ranked() []*model.LeaderboardEntry {
	users := make([]*model.User, 0, len(l.db.users))
	for _, u := range l.db.users {
		users = append(users, u)
	}
	sort.Slice(users, func(a, b int) bool {
		ua, ub := users[a], users[b]
		switch {
		case ua.Tokens != ub.Tokens:
			return ua.Tokens > ub.Tokens
		case ua.Level != ub.Level:
			return ua.Level > ub.Level
		case !ua.CreatedAt.Equal(ub.CreatedAt):
			return ua.CreatedAt.Before(ub.CreatedAt)
		}
		return ua.ID < ub.ID
	})

	entries := make([]*model.LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = &model.LeaderboardEntry{
			Position:   i + 1,
			UserID:     u.ID,
			Name:       u.Name,
			Avatar:     u.Avatar,
			Tokens:     u.Tokens,
			Level:      u.Level,
			Streak:     u.Streak,
			BadgeCount: len(u.Badges),
		}
	}
	return entries
}

// Page returns limit standings starting after offset.
func (l *MemoryLeaderboard) Page(_ context.Context, limit, offset int) ([]*model.LeaderboardEntry, error) {
	l.db.mu.RLock()
	defer l.db.mu.RUnlock()

	all := l.ranked()
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// Count returns the number of ranked users.
func (l *MemoryLeaderboard) Count(_ context.Context) (int, error) {
	l.db.mu.RLock()
	defer l.db.mu.RUnlock()
	return len(l.db.users), nil
}

// Position returns the 1-based rank of a user.
func (l *MemoryLeaderboard) Position(_ context.Context, userID string) (int, error) {
	l.db.mu.RLock()
	defer l.db.mu.RUnlock()

	for _, e := range l.ranked() {
		if e.UserID == userID {
			return e.Position, nil
		}
	}
	return 0, ErrUserNotFound
}
