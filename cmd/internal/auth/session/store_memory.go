package session

import (
	"context"
	"sync"
	"time"
)

type userFingerprint struct {
	userID      string
	fingerprint string
}

// MemoryStore is an in-process Store for tests and the dev in-memory mode.
// It enforces the same unique constraints as the Postgres schema.
type MemoryStore struct {
	mu sync.Mutex

	nextSession int64
	nextAccess  int64

	sessions  map[int64]Session
	byRefresh map[string]int64
	byDevice  map[userFingerprint]int64

	access        map[int64]AccessRecord // keyed by session id
	byAccessToken map[string]int64
	now           func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:      make(map[int64]Session),
		byRefresh:     make(map[string]int64),
		byDevice:      make(map[userFingerprint]int64),
		access:        make(map[int64]AccessRecord),
		byAccessToken: make(map[string]int64),
		now:           time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, in Session) (Session, error) {
	const op = "session.Create"

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byRefresh[in.RefreshToken]; taken {
		return Session{}, ConflictError{Op: op, Constraint: "refresh_tokens_refresh_token_key"}
	}
	key := userFingerprint{in.UserID, in.Fingerprint}
	if _, taken := m.byDevice[key]; taken {
		return Session{}, ConflictError{Op: op, Constraint: "refresh_tokens_user_fingerprint_key"}
	}

	m.nextSession++
	in.ID = m.nextSession
	in.ExpiresAt = in.ExpiresAt.Truncate(time.Second).UTC()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = m.now().UTC()
	}
	m.sessions[in.ID] = in
	m.byRefresh[in.RefreshToken] = in.ID
	m.byDevice[key] = in.ID
	return in, nil
}

func (m *MemoryStore) ReadByRefreshToken(_ context.Context, userID, refreshToken string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byRefresh[refreshToken]
	if !ok || m.sessions[id].UserID != userID {
		return Session{}, OpError{Op: "session.ReadByRefreshToken", Kind: ErrNotFound}
	}
	return m.sessions[id], nil
}

func (m *MemoryStore) ReadByFingerprint(_ context.Context, userID, fingerprint string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byDevice[userFingerprint{userID, fingerprint}]
	if !ok {
		return Session{}, OpError{Op: "session.ReadByFingerprint", Kind: ErrNotFound}
	}
	return m.sessions[id], nil
}

func (m *MemoryStore) Update(_ context.Context, in Session) (Session, error) {
	const op = "session.Update"

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byDevice[userFingerprint{in.UserID, in.Fingerprint}]
	if !ok {
		return Session{}, OpError{Op: op, Kind: ErrNotFound}
	}
	cur := m.sessions[id]
	if owner, taken := m.byRefresh[in.RefreshToken]; taken && owner != id {
		return Session{}, ConflictError{Op: op, Constraint: "refresh_tokens_refresh_token_key"}
	}

	delete(m.byRefresh, cur.RefreshToken)
	cur.RefreshToken = in.RefreshToken
	cur.ExpiresAt = in.ExpiresAt.Truncate(time.Second).UTC()
	m.sessions[id] = cur
	m.byRefresh[cur.RefreshToken] = id
	return cur, nil
}

func (m *MemoryStore) Delete(_ context.Context, userID, refreshToken, fingerprint string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byRefresh[refreshToken]
	if !ok {
		return Session{}, OpError{Op: "session.Delete", Kind: ErrNotFound}
	}
	s := m.sessions[id]
	if s.UserID != userID || s.Fingerprint != fingerprint {
		return Session{}, OpError{Op: "session.Delete", Kind: ErrNotFound}
	}

	delete(m.sessions, id)
	delete(m.byRefresh, s.RefreshToken)
	delete(m.byDevice, userFingerprint{s.UserID, s.Fingerprint})
	if a, ok := m.access[id]; ok {
		delete(m.byAccessToken, a.AccessToken)
		delete(m.access, id)
	}
	return s, nil
}

func (m *MemoryStore) CreateAccess(_ context.Context, in AccessRecord) (AccessRecord, error) {
	const op = "session.CreateAccess"

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[in.SessionID]; !ok {
		return AccessRecord{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if _, taken := m.access[in.SessionID]; taken {
		return AccessRecord{}, ConflictError{Op: op, Constraint: "access_tokens_refresh_id_key"}
	}
	if _, taken := m.byAccessToken[in.AccessToken]; taken {
		return AccessRecord{}, ConflictError{Op: op, Constraint: "access_tokens_access_token_key"}
	}

	m.nextAccess++
	in.ID = m.nextAccess
	m.access[in.SessionID] = in
	m.byAccessToken[in.AccessToken] = in.SessionID
	return in, nil
}

func (m *MemoryStore) UpdateAccess(_ context.Context, in AccessRecord) (AccessRecord, error) {
	const op = "session.UpdateAccess"

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.access[in.SessionID]
	if !ok {
		return AccessRecord{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if owner, taken := m.byAccessToken[in.AccessToken]; taken && owner != in.SessionID {
		return AccessRecord{}, ConflictError{Op: op, Constraint: "access_tokens_access_token_key"}
	}

	delete(m.byAccessToken, cur.AccessToken)
	cur.AccessToken = in.AccessToken
	m.access[in.SessionID] = cur
	m.byAccessToken[cur.AccessToken] = in.SessionID
	return cur, nil
}

// Len reports the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Access returns the access record of a session, if any.
func (m *MemoryStore) Access(sessionID int64) (AccessRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.access[sessionID]
	return a, ok
}
