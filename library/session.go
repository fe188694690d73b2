package library

import "sync"

// Keys under which the session values are persisted.
const (
	keyToken       = "access_token"
	keyRole        = "user_role"
	keyDisplayName = "user_name"
)

// SessionStore holds the credentials of the current user across invocations.
//
// Reads never fail: an unset or unreadable value reads as "". Clear removes
// token, role and display name together.
type SessionStore interface {
	Token() string
	Role() Role
	DisplayName() string
	SetToken(token string) error
	SetRole(role Role) error
	SetDisplayName(name string) error
	Clear() error
}

// Snapshot reads every session value from s.
func Snapshot(s SessionStore) Session {
	return Session{
		Token:       s.Token(),
		Role:        s.Role(),
		DisplayName: s.DisplayName(),
	}
}

// MemoryStore is a SessionStore that lives only as long as the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns an empty in-memory session.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) get(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key]
}

func (m *MemoryStore) set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Token() string       { return m.get(keyToken) }
func (m *MemoryStore) Role() Role          { return Role(m.get(keyRole)) }
func (m *MemoryStore) DisplayName() string { return m.get(keyDisplayName) }

func (m *MemoryStore) SetToken(token string) error      { return m.set(keyToken, token) }
func (m *MemoryStore) SetRole(role Role) error          { return m.set(keyRole, string(role)) }
func (m *MemoryStore) SetDisplayName(name string) error { return m.set(keyDisplayName, name) }

// Clear drops every value under a single lock.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.values)
	return nil
}
