package gateway

import (
	"crypto/subtle"
	"sync"

	pubsub "github.com/coregx/pubsub-broker"
)

// Identity is a resolved caller: the HTTP Basic username plus the
// security principal name the rest of the broker keys on.
type Identity struct {
	Username string
	SecName  string
}

// SecurityProvider resolves HTTP Basic credentials to a security
// principal and supplies the permission patterns granted to it.
type SecurityProvider interface {
	// ResolveIdentity checks the credentials and returns the caller's
	// identity. The boolean is false for unknown users and wrong
	// passwords alike; the gateway does not distinguish the two.
	ResolveIdentity(username, password string) (Identity, bool)

	// PatternsFor returns the permission patterns granted to a
	// principal. An unknown principal yields nil.
	PatternsFor(secName string) []pubsub.Permission
}

type userEntry struct {
	password string
	secName  string
	patterns []pubsub.Permission
}

// InMemorySecurity is a SecurityProvider backed by a map, loaded once at
// start-up from configuration. Safe for concurrent use.
type InMemorySecurity struct {
	mu    sync.RWMutex
	users map[string]userEntry
}

// NewInMemorySecurity creates an empty provider.
func NewInMemorySecurity() *InMemorySecurity {
	return &InMemorySecurity{users: make(map[string]userEntry)}
}

// AddUser registers a user with its password, principal name and
// permission patterns, replacing any previous entry for the username.
func (s *InMemorySecurity) AddUser(username, password, secName string, patterns []pubsub.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = userEntry{
		password: password,
		secName:  secName,
		patterns: patterns,
	}
}

// RemoveUser drops a user. Unknown usernames are ignored.
func (s *InMemorySecurity) RemoveUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, username)
}

// ResolveIdentity implements SecurityProvider. Password comparison is
// constant-time.
func (s *InMemorySecurity) ResolveIdentity(username, password string) (Identity, bool) {
	s.mu.RLock()
	entry, ok := s.users[username]
	s.mu.RUnlock()

	if !ok {
		return Identity{}, false
	}
	if subtle.ConstantTimeCompare([]byte(entry.password), []byte(password)) != 1 {
		return Identity{}, false
	}
	return Identity{Username: username, SecName: entry.secName}, true
}

// PatternsFor implements SecurityProvider.
func (s *InMemorySecurity) PatternsFor(secName string) []pubsub.Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.users {
		if entry.secName == secName {
			out := make([]pubsub.Permission, len(entry.patterns))
			copy(out, entry.patterns)
			return out
		}
	}
	return nil
}
