package pubsub

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Access types assigned to permission patterns.
const (
	// AccessPublisher grants publish rights for matching topics.
	AccessPublisher = "publisher"

	// AccessSubscriber grants subscribe rights for matching topics.
	AccessSubscriber = "subscriber"

	// AccessPublisherSubscriber grants both.
	AccessPublisherSubscriber = "publisher-subscriber"
)

// Operations evaluated against permission patterns.
const (
	OperationPublish   = "publish"
	OperationSubscribe = "subscribe"
)

// Permission binds a topic pattern to an access type. Patterns support
// "*" (matches within one dot-separated segment) and "**" (matches across
// segments); matching is case-insensitive and anchored to the whole name.
type Permission struct {
	Pattern string
	Access  string
}

// EvaluationResult reports the outcome of a permission check.
type EvaluationResult struct {
	OK             bool
	ClientID       string
	Topic          string
	Operation      string
	MatchedPattern string
	Reason         string
}

type patternInfo struct {
	pattern      string
	compiled     *regexp.Regexp
	hasWildcards bool
}

type clientPermissions struct {
	clientID    string
	pubPatterns []patternInfo
	subPatterns []patternInfo
}

// PatternMatcher decides whether a client may publish or subscribe to a
// topic, based on the permission patterns registered for it. Exact
// patterns are consulted before wildcard ones, in alphabetical order, and
// the first match wins.
//
// Safe for concurrent use. Compiled patterns are cached and shared
// between clients holding the same pattern.
type PatternMatcher struct {
	mu      sync.RWMutex
	clients map[string]*clientPermissions
	cache   map[string]*regexp.Regexp
}

// NewPatternMatcher creates an empty matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{
		clients: make(map[string]*clientPermissions),
		cache:   make(map[string]*regexp.Regexp),
	}
}

// AddClient registers a client with its permissions, replacing any
// previous registration under the same ID.
func (m *PatternMatcher) AddClient(clientID string, permissions []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(clientID, permissions)
}

// SetPermissions replaces all permissions for a client, registering the
// client if needed.
func (m *PatternMatcher) SetPermissions(clientID string, permissions []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(clientID, permissions)
}

// RemoveClient removes a client and all its permissions.
func (m *PatternMatcher) RemoveClient(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, clientID)
}

// HasClient reports whether permissions are registered for clientID.
func (m *PatternMatcher) HasClient(clientID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[clientID]
	return ok
}

// ClientCount returns the number of registered clients.
func (m *PatternMatcher) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CacheSize returns the number of cached compiled patterns.
func (m *PatternMatcher) CacheSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

// ClearCache drops all cached compiled patterns; patterns already bound
// to clients are recompiled from source.
func (m *PatternMatcher) ClearCache() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache = make(map[string]*regexp.Regexp)
	for _, perms := range m.clients {
		for i := range perms.pubPatterns {
			re, err := m.compileLocked(perms.pubPatterns[i].pattern)
			if err != nil {
				return err
			}
			perms.pubPatterns[i].compiled = re
		}
		for i := range perms.subPatterns {
			re, err := m.compileLocked(perms.subPatterns[i].pattern)
			if err != nil {
				return err
			}
			perms.subPatterns[i].compiled = re
		}
	}
	return nil
}

// Evaluate checks whether clientID may perform operation on topic.
// The returned result always carries the inputs back; on success it also
// names the pattern that matched, on failure the reason.
func (m *PatternMatcher) Evaluate(clientID, topic, operation string) EvaluationResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := EvaluationResult{
		ClientID:  clientID,
		Topic:     topic,
		Operation: operation,
	}

	perms, ok := m.clients[clientID]
	if !ok {
		result.Reason = "Client not found"
		return result
	}

	var patterns []patternInfo
	switch operation {
	case OperationPublish:
		patterns = perms.pubPatterns
	case OperationSubscribe:
		patterns = perms.subPatterns
	default:
		result.Reason = fmt.Sprintf("Invalid operation: %s", operation)
		return result
	}

	lowerTopic := strings.ToLower(topic)
	for _, info := range patterns {
		if !info.hasWildcards {
			if lowerTopic == info.pattern {
				result.OK = true
				result.MatchedPattern = info.pattern
				return result
			}
			continue
		}
		if info.compiled.MatchString(topic) {
			result.OK = true
			result.MatchedPattern = info.pattern
			return result
		}
	}

	result.Reason = "No matching pattern found"
	return result
}

func (m *PatternMatcher) setLocked(clientID string, permissions []Permission) error {
	var pubPatterns, subPatterns []patternInfo

	for _, perm := range permissions {
		var isPub, isSub bool
		switch perm.Access {
		case AccessPublisher:
			isPub = true
		case AccessSubscriber:
			isSub = true
		case AccessPublisherSubscriber:
			isPub = true
			isSub = true
		default:
			continue
		}

		info, err := m.newPatternInfoLocked(perm.Pattern)
		if err != nil {
			return err
		}
		if isPub {
			pubPatterns = append(pubPatterns, info)
		}
		if isSub {
			subPatterns = append(subPatterns, info)
		}
	}

	// Exact patterns first, each group alphabetical.
	sortPatterns(pubPatterns)
	sortPatterns(subPatterns)

	m.clients[clientID] = &clientPermissions{
		clientID:    clientID,
		pubPatterns: pubPatterns,
		subPatterns: subPatterns,
	}
	return nil
}

func (m *PatternMatcher) newPatternInfoLocked(pattern string) (patternInfo, error) {
	re, err := m.compileLocked(pattern)
	if err != nil {
		return patternInfo{}, err
	}
	return patternInfo{
		pattern:      strings.ToLower(pattern),
		compiled:     re,
		hasWildcards: strings.Contains(pattern, "*"),
	}, nil
}

// compileLocked turns a topic pattern into an anchored, case-insensitive
// regular expression: "**" matches across segments, "*" within one.
func (m *PatternMatcher) compileLocked(pattern string) (*regexp.Regexp, error) {
	if re, ok := m.cache[pattern]; ok {
		return re, nil
	}

	expr := strings.ReplaceAll(pattern, "**", "\x00")
	expr = strings.ReplaceAll(expr, "*", `[^.]*`)
	expr = strings.ReplaceAll(expr, "\x00", `.*`)
	expr = "(?i)^" + expr + "$"

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, fmt.Sprintf("invalid permission pattern %q", pattern), err)
	}
	m.cache[pattern] = re
	return re, nil
}

func sortPatterns(patterns []patternInfo) {
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].hasWildcards != patterns[j].hasWildcards {
			return !patterns[i].hasWildcards
		}
		return patterns[i].pattern < patterns[j].pattern
	})
}
