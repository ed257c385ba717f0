package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by Manager.
var (
	ErrNotFound       = errors.New("client not found")
	ErrNameTaken      = errors.New("name already claimed")
	ErrEmptyName      = errors.New("name must not be empty")
	ErrNoName         = errors.New("client has not claimed a name")
	ErrMessageTooLong = errors.New("message too long")
	ErrEmptyMessage   = errors.New("message must not be empty")
)

// ChatMessage is one MSG posted by a named client.
type ChatMessage struct {
	From string
	Text string
	At   time.Time
}

// Manager tracks all connected clients and the chat history of each name.
// All methods are safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client       // uid → client
	names   map[string]string        // name → uid
	chat    map[string][]ChatMessage // name → messages, oldest first
	now     func() time.Time
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		names:   make(map[string]string),
		chat:    make(map[string][]ChatMessage),
		now:     time.Now,
	}
}

// Connect registers a newly accepted peer.
//
// Postcondition: the returned client has a fresh UID and counts as active
// from now.
func (m *Manager) Connect(addr string) *Client {
	now := m.now()
	c := &Client{
		UID:          uuid.NewString(),
		Addr:         addr,
		ConnectedAt:  now,
		lastActivity: now,
	}
	m.mu.Lock()
	m.clients[c.UID] = c
	m.mu.Unlock()
	return c
}

// Disconnect removes a client and releases its name. Chat history stays
// until it expires.
func (m *Manager) Disconnect(uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[uid]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, uid)
	}
	if name := c.Name(); name != "" && m.names[name] == uid {
		delete(m.names, name)
	}
	delete(m.clients, uid)
	return nil
}

// ClaimName gives name to the client, releasing any name it held before.
// It returns the previous name so a failed follow-up can restore it.
func (m *Manager) ClaimName(uid, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[uid]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, uid)
	}
	if owner, taken := m.names[name]; taken && owner != uid {
		return "", fmt.Errorf("%w: %q", ErrNameTaken, name)
	}
	prev := c.Name()
	if prev != "" && prev != name {
		delete(m.names, prev)
	}
	m.names[name] = uid
	c.setName(name)
	return prev, nil
}

// RestoreName undoes a ClaimName, giving the client back prev (which may be
// empty).
func (m *Manager) RestoreName(uid, prev string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[uid]
	if !ok {
		return
	}
	if cur := c.Name(); cur != "" && m.names[cur] == uid {
		delete(m.names, cur)
	}
	if prev != "" {
		if _, taken := m.names[prev]; !taken {
			m.names[prev] = uid
		}
	}
	c.setName(prev)
}

// Get returns the client with the given UID.
func (m *Manager) Get(uid string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[uid]
	return c, ok
}

// ByName returns the client that claimed name.
func (m *Manager) ByName(name string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.names[name]
	if !ok {
		return nil, false
	}
	c, ok := m.clients[uid]
	return c, ok
}

// Names returns every claimed name, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.names))
	for n := range m.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of connected clients.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Post records a chat message from the client's claimed name. History older
// than maxAge is discarded for every name.
//
// Precondition: maxLen >= 1.
func (m *Manager) Post(c *Client, text string, maxLen int, maxAge time.Duration) (ChatMessage, error) {
	name := c.Name()
	if name == "" {
		return ChatMessage{}, ErrNoName
	}
	if text == "" {
		return ChatMessage{}, ErrEmptyMessage
	}
	if len([]rune(text)) > maxLen {
		return ChatMessage{}, fmt.Errorf("%w: %d > %d", ErrMessageTooLong, len([]rune(text)), maxLen)
	}
	now := m.now()
	msg := ChatMessage{From: name, Text: text, At: now}
	cutoff := now.Add(-maxAge)
	m.mu.Lock()
	for n := range m.chat {
		m.pruneLocked(n, cutoff)
	}
	m.chat[name] = append(m.chat[name], msg)
	m.mu.Unlock()
	return msg, nil
}

// pruneLocked drops messages posted under name before cutoff.
//
// Precondition: m.mu is held for writing.
func (m *Manager) pruneLocked(name string, cutoff time.Time) []ChatMessage {
	msgs := m.chat[name]
	i := 0
	for i < len(msgs) && msgs[i].At.Before(cutoff) {
		i++
	}
	msgs = msgs[i:]
	if len(msgs) == 0 {
		delete(m.chat, name)
		return nil
	}
	m.chat[name] = msgs
	return msgs
}

// MessagesFrom returns the messages posted under name within the last
// maxAge, oldest first. Older messages are discarded.
func (m *Manager) MessagesFrom(name string, maxAge time.Duration) []ChatMessage {
	cutoff := m.now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.pruneLocked(name, cutoff)
	if msgs == nil {
		return nil
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}
