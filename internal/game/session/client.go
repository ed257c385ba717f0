// Package session tracks connected protocol clients: identity, claimed
// names, chat history and flood penalties.
package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cory-johannsen/arena/internal/game/entity"
)

// Client is one connected peer. All methods are safe for concurrent use.
type Client struct {
	// UID is a random identifier unique for the life of the process.
	UID string
	// Addr is the peer's remote address, for logging.
	Addr string
	// ConnectedAt is when the connection was accepted.
	ConnectedAt time.Time

	mu             sync.Mutex
	name           string
	entityID       entity.ID
	color          entity.Color
	lastActivity   time.Time
	penalizedUntil time.Time
	limiter        *rate.Limiter
}

// Name returns the claimed display name, or "" before NAME.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Client) setName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

// EntityID returns the client's arena entity, or 0 when it has none.
func (c *Client) EntityID() entity.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entityID
}

// SetEntityID records the client's arena entity.
func (c *Client) SetEntityID(id entity.ID) {
	c.mu.Lock()
	c.entityID = id
	c.mu.Unlock()
}

// Color returns the colour requested with COL.
func (c *Client) Color() entity.Color {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.color
}

// SetColor records the colour requested with COL.
func (c *Client) SetColor(col entity.Color) {
	c.mu.Lock()
	c.color = col
	c.mu.Unlock()
}

// Touch marks the client active at now.
func (c *Client) Touch(now time.Time) {
	c.mu.Lock()
	c.lastActivity = now
	c.mu.Unlock()
}

// IdleFor returns how long the client has been inactive at now.
func (c *Client) IdleFor(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastActivity)
}

// SetLimiter installs a command rate limiter. A nil limiter disables flood
// control.
func (c *Client) SetLimiter(l *rate.Limiter) {
	c.mu.Lock()
	c.limiter = l
	c.mu.Unlock()
}

// Allow reports whether the client may run a command unit at now. Exceeding
// the rate limiter penalises the client for penalty, during which every
// unit is refused.
func (c *Client) Allow(now time.Time, penalty time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Before(c.penalizedUntil) {
		return false
	}
	if c.limiter != nil && !c.limiter.AllowN(now, 1) {
		c.penalizedUntil = now.Add(penalty)
		return false
	}
	return true
}

// Penalized reports whether the client is serving a flood penalty at now.
func (c *Client) Penalized(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Before(c.penalizedUntil)
}
