package store

import (
	"sync"
	"time"
)

// Turn is one user/assistant exchange.
type Turn struct {
	Role    string
	Content string
}

type chatEntry struct {
	turns     []Turn
	expiresAt time.Time
}

// ChatContext keeps a rolling per-chat conversation history with TTL.
// Reads and writes both refresh the expiry; expired chats are purged lazily.
type ChatContext struct {
	maxTurns int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*chatEntry
}

func NewChatContext(maxTurns int, ttl time.Duration) *ChatContext {
	if maxTurns < 1 {
		maxTurns = 1
	}
	return &ChatContext{
		maxTurns: maxTurns,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*chatEntry),
	}
}

// History returns a copy of the chat's turns and refreshes its expiry.
func (c *ChatContext) History(chatID string) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()

	entry, ok := c.entries[chatID]
	if !ok {
		return nil
	}
	entry.expiresAt = c.now().Add(c.ttl)

	out := make([]Turn, len(entry.turns))
	copy(out, entry.turns)
	return out
}

// AppendTurn records one user/assistant pair, trimming to the newest
// maxTurns exchanges.
func (c *ChatContext) AppendTurn(chatID, userText, assistantText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()

	entry, ok := c.entries[chatID]
	if !ok {
		entry = &chatEntry{}
		c.entries[chatID] = entry
	}

	entry.turns = append(entry.turns,
		Turn{Role: "user", Content: userText},
		Turn{Role: "assistant", Content: assistantText},
	)
	if max := 2 * c.maxTurns; len(entry.turns) > max {
		entry.turns = entry.turns[len(entry.turns)-max:]
	}
	entry.expiresAt = c.now().Add(c.ttl)
}

// Forget drops a chat's history.
func (c *ChatContext) Forget(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, chatID)
}

// Sweep removes expired chats; called by the maintenance cron.
func (c *ChatContext) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
}

func (c *ChatContext) purgeLocked() {
	now := c.now()
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
		}
	}
}
