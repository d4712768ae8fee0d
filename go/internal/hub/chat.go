package hub

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

type ChatConfig struct {
	MaxLength  int `yaml:"max_length"`
	MaxPerUser int `yaml:"max_per_user"`
	LogSize    int `yaml:"log_size"`
}

func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		MaxLength:  100,
		MaxPerUser: 5,
		LogSize:    50,
	}
}

type ChatMessage struct {
	User    string    `json:"user"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Chat keeps a bounded log per room. Messages over a limit are dropped.
type Chat struct {
	mu     sync.Mutex
	config ChatConfig
	logs   map[string][]ChatMessage
}

func NewChat(config ChatConfig) *Chat {
	return &Chat{
		config: config,
		logs:   make(map[string][]ChatMessage),
	}
}

// Add appends a message to room. Anonymous users, empty or oversized messages
// and users at their per-room cap are refused.
func (c *Chat) Add(room, user string, anonymous bool, text string, at time.Time) (ChatMessage, bool) {
	text = strings.TrimSpace(text)
	if anonymous || text == "" || utf8.RuneCountInString(text) > c.config.MaxLength {
		return ChatMessage{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.logs[room]
	count := 0
	for _, m := range log {
		if m.User == user {
			count++
		}
	}
	if count >= c.config.MaxPerUser {
		return ChatMessage{}, false
	}

	msg := ChatMessage{User: user, Message: text, Time: at}
	log = append(log, msg)
	if len(log) > c.config.LogSize {
		log = log[len(log)-c.config.LogSize:]
	}
	c.logs[room] = log
	return msg, true
}

// Log returns a copy of room's messages, oldest first.
func (c *Chat) Log(room string) []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatMessage{}, c.logs[room]...)
}

// Rooms returns the number of rooms holding a log.
func (c *Chat) Rooms() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.logs)
}

// Clear forgets room's log.
func (c *Chat) Clear(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.logs, room)
}
