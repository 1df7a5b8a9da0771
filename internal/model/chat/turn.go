package chat

import (
	"strings"
	"time"
)

// Turn is one message exchanged in a conversation. Turns are immutable once appended.
type Turn struct {
	IsUser    bool   `json:"isUser"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Data      string `json:"data,omitempty"`
}

// NewUserTurn stamps a user turn with the current time.
func NewUserTurn(message string, now time.Time) Turn {
	return Turn{IsUser: true, Message: message, Timestamp: now.UnixMilli()}
}

// NewTutorTurn stamps a tutor turn, attaching the simulation carried by action if any.
func NewTutorTurn(message string, action SpecialAction, now time.Time) Turn {
	turn := Turn{Message: message, Timestamp: now.UnixMilli()}
	if action.Present() {
		turn.Data = action.Data
	}
	return turn
}

// HasSimulation reports whether the turn offers a simulation.
func (t Turn) HasSimulation() bool {
	return !t.IsUser && t.Data != ""
}

// Role labels the author the way transcripts name them.
func (t Turn) Role() string {
	if t.IsUser {
		return "User"
	}
	return "Assistant"
}

// Transcript renders turns as "User: ..." / "Assistant: ..." lines, one blank line apart.
func Transcript(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}

	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, turn.Role()+": "+turn.Message+"\n")
	}
	return strings.Join(lines, "\n")
}

// EndsExchange reports whether the two most recent turns are a user turn
// followed by a tutor turn.
func EndsExchange(turns []Turn) bool {
	if len(turns) < 2 {
		return false
	}
	last := turns[len(turns)-2:]
	return last[0].IsUser && !last[1].IsUser
}
