package profile

import "time"

// Identity is the authenticated principal behind a session.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Profile is the application row that must exist before a user can chat.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Level     string    `json:"level,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
