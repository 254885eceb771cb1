package models

import "time"

// Classification is a technology/language tag (e.g. "Python", "Docker")
// used to scope which standards apply to a codebase. Names are stored
// case-sensitively but matched case-insensitively.
type Classification struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
