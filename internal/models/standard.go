package models

import "time"

// Standard is one compliance rule extracted from one markdown file in a
// standard set's repository. An empty ClassificationIDs list means the
// standard is universal and applies to every codebase.
type Standard struct {
	ID                string    `json:"_id"`
	Text              string    `json:"text"`
	RepositoryPath    string    `json:"repository_path"`
	StandardSetID     string    `json:"standard_set_id"`
	ClassificationIDs []string  `json:"classification_ids"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsUniversal reports whether the standard applies regardless of the
// detected technology stack.
func (s *Standard) IsUniversal() bool {
	return len(s.ClassificationIDs) == 0
}
