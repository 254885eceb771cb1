package models

import "time"

// MaxCustomPromptLen caps the custom_prompt field on standard sets.
const MaxCustomPromptLen = 1_000_000

// StandardSet is a named collection of compliance standards sourced from
// one external repository. Names are unique: creating a set with an
// existing name replaces the prior set (same id) and its standards.
type StandardSet struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	RepositoryURL string    `json:"repository_url"`
	CustomPrompt  string    `json:"custom_prompt"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StandardSetWithStandards is a StandardSet plus its ingested standards,
// returned by the single-set GET endpoint.
type StandardSetWithStandards struct {
	StandardSet
	Standards []*Standard `json:"standards"`
}
