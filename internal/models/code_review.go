package models

import "time"

// ReviewStatus represents the lifecycle state of a code review.
type ReviewStatus string

const (
	ReviewStatusStarted    ReviewStatus = "started"
	ReviewStatusInProgress ReviewStatus = "in_progress"
	ReviewStatusCompleted  ReviewStatus = "completed"
	ReviewStatusFailed     ReviewStatus = "failed"
)

// Valid reports whether s is a known review status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusStarted, ReviewStatusInProgress, ReviewStatusCompleted, ReviewStatusFailed:
		return true
	}
	return false
}

// StandardSetRef is a point-in-time snapshot of a standard set's identity,
// taken when the review is created. It is not a live foreign key: renaming
// or deleting the set later does not rewrite the stored name.
type StandardSetRef struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// ComplianceReport is one generated report for one standard set within a
// review. File is the on-disk markdown path, Report its full content.
type ComplianceReport struct {
	ID              string `json:"_id"`
	StandardSetName string `json:"standard_set_name"`
	File            string `json:"file"`
	Report          string `json:"report"`
}

// CodeReview is one compliance-checking run of a target repository
// against one or more standard sets.
type CodeReview struct {
	ID                string             `json:"_id"`
	RepositoryURL     string             `json:"repository_url"`
	Status            ReviewStatus       `json:"status"`
	StandardSets      []StandardSetRef   `json:"standard_sets"`
	ComplianceReports []ComplianceReport `json:"compliance_reports"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}
