package models

import "time"

// AnalysisRun is one pipeline execution over one individual
type AnalysisRun struct {
	ID string `json:"id" db:"id"` // UUID

	Individual string `json:"individual" db:"individual"`
	Status     string `json:"status" db:"status"` // pending, running, completed, failed

	// Input parameters
	ParamsJSON string `json:"params_json,omitempty" db:"params_json"`

	// Execution info
	RawFixes     int `json:"raw_fixes" db:"raw_fixes"`
	CleanedFixes int `json:"cleaned_fixes" db:"cleaned_fixes"`
	InferredFix  int `json:"inferred_fixes" db:"inferred_fixes"`
	Patches      int `json:"patches" db:"patches"`

	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Run status constants
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunFilter represents filter parameters for listing runs
type RunFilter struct {
	Individual string `form:"individual"`
	Status     string `form:"status"`
	Page       int    `form:"page"`
	PageSize   int    `form:"pageSize"`
}

// RunsResponse represents a paginated list of runs
type RunsResponse struct {
	Data       []AnalysisRun `json:"data"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
}
