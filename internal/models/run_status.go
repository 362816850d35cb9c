package models

import "time"

// RunStatus tracks the latest invocation of a job chain.
type RunStatus struct {
	JobID          string    `json:"job_id"`
	InvocationID   string    `json:"invocation_id,omitempty"`
	Hop            int       `json:"hop"`
	Status         string    `json:"status"`
	UnitsProcessed int       `json:"units_processed"`
	RecordsStored  int       `json:"records_stored"`
	NextRef        string    `json:"next_ref,omitempty"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
