package models

import "time"

// RunFailure captures an invocation that exhausted its host retries, for the DLQ.
type RunFailure struct {
	JobID    string    `json:"job_id"`
	Hop      int       `json:"hop"`
	UnitRef  string    `json:"unit_ref,omitempty"`
	Kind     string    `json:"kind"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}
