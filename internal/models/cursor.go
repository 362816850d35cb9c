package models

// WorkUnit identifies one slice of input, e.g. one listing page.
type WorkUnit struct {
	Ref string `json:"ref"`
	Seq int    `json:"seq"`
}

// Cursor points at the next WorkUnit of a single job's chain.
type Cursor struct {
	JobID string            `json:"job_id"`
	Unit  WorkUnit          `json:"unit"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// ContinuationMessage hands a Cursor to the next invocation.
// Attempt is the hop number of the invocation that consumes it; the scheduled start is hop 0.
type ContinuationMessage struct {
	Cursor  Cursor `json:"cursor"`
	Attempt int    `json:"attempt"`
}
