package kafka

import (
	"encoding/json"
	"strings"

	"relentless-relay/internal/models"
)

// startMessage is the body of a manual start trigger. It carries no cursor.
type startMessage struct {
	JobID string `json:"job_id"`
}

// wireMessage mirrors models.ContinuationMessage with every field optional so
// a damaged body can be told apart from a valid one.
type wireMessage struct {
	Cursor *struct {
		JobID string            `json:"job_id"`
		Unit  *models.WorkUnit  `json:"unit"`
		Meta  map[string]string `json:"meta"`
	} `json:"cursor"`
	Attempt int    `json:"attempt"`
	JobID   string `json:"job_id"`
}

// Delivery is the decoded form of a message from the continuation topic.
type Delivery struct {
	// Resume is nil when the message means "start of job".
	Resume *models.ContinuationMessage
	// Foreign is set when the message belongs to a different job; it must not be run.
	Foreign bool
	// Malformed is set when the body could not be read as a continuation.
	Malformed bool
}

// ParseContinuation decodes a continuation body for jobID. It never fails:
// an empty, malformed, or cursor-less body degrades to "start of job" so a
// corrupt message cannot stall the chain.
func ParseContinuation(body []byte, jobID string) Delivery {
	if len(strings.TrimSpace(string(body))) == 0 {
		return Delivery{Malformed: true}
	}
	var wire wireMessage
	if err := json.Unmarshal(body, &wire); err != nil {
		return Delivery{Malformed: true}
	}

	owner := wire.JobID
	if wire.Cursor != nil && wire.Cursor.JobID != "" {
		owner = wire.Cursor.JobID
	}
	if owner != "" && owner != jobID {
		return Delivery{Foreign: true}
	}

	if wire.Cursor == nil || wire.Cursor.Unit == nil {
		// A start trigger carries only job_id; anything else without a cursor is damaged.
		return Delivery{Malformed: wire.JobID == ""}
	}
	unit := *wire.Cursor.Unit
	unit.Ref = strings.TrimSpace(unit.Ref)
	if unit.Ref == "" || unit.Seq < 0 {
		return Delivery{Malformed: true}
	}
	attempt := wire.Attempt
	if attempt < 0 {
		attempt = 0
	}
	return Delivery{
		Resume: &models.ContinuationMessage{
			Cursor: models.Cursor{
				JobID: jobID,
				Unit:  unit,
				Meta:  wire.Cursor.Meta,
			},
			Attempt: attempt,
		},
	}
}
