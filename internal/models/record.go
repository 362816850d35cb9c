package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// recordNamespace scopes NaturalKey UUIDs so they never collide with other v5 ids.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("relentless-relay/record"))

// Record is one extracted output item keyed by its natural key.
type Record struct {
	Key       string         `json:"key"`
	JobID     string         `json:"job_id"`
	Source    string         `json:"source"`
	Fields    map[string]any `json:"fields,omitempty"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// NaturalKey derives a deterministic key from content. Identical parts always
// produce the same key, so repeated writes of the same item collapse into one.
func NaturalKey(parts ...string) string {
	return uuid.NewSHA1(recordNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}
