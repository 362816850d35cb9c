package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"relentless-relay/internal/crawler"
	"relentless-relay/internal/models"
)

var labelPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Neo4jRecordStore MERGEs each record as a node keyed by its natural key.
type Neo4jRecordStore struct {
	driver DriverSessioner
	label  string
}

// NewNeo4jRecordStore writes nodes with the given label (default "Record").
func NewNeo4jRecordStore(driver DriverSessioner, label string) (*Neo4jRecordStore, error) {
	if label == "" {
		label = "Record"
	}
	if !labelPattern.MatchString(label) {
		return nil, fmt.Errorf("invalid neo4j label %q", label)
	}
	return &Neo4jRecordStore{driver: driver, label: label}, nil
}

// Close closes the underlying driver.
func (s *Neo4jRecordStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// EnsureConstraint makes the natural key unique for the store's label so
// concurrent MERGEs of one key cannot create two nodes.
func (s *Neo4jRecordStore) EnsureConstraint(ctx context.Context) error {
	query := fmt.Sprintf(
		"CREATE CONSTRAINT %s_key IF NOT EXISTS FOR (r:%s) REQUIRE r.key IS UNIQUE",
		strings.ToLower(s.label), s.label,
	)
	return s.write(ctx, query, nil)
}

// Put merges rec. Properties other than fetched_at are replaced on every write
// so a repeat is a no-op; fetched_at is set when the node is created.
func (s *Neo4jRecordStore) Put(ctx context.Context, rec models.Record) error {
	query, params, err := buildRecordQuery(s.label, rec)
	if err != nil {
		return err
	}
	return s.write(ctx, query, params)
}

func (s *Neo4jRecordStore) write(ctx context.Context, query string, params map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() {
		if err := session.Close(ctx); err != nil {
			log.Printf("neo4j session close error: %v", err)
		}
	}()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

func buildRecordQuery(label string, rec models.Record) (string, map[string]any, error) {
	fields := rec.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", nil, crawler.Permanent(err)
	}
	query := fmt.Sprintf(
		"MERGE (r:%s {key: $key}) "+
			"ON CREATE SET r.fetched_at = $fetched_at "+
			"SET r.job_id = $job_id, r.source = $source, r.fields = $fields",
		label,
	)
	params := map[string]any{
		"key":        rec.Key,
		"job_id":     rec.JobID,
		"source":     rec.Source,
		"fields":     string(raw),
		"fetched_at": rec.FetchedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
	}
	return query, params, nil
}
