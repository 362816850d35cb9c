package graph

import (
	"strings"
	"testing"
	"time"

	"relentless-relay/internal/crawler"
	"relentless-relay/internal/models"
)

func TestBuildRecordQuery(t *testing.T) {
	rec := models.Record{
		Key:       "/works/OL1W",
		JobID:     "job",
		Source:    "openlibrary",
		Fields:    map[string]any{"title": "The Hobbit"},
		FetchedAt: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
	}
	query, params, err := buildRecordQuery("Record", rec)
	if err != nil {
		t.Fatalf("buildRecordQuery error: %v", err)
	}
	if !strings.HasPrefix(query, "MERGE (r:Record {key: $key})") {
		t.Fatalf("unexpected query: %s", query)
	}
	if params["key"] != rec.Key || params["job_id"] != "job" || params["source"] != "openlibrary" {
		t.Fatalf("unexpected params: %+v", params)
	}
	if params["fields"] != `{"title":"The Hobbit"}` {
		t.Fatalf("unexpected fields param: %v", params["fields"])
	}
}

func TestBuildRecordQueryNilFields(t *testing.T) {
	_, params, err := buildRecordQuery("Record", models.Record{Key: "k"})
	if err != nil {
		t.Fatalf("buildRecordQuery error: %v", err)
	}
	if params["fields"] != "{}" {
		t.Fatalf("expected {}, got %v", params["fields"])
	}
}

func TestBuildRecordQuerySetsFetchedAtOnCreateOnly(t *testing.T) {
	query, params, err := buildRecordQuery("Record", models.Record{
		Key:       "k",
		FetchedAt: time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("buildRecordQuery error: %v", err)
	}
	onCreate := strings.Index(query, "ON CREATE SET r.fetched_at = $fetched_at")
	if onCreate < 0 {
		t.Fatalf("fetched_at must be set on create: %s", query)
	}
	if strings.Count(query, "r.fetched_at") != 1 {
		t.Fatalf("fetched_at must not be overwritten on match: %s", query)
	}
	if params["fetched_at"] != "2026-10-17T08:30:00.000000000Z" {
		t.Fatalf("unexpected fetched_at param: %v", params["fetched_at"])
	}
}

func TestBuildRecordQueryUnencodableFieldsArePermanent(t *testing.T) {
	_, _, err := buildRecordQuery("Record", models.Record{Key: "k", Fields: map[string]any{"c": make(chan int)}})
	if !crawler.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
