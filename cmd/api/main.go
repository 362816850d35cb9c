package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"relentless-relay/common"
	"relentless-relay/internal/bootstrap"
	"relentless-relay/internal/kafka"
	"relentless-relay/internal/models"
	"relentless-relay/internal/store"
)

var (
	apiRunsTriggered uint64
	apiStatusReads   uint64
)

type server struct {
	prod  kafka.StartPublisher
	store store.StatusStore
	jobs  map[string]bool
	// defaultJob is used when POST /runs omits ?job=.
	defaultJob string
}

func newServer(prod kafka.StartPublisher, store store.StatusStore, jobs []string) *server {
	allowed := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		allowed[job] = true
	}
	defaultJob := ""
	if len(jobs) > 0 {
		defaultJob = jobs[0]
	}
	return &server{
		prod:       prod,
		store:      store,
		jobs:       allowed,
		defaultJob: defaultJob,
	}
}

func main() {
	cfg := bootstrap.FromEnv()
	jobs := common.SplitList(common.GetEnv("API_JOB_IDS", cfg.JobID))
	addr := common.GetEnv("API_ADDR", ":8080")

	prod := kafka.NewContinuationProducer(cfg.KafkaBroker, cfg.ContinuationTopic)
	defer func() {
		if err := prod.Close(); err != nil {
			log.Printf("failed to close producer: %v", err)
		}
	}()

	statusStore := store.NewRedisStatusStore(cfg.RedisAddr, cfg.StatusPrefix, cfg.StatusTTL)
	defer func() {
		if err := statusStore.Close(); err != nil {
			log.Printf("failed to close status store: %v", err)
		}
	}()

	srv := newServer(prod, statusStore, jobs)

	mux := http.NewServeMux()
	mux.HandleFunc("/runs", srv.handleRuns)
	mux.HandleFunc("/runs/", srv.handleRunStatus)
	mux.HandleFunc("/metrics", srv.handleMetrics)

	log.Printf("api listening on %s jobs=%s topic=%s", addr, strings.Join(jobs, ","), cfg.ContinuationTopic)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

// handleRuns starts a job chain from its first unit.
//
// Method: POST
// Path:   /runs?job=...
// Example:
//
//	curl -X POST "http://localhost:8080/runs?job=openlibrary-search"
func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := strings.TrimSpace(r.URL.Query().Get("job"))
	if jobID == "" {
		jobID = s.defaultJob
	}
	if jobID == "" {
		http.Error(w, "missing job", http.StatusBadRequest)
		return
	}
	if !s.jobs[jobID] {
		http.Error(w, fmt.Sprintf("unknown job %q", jobID), http.StatusNotFound)
		return
	}

	status := models.RunStatus{
		JobID:     jobID,
		Status:    "queued",
		UpdatedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.prod.PublishStart(ctx, jobID); err != nil {
		log.Printf("start publish error job=%s: %v", jobID, err)
		http.Error(w, "failed to enqueue run", http.StatusBadGateway)
		return
	}

	if err := s.store.SetStatus(ctx, status); err != nil {
		http.Error(w, "failed to persist status", http.StatusBadGateway)
		return
	}

	atomic.AddUint64(&apiRunsTriggered, 1)
	log.Printf("run queued job=%s", jobID)
	writeJSON(w, status, http.StatusAccepted)
}

// handleRunStatus returns the latest invocation status of a job chain.
//
// Method: GET
// Path:   /runs/{jobID}
// Example:
//
//	curl "http://localhost:8080/runs/openlibrary-search"
func (s *server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/runs/"), "/")
	if rest, ok := strings.CutSuffix(jobID, "/history"); ok {
		s.handleRunHistory(w, r, rest)
		return
	}
	if jobID == "" {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}

	status, ok, err := s.store.GetStatus(r.Context(), jobID)
	if err != nil {
		http.Error(w, "failed to load status", http.StatusBadGateway)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	atomic.AddUint64(&apiStatusReads, 1)
	writeJSON(w, status, http.StatusOK)
}

// handleRunHistory returns the most recent statuses of a job chain, newest first.
//
// Method: GET
// Path:   /runs/{jobID}/history?limit=N
// Example:
//
//	curl "http://localhost:8080/runs/openlibrary-search/history?limit=10"
func (s *server) handleRunHistory(w http.ResponseWriter, r *http.Request, jobID string) {
	if jobID == "" {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}
	limit := common.ParseInt(r.URL.Query().Get("limit"), 20)

	history, err := s.store.History(r.Context(), jobID, limit)
	if err != nil {
		http.Error(w, "failed to load history", http.StatusBadGateway)
		return
	}
	if len(history) == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	atomic.AddUint64(&apiStatusReads, 1)
	writeJSON(w, history, http.StatusOK)
}

// handleMetrics exposes a minimal Prometheus-compatible endpoint.
//
// Method: GET
// Path:   /metrics
// Example:
//
//	curl "http://localhost:8080/metrics"
func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w,
		"relentless_relay_api_up 1\n"+
			"relentless_relay_api_runs_triggered_total %d\n"+
			"relentless_relay_api_status_reads_total %d\n",
		atomic.LoadUint64(&apiRunsTriggered),
		atomic.LoadUint64(&apiStatusReads),
	)
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
