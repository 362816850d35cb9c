package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"relentless-relay/internal/models"
	"relentless-relay/internal/pipeline"
)

var (
	// received: messages pulled from Kafka; foreign/malformed: payload problems.
	workerMessagesReceived  uint64
	workerMessagesForeign   uint64
	workerMessagesMalformed uint64

	// retries counts host-level re-runs of the same message.
	workerInvocationsTotal       uint64
	workerInvocationRetries      uint64
	workerContinuationsPublished uint64
	workerChainsCompleted        uint64
	workerDLQPublished           uint64

	// Reported by the pipeline observer.
	workerUnitsProcessed uint64
	workerRecordsStored  uint64

	workerRateLimitHitsTotal uint64 // upstream HTTP 429 responses
	workerCommitErrorsTotal  uint64

	// Invocations that exhausted host retries, by error kind. The map is fixed
	// at init; only the counters change.
	workerFailuresByKind = map[string]*uint64{
		"fetch":   new(uint64),
		"parse":   new(uint64),
		"store":   new(uint64),
		"channel": new(uint64),
		"unknown": new(uint64),
	}

	fetchLatency  = newHistogram("relentless_relay_fetch_latency_seconds", "Upstream fetch latency.", "%.2f", 0.05, 0.1, 0.25, 0.5, 1, 2, 5)
	unitLatency   = newHistogram("relentless_relay_unit_latency_seconds", "Time to fetch, extract and persist one unit.", "%.2f", 0.1, 0.25, 0.5, 1, 2, 5, 10, 30)
	commitLatency = newHistogram("relentless_relay_commit_latency_seconds", "Kafka commit latency.", "%.3f", 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1)
)

// metricsProxyURL is the proxy URL this worker uses (set at startup for /metrics proxy label).
var metricsProxyURL string

type counter struct {
	name string
	help string
	val  *uint64
}

func workerCounters() []counter {
	return []counter{
		{"relentless_relay_messages_received_total", "Continuation messages pulled from Kafka.", &workerMessagesReceived},
		{"relentless_relay_messages_foreign_total", "Messages for another job, skipped.", &workerMessagesForeign},
		{"relentless_relay_messages_malformed_total", "Unreadable messages treated as start of job.", &workerMessagesMalformed},
		{"relentless_relay_invocations_total", "Worker invocations including retries.", &workerInvocationsTotal},
		{"relentless_relay_invocation_retries_total", "Host retries of a failed invocation.", &workerInvocationRetries},
		{"relentless_relay_continuations_published_total", "Invocations that handed off a cursor.", &workerContinuationsPublished},
		{"relentless_relay_chains_completed_total", "Invocations that reached the end of input.", &workerChainsCompleted},
		{"relentless_relay_dlq_published_total", "Failure reports written to the DLQ.", &workerDLQPublished},
		{"relentless_relay_units_processed_total", "Work units fully persisted.", &workerUnitsProcessed},
		{"relentless_relay_records_stored_total", "Records written to the store.", &workerRecordsStored},
		{"relentless_relay_rate_limit_hits_total", "Upstream HTTP 429 (rate limit) responses.", &workerRateLimitHitsTotal},
		{"relentless_relay_commit_errors_total", "Kafka offset commit failures.", &workerCommitErrorsTotal},
	}
}

// countFailure records an invocation that ran out of retries.
func countFailure(kind string) {
	c, ok := workerFailuresByKind[kind]
	if !ok {
		c = workerFailuresByKind["unknown"]
	}
	atomic.AddUint64(c, 1)
}

// histogram is a lock-free Prometheus histogram. counts has one slot per
// bucket plus the implicit +Inf bucket.
type histogram struct {
	name    string
	help    string
	leFmt   string
	buckets []float64
	counts  []uint64
	sumNs   uint64
	count   uint64
}

func newHistogram(name, help, leFmt string, buckets ...float64) *histogram {
	return &histogram{
		name:    name,
		help:    help,
		leFmt:   leFmt,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)+1),
	}
}

func (h *histogram) observe(d time.Duration) {
	if d <= 0 {
		return
	}
	seconds := d.Seconds()
	idx := len(h.buckets)
	for i, bound := range h.buckets {
		if seconds <= bound {
			idx = i
			break
		}
	}
	atomic.AddUint64(&h.counts[idx], 1)
	atomic.AddUint64(&h.sumNs, uint64(d.Nanoseconds()))
	atomic.AddUint64(&h.count, 1)
}

// writeTo renders cumulative buckets, sum and count.
func (h *histogram) writeTo(sb *strings.Builder) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += atomic.LoadUint64(&h.counts[i])
		fmt.Fprintf(sb, "%s_bucket{le=\"%s\"} %d\n", h.name, fmt.Sprintf(h.leFmt, bound), cumulative)
	}
	cumulative += atomic.LoadUint64(&h.counts[len(h.buckets)])
	fmt.Fprintf(sb, "%s_bucket{le=\"+Inf\"} %d\n", h.name, cumulative)
	fmt.Fprintf(sb, "%s_sum %.6f\n", h.name, float64(atomic.LoadUint64(&h.sumNs))/float64(time.Second))
	fmt.Fprintf(sb, "%s_count %d\n", h.name, atomic.LoadUint64(&h.count))
}

func (h *histogram) reset() {
	for i := range h.counts {
		atomic.StoreUint64(&h.counts[i], 0)
	}
	atomic.StoreUint64(&h.sumNs, 0)
	atomic.StoreUint64(&h.count, 0)
}

// metricsObserver feeds pipeline progress into the /metrics counters.
type metricsObserver struct{}

func (metricsObserver) OnTransition(_, _ pipeline.State, _ models.WorkUnit) {}

func (metricsObserver) OnUnitDone(_ models.WorkUnit, records int, dur time.Duration) {
	atomic.AddUint64(&workerUnitsProcessed, 1)
	atomic.AddUint64(&workerRecordsStored, uint64(records))
	unitLatency.observe(dur)
}

// meteredTransport records upstream latency and rate-limit hits.
type meteredTransport struct {
	next http.RoundTripper
}

func (t meteredTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	fetchLatency.observe(time.Since(start))
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		atomic.AddUint64(&workerRateLimitHitsTotal, 1)
	}
	return resp, err
}

// instrumentClient wraps client's transport with meteredTransport.
func instrumentClient(client *http.Client) {
	next := client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	client.Transport = meteredTransport{next: next}
}

func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", handleMetrics)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown error: %v", err)
		}
	}()

	go func() {
		log.Printf("metrics listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var sb strings.Builder
	sb.WriteString("relentless_relay_worker_up 1\n")
	for _, c := range workerCounters() {
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, c.help, c.name, c.name, atomic.LoadUint64(c.val))
	}

	sb.WriteString("# HELP relentless_relay_invocations_failed_total Invocations that exhausted host retries.\n")
	sb.WriteString("# TYPE relentless_relay_invocations_failed_total counter\n")
	for _, kind := range []string{"fetch", "parse", "store", "channel", "unknown"} {
		fmt.Fprintf(&sb, "relentless_relay_invocations_failed_total{kind=%q} %d\n", kind, atomic.LoadUint64(workerFailuresByKind[kind]))
	}

	if metricsProxyURL != "" {
		// Proxy pool: segment fetch latency / failures by proxy in Grafana (join by instance/pod).
		sb.WriteString("# HELP relentless_relay_proxy_info Proxy URL this worker uses (1 when set).\n")
		sb.WriteString("# TYPE relentless_relay_proxy_info gauge\n")
		fmt.Fprintf(&sb, "relentless_relay_proxy_info{proxy=\"%s\"} 1\n", escapeMetricLabel(metricsProxyURL))
	}

	fetchLatency.writeTo(&sb)
	unitLatency.writeTo(&sb)
	commitLatency.writeTo(&sb)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

// escapeMetricLabel escapes backslash and double quote for Prometheus label values.
func escapeMetricLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "\"", "\\\"")
}
