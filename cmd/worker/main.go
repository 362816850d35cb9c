package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"relentless-relay/internal/bootstrap"
	"relentless-relay/internal/crawler"
	rkafka "relentless-relay/internal/kafka"
	"relentless-relay/internal/models"
	"relentless-relay/internal/ol"
	"relentless-relay/internal/pipeline"
	"relentless-relay/internal/store"
)

type messageReader = crawler.MessageReader

type invocationRunner interface {
	Run(ctx context.Context, resume *models.ContinuationMessage) (pipeline.Outcome, error)
}

type failureWriter interface {
	WriteFailure(ctx context.Context, failure models.RunFailure) error
}

type statusWriter interface {
	SetStatus(ctx context.Context, status models.RunStatus) error
}

// host consumes the continuation topic and runs one invocation per message.
// Messages are handled one at a time and committed only after the invocation
// (and its retries) finish, so delivery is at-least-once.
type host struct {
	reader            messageReader
	runner            invocationRunner
	jobID             string
	failures          failureWriter // nil = no DLQ
	statuses          statusWriter  // nil = no status tracking
	retryMax          int
	retryBase         time.Duration
	retryMaxDelay     time.Duration
	invocationTimeout time.Duration
}

func newHost(
	reader messageReader,
	runner invocationRunner,
	jobID string,
	failures failureWriter,
	statuses statusWriter,
	retryMax int,
	retryBase time.Duration,
	retryMaxDelay time.Duration,
	invocationTimeout time.Duration,
) *host {
	if retryMax < 0 {
		retryMax = 0
	}
	if invocationTimeout <= 0 {
		invocationTimeout = 10 * time.Minute
	}
	return &host{
		reader:            reader,
		runner:            runner,
		jobID:             jobID,
		failures:          failures,
		statuses:          statuses,
		retryMax:          retryMax,
		retryBase:         retryBase,
		retryMaxDelay:     retryMaxDelay,
		invocationTimeout: invocationTimeout,
	}
}

func main() {
	cfg := bootstrap.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient, proxyURL := bootstrap.BuildHTTPClient(cfg)
	metricsProxyURL = proxyURL
	instrumentClient(httpClient)

	var robots *ol.RobotsRules
	if cfg.RespectRobotsTxt {
		origin := cfg.StartURL
		if origin == "" {
			origin = ol.DefaultBaseURL
		}
		robots = bootstrap.LoadRobots(ctx, httpClient, origin)
	}

	processor, start, err := bootstrap.BuildProcessor(cfg, httpClient, robots)
	if err != nil {
		log.Fatalf("build processor: %v", err)
	}

	records, closeRecords, err := bootstrap.BuildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("build store: %v", err)
	}
	defer closeRecords()

	continuations := rkafka.NewContinuationProducer(cfg.KafkaBroker, cfg.ContinuationTopic)
	defer func() {
		if err := continuations.Close(); err != nil {
			log.Printf("failed to close continuation writer: %v", err)
		}
	}()

	dlq := rkafka.NewFailureProducer(cfg.KafkaBroker, cfg.DLQTopic)
	defer func() {
		if err := dlq.Close(); err != nil {
			log.Printf("failed to close dlq writer: %v", err)
		}
	}()

	statuses := store.NewRedisStatusStore(cfg.RedisAddr, cfg.StatusPrefix, cfg.StatusTTL)
	defer func() {
		if err := statuses.Close(); err != nil {
			log.Printf("failed to close status store: %v", err)
		}
	}()

	runner, err := bootstrap.BuildWorker(cfg, processor, start, records, continuations, metricsObserver{})
	if err != nil {
		log.Fatalf("build worker: %v", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{cfg.KafkaBroker},
		Topic:   cfg.ContinuationTopic,
		GroupID: cfg.GroupID,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("failed to close reader: %v", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.MetricsAddr)
	}

	log.Printf("worker consuming topic=%s group=%s broker=%s job=%s source=%s store=%s max_units=%d",
		cfg.ContinuationTopic, cfg.GroupID, cfg.KafkaBroker, cfg.JobID, cfg.Source, cfg.Store, cfg.MaxUnits)
	h := newHost(reader, runner, cfg.JobID, dlq, statuses, cfg.RetryMax, cfg.RetryBaseDelay, cfg.RetryMaxDelay, cfg.InvocationTimeout)
	h.run(ctx)
}

// run consumes messages until ctx is cancelled.
func (h *host) run(ctx context.Context) {
	for {
		msg, err := h.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err := h.handleMessage(ctx, msg); err != nil {
			log.Printf("message handling error: %v", err)
		}
	}
}

// handleMessage runs the invocation a message asks for and then commits it.
// The offset is left uncommitted only when shutdown interrupts the run, so
// the next consumer replays it.
func (h *host) handleMessage(ctx context.Context, msg kafka.Message) error {
	atomic.AddUint64(&workerMessagesReceived, 1)
	delivery := rkafka.ParseContinuation(msg.Value, h.jobID)

	switch {
	case delivery.Foreign:
		atomic.AddUint64(&workerMessagesForeign, 1)
		log.Printf("foreign continuation skipped job=%s partition=%d offset=%d", h.jobID, msg.Partition, msg.Offset)
		return h.commit(ctx, msg)
	case delivery.Malformed:
		atomic.AddUint64(&workerMessagesMalformed, 1)
		log.Printf("malformed continuation treated as start of job job=%s partition=%d offset=%d", h.jobID, msg.Partition, msg.Offset)
	}

	hop, unitRef := 0, ""
	if delivery.Resume != nil {
		hop, unitRef = delivery.Resume.Attempt, delivery.Resume.Cursor.Unit.Ref
	}
	log.Printf("received continuation job=%s hop=%d unit=%s partition=%d offset=%d", h.jobID, hop, unitRef, msg.Partition, msg.Offset)

	out, attempts, err := h.runWithRetry(ctx, delivery.Resume)
	if err != nil && ctx.Err() != nil {
		log.Printf("shutdown during invocation job=%s hop=%d; leaving offset uncommitted", h.jobID, hop)
		return err
	}
	h.recordOutcome(ctx, out, err)

	if err != nil {
		countFailure(crawler.Kind(err))
		log.Printf("invocation failed job=%s hop=%d unit=%s attempts=%d kind=%s err=%v", h.jobID, hop, unitRef, attempts, crawler.Kind(err), err)
		if dlqErr := h.publishDLQ(ctx, hop, unitRef, attempts, err); dlqErr != nil {
			log.Printf("dlq publish error: %v", dlqErr)
		}
	}
	return h.commit(ctx, msg)
}

// runWithRetry repeats the invocation from the same message with capped
// exponential backoff. Each attempt gets its own invocation deadline.
func (h *host) runWithRetry(ctx context.Context, resume *models.ContinuationMessage) (pipeline.Outcome, int, error) {
	delay := h.retryBase
	attempts := 0
	for {
		out, err := h.invoke(ctx, resume)
		attempts++
		if err == nil {
			return out, attempts, nil
		}
		if attempts > h.retryMax || ctx.Err() != nil || errors.Is(err, pipeline.ErrForeignCursor) {
			return out, attempts, err
		}
		atomic.AddUint64(&workerInvocationRetries, 1)
		log.Printf("retrying invocation job=%s attempt=%d kind=%s err=%v", h.jobID, attempts, crawler.Kind(err), err)
		if delay > 0 {
			if h.retryMaxDelay > 0 && delay > h.retryMaxDelay {
				delay = h.retryMaxDelay
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out, attempts, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}
	}
}

func (h *host) invoke(ctx context.Context, resume *models.ContinuationMessage) (pipeline.Outcome, error) {
	invocationCtx, cancel := context.WithTimeout(ctx, h.invocationTimeout)
	defer cancel()
	atomic.AddUint64(&workerInvocationsTotal, 1)
	out, err := h.runner.Run(invocationCtx, resume)
	if err == nil {
		switch {
		case out.Next != nil:
			atomic.AddUint64(&workerContinuationsPublished, 1)
		case out.State == pipeline.StateDone:
			atomic.AddUint64(&workerChainsCompleted, 1)
		}
	}
	return out, err
}

func (h *host) recordOutcome(ctx context.Context, out pipeline.Outcome, runErr error) {
	if h.statuses == nil {
		return
	}
	status := pipeline.StatusOf(out, runErr, time.Now())
	if status.JobID == "" {
		status.JobID = h.jobID
	}
	if err := h.statuses.SetStatus(ctx, status); err != nil {
		log.Printf("status update error job=%s: %v", h.jobID, err)
	}
}

func (h *host) publishDLQ(ctx context.Context, hop int, unitRef string, attempts int, runErr error) error {
	if h.failures == nil {
		return nil
	}
	err := h.failures.WriteFailure(ctx, models.RunFailure{
		JobID:    h.jobID,
		Hop:      hop,
		UnitRef:  unitRef,
		Kind:     crawler.Kind(runErr),
		Error:    runErr.Error(),
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	})
	if err == nil {
		atomic.AddUint64(&workerDLQPublished, 1)
	}
	return err
}

func (h *host) commit(ctx context.Context, msg kafka.Message) error {
	start := time.Now()
	err := h.reader.CommitMessages(ctx, msg)
	commitLatency.observe(time.Since(start))
	if err != nil {
		atomic.AddUint64(&workerCommitErrorsTotal, 1)
		return err
	}
	return nil
}
