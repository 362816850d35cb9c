package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"relentless-relay/internal/bootstrap"
	rkafka "relentless-relay/internal/kafka"
	"relentless-relay/internal/models"
	"relentless-relay/internal/ol"
	"relentless-relay/internal/pipeline"
	"relentless-relay/internal/store"
	"relentless-relay/internal/trigger"
)

type statusWriter interface {
	SetStatus(ctx context.Context, status models.RunStatus) error
}

func main() {
	cfg := bootstrap.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient, _ := bootstrap.BuildHTTPClient(cfg)
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

	statuses := store.NewRedisStatusStore(cfg.RedisAddr, cfg.StatusPrefix, cfg.StatusTTL)
	defer func() {
		if err := statuses.Close(); err != nil {
			log.Printf("failed to close status store: %v", err)
		}
	}()

	runner, err := bootstrap.BuildWorker(cfg, processor, start, records, continuations, nil)
	if err != nil {
		log.Fatalf("build worker: %v", err)
	}

	sched, err := trigger.New(cfg.Schedule, runner, cfg.InvocationTimeout, statusRecorder(statuses, cfg.JobID))
	if err != nil {
		log.Fatalf("build scheduler: %v", err)
	}
	sched.Start()
	log.Printf("scheduler started job=%s schedule=%q next=%s", cfg.JobID, cfg.Schedule, sched.Next().Format(time.RFC3339))

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.InvocationTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		log.Printf("scheduler stop: %v", err)
	}
}

// statusRecorder stores the outcome of every scheduled tick.
func statusRecorder(statuses statusWriter, jobID string) func(pipeline.Outcome, error) {
	return func(out pipeline.Outcome, runErr error) {
		status := pipeline.StatusOf(out, runErr, time.Now())
		if status.JobID == "" {
			status.JobID = jobID
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statuses.SetStatus(ctx, status); err != nil {
			log.Printf("status update error job=%s: %v", jobID, err)
		}
	}
}
