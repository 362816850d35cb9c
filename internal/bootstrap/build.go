package bootstrap

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"relentless-relay/internal/budget"
	"relentless-relay/internal/crawler"
	"relentless-relay/internal/graph"
	"relentless-relay/internal/listing"
	"relentless-relay/internal/models"
	"relentless-relay/internal/ol"
	"relentless-relay/internal/pipeline"
	"relentless-relay/internal/store"
)

const (
	storeRetryMaxDelay = 2 * time.Second
	pgMaxConns         = 4
)

// BuildProcessor returns the processor for cfg.Source and the job's first unit.
func BuildProcessor(cfg Config, client *http.Client, robots *ol.RobotsRules) (crawler.Processor, models.WorkUnit, error) {
	switch cfg.Source {
	case SourceOpenLibrary:
		pager := ol.NewSearchPager(client, ol.DefaultBaseURL, cfg.SearchQuery, cfg.PageLimit, robots)
		start := pager.StartUnit()
		if cfg.StartURL != "" {
			start = models.WorkUnit{Ref: cfg.StartURL}
		}
		return pager, start, nil
	case SourceCatalogue:
		if cfg.StartURL == "" {
			return nil, models.WorkUnit{}, fmt.Errorf("START_URL is required for source %s", cfg.Source)
		}
		p := listing.NewCatalogueProcessor(client, cfg.ItemSelector, cfg.NextSelector, robots)
		return p, models.WorkUnit{Ref: cfg.StartURL}, nil
	default:
		return nil, models.WorkUnit{}, fmt.Errorf("unknown SOURCE %q", cfg.Source)
	}
}

// BuildStore opens the configured record store. The returned close func is never nil.
// Every store except memory is wrapped in bounded local retries.
func BuildStore(ctx context.Context, cfg Config) (crawler.RecordStore, func(), error) {
	var (
		inner   crawler.RecordStore
		closeFn func()
	)
	switch cfg.Store {
	case StoreMemory:
		return store.NewMemoryRecordStore(), func() {}, nil
	case StoreRedis:
		s := store.NewRedisRecordStore(cfg.RedisAddr, cfg.RecordPrefix, cfg.RecordTTL)
		inner = s
		closeFn = func() {
			if err := s.Close(); err != nil {
				log.Printf("failed to close redis record store: %v", err)
			}
		}
	case StorePostgres:
		pool, err := store.OpenPostgresPool(ctx, cfg.PostgresDSN, pgMaxConns, cfg.PostgresBounce)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		s := store.NewPostgresRecordStore(pool, cfg.PostgresTable)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		inner = s
		closeFn = pool.Close
	case StoreNeo4j:
		driver, err := graph.OpenNeo4j(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, nil, fmt.Errorf("open neo4j: %w", err)
		}
		s, err := graph.NewNeo4jRecordStore(driver, cfg.Neo4jLabel)
		if err != nil {
			_ = driver.Close(ctx)
			return nil, nil, err
		}
		if err := s.EnsureConstraint(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, nil, fmt.Errorf("ensure neo4j constraint: %w", err)
		}
		inner = s
		closeFn = func() {
			if err := s.Close(context.Background()); err != nil {
				log.Printf("failed to close neo4j driver: %v", err)
			}
		}
	default:
		return nil, nil, fmt.Errorf("unknown STORE %q", cfg.Store)
	}
	return store.NewRetrying(inner, cfg.StoreRetryMax, cfg.StoreRetryBase, storeRetryMaxDelay), closeFn, nil
}

// BuildWorker assembles the pipeline from already opened adapters.
func BuildWorker(cfg Config, processor crawler.Processor, start models.WorkUnit, records crawler.RecordStore, channel crawler.ContinuationPublisher, observer pipeline.Observer) (*pipeline.Worker, error) {
	return pipeline.New(pipeline.Config{
		JobID:       cfg.JobID,
		Start:       start,
		Processor:   processor,
		Store:       records,
		Channel:     channel,
		Budget:      budget.NewMaxUnits(cfg.MaxUnits),
		CallTimeout: cfg.CallTimeout,
		Observer:    observer,
		Logger:      LogKV,
	})
}

// LogKV writes msg followed by key=value pairs through the standard logger.
func LogKV(msg string, kv ...any) {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(&b, " %v=?", kv[i])
		}
	}
	log.Print(b.String())
}
