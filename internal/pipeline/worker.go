// Package pipeline runs one bounded, self-resuming crawl invocation.
//
// An invocation processes units from a resume cursor (or the job's start unit)
// until the input ends or the budget is spent. Records are stored after every
// unit; a continuation is published only after the loop exits, so a killed
// invocation never double-publishes. Errors end the invocation without a
// continuation and leave retries to the host.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"relentless-relay/internal/budget"
	"relentless-relay/internal/crawler"
	"relentless-relay/internal/models"
)

// ErrForeignCursor is returned when a resume cursor belongs to another job.
var ErrForeignCursor = errors.New("cursor belongs to a different job")

// Config wires a Worker. Processor, Store, Channel, JobID and Start.Ref are required.
type Config struct {
	JobID       string
	Start       models.WorkUnit
	Processor   crawler.Processor
	Store       crawler.RecordStore
	Channel     crawler.ContinuationPublisher
	Budget      budget.Policy // default: one unit per invocation
	CallTimeout time.Duration // per adapter call; 0 disables
	Observer    Observer      // optional
	Logger      func(msg string, kv ...any)
}

// Worker is safe for sequential reuse across invocations; it holds no per-run state.
type Worker struct {
	jobID       string
	start       models.WorkUnit
	processor   crawler.Processor
	store       crawler.RecordStore
	channel     crawler.ContinuationPublisher
	budget      budget.Policy
	callTimeout time.Duration
	observer    Observer
	logger      func(msg string, kv ...any)
}

// New validates cfg and builds a Worker.
func New(cfg Config) (*Worker, error) {
	switch {
	case cfg.JobID == "":
		return nil, errors.New("pipeline: job id is required")
	case cfg.Start.Ref == "":
		return nil, errors.New("pipeline: start unit is required")
	case cfg.Processor == nil:
		return nil, errors.New("pipeline: processor is required")
	case cfg.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case cfg.Channel == nil:
		return nil, errors.New("pipeline: continuation channel is required")
	}
	policy := cfg.Budget
	if policy == nil {
		policy = budget.NewMaxUnits(1)
	}
	return &Worker{
		jobID:       cfg.JobID,
		start:       cfg.Start,
		processor:   cfg.Processor,
		store:       cfg.Store,
		channel:     cfg.Channel,
		budget:      policy,
		callTimeout: cfg.CallTimeout,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
	}, nil
}

// JobID returns the job this worker advances.
func (w *Worker) JobID() string { return w.jobID }

// Run executes one invocation. A nil resume starts the job from its first unit.
func (w *Worker) Run(ctx context.Context, resume *models.ContinuationMessage) (Outcome, error) {
	out := Outcome{
		InvocationID: uuid.NewString(),
		JobID:        w.jobID,
		Start:        w.start,
		State:        StateStart,
	}
	var meta map[string]string
	if resume != nil {
		if resume.Cursor.JobID != "" && resume.Cursor.JobID != w.jobID {
			out.State, out.FailedIn = StateError, StateStart
			return out, fmt.Errorf("%w: got %q want %q", ErrForeignCursor, resume.Cursor.JobID, w.jobID)
		}
		if resume.Cursor.Unit.Ref != "" {
			out.Start = resume.Cursor.Unit
			out.Hop = resume.Attempt
			meta = resume.Cursor.Meta
		}
	}
	visited := trailFrom(meta)

	w.logf("invocation start", "invocation", out.InvocationID, "job", w.jobID, "hop", out.Hop, "unit", out.Start.Ref, "seq", out.Start.Seq)

	unit := out.Start
	state := StateStart
	move := func(to State) {
		if w.observer != nil {
			w.observer.OnTransition(state, to, unit)
		}
		state = to
	}
	fail := func(err error) (Outcome, error) {
		out.FailedIn = state
		move(StateError)
		out.State = StateError
		w.logf("invocation failed", "invocation", out.InvocationID, "job", w.jobID, "state", out.FailedIn, "unit", unit.Ref, "kind", crawler.Kind(err), "error", err)
		return out, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		move(StateFetchUnit)
		began := time.Now()
		records, next, err := w.process(ctx, unit)
		if err != nil {
			if errors.Is(err, crawler.ErrUnitGone) {
				out.UnitGone = true
				move(StateDone)
				out.State = StateDone
				w.logf("unit gone upstream, ending chain", "invocation", out.InvocationID, "job", w.jobID, "unit", unit.Ref)
				return out, nil
			}
			var parseErr *crawler.ParseError
			if errors.As(err, &parseErr) {
				move(StateExtract)
			}
			return fail(err)
		}

		move(StateExtract)
		if err := w.validate(unit, records); err != nil {
			return fail(err)
		}

		move(StatePersist)
		for _, rec := range records {
			if err := w.put(ctx, rec); err != nil {
				return fail(err)
			}
			out.RecordsStored++
		}
		out.UnitsProcessed++
		if w.observer != nil {
			w.observer.OnUnitDone(unit, len(records), time.Since(began))
		}
		w.logf("unit done", "invocation", out.InvocationID, "job", w.jobID, "unit", unit.Ref, "seq", unit.Seq, "records", len(records))

		visited.add(unit.Ref)

		if next == nil {
			move(StateDone)
			out.State = StateDone
			w.logf("job complete", "invocation", out.InvocationID, "job", w.jobID, "units", out.UnitsProcessed, "records", out.RecordsStored)
			return out, nil
		}
		if visited.has(next.Ref) {
			out.Looped = true
			move(StateDone)
			out.State = StateDone
			w.logf("next unit already visited, ending chain", "invocation", out.InvocationID, "job", w.jobID, "unit", unit.Ref, "next", next.Ref)
			return out, nil
		}
		unit = *next

		move(StateCheckBudget)
		if w.budget.ShouldContinue(out.UnitsProcessed) {
			continue
		}

		move(StatePublishContinuation)
		msg := models.ContinuationMessage{
			Cursor:  models.Cursor{JobID: w.jobID, Unit: unit, Meta: visited.meta(meta)},
			Attempt: out.Hop + 1,
		}
		if err := w.publish(ctx, msg); err != nil {
			return fail(err)
		}
		out.State = StatePublishContinuation
		out.Next = &msg.Cursor
		w.logf("continuation published", "invocation", out.InvocationID, "job", w.jobID, "next", unit.Ref, "seq", unit.Seq, "attempt", msg.Attempt)
		return out, nil
	}
}

// process calls the processor under the per-call timeout. Untyped errors,
// including deadlines, are reported as fetch errors.
func (w *Worker) process(ctx context.Context, unit models.WorkUnit) ([]models.Record, *models.WorkUnit, error) {
	callCtx, cancel := w.callContext(ctx)
	defer cancel()
	records, next, err := w.processor.Process(callCtx, unit)
	if err == nil {
		return records, next, nil
	}
	var (
		fetchErr *crawler.FetchError
		parseErr *crawler.ParseError
	)
	if errors.As(err, &fetchErr) || errors.As(err, &parseErr) {
		return nil, nil, err
	}
	return nil, nil, &crawler.FetchError{Ref: unit.Ref, Err: err}
}

// validate rejects a unit before anything is stored so a bad record never
// leaves a half-persisted unit behind.
func (w *Worker) validate(unit models.WorkUnit, records []models.Record) error {
	for i, rec := range records {
		if rec.Key == "" {
			return &crawler.ParseError{Ref: unit.Ref, Err: fmt.Errorf("record %d has no natural key", i)}
		}
	}
	return nil
}

func (w *Worker) put(ctx context.Context, rec models.Record) error {
	if rec.JobID == "" {
		rec.JobID = w.jobID
	}
	callCtx, cancel := w.callContext(ctx)
	defer cancel()
	err := w.store.Put(callCtx, rec)
	if err == nil {
		return nil
	}
	var storeErr *crawler.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &crawler.StoreError{Key: rec.Key, Attempts: 1, Err: err}
}

func (w *Worker) publish(ctx context.Context, msg models.ContinuationMessage) error {
	callCtx, cancel := w.callContext(ctx)
	defer cancel()
	err := w.channel.Publish(callCtx, msg)
	if err == nil {
		return nil
	}
	var channelErr *crawler.ChannelError
	if errors.As(err, &channelErr) {
		return err
	}
	return &crawler.ChannelError{Ref: msg.Cursor.Unit.Ref, Err: err}
}

func (w *Worker) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.callTimeout)
}

// logf is a nil-safe logging helper
func (w *Worker) logf(msg string, kv ...any) {
	if w.logger != nil {
		w.logger(msg, kv...)
	}
}
