package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/errander/internal/step"
)

// Handler executes one step against the run context. Any returned error is
// a step fault: it aborts the remainder of the run.
type Handler func(ctx context.Context, st step.Step, rc *RunContext) error

// Executor runs step sequences strictly in order against a per-run context.
// Runs are independent: each owns its RunContext and RunRecord, so one
// process can carry many concurrent runs without shared mutable state.
type Executor struct {
	repo     RunRepository
	handlers map[step.Kind]Handler
	logger   *log.Logger
}

// New builds an Executor over the given repository and handler table. The
// table is resolved once at startup, which makes "unknown kind" a
// structural case rather than a string-comparison fallthrough.
func New(repo RunRepository, handlers map[step.Kind]Handler) *Executor {
	return &Executor{
		repo:     repo,
		handlers: handlers,
		logger:   log.New(log.Writer(), "[EXEC] ", log.LstdFlags),
	}
}

// Execute accepts a plan, registers a running RunRecord and returns its id
// immediately. A background goroutine drives the steps; callers observe
// progress by polling the repository. Cancellation is not supported: once
// started, a run finishes or faults.
func (e *Executor) Execute(ctx context.Context, plan step.Plan) (string, error) {
	rec := &RunRecord{
		ID:        uuid.NewString(),
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := e.repo.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	go e.run(context.Background(), rec, plan)
	return rec.ID, nil
}

// ExecuteSync runs the plan in the calling goroutine and returns the final
// record. Used by the single-shot HTTP variant and the CLI.
func (e *Executor) ExecuteSync(ctx context.Context, plan step.Plan) (*RunRecord, error) {
	rec := &RunRecord{
		ID:        uuid.NewString(),
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := e.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	e.run(ctx, rec, plan)
	return snapshot(rec), nil
}

// run drives the plan's steps in order. Unknown kinds are logged and
// skipped: they are a forward-compatibility gap, not a data problem, and
// steps are typically independent side effects. A step fault is different:
// a step that should have run could not, and later steps (say, notify with
// the last artifact) would be semantically wrong without it, so the run
// stops there.
func (e *Executor) run(ctx context.Context, rec *RunRecord, plan step.Plan) {
	rc := &RunContext{record: rec}
	defer func() {
		if r := recover(); r != nil {
			e.finish(ctx, rec, rc, StatusError, fmt.Sprintf("handler panic: %v", r))
		}
	}()

	for i, st := range plan.Steps {
		handler, ok := e.handlers[st.Kind]
		if !ok || !st.Known() {
			rc.Logf("step %d: unknown step kind %q, skipping", i+1, st.Kind)
			stepsTotal.WithLabelValues(string(st.Kind), "skipped").Inc()
			continue
		}
		if err := st.Validate(); err != nil {
			e.finish(ctx, rec, rc, StatusError, fmt.Sprintf("step %d (%s): %v", i+1, st.Kind, err))
			stepsTotal.WithLabelValues(string(st.Kind), "fault").Inc()
			return
		}
		rc.Logf("step %d: %s", i+1, st.Kind)
		if err := handler(ctx, st, rc); err != nil {
			e.finish(ctx, rec, rc, StatusError, fmt.Sprintf("step %d (%s): %v", i+1, st.Kind, err))
			stepsTotal.WithLabelValues(string(st.Kind), "fault").Inc()
			return
		}
		stepsTotal.WithLabelValues(string(st.Kind), "ok").Inc()
		if err := e.repo.Update(ctx, rec); err != nil {
			e.logger.Printf("run %s: persist progress: %v", rec.ID, err)
		}
	}
	e.finish(ctx, rec, rc, StatusDone, "")
}

func (e *Executor) finish(ctx context.Context, rec *RunRecord, rc *RunContext, status Status, fault string) {
	if fault != "" {
		rc.Logf("%s", fault)
		e.logger.Printf("run %s failed: %s", rec.ID, fault)
	}
	now := time.Now().UTC()
	rec.Status = status
	rec.FinishedAt = &now
	runsTotal.WithLabelValues(string(status)).Inc()
	if err := e.repo.Update(ctx, rec); err != nil {
		e.logger.Printf("run %s: persist final state: %v", rec.ID, err)
	}
}
