// Package lineage implements the Lineage Recorder: an append-only event
// log of every agent invocation, with parent/child linkage forming a
// forest rooted at each workflow's root event. Grounded on the teacher's
// internal/store/eventlog.go append-only sequencing pattern, split into a
// required file sink and an optional remote sink per spec §4.3.
package lineage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// Sink persists one lineage event. A file sink is always present; a
// remote sink is optional (spec's open question: "this spec requires the
// file backend and makes the remote backend optional").
type Sink interface {
	Write(ctx context.Context, event schema.LineageEvent) error
}

// Recorder tracks per-workflow sequencing and fans each event out to every
// configured sink. Recording never aborts a workflow: sink failures are
// logged and retried in the background, never returned to the caller.
type Recorder struct {
	sinks  []Sink
	logger *slog.Logger

	mu       sync.Mutex
	lastStep map[string]int64
	lastID   map[string]string // last-emitted event id per workflow, for parent linkage
	events   map[string][]schema.LineageEvent

	retryQueue chan retryItem
}

type retryItem struct {
	sink  Sink
	event schema.LineageEvent
}

// NewRecorder constructs a Recorder over the given sinks with a bounded
// background retry queue (spec: "enqueues events for bounded retry and
// drops, with a warning, only after the retry budget is exhausted").
func NewRecorder(logger *slog.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		sinks:      sinks,
		logger:     logger,
		lastStep:   map[string]int64{},
		lastID:     map[string]string{},
		events:     map[string][]schema.LineageEvent{},
		retryQueue: make(chan retryItem, 256),
	}
	go r.retryLoop()
	return r
}

// CreateWorkflowContext establishes the root parent for a workflow, per
// spec's create_workflow_context(workflow_run_id).
func (r *Recorder) CreateWorkflowContext(workflowRunID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastStep[workflowRunID] = 0
	r.lastID[workflowRunID] = ""
}

// NextEvent allocates the next monotonic step and parent id for a new
// agent invocation within workflowRunID. Each call derives a fresh
// execution_id and advances step by one.
func (r *Recorder) NextEvent(workflowRunID, agentKind string) (step int64, parentID, executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastStep[workflowRunID]++
	step = r.lastStep[workflowRunID]
	parentID = r.lastID[workflowRunID]
	executionID = uuid.NewString()
	return step, parentID, executionID
}

// Record appends event and fans it out to every sink. Never returns an
// error to the caller — write failures are queued for bounded retry.
func (r *Recorder) Record(ctx context.Context, event schema.LineageEvent) {
	r.mu.Lock()
	r.lastID[event.WorkflowRunID] = event.EventID
	r.events[event.WorkflowRunID] = append(r.events[event.WorkflowRunID], event)
	r.mu.Unlock()

	for _, sink := range r.sinks {
		if err := sink.Write(ctx, event); err != nil {
			r.logger.Warn("lineage.sink_write_failed", slog.String("workflow_run_id", event.WorkflowRunID), slog.Any("error", err))
			select {
			case r.retryQueue <- retryItem{sink: sink, event: event}:
			default:
				r.logger.Warn("lineage.retry_queue_full_dropping_event", slog.String("workflow_run_id", event.WorkflowRunID))
			}
		}
	}
}

// WorkflowEvents returns all recorded events for a workflow, in emission order.
func (r *Recorder) WorkflowEvents(workflowRunID string) []schema.LineageEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.LineageEvent, len(r.events[workflowRunID]))
	copy(out, r.events[workflowRunID])
	return out
}

const maxSinkRetries = 3

func (r *Recorder) retryLoop() {
	for item := range r.retryQueue {
		var err error
		for attempt := 0; attempt < maxSinkRetries; attempt++ {
			if err = item.sink.Write(context.Background(), item.event); err == nil {
				break
			}
		}
		if err != nil {
			r.logger.Warn("lineage.sink_write_dropped_after_retries",
				slog.String("workflow_run_id", item.event.WorkflowRunID), slog.Any("error", err))
		}
	}
}

// NewEventID mints a fresh event id (used by agentruntime when building a
// LineageEvent before calling Record).
func NewEventID() string {
	return fmt.Sprintf("evt_%s", uuid.NewString())
}

// NewWorkflowRunID mints a workflow_run_id matching the required
// wf_<uuid> shape.
func NewWorkflowRunID() string {
	return fmt.Sprintf("wf_%s", uuid.NewString())
}
