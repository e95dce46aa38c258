// Package workflowstore implements the Workflow Store (C7): a concurrent
// in-memory map of workflow records mirrored to a durable libSQL database,
// plus the on-disk persisted-state layout from spec §6. Grounded on the
// teacher's internal/store package (LibSQLStore/EventLog), rebuilt around
// WorkflowRecord instead of the teacher's generic DAG Workflow/Event types.
package workflowstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// Store holds every tracked workflow's record in memory for
// consistent-snapshot reads (spec §4.7: "reads return a stable
// snapshot, never torn between fields"), mirroring writes to an optional
// durable database and to the on-disk layout.
type Store struct {
	mu      sync.RWMutex
	records map[string]*schema.WorkflowRecord

	db          *sql.DB
	storageRoot string
}

// New constructs an in-memory-only Store rooted at storageRoot for the
// on-disk persisted-state layout (config/events/result files). Pass "" to
// disable disk persistence (useful in tests).
func New(storageRoot string) *Store {
	return &Store{records: map[string]*schema.WorkflowRecord{}, storageRoot: storageRoot}
}

// Open constructs a Store additionally backed by a libSQL durable mirror
// at dbPath, applying pending migrations.
func Open(ctx context.Context, dbPath, storageRoot string) (*Store, error) {
	db, err := openDB(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{records: map[string]*schema.WorkflowRecord{}, db: db, storageRoot: storageRoot}, nil
}

// Close releases the durable mirror's connection, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewStoragePath derives the per-workflow on-disk directory, per spec §6:
// <workflow_storage_root>/<yymmdd_hhmm>_<workflow_id>.
func NewStoragePath(root, workflowID string, startedAt time.Time) string {
	return filepath.Join(root, fmt.Sprintf("%s_%s", startedAt.UTC().Format("060102_1504"), workflowID))
}

// Put inserts or replaces a workflow record, mirroring it to the durable
// database if configured. Never mutates a record the caller still holds a
// pointer to — it stores a defensive copy.
func (s *Store) Put(ctx context.Context, record schema.WorkflowRecord) error {
	cp := record
	cp.ExecutionPath = append([]string{}, record.ExecutionPath...)
	cp.TeamResults = copyTeamResults(record.TeamResults)

	s.mu.Lock()
	s.records[record.WorkflowID] = &cp
	s.mu.Unlock()

	if s.db != nil {
		if err := s.mirror(ctx, cp); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a consistent-snapshot copy of the record, and whether it
// was found.
func (s *Store) Get(workflowID string) (schema.WorkflowRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[workflowID]
	if !ok {
		return schema.WorkflowRecord{}, false
	}
	cp := *rec
	cp.ExecutionPath = append([]string{}, rec.ExecutionPath...)
	cp.TeamResults = copyTeamResults(rec.TeamResults)
	return cp, true
}

// SetStatus updates status (and, for terminal statuses, the error message
// and finished_at timestamp) for an already-tracked workflow.
func (s *Store) SetStatus(ctx context.Context, workflowID string, status schema.WorkflowStatus, errMsg string, finishedAt time.Time) error {
	s.mu.Lock()
	rec, ok := s.records[workflowID]
	if !ok {
		s.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not tracked", workflowID)
	}
	rec.Status = status
	rec.Error = errMsg
	if status != schema.WorkflowPending {
		rec.FinishedAt = finishedAt
	}
	cp := *rec
	cp.ExecutionPath = append([]string{}, rec.ExecutionPath...)
	cp.TeamResults = copyTeamResults(rec.TeamResults)
	s.mu.Unlock()

	if s.db != nil {
		return s.mirror(ctx, cp)
	}
	return nil
}

// List returns a snapshot of every tracked record.
func (s *Store) List() []schema.WorkflowRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schema.WorkflowRecord, 0, len(s.records))
	for _, rec := range s.records {
		cp := *rec
		cp.ExecutionPath = append([]string{}, rec.ExecutionPath...)
		cp.TeamResults = copyTeamResults(rec.TeamResults)
		out = append(out, cp)
	}
	return out
}

// Sweep removes every record whose FinishedAt is older than cutoff from
// the in-memory map, the durable mirror, and (if storageRoot is set) the
// on-disk directory — the retention policy named in spec §3's "retained
// at least until a configured retention policy removes it".
func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	var toRemove []string
	startedAt := map[string]time.Time{}
	s.mu.Lock()
	for id, rec := range s.records {
		if !rec.FinishedAt.IsZero() && rec.FinishedAt.Before(cutoff) {
			toRemove = append(toRemove, id)
			startedAt[id] = rec.StartedAt
		}
	}
	for _, id := range toRemove {
		delete(s.records, id)
	}
	s.mu.Unlock()

	for _, id := range toRemove {
		if s.db != nil {
			if _, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE workflow_id = ?`, id); err != nil {
				return len(toRemove), fmt.Errorf("workflowstore: sweep delete %s: %w", id, err)
			}
			if _, err := s.db.ExecContext(ctx, `DELETE FROM lineage_events WHERE workflow_run_id = ?`, id); err != nil {
				return len(toRemove), fmt.Errorf("workflowstore: sweep delete lineage %s: %w", id, err)
			}
		}
		if s.storageRoot != "" {
			if err := os.RemoveAll(NewStoragePath(s.storageRoot, id, startedAt[id])); err != nil {
				return len(toRemove), fmt.Errorf("workflowstore: sweep remove dir %s: %w", id, err)
			}
		}
	}
	return len(toRemove), nil
}

func (s *Store) mirror(ctx context.Context, rec schema.WorkflowRecord) error {
	execPath, err := json.Marshal(rec.ExecutionPath)
	if err != nil {
		return fmt.Errorf("workflowstore: marshal execution_path: %w", err)
	}
	teamResults, err := json.Marshal(rec.TeamResults)
	if err != nil {
		return fmt.Errorf("workflowstore: marshal team_results: %w", err)
	}

	var finishedAt any
	if !rec.FinishedAt.IsZero() {
		finishedAt = rec.FinishedAt
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (workflow_id, status, storage_path, error, execution_path, team_results, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET
		   status=excluded.status, storage_path=excluded.storage_path, error=excluded.error,
		   execution_path=excluded.execution_path, team_results=excluded.team_results, finished_at=excluded.finished_at`,
		rec.WorkflowID, string(rec.Status), rec.StoragePath, nullString(rec.Error),
		string(execPath), string(teamResults), rec.StartedAt, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("workflowstore: mirror workflow %s: %w", rec.WorkflowID, err)
	}
	return nil
}

// WriteEffectiveConfig persists the merged config tree for a workflow run,
// per spec §6's config/effective_config.json.
func (s *Store) WriteEffectiveConfig(workflowID string, startedAt time.Time, tree schema.Tree) error {
	if s.storageRoot == "" {
		return nil
	}
	dir := filepath.Join(NewStoragePath(s.storageRoot, workflowID, startedAt), "config")
	return writeJSON(filepath.Join(dir, "effective_config.json"), tree)
}

// WriteResult persists the terminal result.json for a workflow run, per spec §6.
func (s *Store) WriteResult(record schema.WorkflowRecord) error {
	if s.storageRoot == "" {
		return nil
	}
	dir := NewStoragePath(s.storageRoot, record.WorkflowID, record.StartedAt)
	return writeJSON(filepath.Join(dir, "result.json"), record)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("workflowstore: creating dir for %s: %w", path, err)
	}
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("workflowstore: marshaling %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("workflowstore: writing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

func copyTeamResults(in map[string]schema.TeamResult) map[string]schema.TeamResult {
	if in == nil {
		return nil
	}
	out := make(map[string]schema.TeamResult, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
