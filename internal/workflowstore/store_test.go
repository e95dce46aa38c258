package workflowstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

func TestStore_PutGet_RoundTrips(t *testing.T) {
	s := New("")
	ctx := context.Background()
	rec := schema.WorkflowRecord{
		WorkflowID:    "wf_1",
		Status:        schema.WorkflowPending,
		StoragePath:   "/tmp/wf_1",
		ExecutionPath: []string{"discovery"},
		StartedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.Put(ctx, rec))

	got, ok := s.Get("wf_1")
	require.True(t, ok)
	assert.Equal(t, rec.WorkflowID, got.WorkflowID)
	assert.Equal(t, []string{"discovery"}, got.ExecutionPath)
}

func TestStore_Get_MissingReturnsFalse(t *testing.T) {
	s := New("")
	_, ok := s.Get("nope")
	assert.False(t, ok)
}

func TestStore_Put_DoesNotAliasCallerSlices(t *testing.T) {
	s := New("")
	ctx := context.Background()
	path := []string{"discovery"}
	rec := schema.WorkflowRecord{WorkflowID: "wf_1", ExecutionPath: path, StartedAt: time.Now().UTC()}
	require.NoError(t, s.Put(ctx, rec))

	path[0] = "mutated"
	got, _ := s.Get("wf_1")
	assert.Equal(t, "discovery", got.ExecutionPath[0], "Put must defensively copy the execution path")
}

func TestStore_SetStatus_StampsFinishedAtOnlyForTerminalStatus(t *testing.T) {
	s := New("")
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, schema.WorkflowRecord{WorkflowID: "wf_1", Status: schema.WorkflowPending, StartedAt: time.Now().UTC()}))

	require.NoError(t, s.SetStatus(ctx, "wf_1", schema.WorkflowSuccess, "", time.Now().UTC()))
	got, _ := s.Get("wf_1")
	assert.Equal(t, schema.WorkflowSuccess, got.Status)
	assert.False(t, got.FinishedAt.IsZero())
}

func TestStore_SetStatus_UnknownWorkflowIsNotFound(t *testing.T) {
	s := New("")
	err := s.SetStatus(context.Background(), "nope", schema.WorkflowError, "boom", time.Now())
	require.Error(t, err)
	var taxErr *schema.TaxonomyError
	require.ErrorAs(t, err, &taxErr)
	assert.Equal(t, schema.ErrCodeNotFound, taxErr.Code)
}

func TestStore_Sweep_RemovesOnlyRecordsOlderThanCutoff(t *testing.T) {
	s := New("")
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Put(ctx, schema.WorkflowRecord{WorkflowID: "old", Status: schema.WorkflowSuccess, StartedAt: now.Add(-48 * time.Hour), FinishedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.Put(ctx, schema.WorkflowRecord{WorkflowID: "recent", Status: schema.WorkflowSuccess, StartedAt: now, FinishedAt: now}))
	require.NoError(t, s.Put(ctx, schema.WorkflowRecord{WorkflowID: "pending", Status: schema.WorkflowPending, StartedAt: now}))

	removed, err := s.Sweep(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := s.Get("old")
	assert.False(t, ok)
	_, ok = s.Get("recent")
	assert.True(t, ok)
	_, ok = s.Get("pending")
	assert.True(t, ok, "a record with no FinishedAt is never swept")
}

func TestStore_WriteResult_PersistsUnderDerivedStoragePath(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	startedAt := time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC)
	rec := schema.WorkflowRecord{WorkflowID: "wf_abc", Status: schema.WorkflowSuccess, StartedAt: startedAt}

	require.NoError(t, s.WriteResult(rec))

	path := filepath.Join(NewStoragePath(dir, "wf_abc", startedAt), "result.json")
	body, err := os.ReadFile(path)
	require.NoError(t, err)

	var roundTripped schema.WorkflowRecord
	require.NoError(t, json.Unmarshal(body, &roundTripped))
	assert.Equal(t, "wf_abc", roundTripped.WorkflowID)
}

func TestStore_WriteEffectiveConfig_NoopWhenStorageRootUnset(t *testing.T) {
	s := New("")
	err := s.WriteEffectiveConfig("wf_1", time.Now(), schema.Tree{"a": 1})
	assert.NoError(t, err)
}

func TestNewStoragePath_MatchesSpecFormat(t *testing.T) {
	got := NewStoragePath("/root", "wf_abc", time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC))
	assert.Equal(t, "/root/260305_0930_wf_abc", got)
}
