package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileChange_Validate(t *testing.T) {
	content := "import logging"
	diff := "--- a\n+++ b\n"

	t.Run("modify with content is valid", func(t *testing.T) {
		fc := FileChange{FilePath: "a.py", Type: FileChangeModify, Content: &content}
		assert.NoError(t, fc.Validate())
	})

	t.Run("modify with diff is valid", func(t *testing.T) {
		fc := FileChange{FilePath: "a.py", Type: FileChangeModify, Diff: &diff}
		assert.NoError(t, fc.Validate())
	})

	t.Run("modify with neither fails", func(t *testing.T) {
		fc := FileChange{FilePath: "a.py", Type: FileChangeModify}
		err := fc.Validate()
		require.Error(t, err)
		var te *TaxonomyError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, ErrCodeParse, te.Code)
	})

	t.Run("delete needs neither", func(t *testing.T) {
		fc := FileChange{FilePath: "a.py", Type: FileChangeDelete}
		assert.NoError(t, fc.Validate())
	})

	t.Run("missing file_path fails", func(t *testing.T) {
		fc := FileChange{Type: FileChangeCreate, Content: &content}
		assert.Error(t, fc.Validate())
	})

	t.Run("unknown type fails", func(t *testing.T) {
		fc := FileChange{FilePath: "a.py", Type: "rename"}
		assert.Error(t, fc.Validate())
	})
}

func TestContext_ImmutableDerivation(t *testing.T) {
	base := Context{WorkflowRunID: "wf_1", Step: 0}

	withData := base.WithInputData(map[string]any{"x": 1})
	assert.Nil(t, base.InputData, "original context must not be mutated")
	assert.Equal(t, map[string]any{"x": 1}, withData.InputData)

	next := base.WithAppendedSequence("discovery", "exec_1")
	assert.Empty(t, base.AgentSequence)
	require.Len(t, next.AgentSequence, 1)
	assert.Equal(t, int64(1), next.Step)
	assert.Equal(t, int64(0), base.Step)

	next2 := next.WithAppendedSequence("solution_designer", "exec_2")
	require.Len(t, next2.AgentSequence, 2)
	assert.Equal(t, int64(2), next2.Step)
	// earlier derived context unaffected by the later derivation
	assert.Len(t, next.AgentSequence, 1)
}

func TestTeamDefinition_StopsOnFailure(t *testing.T) {
	var unset TeamDefinition
	assert.True(t, unset.StopsOnFailure())

	no := false
	withFalse := TeamDefinition{StopOnFailure: &no}
	assert.False(t, withFalse.StopsOnFailure())
}

func TestTaxonomyError_Taxonomy(t *testing.T) {
	err := NewErrorf(ErrCodeConfig, "unknown provider %q", "acme").
		WithWorkflowID("wf_1").WithTeamID("coder")

	assert.Equal(t, `[config_error] team coder: unknown provider "acme"`, err.Error())
	assert.True(t, IsRetryable(ErrCodeLLMTransient))
	assert.False(t, IsRetryable(ErrCodeLLMPermanent))
}
