package collaborators

import (
	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// MergeRequest and MergeReply mirror spec §6's merge skill collaborator
// contract: `{original_content, change}` in, `{content, success, error?}` out.
type MergeRequest struct {
	OriginalContent *string
	Change          schema.FileChange
}

type MergeReply struct {
	Content string
	Success bool
	Error   string
}

// Merger applies a FileChange (whole-content replacement or unified
// diff) to a file's original content.
type Merger interface {
	Merge(req MergeRequest) MergeReply
}

// PatchMerger is the default Merger: for create/modify with Content set,
// it's a whole-file replacement; for a Diff, it applies the unified diff
// via go-diff's patch machinery.
type PatchMerger struct{}

// NewPatchMerger constructs a PatchMerger.
func NewPatchMerger() *PatchMerger { return &PatchMerger{} }

func (m *PatchMerger) Merge(req MergeRequest) MergeReply {
	if err := req.Change.Validate(); err != nil {
		return MergeReply{Success: false, Error: err.Error()}
	}

	if req.Change.Type == schema.FileChangeDelete {
		return MergeReply{Success: true, Content: ""}
	}

	if req.Change.Content != nil {
		return MergeReply{Success: true, Content: *req.Change.Content}
	}

	original := ""
	if req.OriginalContent != nil {
		original = *req.OriginalContent
	}

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(*req.Change.Diff)
	if err != nil {
		return MergeReply{Success: false, Error: "invalid diff: " + err.Error()}
	}

	merged, applied := dmp.PatchApply(patches, original)
	for _, ok := range applied {
		if !ok {
			return MergeReply{Success: false, Error: "diff did not apply cleanly to original content"}
		}
	}
	return MergeReply{Success: true, Content: merged}
}
