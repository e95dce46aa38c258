// Package config implements the Config Store: an immutable configuration
// tree with deep-merge, path lookup, and agent-scoped resolution.
//
// The merge algorithm is grounded on the original implementation's
// c4h_agents/config.py::deep_merge, with one deliberate departure: spec.md
// draws a hard line between "absent" and "null" ("nulls in overlay mean
// 'set to null' ... absence means 'do not touch'"), so a null overlay
// value is stored as a present null leaf rather than deleting the base
// key the way the original does. Both maps otherwise recurse key-by-key,
// a list in the overlay replaces the base list wholesale, and any other
// scalar overlay value replaces the base value even across types.
package config

import (
	"log/slog"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// Merge deep-merges overlay onto base and returns a new tree; neither
// input is mutated. A nil value in overlay is stored as a present null
// leaf (spec.md's "set to null"), not deleted — Get must still report the
// key present, distinguishing it from a key overlay never mentioned.
func Merge(base, overlay schema.Tree) schema.Tree {
	result := deepCopyTree(base)
	if result == nil {
		result = schema.Tree{}
	}

	for key, value := range overlay {
		if value == nil {
			result[key] = nil
			continue
		}
		existing, present := result[key]
		if !present {
			result[key] = deepCopyValue(value)
			continue
		}
		existingMap, existingIsMap := existing.(schema.Tree)
		overlayMap, overlayIsMap := value.(schema.Tree)
		if existingIsMap && overlayIsMap {
			result[key] = Merge(existingMap, overlayMap)
			continue
		}
		// Lists are leaves: the overlay replaces wholesale. Any other
		// scalar/type-mismatched value also replaces outright.
		result[key] = deepCopyValue(value)
	}
	return result
}

// MergeAll merges layers left-to-right: server defaults, then
// system_config, then app_config, then per-task overlay, matching the
// precedence spec §4.1 mandates.
func MergeAll(layers ...schema.Tree) schema.Tree {
	var result schema.Tree
	for _, layer := range layers {
		if result == nil {
			result = deepCopyTree(layer)
			continue
		}
		result = Merge(result, layer)
	}
	if result == nil {
		result = schema.Tree{}
	}
	return result
}

func deepCopyTree(t schema.Tree) schema.Tree {
	if t == nil {
		return nil
	}
	out := make(schema.Tree, len(t))
	for k, v := range t {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case schema.Tree:
		return deepCopyTree(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return val
	}
}

// LogMergeSummary writes a debug line describing a merge, mirroring the
// original's config.merge.starting / config.merge.complete log events.
func LogMergeSummary(logger *slog.Logger, base, overlay, result schema.Tree) {
	logger.Debug("config.merge_complete",
		slog.Int("base_keys", len(base)),
		slog.Int("overlay_keys", len(overlay)),
		slog.Int("result_keys", len(result)))
}
