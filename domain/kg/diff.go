package kg

import (
	"reflect"
	"sort"

	"github.com/aurora-intel/aurora-core/pkg/canonical"
)

// DiffProperties computes key-level differences between two property
// sets. Values are compared structurally.
func DiffProperties(from, to map[string]any) PropertiesDiff {
	diff := PropertiesDiff{
		Added:   map[string]any{},
		Removed: map[string]any{},
		Changed: map[string]PropertyChange{},
	}
	for k, v := range to {
		old, ok := from[k]
		if !ok {
			diff.Added[k] = v
			continue
		}
		if !reflect.DeepEqual(old, v) {
			diff.Changed[k] = PropertyChange{From: old, To: v}
		}
	}
	for k, v := range from {
		if _, ok := to[k]; !ok {
			diff.Removed[k] = v
		}
	}
	return diff
}

// edgeRefOf builds the diff identity of an edge: destination, type,
// and a hash of the canonical properties.
func edgeRefOf(e *Edge) EdgeRef {
	return EdgeRef{
		Dst:       e.DstUID,
		Type:      e.Type,
		PropsHash: canonical.HashBytes([]byte(canonical.Normalize(e.Properties))),
	}
}

// DiffEdges computes added and removed outbound edges between two edge
// sets, keyed by (dst, type, props_hash).
func DiffEdges(from, to []*Edge) EdgesDiff {
	fromSet := make(map[EdgeRef]struct{}, len(from))
	for _, e := range from {
		fromSet[edgeRefOf(e)] = struct{}{}
	}
	toSet := make(map[EdgeRef]struct{}, len(to))
	for _, e := range to {
		toSet[edgeRefOf(e)] = struct{}{}
	}

	diff := EdgesDiff{Added: []EdgeRef{}, Removed: []EdgeRef{}}
	for ref := range toSet {
		if _, ok := fromSet[ref]; !ok {
			diff.Added = append(diff.Added, ref)
		}
	}
	for ref := range fromSet {
		if _, ok := toSet[ref]; !ok {
			diff.Removed = append(diff.Removed, ref)
		}
	}
	sortEdgeRefs(diff.Added)
	sortEdgeRefs(diff.Removed)
	return diff
}

func sortEdgeRefs(refs []EdgeRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Dst != refs[j].Dst {
			return refs[i].Dst < refs[j].Dst
		}
		if refs[i].Type != refs[j].Type {
			return refs[i].Type < refs[j].Type
		}
		return refs[i].PropsHash < refs[j].PropsHash
	})
}

// mergeAdded appends refs not already present, preserving order and
// deduplicating by the full (dst, type, props_hash) key.
func mergeAdded(existing []EdgeRef, more []EdgeRef) []EdgeRef {
	seen := make(map[EdgeRef]struct{}, len(existing))
	for _, ref := range existing {
		seen[ref] = struct{}{}
	}
	for _, ref := range more {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		existing = append(existing, ref)
	}
	return existing
}
