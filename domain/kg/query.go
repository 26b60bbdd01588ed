package kg

import (
	"context"
	"strings"
	"time"

	"github.com/aurora-intel/aurora-core/pkg/apperror"
	"github.com/aurora-intel/aurora-core/pkg/canonical"
)

// GetNode resolves the latest version of uid valid at asOf and expands
// its neighborhood up to depth hops. Edges returned are sliced by
// edgesOffset/edgesLimit over the collected set.
func (s *Service) GetNode(ctx context.Context, tenantID *int64, uid string, asOf time.Time, depth, limit, edgesOffset, edgesLimit int) (*NodeResponse, error) {
	if depth < 0 {
		depth = 0
	}
	if depth > maxDepth {
		depth = maxDepth
	}
	limit = clampLimit(limit)
	edgesLimit = clampLimit(edgesLimit)
	if edgesOffset < 0 {
		edgesOffset = 0
	}

	node, err := s.repo.NodeAt(ctx, tenantID, uid, asOf)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, apperror.ErrNotFound.WithMessage("node not found at requested time")
	}

	resp := &NodeResponse{
		AsOf:      asOf,
		Node:      nodeView(node),
		Neighbors: []NodeView{},
		Edges:     []EdgeView{},
	}

	if node.ProvenanceID != nil {
		if prov, err := s.repo.ProvenanceByID(ctx, *node.ProvenanceID); err == nil {
			resp.Provenance = prov
		}
	}

	// BFS over edges valid at asOf, bounded by depth and per-hop
	// frontier breadth.
	visited := map[string]struct{}{uid: {}}
	frontier := []string{uid}
	var collected []*Edge
	seenEdges := map[int64]struct{}{}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		if len(frontier) > frontierPerHop {
			frontier = frontier[:frontierPerHop]
		}
		edges, err := s.repo.EdgesTouching(ctx, tenantID, frontier, asOf, maxTouchedEdges)
		if err != nil {
			return nil, err
		}

		var next []string
		perNode := map[string]int{}
		for _, e := range edges {
			if _, ok := seenEdges[e.ID]; ok {
				continue
			}
			// Cap edges kept per source node.
			if perNode[e.SrcUID] >= limit {
				continue
			}
			perNode[e.SrcUID]++
			seenEdges[e.ID] = struct{}{}
			collected = append(collected, e)

			for _, endpoint := range []string{e.SrcUID, e.DstUID} {
				if _, ok := visited[endpoint]; !ok {
					visited[endpoint] = struct{}{}
					next = append(next, endpoint)
				}
			}
		}
		frontier = next
	}

	// Resolve discovered neighbors to their versions at asOf.
	for neighbor := range visited {
		if neighbor == uid {
			continue
		}
		n, err := s.repo.NodeAt(ctx, tenantID, neighbor, asOf)
		if err != nil {
			return nil, err
		}
		if n != nil {
			resp.Neighbors = append(resp.Neighbors, nodeView(n))
		}
	}

	// Slice the edge window.
	total := len(collected)
	if edgesOffset < total {
		end := edgesOffset + edgesLimit
		if end > total {
			end = total
		}
		for _, e := range collected[edgesOffset:end] {
			resp.Edges = append(resp.Edges, edgeView(e))
		}
		if end < total {
			next := end
			resp.NextEdgesOffset = &next
		}
	}

	return resp, nil
}

// BatchNodes resolves a pagination window of the given uid list at asOf.
// Missing uids are skipped.
func (s *Service) BatchNodes(ctx context.Context, tenantID *int64, ids string, asOf time.Time, offset, limit int) (*BatchNodesResponse, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	var uids []string
	for _, raw := range strings.Split(ids, ",") {
		if uid := strings.TrimSpace(raw); uid != "" {
			uids = append(uids, uid)
		}
	}

	resp := &BatchNodesResponse{AsOf: asOf, Nodes: []NodeView{}}
	if offset >= len(uids) {
		return resp, nil
	}

	end := offset + limit
	if end > len(uids) {
		end = len(uids)
	}
	for _, uid := range uids[offset:end] {
		node, err := s.repo.NodeAt(ctx, tenantID, uid, asOf)
		if err != nil {
			return nil, err
		}
		if node != nil {
			resp.Nodes = append(resp.Nodes, nodeView(node))
		}
	}
	if end < len(uids) {
		next := end
		resp.NextOffset = &next
	}
	return resp, nil
}

// FindNodes searches nodes by the whitelisted filter set. A supplied
// cursor switches to keyset mode, where both continuation fields are
// omitted from the response.
func (s *Service) FindNodes(ctx context.Context, tenantID *int64, p FindParams, cursorToken string) (*FindResponse, error) {
	p.Limit = clampLimit(p.Limit)
	if p.Offset < 0 {
		p.Offset = 0
	}

	cursorMode := false
	if ltID, ok := DecodeCursor(cursorToken); ok {
		p.LtID = &ltID
		p.Offset = 0
		cursorMode = true
	}

	nodes, err := s.repo.FindNodes(ctx, tenantID, p)
	if err != nil {
		return nil, err
	}

	more := len(nodes) > p.Limit
	if more {
		nodes = nodes[:p.Limit]
	}

	resp := &FindResponse{AsOf: p.AsOf, Nodes: make([]NodeView, 0, len(nodes))}
	for _, n := range nodes {
		resp.Nodes = append(resp.Nodes, nodeView(n))
	}

	// Cursor mode terminates explicitly: no continuation either way.
	if !cursorMode && more {
		next := p.Offset + p.Limit
		resp.NextOffset = &next
		token := EncodeCursor(nodes[len(nodes)-1].ID)
		resp.NextCursor = &token
	}
	return resp, nil
}

// Edges lists edges around a node in the requested direction.
func (s *Service) Edges(ctx context.Context, tenantID *int64, p EdgeParams, cursorToken string) (*EdgesResponse, error) {
	p.Limit = clampLimit(p.Limit)
	if p.Offset < 0 {
		p.Offset = 0
	}
	switch p.Direction {
	case "out", "in":
	default:
		p.Direction = "all"
	}

	cursorMode := false
	if ltID, ok := DecodeCursor(cursorToken); ok {
		p.LtID = &ltID
		p.Offset = 0
		cursorMode = true
	}

	edges, err := s.repo.Edges(ctx, tenantID, p)
	if err != nil {
		return nil, err
	}

	more := len(edges) > p.Limit
	if more {
		edges = edges[:p.Limit]
	}

	resp := &EdgesResponse{AsOf: p.AsOf, UID: p.UID, Edges: make([]EdgeView, 0, len(edges))}
	for _, e := range edges {
		resp.Edges = append(resp.Edges, edgeView(e))
	}

	if !cursorMode && more {
		next := p.Offset + p.Limit
		resp.NextOffset = &next
		token := EncodeCursor(edges[len(edges)-1].ID)
		resp.NextCursor = &token
	}
	return resp, nil
}

// History returns every version of a node, newest first.
func (s *Service) History(ctx context.Context, tenantID *int64, uid string) (*HistoryResponse, error) {
	nodes, err := s.repo.NodeHistory(ctx, tenantID, uid)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, apperror.ErrNotFound.WithMessage("node not found")
	}
	resp := &HistoryResponse{UID: uid, Versions: make([]NodeView, 0, len(nodes))}
	for _, n := range nodes {
		resp.Versions = append(resp.Versions, nodeView(n))
	}
	return resp, nil
}

// Stats returns tenant-scoped totals.
func (s *Service) Stats(ctx context.Context, tenantID *int64) (*StatsResponse, error) {
	return s.repo.Stats(ctx, tenantID)
}

// Diff compares a node between two instants: property changes plus
// added and removed outbound edges.
func (s *Service) Diff(ctx context.Context, tenantID *int64, uid string, fromTS, toTS time.Time) (*DiffResponse, error) {
	if toTS.Before(fromTS) {
		fromTS, toTS = toTS, fromTS
	}

	fromNode, err := s.repo.NodeAt(ctx, tenantID, uid, fromTS)
	if err != nil {
		return nil, err
	}
	toNode, err := s.repo.NodeAt(ctx, tenantID, uid, toTS)
	if err != nil {
		return nil, err
	}

	fallback := false
	if fromNode == nil && toNode != nil {
		// Diffs requested before the node's first version fall back
		// to the earliest version as the baseline.
		fromNode, err = s.repo.EarliestNode(ctx, tenantID, uid)
		if err != nil {
			return nil, err
		}
		fallback = true
	}
	if fromNode == nil && toNode == nil {
		return nil, apperror.ErrNotFound.WithMessage("node not found at either timestamp")
	}
	if toNode == nil {
		toNode = fromNode
	}

	fromProps := decodeProps(fromNode.Properties)
	toProps := decodeProps(toNode.Properties)

	// Identical dictionaries with a later version just after toTS
	// usually mean the diff was captured a moment too early.
	if canonicalEqual(fromNode.Properties, toNode.Properties) {
		if later, err := s.repo.NodeAfter(ctx, tenantID, uid, toTS); err == nil && later != nil {
			toNode = later
			toProps = decodeProps(later.Properties)
		}
	}

	propsDiff := DiffProperties(fromProps, toProps)

	fromEdges, err := s.repo.OutboundEdgesAt(ctx, tenantID, uid, fromTS)
	if err != nil {
		return nil, err
	}
	toEdges, err := s.repo.OutboundEdgesAt(ctx, tenantID, uid, toTS)
	if err != nil {
		return nil, err
	}

	edgesDiff := DiffEdges(fromEdges, toEdges)

	baselineDst := map[string]struct{}{}
	for _, e := range fromEdges {
		baselineDst[e.DstUID] = struct{}{}
	}

	// Reconciliation: edges appearing strictly after toTS count as
	// added, as do currently-open edges to destinations outside the
	// baseline set. Each pass deduplicates by the full edge key.
	if futureEdges, err := s.repo.OutboundEdgesAfter(ctx, tenantID, uid, toTS); err == nil {
		refs := make([]EdgeRef, 0, len(futureEdges))
		for _, e := range futureEdges {
			refs = append(refs, edgeRefOf(e))
		}
		edgesDiff.Added = mergeAdded(edgesDiff.Added, refs)
	}
	if openEdges, err := s.repo.OpenOutboundEdges(ctx, tenantID, uid); err == nil {
		var refs []EdgeRef
		for _, e := range openEdges {
			if _, ok := baselineDst[e.DstUID]; !ok {
				refs = append(refs, edgeRefOf(e))
			}
		}
		edgesDiff.Added = mergeAdded(edgesDiff.Added, refs)
	}

	return &DiffResponse{
		NodeID:           uid,
		From:             fromNode.ValidFrom,
		To:               toNode.ValidFrom,
		FallbackBaseline: fallback,
		Properties:       propsDiff,
		Edges:            edgesDiff,
	}, nil
}

func canonicalEqual(a, b string) bool {
	return canonical.Normalize(a) == canonical.Normalize(b)
}
