package kg

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Operation kinds after alias normalization.
const (
	OpCreateNode = "create_node"
	OpCreateEdge = "create_edge"
)

// CommitEvent is one entry of a commit batch. Operation aliases and
// edge payload key variants are accepted; see NormalizeOperation and
// EdgeEndpoints.
type CommitEvent struct {
	Operation  string         `json:"operation"`
	UID        string         `json:"uid,omitempty"`
	Type       string         `json:"type,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`

	// Edge endpoint aliases. Exactly one of each group is expected.
	From   string `json:"from,omitempty"`
	Src    string `json:"src,omitempty"`
	SrcUID string `json:"src_uid,omitempty"`
	To     string `json:"to,omitempty"`
	Dst    string `json:"dst,omitempty"`
	DstUID string `json:"dst_uid,omitempty"`

	EdgeType string `json:"edge_type,omitempty"`
	Label    string `json:"label,omitempty"`

	IngestTime *time.Time `json:"ingest_time,omitempty"`

	// Provenance fields.
	PipelineVersion string `json:"pipeline_version,omitempty"`
	ModelVersion    string `json:"model_version,omitempty"`
	Signer          string `json:"signer,omitempty"`
	SnapshotHash    string `json:"snapshot_hash,omitempty"`
	Evidence        string `json:"evidence,omitempty"`
	DocURLs         string `json:"doc_urls,omitempty"`
}

// NormalizeOperation maps the accepted operation aliases onto the two
// canonical kinds. The empty string is returned for unknown operations.
func NormalizeOperation(op string) string {
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "create_node", "node_create", "upsert_node":
		return OpCreateNode
	case "create_edge", "edge_create", "upsert_edge":
		return OpCreateEdge
	default:
		return ""
	}
}

// EdgeEndpoints resolves the edge endpoint and type aliases. Empty
// strings are returned for missing parts.
func (ev *CommitEvent) EdgeEndpoints() (src, dst, edgeType string) {
	src = firstNonEmpty(ev.From, ev.Src, ev.SrcUID)
	dst = firstNonEmpty(ev.To, ev.Dst, ev.DstUID)
	edgeType = firstNonEmpty(ev.EdgeType, ev.Type, ev.Label)
	return src, dst, edgeType
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// CommitRequest is the commit batch payload.
type CommitRequest struct {
	Events []CommitEvent `json:"events"`
}

// CommitResult reports the outcome of a single commit event.
type CommitResult struct {
	OK        bool       `json:"ok"`
	Noop      bool       `json:"noop,omitempty"`
	ID        int64      `json:"id,omitempty"`
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// CommitResponse is returned for the whole batch.
type CommitResponse struct {
	OK      bool           `json:"ok"`
	BatchID string         `json:"batch_id"`
	Count   int            `json:"count"`
	Results []CommitResult `json:"results"`
}

// NodeView is a node version projected for responses, with properties
// decoded from their canonical storage form.
type NodeView struct {
	ID         int64          `json:"id"`
	UID        string         `json:"uid"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	ValidFrom  time.Time      `json:"valid_from"`
	ValidTo    *time.Time     `json:"valid_to,omitempty"`
}

// EdgeView is an edge version projected for responses.
type EdgeView struct {
	ID         int64          `json:"id"`
	SrcUID     string         `json:"src_uid"`
	DstUID     string         `json:"dst_uid"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	ValidFrom  time.Time      `json:"valid_from"`
	ValidTo    *time.Time     `json:"valid_to,omitempty"`
}

func nodeView(n *Node) NodeView {
	return NodeView{
		ID:         n.ID,
		UID:        n.UID,
		Type:       n.Type,
		Properties: decodeProps(n.Properties),
		ValidFrom:  n.ValidFrom,
		ValidTo:    n.ValidTo,
	}
}

func edgeView(e *Edge) EdgeView {
	return EdgeView{
		ID:         e.ID,
		SrcUID:     e.SrcUID,
		DstUID:     e.DstUID,
		Type:       e.Type,
		Properties: decodeProps(e.Properties),
		ValidFrom:  e.ValidFrom,
		ValidTo:    e.ValidTo,
	}
}

func decodeProps(raw string) map[string]any {
	props := map[string]any{}
	if raw == "" {
		return props
	}
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return map[string]any{}
	}
	return props
}

// NodeResponse is the get-node bundle with neighbor expansion.
type NodeResponse struct {
	AsOf            time.Time         `json:"as_of"`
	Node            NodeView          `json:"node"`
	Neighbors       []NodeView        `json:"neighbors"`
	Edges           []EdgeView        `json:"edges"`
	NextEdgesOffset *int              `json:"next_edges_offset,omitempty"`
	Provenance      *ProvenanceRecord `json:"provenance,omitempty"`
}

// BatchNodesResponse is the batch-nodes window result.
type BatchNodesResponse struct {
	AsOf       time.Time  `json:"as_of"`
	Nodes      []NodeView `json:"nodes"`
	NextOffset *int       `json:"next_offset,omitempty"`
}

// FindResponse carries filtered nodes plus either offset or cursor
// continuation; in cursor mode both continuation fields are omitted.
type FindResponse struct {
	AsOf       time.Time  `json:"as_of"`
	Nodes      []NodeView `json:"nodes"`
	NextOffset *int       `json:"next_offset,omitempty"`
	NextCursor *string    `json:"next_cursor,omitempty"`
}

// EdgesResponse lists edges around a node.
type EdgesResponse struct {
	AsOf       time.Time  `json:"as_of"`
	UID        string     `json:"uid"`
	Edges      []EdgeView `json:"edges"`
	NextOffset *int       `json:"next_offset,omitempty"`
	NextCursor *string    `json:"next_cursor,omitempty"`
}

// HistoryResponse lists all versions of a node, newest first.
type HistoryResponse struct {
	UID      string     `json:"uid"`
	Versions []NodeView `json:"versions"`
}

// PropertyChange is one changed key in a diff.
type PropertyChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// PropertiesDiff lists key-level differences between two property sets.
type PropertiesDiff struct {
	Added   map[string]any            `json:"added"`
	Removed map[string]any            `json:"removed"`
	Changed map[string]PropertyChange `json:"changed"`
}

// EdgeRef identifies an outbound edge for diff purposes.
type EdgeRef struct {
	Dst       string `json:"dst"`
	Type      string `json:"type"`
	PropsHash string `json:"props_hash"`
}

// EdgesDiff lists edges added or removed between two instants.
type EdgesDiff struct {
	Added   []EdgeRef `json:"added"`
	Removed []EdgeRef `json:"removed"`
}

// DiffResponse is the two-instant node diff bundle.
type DiffResponse struct {
	NodeID           string         `json:"node_id"`
	From             time.Time      `json:"from"`
	To               time.Time      `json:"to"`
	FallbackBaseline bool           `json:"fallback_baseline,omitempty"`
	Properties       PropertiesDiff `json:"properties"`
	Edges            EdgesDiff      `json:"edges"`
}

// StatsResponse carries tenant-scoped totals.
type StatsResponse struct {
	Nodes          int64      `json:"nodes"`
	Edges          int64      `json:"edges"`
	OpenNodes      int64      `json:"open_nodes"`
	OpenEdges      int64      `json:"open_edges"`
	Snapshots      int64      `json:"snapshots"`
	LatestNodeTime *time.Time `json:"latest_node_time,omitempty"`
	LatestEdgeTime *time.Time `json:"latest_edge_time,omitempty"`
}

// SnapshotRequest creates a snapshot.
type SnapshotRequest struct {
	Notes  string `json:"notes,omitempty"`
	Signer string `json:"signer,omitempty"`
}

// SnapshotResponse describes a snapshot row.
type SnapshotResponse struct {
	AtTS             time.Time `json:"at_ts"`
	SnapshotHash     string    `json:"snapshot_hash"`
	MerkleRoot       *string   `json:"merkle_root"`
	NodeCount        int64     `json:"node_count"`
	EdgeCount        int64     `json:"edge_count"`
	Signer           string    `json:"signer,omitempty"`
	Signature        string    `json:"signature,omitempty"`
	SignatureBackend string    `json:"signature_backend,omitempty"`
	DSSEBundleJSON   string    `json:"dsse_bundle_json,omitempty"`
	RekorLogID       string    `json:"rekor_log_id,omitempty"`
	RekorLogIndex    *int64    `json:"rekor_log_index,omitempty"`
}

// SignRequest re-signs an existing snapshot.
type SignRequest struct {
	SnapshotHash string `json:"snapshot_hash"`
	Force        bool   `json:"force,omitempty"`
}

// SignResponse reports the (possibly cached) signature metadata.
type SignResponse struct {
	SnapshotHash     string `json:"snapshot_hash"`
	Signature        string `json:"signature,omitempty"`
	SignatureBackend string `json:"signature_backend,omitempty"`
	Regenerated      bool   `json:"regenerated"`
}

// AttestRequest attaches externally produced signature material to a
// snapshot. Only supplied fields are updated.
type AttestRequest struct {
	SnapshotHash     string  `json:"snapshot_hash"`
	Signature        *string `json:"signature,omitempty"`
	CertChainPEM     *string `json:"cert_chain_pem,omitempty"`
	DSSEBundleJSON   *string `json:"dsse_bundle_json,omitempty"`
	RekorLogID       *string `json:"rekor_log_id,omitempty"`
	RekorLogIndex    *int64  `json:"rekor_log_index,omitempty"`
	SignatureBackend *string `json:"signature_backend,omitempty"`
}

// AttestResponse reports which fields were updated.
type AttestResponse struct {
	Updated          []string `json:"updated"`
	SignatureBackend string   `json:"signature_backend,omitempty"`
}

// VerifyRequest checks signature material against a snapshot hash. Any
// field left empty falls back to the persisted snapshot record.
type VerifyRequest struct {
	SnapshotHash   string `json:"snapshot_hash"`
	Signature      string `json:"signature,omitempty"`
	Backend        string `json:"backend,omitempty"`
	CertChainPEM   string `json:"cert_chain_pem,omitempty"`
	DSSEBundleJSON string `json:"dsse_bundle_json,omitempty"`
	RekorLogID     string `json:"rekor_log_id,omitempty"`
	RekorLogIndex  *int64 `json:"rekor_log_index,omitempty"`
}

// cursor is the keyset pagination token payload.
type cursor struct {
	LtID int64 `json:"lt_id"`
}

// EncodeCursor builds a base64url keyset cursor from the last id seen.
func EncodeCursor(lastID int64) string {
	raw, _ := json.Marshal(cursor{LtID: lastID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a keyset cursor. Malformed input returns ok=false
// so callers can degrade to offset pagination.
func DecodeCursor(token string) (ltID int64, ok bool) {
	if token == "" {
		return 0, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		// Tolerate padded encodings from other producers.
		raw, err = base64.URLEncoding.DecodeString(token)
		if err != nil {
			return 0, false
		}
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.LtID <= 0 {
		return 0, false
	}
	return c.LtID, true
}

// ParseAsOf parses an ISO-8601 timestamp, tolerating a literal space
// where a form-encoded '+' was decoded. Empty input returns the zero
// time with ok=false.
func ParseAsOf(val string) (time.Time, bool) {
	if val == "" {
		return time.Time{}, false
	}
	// "2024-01-02T10:00:00 02:00" was "+02:00" before form decoding.
	if i := strings.LastIndexByte(val, ' '); i > 10 {
		val = val[:i] + "+" + val[i+1:]
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, val); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
