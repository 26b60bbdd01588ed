package kg

import (
	"time"

	"github.com/uptrace/bun"
)

// Node is one temporal version of a knowledge graph node. A node is
// identified by (tenant_id, uid); the open version has ValidTo = nil.
// Closed versions are immutable.
type Node struct {
	bun.BaseModel `bun:"table:kg_nodes,alias:n"`

	ID           int64      `bun:"id,pk,autoincrement" json:"id"`
	TenantID     *int64     `bun:"tenant_id" json:"tenant_id,omitempty"`
	UID          string     `bun:"uid,notnull" json:"uid"`
	Type         string     `bun:"type,notnull" json:"type"`
	Properties   string     `bun:"properties,notnull,default:'{}'" json:"-"`
	ValidFrom    time.Time  `bun:"valid_from,notnull,default:now()" json:"valid_from"`
	ValidTo      *time.Time `bun:"valid_to" json:"valid_to,omitempty"`
	ProvenanceID *int64     `bun:"provenance_id" json:"provenance_id,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// Edge is one temporal version of a directed, typed relation between
// two node uids. Identity is (tenant_id, src_uid, dst_uid, type).
// dst_uid may be a forward reference; src_uid must resolve to an open
// node at the edge's valid_from.
type Edge struct {
	bun.BaseModel `bun:"table:kg_edges,alias:e"`

	ID           int64      `bun:"id,pk,autoincrement" json:"id"`
	TenantID     *int64     `bun:"tenant_id" json:"tenant_id,omitempty"`
	SrcUID       string     `bun:"src_uid,notnull" json:"src_uid"`
	DstUID       string     `bun:"dst_uid,notnull" json:"dst_uid"`
	Type         string     `bun:"type,notnull" json:"type"`
	Properties   string     `bun:"properties,notnull,default:'{}'" json:"-"`
	ValidFrom    time.Time  `bun:"valid_from,notnull,default:now()" json:"valid_from"`
	ValidTo      *time.Time `bun:"valid_to" json:"valid_to,omitempty"`
	ProvenanceID *int64     `bun:"provenance_id" json:"provenance_id,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// ProvenanceRecord captures where a commit event came from.
type ProvenanceRecord struct {
	bun.BaseModel `bun:"table:provenance_records,alias:pr"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	TenantID        *int64    `bun:"tenant_id" json:"tenant_id,omitempty"`
	SnapshotHash    string    `bun:"snapshot_hash,notnull,default:''" json:"snapshot_hash,omitempty"`
	Signer          string    `bun:"signer,notnull,default:''" json:"signer,omitempty"`
	PipelineVersion string    `bun:"pipeline_version,notnull,default:''" json:"pipeline_version,omitempty"`
	ModelVersion    string    `bun:"model_version,notnull,default:''" json:"model_version,omitempty"`
	Evidence        string    `bun:"evidence,notnull,default:''" json:"evidence,omitempty"`
	DocURLs         string    `bun:"doc_urls,notnull,default:''" json:"doc_urls,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// Snapshot is an immutable capture of the open graph state. Only its
// signature metadata may be filled in later via sign or attest.
type Snapshot struct {
	bun.BaseModel `bun:"table:kg_snapshots,alias:s"`

	ID               int64     `bun:"id,pk,autoincrement" json:"id"`
	TenantID         *int64    `bun:"tenant_id" json:"tenant_id,omitempty"`
	AtTS             time.Time `bun:"at_ts,notnull" json:"at_ts"`
	SnapshotHash     string    `bun:"snapshot_hash,notnull" json:"snapshot_hash"`
	MerkleRoot       *string   `bun:"merkle_root" json:"merkle_root"`
	NodeCount        int64     `bun:"node_count,notnull,default:0" json:"node_count"`
	EdgeCount        int64     `bun:"edge_count,notnull,default:0" json:"edge_count"`
	Signer           string    `bun:"signer,notnull,default:''" json:"signer,omitempty"`
	Signature        string    `bun:"signature,notnull,default:''" json:"signature,omitempty"`
	SignatureBackend string    `bun:"signature_backend,notnull,default:''" json:"signature_backend,omitempty"`
	CertChainPEM     string    `bun:"cert_chain_pem,notnull,default:''" json:"cert_chain_pem,omitempty"`
	DSSEBundleJSON   string    `bun:"dsse_bundle_json,notnull,default:''" json:"dsse_bundle_json,omitempty"`
	RekorLogID       string    `bun:"rekor_log_id,notnull,default:''" json:"rekor_log_id,omitempty"`
	RekorLogIndex    *int64    `bun:"rekor_log_index" json:"rekor_log_index,omitempty"`
	Notes            string    `bun:"notes,notnull,default:''" json:"notes,omitempty"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}

// LedgerEntry is an append-only ingest ledger row. Rows are never
// updated or deleted.
type LedgerEntry struct {
	bun.BaseModel `bun:"table:ingest_ledger,alias:il"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	TenantID      *int64    `bun:"tenant_id" json:"tenant_id,omitempty"`
	IngestEventID string    `bun:"ingest_event_id,notnull" json:"ingest_event_id"`
	SnapshotHash  string    `bun:"snapshot_hash,notnull,default:''" json:"snapshot_hash,omitempty"`
	Signer        string    `bun:"signer,notnull,default:''" json:"signer,omitempty"`
	Signature     string    `bun:"signature,notnull,default:''" json:"signature,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:now()" json:"created_at"`
}
