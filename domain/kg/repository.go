package kg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/aurora-intel/aurora-core/pkg/apperror"
	"github.com/aurora-intel/aurora-core/pkg/canonical"
	"github.com/aurora-intel/aurora-core/pkg/logger"
)

// Repository handles database operations for the temporal graph tables.
// All reads compose the tenant predicate; callers never build it.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new KG repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("kg.repo")),
	}
}

// tenantWhere scopes a query to the caller's tenant. A nil tenant id
// addresses the shared (null-tenant) bucket, never all tenants.
func tenantWhere(q *bun.SelectQuery, tenantID *int64) *bun.SelectQuery {
	if tenantID != nil {
		return q.Where("tenant_id = ?", *tenantID)
	}
	return q.Where("tenant_id IS NULL")
}

func tenantWhereUpdate(q *bun.UpdateQuery, tenantID *int64) *bun.UpdateQuery {
	if tenantID != nil {
		return q.Where("tenant_id = ?", *tenantID)
	}
	return q.Where("tenant_id IS NULL")
}

// validAt restricts rows to versions valid at the given instant.
func validAt(q *bun.SelectQuery, at time.Time) *bun.SelectQuery {
	return q.Where("valid_from <= ?", at).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereOr("valid_to IS NULL").WhereOr("valid_to > ?", at)
		})
}

func tenantKey(tenantID *int64) string {
	if tenantID == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *tenantID)
}

// AcquireNodeLock serializes writers of one (tenant, uid) key for the
// duration of the transaction.
func (r *Repository) AcquireNodeLock(ctx context.Context, tx bun.Tx, tenantID *int64, uid string) error {
	lockKey := fmt.Sprintf("kg_node:%s:%s", tenantKey(tenantID), uid)
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?)::bigint)", lockKey)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// AcquireEdgeLock serializes writers of one (tenant, src, dst, type) key.
func (r *Repository) AcquireEdgeLock(ctx context.Context, tx bun.Tx, tenantID *int64, src, dst, edgeType string) error {
	lockKey := fmt.Sprintf("kg_edge:%s:%s:%s:%s", tenantKey(tenantID), src, dst, edgeType)
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?)::bigint)", lockKey)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// InsertProvenance stores a provenance record and returns its id.
func (r *Repository) InsertProvenance(ctx context.Context, db bun.IDB, rec *ProvenanceRecord) error {
	_, err := db.NewInsert().Model(rec).Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// OpenNode returns the open version for (tenant, uid), or nil.
func (r *Repository) OpenNode(ctx context.Context, db bun.IDB, tenantID *int64, uid string) (*Node, error) {
	node := new(Node)
	q := db.NewSelect().Model(node).
		Where("uid = ?", uid).
		Where("valid_to IS NULL")
	err := tenantWhere(q, tenantID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return node, nil
}

// CloseNode sets valid_to on the open version of (tenant, uid).
func (r *Repository) CloseNode(ctx context.Context, tx bun.Tx, tenantID *int64, uid string, at time.Time) error {
	q := tx.NewUpdate().Model((*Node)(nil)).
		Set("valid_to = ?", at).
		Where("uid = ?", uid).
		Where("valid_to IS NULL")
	_, err := tenantWhereUpdate(q, tenantID).Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// InsertNode appends a new node version.
func (r *Repository) InsertNode(ctx context.Context, tx bun.Tx, node *Node) error {
	_, err := tx.NewInsert().Model(node).Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// OpenEdge returns the open version for (tenant, src, dst, type), or nil.
func (r *Repository) OpenEdge(ctx context.Context, db bun.IDB, tenantID *int64, src, dst, edgeType string) (*Edge, error) {
	edge := new(Edge)
	q := db.NewSelect().Model(edge).
		Where("src_uid = ?", src).
		Where("dst_uid = ?", dst).
		Where("type = ?", edgeType).
		Where("valid_to IS NULL")
	err := tenantWhere(q, tenantID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edge, nil
}

// CloseEdge sets valid_to on the open version of the edge key.
func (r *Repository) CloseEdge(ctx context.Context, tx bun.Tx, tenantID *int64, src, dst, edgeType string, at time.Time) error {
	q := tx.NewUpdate().Model((*Edge)(nil)).
		Set("valid_to = ?", at).
		Where("src_uid = ?", src).
		Where("dst_uid = ?", dst).
		Where("type = ?", edgeType).
		Where("valid_to IS NULL")
	_, err := tenantWhereUpdate(q, tenantID).Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// InsertEdge appends a new edge version.
func (r *Repository) InsertEdge(ctx context.Context, tx bun.Tx, edge *Edge) error {
	_, err := tx.NewInsert().Model(edge).Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// NodeAt returns the latest version of uid valid at the given instant,
// or nil when no version covers it.
func (r *Repository) NodeAt(ctx context.Context, tenantID *int64, uid string, at time.Time) (*Node, error) {
	node := new(Node)
	q := r.db.NewSelect().Model(node).Where("uid = ?", uid)
	q = validAt(tenantWhere(q, tenantID), at).
		Order("valid_from DESC").
		Limit(1)
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return node, nil
}

// EarliestNode returns the oldest version of uid, or nil.
func (r *Repository) EarliestNode(ctx context.Context, tenantID *int64, uid string) (*Node, error) {
	node := new(Node)
	q := r.db.NewSelect().Model(node).Where("uid = ?", uid)
	err := tenantWhere(q, tenantID).
		Order("valid_from ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return node, nil
}

// NodeAfter returns the first version of uid starting strictly after
// the given instant, or nil.
func (r *Repository) NodeAfter(ctx context.Context, tenantID *int64, uid string, after time.Time) (*Node, error) {
	node := new(Node)
	q := r.db.NewSelect().Model(node).
		Where("uid = ?", uid).
		Where("valid_from > ?", after)
	err := tenantWhere(q, tenantID).
		Order("valid_from ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return node, nil
}

// NodeHistory returns every version of uid, newest first.
func (r *Repository) NodeHistory(ctx context.Context, tenantID *int64, uid string) ([]*Node, error) {
	var nodes []*Node
	q := r.db.NewSelect().Model(&nodes).Where("uid = ?", uid)
	err := tenantWhere(q, tenantID).
		Order("valid_from DESC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return nodes, nil
}

// NodeExistsOtherTenant reports whether uid has an open-at-instant
// version under some different tenant. Used to distinguish a missing
// edge source from a cross-tenant reference.
func (r *Repository) NodeExistsOtherTenant(ctx context.Context, db bun.IDB, tenantID *int64, uid string, at time.Time) (bool, error) {
	q := db.NewSelect().Model((*Node)(nil)).Where("uid = ?", uid)
	q = validAt(q, at)
	if tenantID != nil {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereOr("tenant_id IS NULL").WhereOr("tenant_id != ?", *tenantID)
		})
	} else {
		q = q.Where("tenant_id IS NOT NULL")
	}
	count, err := q.Count(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return count > 0, nil
}

// SourceNodeAt resolves the edge-source existence requirement inside a
// commit transaction.
func (r *Repository) SourceNodeAt(ctx context.Context, tx bun.Tx, tenantID *int64, uid string, at time.Time) (*Node, error) {
	node := new(Node)
	q := tx.NewSelect().Model(node).Where("uid = ?", uid)
	q = validAt(tenantWhere(q, tenantID), at).
		Order("valid_from DESC").
		Limit(1)
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return node, nil
}

// FindParams is the whitelisted predicate set for node search.
type FindParams struct {
	AsOf         time.Time
	Type         string
	UIDPrefix    string
	PropContains string
	PropKey      string
	PropValue    string
	PropOp       string // "contains" or "eq"
	Offset       int
	Limit        int
	LtID         *int64 // keyset mode when set
}

// FindNodes returns nodes matching the filter set, ordered id DESC.
// One extra row beyond Limit is fetched so callers can detect more.
func (r *Repository) FindNodes(ctx context.Context, tenantID *int64, p FindParams) ([]*Node, error) {
	var nodes []*Node
	q := r.db.NewSelect().Model(&nodes)
	q = validAt(tenantWhere(q, tenantID), p.AsOf)

	if p.Type != "" {
		q = q.Where("type = ?", p.Type)
	}
	if p.UIDPrefix != "" {
		q = q.Where("uid LIKE ?", escapeLike(p.UIDPrefix)+"%")
	}
	if p.PropContains != "" {
		q = q.Where("properties LIKE ?", "%"+escapeLike(p.PropContains)+"%")
	}
	if p.PropKey != "" {
		switch p.PropOp {
		case "eq":
			// Exact match against the canonical encoding of the pair.
			q = q.Where("properties LIKE ?", "%"+escapeLike(propNeedle(p.PropKey, p.PropValue))+"%")
		default:
			keyNeedle := fmt.Sprintf("%q:", p.PropKey)
			q = q.Where("properties LIKE ?", "%"+escapeLike(keyNeedle)+"%")
			if p.PropValue != "" {
				q = q.Where("replace(properties, ' ', '') LIKE ?",
					"%"+escapeLike(strings.ReplaceAll(p.PropValue, " ", ""))+"%")
			}
		}
	}

	if p.LtID != nil {
		q = q.Where("n.id < ?", *p.LtID)
	} else if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}

	err := q.Order("n.id DESC").Limit(p.Limit + 1).Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return nodes, nil
}

// propNeedle builds the canonical `"key":value` fragment for an eq
// filter. A value that parses as a JSON literal (number, boolean,
// null, quoted string) is matched in its canonical encoding; anything
// else is matched as a plain string.
func propNeedle(key, value string) string {
	var v any
	if err := json.Unmarshal([]byte(value), &v); err == nil {
		if enc, err := canonical.Marshal(v); err == nil {
			return fmt.Sprintf("%q:%s", key, enc)
		}
	}
	return fmt.Sprintf("%q:%q", key, value)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// EdgeParams selects edges around one node.
type EdgeParams struct {
	AsOf      time.Time
	UID       string
	Direction string // "all", "out", "in"
	Type      string
	Offset    int
	Limit     int
	LtID      *int64
}

// Edges returns edges touching a node in the requested direction,
// ordered id DESC, with one probe row beyond Limit.
func (r *Repository) Edges(ctx context.Context, tenantID *int64, p EdgeParams) ([]*Edge, error) {
	var edges []*Edge
	q := r.db.NewSelect().Model(&edges)
	q = validAt(tenantWhere(q, tenantID), p.AsOf)

	switch p.Direction {
	case "out":
		q = q.Where("src_uid = ?", p.UID)
	case "in":
		q = q.Where("dst_uid = ?", p.UID)
	default:
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereOr("src_uid = ?", p.UID).WhereOr("dst_uid = ?", p.UID)
		})
	}
	if p.Type != "" {
		q = q.Where("type = ?", p.Type)
	}

	if p.LtID != nil {
		q = q.Where("e.id < ?", *p.LtID)
	} else if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}

	err := q.Order("e.id DESC").Limit(p.Limit + 1).Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, nil
}

// EdgesTouching returns edges valid at the instant where either
// endpoint is in the uid set. Used by neighbor expansion; capped.
func (r *Repository) EdgesTouching(ctx context.Context, tenantID *int64, uids []string, at time.Time, limit int) ([]*Edge, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	var edges []*Edge
	q := r.db.NewSelect().Model(&edges)
	q = validAt(tenantWhere(q, tenantID), at).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereOr("src_uid IN (?)", bun.In(uids)).
				WhereOr("dst_uid IN (?)", bun.In(uids))
		}).
		Order("e.id ASC").
		Limit(limit)
	err := q.Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, nil
}

// OutboundEdgesAt returns edges with src_uid = uid valid at the instant.
func (r *Repository) OutboundEdgesAt(ctx context.Context, tenantID *int64, uid string, at time.Time) ([]*Edge, error) {
	var edges []*Edge
	q := r.db.NewSelect().Model(&edges).Where("src_uid = ?", uid)
	err := validAt(tenantWhere(q, tenantID), at).
		Order("e.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, nil
}

// OutboundEdgesAfter returns edges with src_uid = uid whose version
// starts strictly after the instant.
func (r *Repository) OutboundEdgesAfter(ctx context.Context, tenantID *int64, uid string, after time.Time) ([]*Edge, error) {
	var edges []*Edge
	q := r.db.NewSelect().Model(&edges).
		Where("src_uid = ?", uid).
		Where("valid_from > ?", after)
	err := tenantWhere(q, tenantID).
		Order("e.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, nil
}

// OpenOutboundEdges returns currently-open edges with src_uid = uid.
func (r *Repository) OpenOutboundEdges(ctx context.Context, tenantID *int64, uid string) ([]*Edge, error) {
	var edges []*Edge
	q := r.db.NewSelect().Model(&edges).
		Where("src_uid = ?", uid).
		Where("valid_to IS NULL")
	err := tenantWhere(q, tenantID).
		Order("e.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, nil
}

// ProvenanceByID returns a provenance record, or nil.
func (r *Repository) ProvenanceByID(ctx context.Context, id int64) (*ProvenanceRecord, error) {
	rec := new(ProvenanceRecord)
	err := r.db.NewSelect().Model(rec).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return rec, nil
}

// Stats returns tenant-scoped row totals and latest activity timestamps.
func (r *Repository) Stats(ctx context.Context, tenantID *int64) (*StatsResponse, error) {
	stats := &StatsResponse{}

	count := func(model any, open bool) (int64, error) {
		q := r.db.NewSelect().Model(model)
		q = tenantWhere(q, tenantID)
		if open {
			q = q.Where("valid_to IS NULL")
		}
		n, err := q.Count(ctx)
		return int64(n), err
	}

	var err error
	if stats.Nodes, err = count((*Node)(nil), false); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	if stats.OpenNodes, err = count((*Node)(nil), true); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	if stats.Edges, err = count((*Edge)(nil), false); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	if stats.OpenEdges, err = count((*Edge)(nil), true); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	snapQ := r.db.NewSelect().Model((*Snapshot)(nil))
	snapCount, err := tenantWhere(snapQ, tenantID).Count(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	stats.Snapshots = int64(snapCount)

	var latestNode time.Time
	q := r.db.NewSelect().Model((*Node)(nil)).ColumnExpr("max(valid_from)")
	if err := tenantWhere(q, tenantID).Scan(ctx, &latestNode); err == nil && !latestNode.IsZero() {
		stats.LatestNodeTime = &latestNode
	}
	var latestEdge time.Time
	q = r.db.NewSelect().Model((*Edge)(nil)).ColumnExpr("max(valid_from)")
	if err := tenantWhere(q, tenantID).Scan(ctx, &latestEdge); err == nil && !latestEdge.IsZero() {
		stats.LatestEdgeTime = &latestEdge
	}

	return stats, nil
}

// OpenNodesOrdered returns all currently-open nodes ordered by
// (uid, type) for snapshot payload construction.
func (r *Repository) OpenNodesOrdered(ctx context.Context, db bun.IDB, tenantID *int64) ([]*Node, error) {
	var nodes []*Node
	q := db.NewSelect().Model(&nodes).Where("valid_to IS NULL")
	err := tenantWhere(q, tenantID).
		Order("uid ASC", "type ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return nodes, nil
}

// OpenEdgesOrdered returns all currently-open edges ordered by
// (src_uid, dst_uid, type) for snapshot payload construction.
func (r *Repository) OpenEdgesOrdered(ctx context.Context, db bun.IDB, tenantID *int64) ([]*Edge, error) {
	var edges []*Edge
	q := db.NewSelect().Model(&edges).Where("valid_to IS NULL")
	err := tenantWhere(q, tenantID).
		Order("src_uid ASC", "dst_uid ASC", "type ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return edges, nil
}

// InsertSnapshot stores a snapshot row.
func (r *Repository) InsertSnapshot(ctx context.Context, db bun.IDB, snap *Snapshot) error {
	_, err := db.NewInsert().Model(snap).Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// InsertLedgerEntry appends an ingest ledger row.
func (r *Repository) InsertLedgerEntry(ctx context.Context, db bun.IDB, entry *LedgerEntry) error {
	_, err := db.NewInsert().Model(entry).Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// SnapshotByHash returns the newest snapshot with the given hash, or nil.
func (r *Repository) SnapshotByHash(ctx context.Context, tenantID *int64, hash string) (*Snapshot, error) {
	snap := new(Snapshot)
	q := r.db.NewSelect().Model(snap).Where("snapshot_hash = ?", hash)
	err := tenantWhere(q, tenantID).
		Order("s.id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return snap, nil
}

// UpdateSnapshotColumns updates only the named columns of a snapshot.
func (r *Repository) UpdateSnapshotColumns(ctx context.Context, snap *Snapshot, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}
	_, err := r.db.NewUpdate().Model(snap).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ListSnapshots returns the latest snapshots, newest insertion first.
func (r *Repository) ListSnapshots(ctx context.Context, tenantID *int64, limit int) ([]*Snapshot, error) {
	var snaps []*Snapshot
	q := r.db.NewSelect().Model(&snaps)
	err := tenantWhere(q, tenantID).
		Order("s.id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return snaps, nil
}
