package kg

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aurora-intel/aurora-core/internal/database"
	"github.com/aurora-intel/aurora-core/pkg/apperror"
	"github.com/aurora-intel/aurora-core/pkg/canonical"
	"github.com/aurora-intel/aurora-core/pkg/logger"
)

// Commit applies a batch of graph events. Each event is reported
// independently; validation failures do not abort the batch, storage
// errors do.
func (s *Service) Commit(ctx context.Context, tenantID *int64, events []CommitEvent) (*CommitResponse, error) {
	batchID := uuid.NewString()
	results := make([]CommitResult, 0, len(events))
	lastIngest := time.Time{}

	for i := range events {
		ev := &events[i]

		ingestTime := s.now()
		if ev.IngestTime != nil {
			ingestTime = ev.IngestTime.UTC()
		}
		// valid_from is non-decreasing within a batch.
		if ingestTime.Before(lastIngest) {
			ingestTime = lastIngest
		}
		lastIngest = ingestTime

		res, err := s.applyEvent(ctx, tenantID, ev, ingestTime)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	s.log.Info("commit batch applied",
		logger.Scope("kg.commit"),
		slog.String("batch_id", batchID),
		slog.Int("events", len(results)),
	)
	return &CommitResponse{OK: true, BatchID: batchID, Count: len(results), Results: results}, nil
}

// applyEvent runs one commit event in its own transaction. The error
// return is reserved for storage failures; everything else lands in
// the result.
func (s *Service) applyEvent(ctx context.Context, tenantID *int64, ev *CommitEvent, ingestTime time.Time) (CommitResult, error) {
	op := NormalizeOperation(ev.Operation)
	if op == "" {
		return CommitResult{OK: false, Reason: "unsupported_operation"}, nil
	}

	props, err := canonicalProps(ev.Properties)
	if err != nil {
		return CommitResult{OK: false, Reason: "invalid_properties"}, nil
	}

	// Failing to even begin a transaction means the store is down.
	tx, err := database.BeginSafeTx(ctx, s.db)
	if err != nil {
		return CommitResult{}, apperror.ErrStorageUnavailable.WithInternal(err)
	}
	defer tx.Rollback()

	prov := &ProvenanceRecord{
		TenantID:        tenantID,
		SnapshotHash:    ev.SnapshotHash,
		Signer:          ev.Signer,
		PipelineVersion: ev.PipelineVersion,
		ModelVersion:    ev.ModelVersion,
		Evidence:        ev.Evidence,
		DocURLs:         ev.DocURLs,
		CreatedAt:       ingestTime,
	}
	if err := s.repo.InsertProvenance(ctx, tx.Tx, prov); err != nil {
		return CommitResult{}, err
	}

	var res CommitResult
	switch op {
	case OpCreateNode:
		res, err = s.applyNode(ctx, tx, tenantID, ev, props, prov.ID, ingestTime)
	case OpCreateEdge:
		res, err = s.applyEdge(ctx, tx, tenantID, ev, props, prov.ID, ingestTime)
	}
	if err != nil {
		return CommitResult{}, err
	}

	// Validation failures roll the provenance row back with the tx.
	if !res.OK {
		return res, nil
	}
	if err = tx.Commit(); err != nil {
		return CommitResult{}, apperror.ErrDatabase.WithInternal(err)
	}

	s.log.Debug("commit event applied",
		logger.Scope("kg.commit"),
		slog.String("operation", op),
		slog.Bool("noop", res.Noop),
	)
	return res, nil
}

func (s *Service) applyNode(ctx context.Context, tx *database.SafeTx, tenantID *int64, ev *CommitEvent, props string, provID int64, ingestTime time.Time) (CommitResult, error) {
	if ev.UID == "" {
		return CommitResult{OK: false, Reason: "missing_uid"}, nil
	}

	if err := s.repo.AcquireNodeLock(ctx, tx.Tx, tenantID, ev.UID); err != nil {
		return CommitResult{}, err
	}

	open, err := s.repo.OpenNode(ctx, tx.Tx, tenantID, ev.UID)
	if err != nil {
		return CommitResult{}, err
	}

	if open != nil && open.Type == ev.Type && canonical.Normalize(open.Properties) == props {
		vf := open.ValidFrom
		return CommitResult{OK: true, Noop: true, ID: open.ID, ValidFrom: &vf}, nil
	}

	if open != nil {
		// Closing before the open version began would invert its
		// validity window and erase it from every as-of read.
		if ingestTime.Before(open.ValidFrom) {
			return CommitResult{OK: false, Reason: "retroactive_ingest_time"}, nil
		}
		if err := s.repo.CloseNode(ctx, tx.Tx, tenantID, ev.UID, ingestTime); err != nil {
			return CommitResult{}, err
		}
	}

	node := &Node{
		TenantID:     tenantID,
		UID:          ev.UID,
		Type:         ev.Type,
		Properties:   props,
		ValidFrom:    ingestTime,
		ProvenanceID: &provID,
		CreatedAt:    s.now(),
	}
	if err := s.repo.InsertNode(ctx, tx.Tx, node); err != nil {
		return CommitResult{}, err
	}

	vf := node.ValidFrom
	return CommitResult{OK: true, ID: node.ID, ValidFrom: &vf}, nil
}

func (s *Service) applyEdge(ctx context.Context, tx *database.SafeTx, tenantID *int64, ev *CommitEvent, props string, provID int64, ingestTime time.Time) (CommitResult, error) {
	src, dst, edgeType := ev.EdgeEndpoints()
	if src == "" || dst == "" {
		return CommitResult{OK: false, Reason: "missing_endpoint"}, nil
	}
	if edgeType == "" {
		return CommitResult{OK: false, Reason: "missing_edge_type"}, nil
	}

	// Source must be an open node at the edge's valid_from; the
	// destination may be a forward reference.
	srcNode, err := s.repo.SourceNodeAt(ctx, tx.Tx, tenantID, src, ingestTime)
	if err != nil {
		return CommitResult{}, err
	}
	if srcNode == nil {
		other, err := s.repo.NodeExistsOtherTenant(ctx, tx.Tx, tenantID, src, ingestTime)
		if err != nil {
			return CommitResult{}, err
		}
		if other {
			return CommitResult{OK: false, Reason: "cross_tenant_conflict"}, nil
		}
		return CommitResult{OK: false, Reason: "src_not_found"}, nil
	}

	if err := s.repo.AcquireEdgeLock(ctx, tx.Tx, tenantID, src, dst, edgeType); err != nil {
		return CommitResult{}, err
	}

	open, err := s.repo.OpenEdge(ctx, tx.Tx, tenantID, src, dst, edgeType)
	if err != nil {
		return CommitResult{}, err
	}

	if open != nil && canonical.Normalize(open.Properties) == props {
		vf := open.ValidFrom
		return CommitResult{OK: true, Noop: true, ID: open.ID, ValidFrom: &vf}, nil
	}

	if open != nil {
		if ingestTime.Before(open.ValidFrom) {
			return CommitResult{OK: false, Reason: "retroactive_ingest_time"}, nil
		}
		if err := s.repo.CloseEdge(ctx, tx.Tx, tenantID, src, dst, edgeType, ingestTime); err != nil {
			return CommitResult{}, err
		}
	}

	edge := &Edge{
		TenantID:     tenantID,
		SrcUID:       src,
		DstUID:       dst,
		Type:         edgeType,
		Properties:   props,
		ValidFrom:    ingestTime,
		ProvenanceID: &provID,
		CreatedAt:    s.now(),
	}
	if err := s.repo.InsertEdge(ctx, tx.Tx, edge); err != nil {
		return CommitResult{}, err
	}

	vf := edge.ValidFrom
	return CommitResult{OK: true, ID: edge.ID, ValidFrom: &vf}, nil
}
