package kg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aurora-intel/aurora-core/internal/database"
	"github.com/aurora-intel/aurora-core/pkg/apperror"
	"github.com/aurora-intel/aurora-core/pkg/canonical"
	"github.com/aurora-intel/aurora-core/pkg/logger"
	"github.com/aurora-intel/aurora-core/pkg/merkle"
	"github.com/aurora-intel/aurora-core/pkg/signing"
)

// SnapshotHash computes the deterministic hash over the open graph
// projection. The capture time is deliberately excluded.
func SnapshotHash(nodes []*Node, edges []*Edge) (string, error) {
	nodeRows := make([]any, 0, len(nodes))
	for _, n := range nodes {
		nodeRows = append(nodeRows, []any{n.UID, n.Type, json.RawMessage(canonical.Normalize(n.Properties))})
	}
	edgeRows := make([]any, 0, len(edges))
	for _, e := range edges {
		edgeRows = append(edgeRows, []any{e.SrcUID, e.DstUID, e.Type, json.RawMessage(canonical.Normalize(e.Properties))})
	}
	payload := map[string]any{"nodes": nodeRows, "edges": edgeRows}
	return canonical.Hash(payload)
}

// SnapshotMerkleRoot builds the Merkle root over one leaf per open
// node and edge. An empty graph yields nil.
func SnapshotMerkleRoot(nodes []*Node, edges []*Edge) (*string, error) {
	leaves := make([][]byte, 0, len(nodes)+len(edges))
	for _, n := range nodes {
		leaf, err := canonical.Marshal(map[string]any{
			"n": []any{n.UID, n.Type, json.RawMessage(canonical.Normalize(n.Properties))},
		})
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	for _, e := range edges {
		leaf, err := canonical.Marshal(map[string]any{
			"e": []any{e.SrcUID, e.DstUID, e.Type, json.RawMessage(canonical.Normalize(e.Properties))},
		})
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	root := merkle.Root(leaves)
	if root == "" {
		return nil, nil
	}
	return &root, nil
}

// Snapshot captures the open graph state: hash, Merkle root, optional
// signature, and the snapshot plus ledger rows in one transaction.
func (s *Service) Snapshot(ctx context.Context, tenantID *int64, req SnapshotRequest) (*SnapshotResponse, error) {
	signer := req.Signer
	if signer == "" {
		signer = s.cfg.Signing.DefaultSigner
	}

	tx, err := database.BeginSafeTx(ctx, s.db)
	if err != nil {
		return nil, apperror.ErrStorageUnavailable.WithInternal(err)
	}
	defer tx.Rollback()

	nodes, err := s.repo.OpenNodesOrdered(ctx, tx.Tx, tenantID)
	if err != nil {
		return nil, err
	}
	edges, err := s.repo.OpenEdgesOrdered(ctx, tx.Tx, tenantID)
	if err != nil {
		return nil, err
	}

	hashStart := time.Now()
	hash, err := SnapshotHash(nodes, edges)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}
	root, err := SnapshotMerkleRoot(nodes, edges)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}
	s.metrics.HashTotal.Inc()
	s.metrics.HashDurationMsSum.Add(float64(time.Since(hashStart).Milliseconds()))

	material, err := s.signHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	atTS := s.now()
	snap := &Snapshot{
		TenantID:         tenantID,
		AtTS:             atTS,
		SnapshotHash:     hash,
		MerkleRoot:       root,
		NodeCount:        int64(len(nodes)),
		EdgeCount:        int64(len(edges)),
		Signer:           signer,
		Signature:        material.Signature,
		SignatureBackend: material.Backend,
		CertChainPEM:     material.CertChainPEM,
		DSSEBundleJSON:   material.DSSEBundleJSON,
		RekorLogID:       material.RekorLogID,
		RekorLogIndex:    material.RekorLogIndex,
		Notes:            req.Notes,
		CreatedAt:        atTS,
	}
	if err := s.repo.InsertSnapshot(ctx, tx.Tx, snap); err != nil {
		return nil, err
	}

	entry := &LedgerEntry{
		TenantID:      tenantID,
		IngestEventID: fmt.Sprintf("kg_snapshot:%s", atTS.Format(time.RFC3339Nano)),
		SnapshotHash:  hash,
		Signer:        signer,
		Signature:     material.Signature,
		CreatedAt:     atTS,
	}
	if err := s.repo.InsertLedgerEntry(ctx, tx.Tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	s.log.Info("snapshot created",
		slog.String("snapshot_hash", hash),
		slog.Int("nodes", len(nodes)),
		slog.Int("edges", len(edges)),
		slog.String("backend", material.Backend),
	)

	return snapshotResponse(snap), nil
}

// signHash signs the snapshot hash, tolerating an unavailable backend:
// the snapshot is written unsigned and can be signed or attested later.
func (s *Service) signHash(ctx context.Context, hash string) (signing.Material, error) {
	signStart := time.Now()
	material, err := s.suite.Sign(ctx, hash)
	s.metrics.SignTotal.Inc()
	s.metrics.SignDurationMsSum.Add(float64(time.Since(signStart).Milliseconds()))

	if err != nil {
		if errors.Is(err, signing.ErrSigningUnavailable) {
			s.log.Warn("signing unavailable, writing unsigned snapshot", logger.Error(err))
			return signing.Material{}, nil
		}
		return signing.Material{}, apperror.ErrInternal.WithInternal(err)
	}
	return material, nil
}

// Sign regenerates the signature of an existing snapshot. A snapshot
// that already carries one is returned as-is unless force is set.
func (s *Service) Sign(ctx context.Context, tenantID *int64, req SignRequest) (*SignResponse, error) {
	snap, err := s.repo.SnapshotByHash(ctx, tenantID, req.SnapshotHash)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, apperror.ErrNotFound.WithMessage("snapshot not found")
	}

	if snap.Signature != "" && !req.Force {
		s.metrics.SignCachedTotal.Inc()
		return &SignResponse{
			SnapshotHash:     snap.SnapshotHash,
			Signature:        snap.Signature,
			SignatureBackend: snap.SignatureBackend,
			Regenerated:      false,
		}, nil
	}

	material, err := s.signHash(ctx, snap.SnapshotHash)
	if err != nil {
		return nil, err
	}

	snap.Signature = material.Signature
	snap.SignatureBackend = material.Backend
	snap.CertChainPEM = material.CertChainPEM
	snap.DSSEBundleJSON = material.DSSEBundleJSON
	snap.RekorLogID = material.RekorLogID
	snap.RekorLogIndex = material.RekorLogIndex
	err = s.repo.UpdateSnapshotColumns(ctx, snap,
		"signature", "signature_backend", "cert_chain_pem",
		"dsse_bundle_json", "rekor_log_id", "rekor_log_index")
	if err != nil {
		return nil, err
	}

	s.metrics.SignRegeneratedTotal.Inc()
	return &SignResponse{
		SnapshotHash:     snap.SnapshotHash,
		Signature:        snap.Signature,
		SignatureBackend: snap.SignatureBackend,
		Regenerated:      true,
	}, nil
}

// Attest attaches externally produced signature material to a
// snapshot, updating only the supplied fields.
func (s *Service) Attest(ctx context.Context, tenantID *int64, req AttestRequest) (*AttestResponse, error) {
	snap, err := s.repo.SnapshotByHash(ctx, tenantID, req.SnapshotHash)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, apperror.ErrNotFound.WithMessage("snapshot not found")
	}

	var columns []string
	if req.Signature != nil {
		snap.Signature = *req.Signature
		columns = append(columns, "signature")
	}
	if req.CertChainPEM != nil {
		snap.CertChainPEM = *req.CertChainPEM
		columns = append(columns, "cert_chain_pem")
	}
	if req.DSSEBundleJSON != nil {
		snap.DSSEBundleJSON = *req.DSSEBundleJSON
		columns = append(columns, "dsse_bundle_json")
	}
	if req.RekorLogID != nil {
		snap.RekorLogID = *req.RekorLogID
		columns = append(columns, "rekor_log_id")
	}
	if req.RekorLogIndex != nil {
		snap.RekorLogIndex = req.RekorLogIndex
		columns = append(columns, "rekor_log_index")
	}
	switch {
	case req.SignatureBackend != nil:
		snap.SignatureBackend = *req.SignatureBackend
		columns = append(columns, "signature_backend")
	case req.DSSEBundleJSON != nil:
		// A bundle without an explicit backend is a sigstore attestation.
		snap.SignatureBackend = signing.BackendSigstore
		columns = append(columns, "signature_backend")
	}

	if err := s.repo.UpdateSnapshotColumns(ctx, snap, columns...); err != nil {
		return nil, err
	}

	return &AttestResponse{
		Updated:          columns,
		SignatureBackend: snap.SignatureBackend,
	}, nil
}

// VerifySnapshot checks signature material against a snapshot hash.
// Material fields missing from the request fall back to the persisted
// snapshot record. Bad input is never an error, only an invalid outcome.
func (s *Service) VerifySnapshot(ctx context.Context, tenantID *int64, req VerifyRequest) signing.Outcome {
	material := signing.Material{
		Signature:      req.Signature,
		Backend:        req.Backend,
		CertChainPEM:   req.CertChainPEM,
		DSSEBundleJSON: req.DSSEBundleJSON,
		RekorLogID:     req.RekorLogID,
		RekorLogIndex:  req.RekorLogIndex,
	}

	if material.Signature == "" || material.DSSEBundleJSON == "" {
		if snap, err := s.repo.SnapshotByHash(ctx, tenantID, req.SnapshotHash); err == nil && snap != nil {
			if material.Signature == "" {
				material.Signature = snap.Signature
			}
			if material.DSSEBundleJSON == "" {
				material.DSSEBundleJSON = snap.DSSEBundleJSON
			}
			if material.CertChainPEM == "" {
				material.CertChainPEM = snap.CertChainPEM
			}
			if material.Backend == "" {
				material.Backend = snap.SignatureBackend
			}
		}
	}

	outcome := s.suite.Verify(ctx, req.SnapshotHash, material)
	s.metrics.VerifyTotal.Inc()
	if !outcome.Valid {
		s.metrics.VerifyInvalidTotal.Inc()
	}
	return outcome
}

// ListSnapshots returns the latest snapshots, newest first.
func (s *Service) ListSnapshots(ctx context.Context, tenantID *int64, limit int) ([]*SnapshotResponse, error) {
	if limit < 1 || limit > 200 {
		limit = 20
	}
	snaps, err := s.repo.ListSnapshots(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*SnapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snapshotResponse(snap))
	}
	return out, nil
}

// SnapshotByHash fetches one snapshot record.
func (s *Service) SnapshotByHash(ctx context.Context, tenantID *int64, hash string) (*SnapshotResponse, error) {
	snap, err := s.repo.SnapshotByHash(ctx, tenantID, hash)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, apperror.ErrNotFound.WithMessage("snapshot not found")
	}
	return snapshotResponse(snap), nil
}

func snapshotResponse(snap *Snapshot) *SnapshotResponse {
	return &SnapshotResponse{
		AtTS:             snap.AtTS,
		SnapshotHash:     snap.SnapshotHash,
		MerkleRoot:       snap.MerkleRoot,
		NodeCount:        snap.NodeCount,
		EdgeCount:        snap.EdgeCount,
		Signer:           snap.Signer,
		Signature:        snap.Signature,
		SignatureBackend: snap.SignatureBackend,
		DSSEBundleJSON:   snap.DSSEBundleJSON,
		RekorLogID:       snap.RekorLogID,
		RekorLogIndex:    snap.RekorLogIndex,
	}
}
