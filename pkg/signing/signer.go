// Package signing provides the pluggable snapshot signing and verification
// backends (HMAC shared-secret and Sigstore keyless/DSSE).
package signing

import (
	"context"
	"errors"
)

// Backend identifiers.
const (
	BackendHMAC     = "hmac"
	BackendSigstore = "sigstore"
)

// Machine-readable verification reasons.
const (
	ReasonMissingSecretOrSignature = "missing_secret_or_signature"
	ReasonMissingPolicy            = "missing_policy"
	ReasonPayloadHashMismatch      = "payload_hash_mismatch"
	ReasonStructuralMatchOnly      = "structural_match_only"
	ReasonUnsupportedBackend       = "unsupported_backend"
	ReasonSignatureMismatch        = "signature_mismatch"
)

// ErrSigningUnavailable is returned by Sign when the backend cannot produce
// a signature right now (e.g. sigstore without an ambient identity token).
// Snapshot creation treats this as "write unsigned, attest later".
var ErrSigningUnavailable = errors.New("signing: backend unavailable")

// Material is the signature metadata produced by Sign and persisted on a
// snapshot row. Fields beyond Signature/Backend are sigstore-specific.
type Material struct {
	Signature      string
	Backend        string
	CertChainPEM   string
	DSSEBundleJSON string
	RekorLogID     string
	RekorLogIndex  *int64
}

// Outcome is the result of a verification attempt. Verification never
// returns an error for bad input; it reports {Valid:false, Reason}.
type Outcome struct {
	Valid   bool   `json:"valid"`
	Backend string `json:"backend"`
	Reason  string `json:"reason,omitempty"`
}

// Signer is the capability interface over one signing backend.
type Signer interface {
	Backend() string
	Sign(ctx context.Context, snapshotHash string) (Material, error)
	Verify(ctx context.Context, snapshotHash string, material Material) Outcome
}

// Suite dispatches verification to the backend named in the material and
// signing to the configured default backend.
type Suite struct {
	backends map[string]Signer
	def      Signer
}

// NewSuite builds a suite from the available backends. The backend whose
// name matches defaultBackend handles Sign calls.
func NewSuite(defaultBackend string, backends ...Signer) (*Suite, error) {
	s := &Suite{backends: make(map[string]Signer, len(backends))}
	for _, b := range backends {
		s.backends[b.Backend()] = b
	}
	def, ok := s.backends[defaultBackend]
	if !ok {
		return nil, errors.New("signing: unknown default backend " + defaultBackend)
	}
	s.def = def
	return s, nil
}

// Backend returns the default backend name.
func (s *Suite) Backend() string {
	return s.def.Backend()
}

// Sign signs with the default backend.
func (s *Suite) Sign(ctx context.Context, snapshotHash string) (Material, error) {
	return s.def.Sign(ctx, snapshotHash)
}

// Verify routes to the backend declared in the material, falling back to
// the default backend when none is declared.
func (s *Suite) Verify(ctx context.Context, snapshotHash string, material Material) Outcome {
	backend := material.Backend
	if backend == "" {
		backend = s.def.Backend()
	}
	b, ok := s.backends[backend]
	if !ok {
		return Outcome{Valid: false, Backend: backend, Reason: ReasonUnsupportedBackend}
	}
	return b.Verify(ctx, snapshotHash, material)
}
