package signing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// HMACSigner signs snapshot hashes with HMAC-SHA256 over a shared secret.
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner creates the HMAC backend. An empty secret disables signing.
func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

// Backend implements Signer.
func (h *HMACSigner) Backend() string {
	return BackendHMAC
}

// Sign implements Signer.
func (h *HMACSigner) Sign(_ context.Context, snapshotHash string) (Material, error) {
	if len(h.secret) == 0 {
		return Material{}, errors.Join(ErrSigningUnavailable, errors.New("no signing secret configured"))
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(snapshotHash))
	return Material{
		Signature: hex.EncodeToString(mac.Sum(nil)),
		Backend:   BackendHMAC,
	}, nil
}

// Verify implements Signer with a constant-time comparison.
func (h *HMACSigner) Verify(_ context.Context, snapshotHash string, material Material) Outcome {
	if len(h.secret) == 0 || material.Signature == "" {
		return Outcome{Valid: false, Backend: BackendHMAC, Reason: ReasonMissingSecretOrSignature}
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(snapshotHash))
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(material.Signature)) != 1 {
		return Outcome{Valid: false, Backend: BackendHMAC, Reason: ReasonSignatureMismatch}
	}
	return Outcome{Valid: true, Backend: BackendHMAC}
}
