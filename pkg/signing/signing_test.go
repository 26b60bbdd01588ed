package signing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestHMACSigner_SignVerifyRoundTrip(t *testing.T) {
	s := NewHMACSigner("test-secret")

	material, err := s.Sign(context.Background(), testHash)
	require.NoError(t, err)
	assert.Equal(t, BackendHMAC, material.Backend)
	assert.Len(t, material.Signature, 64, "hex HMAC-SHA256")

	outcome := s.Verify(context.Background(), testHash, material)
	assert.True(t, outcome.Valid)
	assert.Equal(t, BackendHMAC, outcome.Backend)
	assert.Empty(t, outcome.Reason)
}

func TestHMACSigner_TamperedSignature(t *testing.T) {
	s := NewHMACSigner("test-secret")

	material, err := s.Sign(context.Background(), testHash)
	require.NoError(t, err)

	// Flip one hex digit
	sig := []byte(material.Signature)
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}
	material.Signature = string(sig)

	outcome := s.Verify(context.Background(), testHash, material)
	assert.False(t, outcome.Valid)
	assert.Equal(t, ReasonSignatureMismatch, outcome.Reason)
}

func TestHMACSigner_WrongHash(t *testing.T) {
	s := NewHMACSigner("test-secret")

	material, err := s.Sign(context.Background(), testHash)
	require.NoError(t, err)

	outcome := s.Verify(context.Background(), "0000000000000000000000000000000000000000000000000000000000000000", material)
	assert.False(t, outcome.Valid)
}

func TestHMACSigner_MissingSecretOrSignature(t *testing.T) {
	withSecret := NewHMACSigner("test-secret")
	noSecret := NewHMACSigner("")

	outcome := noSecret.Verify(context.Background(), testHash, Material{Signature: "deadbeef"})
	assert.False(t, outcome.Valid)
	assert.Equal(t, ReasonMissingSecretOrSignature, outcome.Reason)

	outcome = withSecret.Verify(context.Background(), testHash, Material{})
	assert.False(t, outcome.Valid)
	assert.Equal(t, ReasonMissingSecretOrSignature, outcome.Reason)

	_, err := noSecret.Sign(context.Background(), testHash)
	require.ErrorIs(t, err, ErrSigningUnavailable)
}

func TestHMACSigner_DifferentSecretsDisagree(t *testing.T) {
	a := NewHMACSigner("secret-a")
	b := NewHMACSigner("secret-b")

	material, err := a.Sign(context.Background(), testHash)
	require.NoError(t, err)

	assert.True(t, a.Verify(context.Background(), testHash, material).Valid)
	assert.False(t, b.Verify(context.Background(), testHash, material).Valid)
}

func TestSuite_DispatchByBackend(t *testing.T) {
	hmacSigner := NewHMACSigner("test-secret")
	suite, err := NewSuite(BackendHMAC, hmacSigner, NewSigstoreSigner(SigstoreConfig{OfflineFallback: true}))
	require.NoError(t, err)

	material, err := suite.Sign(context.Background(), testHash)
	require.NoError(t, err)
	assert.Equal(t, BackendHMAC, material.Backend)

	// Material with no backend falls to the default
	outcome := suite.Verify(context.Background(), testHash, Material{Signature: material.Signature})
	assert.True(t, outcome.Valid)

	outcome = suite.Verify(context.Background(), testHash, Material{Backend: "pgp"})
	assert.False(t, outcome.Valid)
	assert.Equal(t, ReasonUnsupportedBackend, outcome.Reason)
}

func TestSuite_UnknownDefaultBackend(t *testing.T) {
	_, err := NewSuite("pgp", NewHMACSigner("x"))
	assert.Error(t, err)
}

func TestSigstore_StructuralFallback_TopLevelField(t *testing.T) {
	s := NewSigstoreSigner(SigstoreConfig{OfflineFallback: true, AllowUnsafePolicy: true})

	bundleJSON, err := json.Marshal(map[string]string{"payloadSHA256": testHash})
	require.NoError(t, err)

	outcome := s.Verify(context.Background(), testHash, Material{DSSEBundleJSON: string(bundleJSON)})
	assert.True(t, outcome.Valid)
	assert.Equal(t, ReasonStructuralMatchOnly, outcome.Reason)
}

func TestSigstore_StructuralFallback_HashMismatch(t *testing.T) {
	s := NewSigstoreSigner(SigstoreConfig{OfflineFallback: true, AllowUnsafePolicy: true})

	outcome := s.Verify(context.Background(), testHash, Material{DSSEBundleJSON: `{"payloadSHA256":"not-the-hash"}`})
	assert.False(t, outcome.Valid)
}

func TestSigstore_FallbackDisabled(t *testing.T) {
	s := NewSigstoreSigner(SigstoreConfig{OfflineFallback: false, AllowUnsafePolicy: true})

	outcome := s.Verify(context.Background(), testHash, Material{DSSEBundleJSON: `{"payloadSHA256":"` + testHash + `"}`})
	assert.False(t, outcome.Valid)
	assert.NotEqual(t, ReasonStructuralMatchOnly, outcome.Reason)
}

func TestSigstore_MissingBundle(t *testing.T) {
	s := NewSigstoreSigner(SigstoreConfig{OfflineFallback: true})

	outcome := s.Verify(context.Background(), testHash, Material{})
	assert.False(t, outcome.Valid)
	assert.Equal(t, ReasonMissingSecretOrSignature, outcome.Reason)
}

func TestSigstore_SignWithoutIdentityToken(t *testing.T) {
	s := NewSigstoreSigner(SigstoreConfig{})
	_, err := s.Sign(context.Background(), testHash)
	require.ErrorIs(t, err, ErrSigningUnavailable)
}

func TestStructuralMatch_EnvelopePayload(t *testing.T) {
	payload, err := json.Marshal(map[string]string{"payloadSHA256": testHash})
	require.NoError(t, err)

	doc := map[string]any{
		"mediaType": "application/vnd.dev.sigstore.bundle.v0.3+json",
		"dsseEnvelope": map[string]any{
			"payload":     base64.StdEncoding.EncodeToString(payload),
			"payloadType": "application/vnd.aurora.snapshot+json",
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	assert.True(t, structuralMatch(string(raw), testHash))
	assert.False(t, structuralMatch(string(raw), "other"))
}

func TestStructuralMatch_Garbage(t *testing.T) {
	assert.False(t, structuralMatch("not json", testHash))
	assert.False(t, structuralMatch(`{"dsseEnvelope":{"payload":"!!!"}}`, testHash))
	assert.False(t, structuralMatch(`{}`, testHash))
}
