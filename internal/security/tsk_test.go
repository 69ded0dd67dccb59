package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignerStartsWithOneKey(t *testing.T) {
	s, err := NewTokenSigner(time.Hour)
	require.NoError(t, err)
	keys := s.PublicKeys()
	require.Len(t, keys, 1)
	require.EqualValues(t, 1, keys[0].KeyID)
}

func TestRotateKeepsUnexpiredKeys(t *testing.T) {
	s, err := NewTokenSigner(time.Hour)
	require.NoError(t, err)

	keyID, sig, err := s.Sign([]byte("payload"))
	require.NoError(t, err)
	require.EqualValues(t, 1, keyID)

	require.NoError(t, s.Rotate())
	keys := s.PublicKeys()
	require.Len(t, keys, 2)

	// Tokens signed before the rotation still verify.
	v := NewTokenVerifier()
	v.ImportKeys(keys)
	require.True(t, v.Verify(keyID, []byte("payload"), sig))

	// New signatures use the newest key.
	newID, _, err := s.Sign([]byte("payload"))
	require.NoError(t, err)
	require.EqualValues(t, 2, newID)
}

func TestVerifierRejectsUnknownAndExpiredKeys(t *testing.T) {
	s, err := NewTokenSigner(time.Hour)
	require.NoError(t, err)
	keyID, sig, err := s.Sign([]byte("payload"))
	require.NoError(t, err)

	v := NewTokenVerifier()
	require.False(t, v.Verify(keyID, []byte("payload"), sig), "no keys imported yet")

	v.ImportKeys(s.PublicKeys())
	require.True(t, v.Verify(keyID, []byte("payload"), sig))
	require.False(t, v.Verify(keyID, []byte("tampered"), sig))
	require.False(t, v.Verify(999, []byte("payload"), sig))

	expired := s.PublicKeys()
	for i := range expired {
		expired[i].ExpireUnix = time.Now().Add(-time.Minute).Unix()
	}
	vExpired := NewTokenVerifier()
	vExpired.ImportKeys(expired)
	require.False(t, vExpired.Verify(keyID, []byte("payload"), sig))
}

func TestVerifierSurvivesMalformedKeys(t *testing.T) {
	s, err := NewTokenSigner(time.Hour)
	require.NoError(t, err)
	keyID, sig, err := s.Sign([]byte("payload"))
	require.NoError(t, err)

	// A corrupt master response must degrade verification, never crash.
	v := NewTokenVerifier()
	v.ImportKeys([]PublicTSK{
		{KeyID: 7, PublicKey: []byte("short"), ExpireUnix: time.Now().Add(time.Hour).Unix()},
		{KeyID: 8, PublicKey: nil, ExpireUnix: time.Now().Add(time.Hour).Unix()},
	})
	require.Empty(t, v.ExportKeys(), "truncated keys are dropped")
	require.False(t, v.Verify(7, []byte("payload"), sig))

	// Valid keys still import alongside rejected ones.
	v.ImportKeys(append(s.PublicKeys(), PublicTSK{KeyID: 9, PublicKey: []byte{1, 2, 3}}))
	require.Len(t, v.ExportKeys(), 1)
	require.True(t, v.Verify(keyID, []byte("payload"), sig))
}

func TestImportKeysIsIdempotent(t *testing.T) {
	s, err := NewTokenSigner(time.Hour)
	require.NoError(t, err)

	v := NewTokenVerifier()
	v.ImportKeys(s.PublicKeys())
	v.ImportKeys(s.PublicKeys())
	require.Len(t, v.ExportKeys(), 1)
}
