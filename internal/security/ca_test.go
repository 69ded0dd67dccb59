package security

import (
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignCSRIssuesVerifiableCert(t *testing.T) {
	ca, err := NewCertAuthority("test")
	require.NoError(t, err)

	csrPEM, keyPEM, err := NewCSR("ts-uuid-1")
	require.NoError(t, err)
	require.NotEmpty(t, keyPEM)

	certPEM, err := ca.SignCSR(csrPEM)
	require.NoError(t, err)

	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	require.Equal(t, "ts-uuid-1", cert.Subject.CommonName)

	roots := x509.NewCertPool()
	require.True(t, roots.AppendCertsFromPEM(ca.CACertPEM()))
	_, err = cert.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	require.NoError(t, err)
}

func TestSignCSRIsIdempotentPerSubject(t *testing.T) {
	ca, err := NewCertAuthority("test")
	require.NoError(t, err)

	csrPEM, _, err := NewCSR("ts-uuid-1")
	require.NoError(t, err)

	first, err := ca.SignCSR(csrPEM)
	require.NoError(t, err)
	second, err := ca.SignCSR(csrPEM)
	require.NoError(t, err)
	require.Equal(t, first, second)

	otherCSR, _, err := NewCSR("ts-uuid-2")
	require.NoError(t, err)
	other, err := ca.SignCSR(otherCSR)
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestSignCSRRejectsGarbage(t *testing.T) {
	ca, err := NewCertAuthority("test")
	require.NoError(t, err)

	if _, err := ca.SignCSR([]byte("not a csr")); err == nil {
		t.Fatal("expected malformed request to fail")
	}
	if _, err := ca.SignCSR(ca.CACertPEM()); err == nil {
		t.Fatal("expected wrong PEM type to fail")
	}
}
