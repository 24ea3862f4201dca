package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
)

func selfSignedPEM(t *testing.T, cn string, serial int64) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestManager_StoreListDelete(t *testing.T) {
	m := NewManager(t.TempDir(), SHA256, zap.NewNop())
	pemData := selfSignedPEM(t, "CSMS Root", 4660)

	status, hd, err := m.Store("station-1", UseCSMSRoot, pemData)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, status)
	assert.Equal(t, "SHA256", hd.HashAlgorithm)
	assert.Equal(t, "1234", hd.SerialNumber)
	assert.NotEmpty(t, hd.IssuerNameHash)
	assert.NotEmpty(t, hd.IssuerKeyHash)

	entries, err := m.List("station-1", nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, UseCSMSRoot, entries[0].Use)
	assert.Equal(t, hd, entries[0].HashData)

	status, err = m.Delete("station-1", hd)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, status)

	entries, err = m.List("station-1", nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestManager_ListFiltersByUse(t *testing.T) {
	m := NewManager(t.TempDir(), SHA256, zap.NewNop())

	_, _, err := m.Store("station-1", UseCSMSRoot, selfSignedPEM(t, "CSMS Root", 1))
	require.NoError(t, err)
	_, _, err = m.Store("station-1", UseV2GRoot, selfSignedPEM(t, "V2G Root", 2))
	require.NoError(t, err)

	entries, err := m.List("station-1", []Use{UseV2GRoot})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, UseV2GRoot, entries[0].Use)

	entries, err = m.List("station-1", nil)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestManager_StoreRejectsNonPEM(t *testing.T) {
	m := NewManager(t.TempDir(), SHA256, zap.NewNop())

	status, _, err := m.Store("station-1", UseCSMSRoot, "not a certificate")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, status)

	entries, err := m.List("station-1", nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestManager_DeleteUnknownCertificate(t *testing.T) {
	m := NewManager(t.TempDir(), SHA256, zap.NewNop())

	status, err := m.Delete("station-1", domain.CertificateHashData{
		HashAlgorithm: "SHA256",
		SerialNumber:  "DEADBEEF",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, status)
}

func TestManager_HashChainDeterministic(t *testing.T) {
	m := NewManager(t.TempDir(), SHA256, zap.NewNop())
	pemData := selfSignedPEM(t, "Root", 7)

	hd1, err := m.HashChain(pemData)
	require.NoError(t, err)
	hd2, err := m.HashChain(pemData)
	require.NoError(t, err)
	assert.Equal(t, hd1, hd2)
}

func TestManager_VerifyHashData(t *testing.T) {
	m := NewManager(t.TempDir(), SHA256, zap.NewNop())
	_, hd, err := m.Store("station-1", UseMORoot, selfSignedPEM(t, "MO Root", 9))
	require.NoError(t, err)

	assert.True(t, m.VerifyHashData([]domain.CertificateHashData{hd}))
	assert.False(t, m.VerifyHashData([]domain.CertificateHashData{{
		HashAlgorithm: "SHA256",
		SerialNumber:  "FFFF",
	}}))
	assert.False(t, m.VerifyHashData(nil))
}

func TestManager_StoreReplacesSameSerial(t *testing.T) {
	m := NewManager(t.TempDir(), SHA256, zap.NewNop())
	pemData := selfSignedPEM(t, "Root", 11)

	_, _, err := m.Store("station-1", UseCSMSRoot, pemData)
	require.NoError(t, err)
	_, _, err = m.Store("station-1", UseCSMSRoot, pemData)
	require.NoError(t, err)

	entries, err := m.List("station-1", nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
