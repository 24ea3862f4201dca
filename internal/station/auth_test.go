package station

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
)

func idTag(value string) domain.Identifier {
	return domain.Identifier{Type: domain.IdentifierIdTag, Value: value, OcppVersion: "1.6"}
}

func TestAuthenticator_LocalListWins(t *testing.T) {
	list := NewLocalList()
	require.NoError(t, list.ReplaceFull(1, map[string]LocalListEntry{
		"TAG1": {Status: domain.AuthAccepted},
	}))

	var remoteCalls int32
	remote := func(ctx context.Context, id domain.Identifier) (domain.AuthorizationStatus, error) {
		atomic.AddInt32(&remoteCalls, 1)
		return domain.AuthAccepted, nil
	}

	a := NewAuthenticator(list, NewAuthCache(8, nil, zap.NewNop()), remote, nil, DefaultAuthOptions(), zap.NewNop())
	res := a.Authorize(context.Background(), idTag("TAG1"), domain.ContextTransactionStart)

	assert.Equal(t, domain.AuthAccepted, res.Status)
	assert.Equal(t, domain.MethodLocalList, res.Method)
	assert.Equal(t, int32(0), atomic.LoadInt32(&remoteCalls))
}

func TestAuthenticator_PreAuthorizeDisabledForcesRemote(t *testing.T) {
	list := NewLocalList()
	require.NoError(t, list.ReplaceFull(1, map[string]LocalListEntry{
		"TAG1": {Status: domain.AuthAccepted},
	}))

	var remoteCalls int32
	remote := func(ctx context.Context, id domain.Identifier) (domain.AuthorizationStatus, error) {
		atomic.AddInt32(&remoteCalls, 1)
		return domain.AuthBlocked, nil
	}

	opts := DefaultAuthOptions()
	opts.LocalPreAuthorize = false
	opts.CacheEnabled = false
	a := NewAuthenticator(list, nil, remote, nil, opts, zap.NewNop())

	// Transaction start must round-trip despite the local hit.
	res := a.Authorize(context.Background(), idTag("TAG1"), domain.ContextTransactionStart)
	assert.Equal(t, domain.AuthBlocked, res.Status)
	assert.Equal(t, domain.MethodRemote, res.Method)
	assert.Equal(t, int32(1), atomic.LoadInt32(&remoteCalls))

	// A plain stop check still honors the local list.
	res = a.Authorize(context.Background(), idTag("TAG1"), domain.ContextTransactionStop)
	assert.Equal(t, domain.MethodLocalList, res.Method)
	assert.Equal(t, int32(1), atomic.LoadInt32(&remoteCalls))
}

func TestAuthenticator_CacheOnlyStoresAccepted(t *testing.T) {
	cache := NewAuthCache(8, nil, zap.NewNop())
	verdict := domain.AuthBlocked
	remote := func(ctx context.Context, id domain.Identifier) (domain.AuthorizationStatus, error) {
		return verdict, nil
	}

	opts := DefaultAuthOptions()
	opts.LocalAuthListEnabled = false
	a := NewAuthenticator(nil, cache, remote, nil, opts, zap.NewNop())

	res := a.Authorize(context.Background(), idTag("TAG1"), domain.ContextTransactionStart)
	assert.Equal(t, domain.AuthBlocked, res.Status)
	assert.Equal(t, 0, cache.Len(), "rejections must not be cached")

	verdict = domain.AuthAccepted
	res = a.Authorize(context.Background(), idTag("TAG1"), domain.ContextTransactionStart)
	assert.Equal(t, domain.AuthAccepted, res.Status)
	assert.Equal(t, domain.MethodRemote, res.Method)
	assert.Equal(t, 1, cache.Len())

	// Second check for the same tag hits the cache.
	res = a.Authorize(context.Background(), idTag("TAG1"), domain.ContextTransactionStart)
	assert.Equal(t, domain.MethodCache, res.Method)
}

func TestAuthenticator_OfflineFallbackOnStop(t *testing.T) {
	remote := func(ctx context.Context, id domain.Identifier) (domain.AuthorizationStatus, error) {
		return "", errors.New("not connected")
	}
	opts := DefaultAuthOptions()
	opts.LocalAuthListEnabled = false
	opts.CacheEnabled = false
	opts.Timeout = 100 * time.Millisecond
	a := NewAuthenticator(nil, nil, remote, nil, opts, zap.NewNop())

	res := a.Authorize(context.Background(), idTag("TAG1"), domain.ContextTransactionStop)
	assert.Equal(t, domain.AuthAccepted, res.Status)
	assert.Equal(t, domain.MethodOfflineFallback, res.Method)

	res = a.Authorize(context.Background(), idTag("TAG1"), domain.ContextTransactionStart)
	assert.Equal(t, domain.AuthInvalid, res.Status)
}

func TestAuthenticator_InvalidIdentifier(t *testing.T) {
	a := NewAuthenticator(nil, nil, nil, nil, DefaultAuthOptions(), zap.NewNop())

	res := a.Authorize(context.Background(), idTag(""), domain.ContextTransactionStart)
	assert.Equal(t, domain.AuthInvalid, res.Status)

	res = a.Authorize(context.Background(), idTag("THIS-TAG-IS-WAY-TOO-LONG-FOR-16"), domain.ContextTransactionStart)
	assert.Equal(t, domain.AuthInvalid, res.Status)
}

type fixedVerifier struct{ ok bool }

func (v fixedVerifier) VerifyHashData([]domain.CertificateHashData) bool { return v.ok }

func TestAuthenticator_CertificateFallback(t *testing.T) {
	opts := DefaultAuthOptions()
	opts.LocalAuthListEnabled = false
	opts.CacheEnabled = false
	opts.OfflineFallback = false

	id := domain.Identifier{
		Type:        domain.IdentifierEMAID,
		Value:       "EMAID123",
		OcppVersion: "2.0.1",
		CertificateHashData: []domain.CertificateHashData{
			{HashAlgorithm: "SHA256", SerialNumber: "01"},
		},
	}

	a := NewAuthenticator(nil, nil, nil, fixedVerifier{ok: true}, opts, zap.NewNop())
	res := a.Authorize(context.Background(), id, domain.ContextTransactionStart)
	assert.Equal(t, domain.AuthAccepted, res.Status)
	assert.Equal(t, domain.MethodCertificate, res.Method)

	a = NewAuthenticator(nil, nil, nil, fixedVerifier{ok: false}, opts, zap.NewNop())
	res = a.Authorize(context.Background(), id, domain.ContextTransactionStart)
	assert.Equal(t, domain.AuthInvalid, res.Status)
}
