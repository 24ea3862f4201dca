package station

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/infrastructure/circuitbreaker"
)

// RemoteAuthorizer round-trips an Authorize request to the CSMS.
type RemoteAuthorizer func(ctx context.Context, id domain.Identifier) (domain.AuthorizationStatus, error)

// CertificateVerifier checks certificate hash data against the installed
// certificate store.
type CertificateVerifier interface {
	VerifyHashData(hashes []domain.CertificateHashData) bool
}

// AuthOptions tunes the pipeline per station.
type AuthOptions struct {
	LocalAuthListEnabled bool
	// LocalPreAuthorize false forces a remote round-trip on transaction
	// start even when the local list has a hit.
	LocalPreAuthorize bool
	CacheEnabled      bool
	CacheLifetime     time.Duration
	OfflineFallback   bool
	Timeout           time.Duration
}

// DefaultAuthOptions mirror a freshly provisioned station.
func DefaultAuthOptions() AuthOptions {
	return AuthOptions{
		LocalAuthListEnabled: true,
		LocalPreAuthorize:    true,
		CacheEnabled:         true,
		CacheLifetime:        300 * time.Second,
		OfflineFallback:      true,
		Timeout:              10 * time.Second,
	}
}

// Authenticator runs the strategies in priority order: local list, then the
// remote round-trip (cache first), then certificate hash verification.
type Authenticator struct {
	list    *LocalList
	cache   *AuthCache
	remote  RemoteAuthorizer
	certs   CertificateVerifier
	breaker *circuitbreaker.CircuitBreaker
	opts    AuthOptions
	log     *zap.Logger
}

// NewAuthenticator wires the pipeline. remote and certs may be nil when the
// station has no session or no certificate store yet.
func NewAuthenticator(list *LocalList, cache *AuthCache, remote RemoteAuthorizer, certs CertificateVerifier, opts AuthOptions, log *zap.Logger) *Authenticator {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	br := circuitbreaker.New(circuitbreaker.Settings{
		Name:        "csms-authorize",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
	}, log)
	return &Authenticator{
		list:    list,
		cache:   cache,
		remote:  remote,
		certs:   certs,
		breaker: br,
		opts:    opts,
		log:     log,
	}
}

// SetRemote swaps the remote strategy, used when a session comes up.
func (a *Authenticator) SetRemote(remote RemoteAuthorizer) {
	a.remote = remote
}

// Options returns the active options.
func (a *Authenticator) Options() AuthOptions {
	return a.opts
}

// Authorize evaluates the identifier for the given context and returns the
// first non-undefined verdict. Only remote Accepted results are cached.
func (a *Authenticator) Authorize(ctx context.Context, id domain.Identifier, authCtx domain.AuthorizationContext) domain.AuthorizationResult {
	if err := id.Validate(); err != nil {
		a.log.Debug("identifier rejected", zap.String("value", id.Value), zap.Error(err))
		return domain.AuthorizationResult{Status: domain.AuthInvalid}
	}

	if a.opts.LocalAuthListEnabled && a.list != nil {
		if status, ok := a.list.Lookup(id.Value); ok {
			forceRemote := !a.opts.LocalPreAuthorize && authCtx == domain.ContextTransactionStart
			if !forceRemote {
				return domain.AuthorizationResult{Status: status, Method: domain.MethodLocalList}
			}
		}
	}

	if a.opts.CacheEnabled && a.cache != nil {
		if status, ok, _ := a.cache.Lookup(ctx, id.Value); ok {
			return domain.AuthorizationResult{Status: status, Method: domain.MethodCache}
		}
	}

	if a.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
		status, err := circuitbreaker.ExecuteWithResult(a.breaker, func() (domain.AuthorizationStatus, error) {
			return a.remote(rctx, id)
		})
		cancel()
		if err == nil {
			if status == domain.AuthAccepted && a.opts.CacheEnabled && a.cache != nil {
				a.cache.Put(ctx, id.Value, status, a.opts.CacheLifetime)
			}
			return domain.AuthorizationResult{Status: status, Method: domain.MethodRemote}
		}
		if circuitbreaker.IsCircuitOpen(err) {
			a.log.Warn("remote authorize skipped, circuit open", zap.String("value", id.Value))
		} else {
			a.log.Warn("remote authorize failed", zap.String("value", id.Value), zap.Error(err))
		}
	}

	if len(id.CertificateHashData) > 0 && a.certs != nil {
		if a.certs.VerifyHashData(id.CertificateHashData) {
			return domain.AuthorizationResult{Status: domain.AuthAccepted, Method: domain.MethodCertificate}
		}
		return domain.AuthorizationResult{Status: domain.AuthInvalid, Method: domain.MethodCertificate}
	}

	if a.opts.OfflineFallback && authCtx == domain.ContextTransactionStop {
		return domain.AuthorizationResult{Status: domain.AuthAccepted, Method: domain.MethodOfflineFallback}
	}
	return domain.AuthorizationResult{Status: domain.AuthInvalid}
}
