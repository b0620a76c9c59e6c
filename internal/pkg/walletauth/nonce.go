package walletauth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/metrics"
)

const (
	NoncePendingPrefix = "nonce:pending:"
	NonceUsedPrefix    = "nonce:used:"

	NonceTTL     = 5 * time.Minute
	UsedNonceTTL = time.Hour
)

var ErrInvalidNonce = errors.New("invalid or expired nonce")

var noncePattern = regexp.MustCompile(`(?i)nonce: ([a-z0-9]+)`)

// ExtractNonce pulls the token out of a sign-in message of the form "... nonce: <token> ...".
func ExtractNonce(message string) (string, bool) {
	m := noncePattern.FindStringSubmatch(message)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// NonceStore issues single-use challenge tokens. The store is replay protection
// layered over signature verification, so an unreachable cache degrades to
// skipping the check instead of blocking sign-in.
type NonceStore struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewNonceStore(c cache.Cache) *NonceStore {
	return &NonceStore{cache: c, ttl: NonceTTL}
}

// Issue returns a fresh nonce. It is still returned when it could not be
// stored; Consume then runs in degraded mode for the same outage.
func (s *NonceStore) Issue(ctx context.Context) string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	if s.cache == nil {
		return nonce
	}
	if err := s.cache.Set(ctx, NoncePendingPrefix+nonce, "1", s.ttl); err != nil {
		metrics.CacheDegraded.WithLabelValues("nonce_issue").Inc()
		log.Warnf("[Auth] Could not store nonce, replay protection degraded: %v", err)
	}
	return nonce
}

// Consume atomically removes a pending nonce. It returns ErrInvalidNonce when
// the nonce is unknown, expired or already used.
func (s *NonceStore) Consume(ctx context.Context, nonce string) error {
	if nonce == "" {
		return ErrInvalidNonce
	}
	if s.cache == nil {
		log.Warnf("[Auth] SECURITY: no nonce store configured, skipping nonce verification")
		return nil
	}

	// A pending key can come back after a failover to a stale replica; the
	// used marker outlives it.
	if _, err := s.cache.Get(ctx, NonceUsedPrefix+nonce); err == nil {
		log.Warnf("[Auth] SECURITY: replayed nonce %s", nonce)
		return ErrInvalidNonce
	}

	_, err := s.cache.GetDel(ctx, NoncePendingPrefix+nonce)
	if errors.Is(err, cache.ErrCacheMiss) {
		return ErrInvalidNonce
	}
	if err != nil {
		metrics.CacheDegraded.WithLabelValues("nonce_consume").Inc()
		log.Warnf("[Auth] SECURITY: nonce store unavailable, skipping nonce verification: %v", err)
		return nil
	}

	if err := s.cache.Set(ctx, NonceUsedPrefix+nonce, "1", UsedNonceTTL); err != nil {
		log.Warnf("[Auth] Could not record used nonce %s: %v", nonce, err)
	}
	return nil
}
