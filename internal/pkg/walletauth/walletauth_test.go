package walletauth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogdorcult/burninator/internal/pkg/cache"
)

type wallet struct {
	address string
	priv    ed25519.PrivateKey
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return wallet{address: base58.Encode(pub), priv: priv}
}

func (w wallet) sign(message string) string {
	return base58.Encode(ed25519.Sign(w.priv, []byte(message)))
}

// brokenCache fails every call, like an unreachable Redis.
type brokenCache struct{}

var errDown = errors.New("dial tcp: connection refused")

func (brokenCache) Get(context.Context, string) (string, error)               { return "", errDown }
func (brokenCache) Set(context.Context, string, string, time.Duration) error { return errDown }
func (brokenCache) Incr(context.Context, string) (int64, error)              { return 0, errDown }
func (brokenCache) Expire(context.Context, string, time.Duration) error      { return errDown }
func (brokenCache) Del(context.Context, ...string) error                     { return errDown }
func (brokenCache) GetDel(context.Context, string) (string, error)            { return "", errDown }

func TestVerifySignature(t *testing.T) {
	w := newWallet(t)
	msg := "Sign in to the Cult of Trogdor\nnonce: abc123"
	sig := w.sign(msg)

	assert.True(t, VerifyBase58Signature(w.address, sig, msg))
	assert.False(t, VerifyBase58Signature(w.address, sig, msg+"!"))
	assert.False(t, VerifyBase58Signature(newWallet(t).address, sig, msg))
	assert.False(t, VerifyBase58Signature("not-base58-0OIl", sig, msg))
	assert.False(t, VerifyBase58Signature(w.address, "0OIl", msg))
	assert.False(t, VerifySignature(w.address, []byte("short"), msg))
	assert.False(t, VerifySignature(base58.Encode([]byte("too short key")), make([]byte, 64), msg))
}

func TestExtractNonce(t *testing.T) {
	n, ok := ExtractNonce("Welcome!\nNonce: 4f9ABC01\nIssued At: now")
	assert.True(t, ok)
	assert.Equal(t, "4f9ABC01", n)

	_, ok = ExtractNonce("no challenge here")
	assert.False(t, ok)
}

func TestNonceIsSingleUse(t *testing.T) {
	store := NewNonceStore(cache.NewMemory())
	ctx := context.Background()

	nonce := store.Issue(ctx)
	assert.Len(t, nonce, 32)
	assert.NotContains(t, nonce, "-")

	require.NoError(t, store.Consume(ctx, nonce))
	assert.ErrorIs(t, store.Consume(ctx, nonce), ErrInvalidNonce)
	assert.ErrorIs(t, store.Consume(ctx, "neverissued"), ErrInvalidNonce)
}

func TestNonceReplayAfterPendingKeyReturns(t *testing.T) {
	mem := cache.NewMemory()
	store := NewNonceStore(mem)
	ctx := context.Background()

	nonce := store.Issue(ctx)
	require.NoError(t, store.Consume(ctx, nonce))

	// The pending key reappears, e.g. from a replica that missed the delete.
	require.NoError(t, mem.Set(ctx, NoncePendingPrefix+nonce, "1", NonceTTL))
	assert.ErrorIs(t, store.Consume(ctx, nonce), ErrInvalidNonce)
}

func TestNonceExpires(t *testing.T) {
	mem := cache.NewMemory()
	store := NewNonceStore(mem)
	store.ttl = time.Millisecond
	ctx := context.Background()

	nonce := store.Issue(ctx)
	time.Sleep(5 * time.Millisecond)

	assert.ErrorIs(t, store.Consume(ctx, nonce), ErrInvalidNonce)
}

func TestNonceDegradesWhenCacheDown(t *testing.T) {
	store := NewNonceStore(brokenCache{})
	ctx := context.Background()

	nonce := store.Issue(ctx)
	assert.NotEmpty(t, nonce)
	assert.NoError(t, store.Consume(ctx, nonce))
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	store := NewNonceStore(cache.NewMemory())
	auth := NewAuthenticator(store)
	w := newWallet(t)

	nonce := store.Issue(ctx)
	msg := "Sign this message to join the cult.\n\nnonce: " + nonce
	cred := Credentials{PublicKey: w.address, Signature: w.sign(msg), Message: msg}

	t.Run("missing fields", func(t *testing.T) {
		assert.ErrorIs(t, auth.Authenticate(ctx, Credentials{PublicKey: w.address}), ErrMissingCredentials)
	})

	t.Run("bad signature does not burn the nonce", func(t *testing.T) {
		forged := cred
		forged.Signature = newWallet(t).sign(msg)
		assert.ErrorIs(t, auth.Authenticate(ctx, forged), ErrInvalidSignature)
	})

	t.Run("valid sign-in", func(t *testing.T) {
		require.NoError(t, auth.Authenticate(ctx, cred))
	})

	t.Run("replayed nonce with fresh signature", func(t *testing.T) {
		again := Credentials{PublicKey: w.address, Signature: w.sign(msg), Message: msg}
		assert.ErrorIs(t, auth.Authenticate(ctx, again), ErrInvalidNonce)
	})

	t.Run("message without nonce", func(t *testing.T) {
		plain := "Sign in please"
		assert.ErrorIs(t, auth.Authenticate(ctx, Credentials{PublicKey: w.address, Signature: w.sign(plain), Message: plain}), ErrInvalidNonce)
	})
}
