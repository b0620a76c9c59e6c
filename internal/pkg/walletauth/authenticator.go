package walletauth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidSignature   = errors.New("invalid signature")
)

// Credentials is what a wallet submits to sign in.
type Credentials struct {
	PublicKey string `json:"publicKey" validate:"required,min=32,max=64"`
	Signature string `json:"signature" validate:"required"`
	Message   string `json:"message" validate:"required,max=1000"`
}

type Authenticator struct {
	nonces *NonceStore
}

func NewAuthenticator(nonces *NonceStore) *Authenticator {
	return &Authenticator{nonces: nonces}
}

// Authenticate verifies the signature first and only then burns the nonce, so
// a forged request cannot consume somebody else's challenge.
func (a *Authenticator) Authenticate(ctx context.Context, cred Credentials) error {
	if strings.TrimSpace(cred.PublicKey) == "" || cred.Signature == "" || cred.Message == "" {
		return ErrMissingCredentials
	}

	if !VerifyBase58Signature(strings.TrimSpace(cred.PublicKey), cred.Signature, cred.Message) {
		log.Warnf("[Auth] Invalid signature for wallet %s", cred.PublicKey)
		return ErrInvalidSignature
	}

	nonce, ok := ExtractNonce(cred.Message)
	if !ok {
		return ErrInvalidNonce
	}
	if err := a.nonces.Consume(ctx, nonce); err != nil {
		log.Warnf("[Auth] Rejected nonce for wallet %s: %v", cred.PublicKey, err)
		return err
	}
	return nil
}
