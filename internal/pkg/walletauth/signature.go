package walletauth

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"
)

// VerifySignature checks a detached Ed25519 signature made by the wallet whose
// base58 address is given. Any decoding problem yields false.
func VerifySignature(address string, signature []byte, message string) bool {
	pub, err := base58.Decode(address)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), signature)
}

// VerifyBase58Signature decodes a base58 signature before verifying it.
func VerifyBase58Signature(address, signature, message string) bool {
	sig, err := base58.Decode(signature)
	if err != nil {
		return false
	}
	return VerifySignature(address, sig, message)
}
