package escrow

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/pkg/errors"
)

// Signer is the external signing capability. The orchestration core never
// accesses private key material; hardware and browser wallets implement
// this same interface.
type Signer interface {
	PublicKey() ed25519.PublicKey
	SignTransaction(message []byte) ([]byte, error)
}

// LocalSigner signs with an in-memory keypair.
type LocalSigner struct {
	priv ed25519.PrivateKey
}

func NewLocalSigner(priv ed25519.PrivateKey) (*LocalSigner, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("invalid private key size: %d", len(priv))
	}

	return &LocalSigner{priv: priv}, nil
}

func GenerateLocalSigner() (*LocalSigner, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate keypair")
	}

	return &LocalSigner{priv: priv}, nil
}

func (s *LocalSigner) PublicKey() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

func (s *LocalSigner) SignTransaction(message []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, message), nil
}
