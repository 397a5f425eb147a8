package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/veraison/go-cose"
)

// KeyManager holds the daemon's checkpoint signing key. The key is generated at startup and
// never leaves the process; verifiers learn the public half from checkpoint responses.
type KeyManager struct {
	privateKey *ecdsa.PrivateKey // Keep private - sensitive!
	PublicKey  *ecdsa.PublicKey

	signer    cose.Signer
	publicPEM string
}

// NewKeyManager creates a new KeyManager and generates a fresh P-256 key pair
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	signer, err := cose.NewSigner(cose.AlgorithmES256, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create COSE signer: %w", err)
	}

	publicPEM, err := publicKeyToPEM(&privateKey.PublicKey)
	if err != nil {
		return nil, err
	}

	return &KeyManager{
		privateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		signer:     signer,
		publicPEM:  publicPEM,
	}, nil
}

// PublicKeyPEM returns the public key in PEM format
func (km *KeyManager) PublicKeyPEM() string {
	return km.publicPEM
}

// Signer returns the ES256 COSE signer for checkpoints.
func (km *KeyManager) Signer() cose.Signer {
	return km.signer
}

// publicKeyToPEM converts an ECDSA public key to PEM format
func publicKeyToPEM(publicKey *ecdsa.PublicKey) (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}

	return string(pem.EncodeToMemory(pemBlock)), nil
}
