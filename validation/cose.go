package validation

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/streamauction/auctionapi"
	"github.com/cloudx-io/streamauction/auctionapi/parsing"
)

// VerifyCOSESignature verifies the ES384 COSE_Sign1 signature of an NSM attestation
// document with the public key of its leaf certificate.
func VerifyCOSESignature(coseBytes []byte, leaf *x509.Certificate) error {
	msg, err := parsing.ParseSign1(coseBytes)
	if err != nil {
		return err
	}

	alg, err := msg.Algorithm()
	if err != nil {
		return err
	}
	if cose.Algorithm(alg) != cose.AlgorithmES384 {
		return fmt.Errorf("unexpected algorithm %d, NSM documents are signed ES384", alg)
	}

	ecdsaKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not ECDSA")
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmES384, ecdsaKey)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	toBeSigned, err := msg.SigStructure()
	if err != nil {
		return err
	}
	if err := verifier.Verify(toBeSigned, msg.Signature); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}
	return nil
}

// ParsePublicKeyPEM parses a PKIX ECDSA public key.
func ParsePublicKeyPEM(publicKeyPEM string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(publicKeyPEM)))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	ecdsaKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ECDSA")
	}
	return ecdsaKey, nil
}

// DecodeSignedCheckpoint parses a checkpoint COSE_Sign1 message and its payload without
// verifying the signature.
func DecodeSignedCheckpoint(raw auctionapi.CheckpointCOSE) (*cose.Sign1Message, *auctionapi.Checkpoint, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(raw); err != nil {
		return nil, nil, fmt.Errorf("parse checkpoint COSE: %w", err)
	}
	cp, err := auctionapi.UnmarshalCheckpoint(msg.Payload)
	if err != nil {
		return nil, nil, err
	}
	return &msg, cp, nil
}

// VerifyCheckpointSignature verifies msg with the ES256 key in publicKeyPEM.
func VerifyCheckpointSignature(msg *cose.Sign1Message, publicKeyPEM string) error {
	key, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return err
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmES256, key)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return fmt.Errorf("checkpoint signature verification failed: %w", err)
	}
	return nil
}
