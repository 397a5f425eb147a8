package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"

	"github.com/cloudx-io/streamauction/auctionapi"
)

// EnclaveAttester interface for dependency injection and testing
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// getEnclaveAttester attempts to get the NSM attester, returns error if not available
func getEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// generateSecureRandomBytes generates cryptographically secure random bytes.
// Inside an enclave crypto/rand draws from the NSM-seeded kernel pool.
func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32) // 256 bits of entropy
	if err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// GenerateCheckpointAttestation asks the NSM for an attestation document whose user data
// commits to cp and to the key that signs it. It returns the raw COSE bytes.
func GenerateCheckpointAttestation(attester EnclaveAttester, cp *auctionapi.Checkpoint, publicKeyPEM string) ([]byte, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	userData := &auctionapi.CheckpointAttestationUserData{
		AuctionID:   cp.AuctionID,
		Seq:         cp.Seq,
		JournalHash: cp.JournalHash,
		StateDigest: cp.StateDigest,
		PublicKey:   publicKeyPEM,
	}

	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user data: %w", err)
	}

	randomNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(randomNonce),
	})
	if err != nil {
		log.Printf("ERROR: NSM attestation failed: %v", err)
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}

	log.Printf("INFO: NSM checkpoint attestation generated: %d bytes", len(attestationCBOR))

	return attestationCBOR, nil
}
