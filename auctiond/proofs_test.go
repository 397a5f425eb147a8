package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/streamauction/auctionapi"
)

func TestGenerateSecureRandomBytes(t *testing.T) {
	bytes1, err1 := generateSecureRandomBytes(32)
	bytes2, err2 := generateSecureRandomBytes(32)

	check.NoError(t, err1)
	check.NoError(t, err2)
	check.Equal(t, 32, len(bytes1))
	check.Equal(t, 32, len(bytes2))
	check.NotEqual(t, hex.EncodeToString(bytes1), hex.EncodeToString(bytes2))
}

func TestGenerateNonce(t *testing.T) {
	nonce, err := generateNonce()
	check.NoError(t, err)
	check.Equal(t, 64, len(nonce))

	matched, err := regexp.MatchString(`^[a-f0-9]+$`, nonce)
	check.Nil(t, err)
	check.True(t, matched)
}

func TestGenerateCheckpointAttestation(t *testing.T) {
	cp := &auctionapi.Checkpoint{
		AuctionID:   "auction-1",
		Seq:         4,
		JournalHash: "aa11",
		StateDigest: "bb22",
	}

	var captured enclave.AttestationOptions
	attester := &MockEnclaveHandle{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			captured = options
			return []byte("attestation"), nil
		},
	}

	doc, err := GenerateCheckpointAttestation(attester, cp, "PEM")
	assert.NoError(t, err)
	check.Equal(t, []byte("attestation"), doc)
	check.Equal(t, 64, len(captured.Nonce))

	var userData auctionapi.CheckpointAttestationUserData
	assert.NoError(t, json.Unmarshal(captured.UserData, &userData))
	check.Equal(t, auctionapi.CheckpointAttestationUserData{
		AuctionID:   "auction-1",
		Seq:         4,
		JournalHash: "aa11",
		StateDigest: "bb22",
		PublicKey:   "PEM",
	}, userData)
}

func TestGenerateCheckpointAttestation_Errors(t *testing.T) {
	cp := &auctionapi.Checkpoint{AuctionID: "auction-1"}

	_, err := GenerateCheckpointAttestation(nil, cp, "PEM")
	check.Error(t, err)

	nsmDown := errors.New("nsm device unavailable")
	_, err = GenerateCheckpointAttestation(&MockEnclaveHandle{
		AttestFunc: func(enclave.AttestationOptions) ([]byte, error) { return nil, nsmDown },
	}, cp, "PEM")
	check.True(t, errors.Is(err, nsmDown))

	_, err = GenerateCheckpointAttestation(&MockEnclaveHandle{}, cp, "PEM")
	check.Error(t, err)
}
