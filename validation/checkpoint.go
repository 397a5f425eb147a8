package validation

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudx-io/streamauction/auctionapi"
	"github.com/cloudx-io/streamauction/core"
	"github.com/cloudx-io/streamauction/journal"
)

// CheckpointValidationInput contains all inputs needed for checkpoint validation
type CheckpointValidationInput struct {
	CheckpointCOSE auctionapi.CheckpointCOSE
	PublicKeyPEM   string          // daemon checkpoint key (from CheckpointResponse.PublicKey)
	Entries        []journal.Entry // journal from genesis through at least the checkpoint
	KnownPCRs      []PCRSet        // only used when the checkpoint carries an attestation

	rootPEM string // overrides the AWS Nitro root in tests
}

// ValidateCheckpoint validates a signed auction checkpoint and verifies:
// - The checkpoint is signed by the given key
// - The journal is an intact hash chain and the checkpoint names its entry
// - Replaying the journal up to the checkpoint reproduces the state digest
// - The replayed winner, winner rate and finished flag match
// - When attached, the NSM attestation is genuine and commits to this checkpoint
//
// Returns:
//   - CheckpointValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed checkpoint)
func ValidateCheckpoint(input *CheckpointValidationInput) (*CheckpointValidationResult, error) {
	msg, cp, err := DecodeSignedCheckpoint(input.CheckpointCOSE)
	if err != nil {
		return nil, err
	}

	result := &CheckpointValidationResult{ValidationDetails: []string{}}

	if err := VerifyCheckpointSignature(msg, input.PublicKeyPEM); err != nil {
		result.detail(fmt.Sprintf("Checkpoint signature invalid: %v", err))
	} else {
		result.SignatureValid = true
		result.detail("Checkpoint signature verified")
	}

	if err := journal.VerifyChain(input.Entries); err != nil {
		result.detail(fmt.Sprintf("Journal chain invalid: %v", err))
		return result, nil
	}
	result.ChainValid = true
	result.detail(fmt.Sprintf("Journal chain verified (%d entries)", len(input.Entries)))

	if cp.Seq >= uint64(len(input.Entries)) {
		result.detail(fmt.Sprintf("Checkpoint seq %d is beyond the journal (%d entries)", cp.Seq, len(input.Entries)))
		return result, nil
	}
	prefix := input.Entries[:cp.Seq+1]

	result.JournalHeadValid = validateJournalHead(cp, prefix, result)

	replayed, err := journal.Replay(prefix)
	if err != nil {
		result.detail(fmt.Sprintf("Journal replay failed: %v", err))
		return result, nil
	}

	snap := replayed.Auction.Snapshot()
	digest := core.ComputeStateDigest(snap)
	switch {
	case digest != cp.StateDigest:
		result.detail(fmt.Sprintf("State digest mismatch: replay %s, checkpoint %s", digest, cp.StateDigest))
	case snap.At.Unix() != cp.Timestamp:
		result.detail(fmt.Sprintf("Timestamp mismatch: replay %d, checkpoint %d", snap.At.Unix(), cp.Timestamp))
	default:
		result.StateDigestValid = true
		result.detail(fmt.Sprintf("State digest matches replay: %s", digest))
	}

	result.WinnerValid = validateWinner(cp, replayed.Auction, result)

	if len(cp.Attestation) > 0 {
		validateCheckpointAttestation(cp, input, result)
	}

	return result, nil
}

func validateJournalHead(cp *auctionapi.Checkpoint, prefix []journal.Entry, result *CheckpointValidationResult) bool {
	last := prefix[len(prefix)-1]
	genesis := prefix[0].Command.Genesis

	valid := true
	if genesis == nil || genesis.AuctionID != cp.AuctionID {
		result.detail(fmt.Sprintf("Auction id mismatch: checkpoint names %s", cp.AuctionID))
		valid = false
	}
	if hash := hex.EncodeToString(last.Hash); hash != cp.JournalHash {
		result.detail(fmt.Sprintf("Journal hash mismatch at seq %d: journal %s, checkpoint %s", cp.Seq, hash, cp.JournalHash))
		valid = false
	}
	if valid {
		result.detail(fmt.Sprintf("Checkpoint matches journal entry %d", cp.Seq))
	}
	return valid
}

func validateWinner(cp *auctionapi.Checkpoint, a *core.Auction, result *CheckpointValidationResult) bool {
	winner := auctionapi.FormatAddress(a.Winner())
	rate := a.WinnerRate().String()
	finished := a.IsFinished()

	if strings.EqualFold(winner, cp.Winner) && rate == cp.WinnerRate && finished == cp.Finished {
		if winner == "" {
			result.detail("Winner validation passed: no winner")
		} else {
			result.detail(fmt.Sprintf("Winner validation passed: %s at %s (finished: %t)", winner, rate, finished))
		}
		return true
	}
	result.detail(fmt.Sprintf("Winner mismatch: replay %q at %s (finished: %t), checkpoint %q at %s (finished: %t)",
		winner, rate, finished, cp.Winner, cp.WinnerRate, cp.Finished))
	return false
}

func validateCheckpointAttestation(cp *auctionapi.Checkpoint, input *CheckpointValidationInput, result *CheckpointValidationResult) {
	rootPEM := input.rootPEM
	if rootPEM == "" {
		rootPEM = awsNitroRootCA
	}

	base, _, userDataBytes, err := validateAttestation(cp.Attestation, input.KnownPCRs, rootPEM)
	if err != nil {
		result.Attestation = &BaseValidationResult{}
		result.detail(fmt.Sprintf("Attestation unreadable: %v", err))
		return
	}
	result.Attestation = base
	result.ValidationDetails = append(result.ValidationDetails, base.ValidationDetails...)

	var userData auctionapi.CheckpointAttestationUserData
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		result.detail(fmt.Sprintf("Attestation user data unreadable: %v", err))
		return
	}

	bound := userData.AuctionID == cp.AuctionID &&
		userData.Seq == cp.Seq &&
		userData.JournalHash == cp.JournalHash &&
		userData.StateDigest == cp.StateDigest &&
		strings.TrimSpace(userData.PublicKey) == strings.TrimSpace(input.PublicKeyPEM)
	result.AttestationBound = bound
	if bound {
		result.detail("Attestation commits to this checkpoint and key")
	} else {
		result.detail("Attestation user data does not match the checkpoint or key")
	}
}
