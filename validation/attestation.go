package validation

import (
	"fmt"
	"time"

	"github.com/cloudx-io/streamauction/auctionapi"
	"github.com/cloudx-io/streamauction/auctionapi/parsing"
)

// ValidateAttestation validates an NSM attestation document: PCRs against knownPCRs, the
// certificate chain against the AWS Nitro root, and the COSE signature.
//
// Returns:
//   - the validation result, the parsed document and the raw user data it carries
//   - error if the document cannot be parsed at all
func ValidateAttestation(coseBytes []byte, knownPCRs []PCRSet) (*BaseValidationResult, *auctionapi.AttestationDoc, []byte, error) {
	return validateAttestation(coseBytes, knownPCRs, awsNitroRootCA)
}

func validateAttestation(coseBytes []byte, knownPCRs []PCRSet, rootPEM string) (*BaseValidationResult, *auctionapi.AttestationDoc, []byte, error) {
	attestationDoc, userData, err := parsing.ParseAttestationDoc(coseBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	result := &BaseValidationResult{
		ValidationDetails: []string{},
	}

	match := MatchPCRs(attestationDoc.PCRs, knownPCRs)
	result.PCRsValid = match.Matched
	switch {
	case len(knownPCRs) == 0:
		result.ValidationDetails = append(result.ValidationDetails, "No known PCR sets configured")
	case !match.Matched:
		closest := knownPCRs[match.Index]
		for _, index := range match.Mismatched {
			result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("PCR%d: %s (set #%d expects %s)",
				index, attestedPCR(attestationDoc.PCRs, index), match.Index, closest.value(index)))
		}
	default:
		result.ValidationDetails = append(result.ValidationDetails, "PCR measurements valid")
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Matched PCR set: #%d (commit: %s)",
			match.Index, knownPCRs[match.Index].CommitHash))
	}

	// Both remaining checks need the leaf certificate.
	if len(attestationDoc.Certificate) == 0 {
		result.ValidationDetails = append(result.ValidationDetails, "Missing certificate")
		return result, attestationDoc, userData, nil
	}
	leaf, err := ParseCertificate(attestationDoc.Certificate)
	if err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Certificate unreadable: %v", err))
		return result, attestationDoc, userData, nil
	}

	if len(attestationDoc.CABundle) == 0 {
		result.ValidationDetails = append(result.ValidationDetails, "Missing CA bundle")
	} else if err := validateCertificateChain(leaf, attestationDoc.CABundle, attestationDoc.Timestamp, rootPEM); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Certificate chain validation failed: %v", err))
	} else {
		result.CertificateValid = true
		result.ValidationDetails = append(result.ValidationDetails, "Certificate chain verified at "+attestationDoc.Timestamp.Format(time.RFC3339))
	}

	if err := VerifyCOSESignature(coseBytes, leaf); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("COSE signature verification failed: %v", err))
	} else {
		result.SignatureValid = true
		result.ValidationDetails = append(result.ValidationDetails, "COSE signature verified")
	}

	return result, attestationDoc, userData, nil
}
