package validation

// BaseValidationResult contains the results of validating an NSM attestation document
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// IsValid returns true if all attestation checks passed
func (r *BaseValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid
}

// CheckpointValidationResult contains validation results for a signed checkpoint
type CheckpointValidationResult struct {
	SignatureValid   bool // checkpoint COSE_Sign1 verifies with the daemon key
	ChainValid       bool // journal entries are numbered and hash-linked
	JournalHeadValid bool // checkpoint names the auction and journal entry it claims
	StateDigestValid bool // replaying the journal reproduces the state digest and time
	WinnerValid      bool // replayed winner, rate and lifecycle match the checkpoint

	// Attestation is nil when the checkpoint carries no NSM attestation.
	Attestation *BaseValidationResult
	// AttestationBound reports whether the attested user data names this checkpoint and key.
	AttestationBound bool

	ValidationDetails []string
}

// IsValid returns true if all checkpoint checks passed
func (r *CheckpointValidationResult) IsValid() bool {
	valid := r.SignatureValid && r.ChainValid && r.JournalHeadValid && r.StateDigestValid && r.WinnerValid
	if r.Attestation != nil {
		valid = valid && r.Attestation.IsValid() && r.AttestationBound
	}
	return valid
}

func (r *CheckpointValidationResult) detail(msg string) {
	r.ValidationDetails = append(r.ValidationDetails, msg)
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	PCR8       string `json:"pcr8,omitempty"` // signing certificate; unchecked when empty
	CommitHash string `json:"commit_hash"`    // repo commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
