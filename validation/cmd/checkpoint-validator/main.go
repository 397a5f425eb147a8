package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudx-io/streamauction/auctionapi"
	"github.com/cloudx-io/streamauction/journal"
	"github.com/cloudx-io/streamauction/validation"
)

// plainTextHandler is a simple slog handler that writes plain text to stdout
// without timestamps or log levels - appropriate for CLI output
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

var logger = slog.New(&plainTextHandler{})

func main() {
	var (
		checkpointPath = flag.String("checkpoint", "", "Path to checkpoint response JSON file (required)")
		journalPath    = flag.String("journal", "", "Path to the auction journal database (required)")
		pcrPath        = flag.String("pcrs", "", "Path to known PCR sets JSON (needed for attested checkpoints)")
		outputFormat   = flag.String("format", "text", "Output format: text or json")
		help           = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help || *checkpointPath == "" || *journalPath == "" {
		showUsage()
		if *checkpointPath == "" || *journalPath == "" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	resp, err := readCheckpointResponse(*checkpointPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading checkpoint: %v\n", err)
		os.Exit(2)
	}
	coseBytes, err := resp.CheckpointCOSE.Decode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding checkpoint: %v\n", err)
		os.Exit(2)
	}

	entries, err := readJournal(*journalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading journal: %v\n", err)
		os.Exit(2)
	}

	var knownPCRs []validation.PCRSet
	if *pcrPath != "" {
		knownPCRs, err = validation.LoadPCRsFromFile(*pcrPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading PCR sets: %v\n", err)
			os.Exit(2)
		}
	}

	result, err := validation.ValidateCheckpoint(&validation.CheckpointValidationInput{
		CheckpointCOSE: coseBytes,
		PublicKeyPEM:   resp.PublicKey,
		Entries:        entries,
		KnownPCRs:      knownPCRs,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		if err := outputJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
			os.Exit(2)
		}
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	logger.Info("Auction Checkpoint Validator")
	logger.Info("")
	logger.Info("Replays an auction journal and checks it against a signed checkpoint.")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  checkpoint-validator --checkpoint <path> --journal <db> [options]")
	logger.Info("")
	logger.Info("Required Flags:")
	logger.Info("  --checkpoint <path>               Path to checkpoint response JSON file")
	logger.Info("  --journal <path>                  Path to the auction journal database")
	logger.Info("")
	logger.Info("Optional Flags:")
	logger.Info("  --pcrs <path>                     Known PCR sets, for attested checkpoints")
	logger.Info("  --format <text|json>              Output format (default: text)")
	logger.Info("  --help                            Show this help message")
	logger.Info("")
	logger.Info("Exit Codes:")
	logger.Info("  0 - Validation passed")
	logger.Info("  1 - Validation failed")
	logger.Info("  2 - Invalid input or runtime error")
}

func readCheckpointResponse(path string) (*auctionapi.CheckpointResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var resp auctionapi.CheckpointResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if resp.CheckpointCOSE == "" {
		return nil, fmt.Errorf("missing checkpoint_cose_base64 field in checkpoint response")
	}
	if resp.PublicKey == "" {
		return nil, fmt.Errorf("missing public_key field in checkpoint response")
	}

	return &resp, nil
}

func readJournal(path string) ([]journal.Entry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	store, err := journal.OpenSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	records, err := store.Load(context.Background())
	if err != nil {
		return nil, err
	}
	entries := make([]journal.Entry, 0, len(records))
	for _, rec := range records {
		e, err := journal.DecodeRecord(rec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func outputText(result *validation.CheckpointValidationResult) {
	logger.Info("Auction Checkpoint Validator")
	logger.Info("============================")
	logger.Info("")

	logger.Info("Validation Results:")
	logger.Info("-------------------")
	for _, detail := range result.ValidationDetails {
		logger.Info("  " + detail)
	}

	logger.Info("")
	logger.Info("Summary:")
	logger.Info(fmt.Sprintf("  Signature Valid:    %v", result.SignatureValid))
	logger.Info(fmt.Sprintf("  Chain Valid:        %v", result.ChainValid))
	logger.Info(fmt.Sprintf("  Journal Head Valid: %v", result.JournalHeadValid))
	logger.Info(fmt.Sprintf("  State Digest Valid: %v", result.StateDigestValid))
	logger.Info(fmt.Sprintf("  Winner Valid:       %v", result.WinnerValid))
	if result.Attestation != nil {
		logger.Info(fmt.Sprintf("  PCRs Valid:         %v", result.Attestation.PCRsValid))
		logger.Info(fmt.Sprintf("  Certificate Valid:  %v", result.Attestation.CertificateValid))
		logger.Info(fmt.Sprintf("  Attestation Sig:    %v", result.Attestation.SignatureValid))
		logger.Info(fmt.Sprintf("  Attestation Bound:  %v", result.AttestationBound))
	}

	logger.Info("")
	logger.Info("============================")
	if result.IsValid() {
		logger.Info("VALIDATION: ✓ PASSED")
		logger.Info("Exit Code: 0")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
		logger.Info("Exit Code: 1")
	}
}

func outputJSON(result *validation.CheckpointValidationResult) error {
	output := map[string]any{
		"valid":              result.IsValid(),
		"signature_valid":    result.SignatureValid,
		"chain_valid":        result.ChainValid,
		"journal_head_valid": result.JournalHeadValid,
		"state_digest_valid": result.StateDigestValid,
		"winner_valid":       result.WinnerValid,
		"details":            result.ValidationDetails,
	}
	if result.Attestation != nil {
		output["pcrs_valid"] = result.Attestation.PCRsValid
		output["certificate_valid"] = result.Attestation.CertificateValid
		output["attestation_signature_valid"] = result.Attestation.SignatureValid
		output["attestation_bound"] = result.AttestationBound
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	logger.Info(string(data))
	return nil
}
