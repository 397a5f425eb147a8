package parsing

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/streamauction/auctionapi"
)

// NitroAttestationDocument represents the raw CBOR structure from AWS Nitro Enclaves
type NitroAttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"` // milliseconds since epoch
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// FormatPCR formats PCR bytes as hex string
func FormatPCR(pcrData []byte) string {
	if len(pcrData) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pcrData)
}

// EncodeCertificateBundle converts certificate bundle to base64 strings
func EncodeCertificateBundle(bundle [][]byte) []string {
	result := make([]string, len(bundle))
	for i, cert := range bundle {
		result[i] = base64.StdEncoding.EncodeToString(cert)
	}
	return result
}

// ExtractPCRs extracts and formats PCR values from the raw CBOR PCR map
func ExtractPCRs(rawPCRs map[uint64][]byte) auctionapi.PCRs {
	return auctionapi.PCRs{
		ImageFileHash:   FormatPCR(rawPCRs[0]),
		KernelHash:      FormatPCR(rawPCRs[1]),
		ApplicationHash: FormatPCR(rawPCRs[2]),
		IAMRoleHash:     FormatPCR(rawPCRs[3]),
		InstanceIDHash:  FormatPCR(rawPCRs[4]),
		SigningCertHash: FormatPCR(rawPCRs[8]),
	}
}

// DecodeNitroDocument unwraps the COSE_Sign1 envelope of an NSM attestation and decodes
// its payload. The signature is not checked here.
func DecodeNitroDocument(coseBytes []byte) (*NitroAttestationDocument, error) {
	payload, err := ExtractCOSEPayload(coseBytes)
	if err != nil {
		return nil, err
	}
	var doc NitroAttestationDocument
	if err := cbor.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}
	return &doc, nil
}

// ParseAttestationDoc converts an NSM attestation into its wire view and returns the
// user data it carries.
func ParseAttestationDoc(coseBytes []byte) (*auctionapi.AttestationDoc, []byte, error) {
	raw, err := DecodeNitroDocument(coseBytes)
	if err != nil {
		return nil, nil, err
	}

	doc := &auctionapi.AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs:            ExtractPCRs(raw.PCRs),
		Certificate:     base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:        EncodeCertificateBundle(raw.CABundle),
		PublicKey:       base64.StdEncoding.EncodeToString(raw.PublicKey),
		Nonce:           fmt.Sprintf("%x", raw.Nonce),
	}
	return doc, raw.UserData, nil
}
