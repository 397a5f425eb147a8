package auctionapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

// Checkpoint commits to the auction state after a given journal entry.
type Checkpoint struct {
	AuctionID   string `cbor:"auction_id" json:"auction_id"`
	Seq         uint64 `cbor:"seq" json:"seq"`
	JournalHash string `cbor:"journal_hash" json:"journal_hash"` // hex keccak256 of the last entry
	StateDigest string `cbor:"state_digest" json:"state_digest"` // hex sha256 of the state snapshot
	Winner      string `cbor:"winner" json:"winner"`
	WinnerRate  string `cbor:"winner_rate" json:"winner_rate"`
	Finished    bool   `cbor:"finished" json:"finished"`
	Timestamp   int64  `cbor:"timestamp" json:"timestamp"` // unix seconds, the auction time of the snapshot

	// Attestation is a raw NSM attestation document whose user data commits to this
	// checkpoint. Only present when the daemon runs inside an enclave.
	Attestation []byte `cbor:"attestation,omitempty" json:"attestation,omitempty"`
}

var checkpointEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	return em
}()

// Marshal encodes the checkpoint with core deterministic CBOR, so equal checkpoints
// always produce equal bytes.
func (c *Checkpoint) Marshal() ([]byte, error) {
	data, err := checkpointEncMode.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

// UnmarshalCheckpoint decodes a CBOR checkpoint.
func UnmarshalCheckpoint(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &c, nil
}

// Sign wraps the encoded checkpoint in a tagged COSE_Sign1 message signed by signer.
func (c *Checkpoint) Sign(rand io.Reader, signer cose.Signer) (CheckpointCOSE, error) {
	payload, err := c.Marshal()
	if err != nil {
		return nil, err
	}
	headers := cose.Headers{
		Protected: cose.ProtectedHeader{
			cose.HeaderLabelAlgorithm: signer.Algorithm(),
		},
	}
	msg, err := cose.Sign1(rand, signer, headers, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("sign checkpoint: %w", err)
	}
	return CheckpointCOSE(msg), nil
}

// CheckpointCOSE is a raw COSE_Sign1 message whose payload is a CBOR checkpoint.
type CheckpointCOSE []byte

// CheckpointCOSEBase64 is CheckpointCOSE in standard base64, for JSON transport.
type CheckpointCOSEBase64 string

// CheckpointCOSEURLSafe is CheckpointCOSE in unpadded URL-safe base64.
type CheckpointCOSEURLSafe string

// CheckpointCOSEGzip is gzipped CheckpointCOSE in unpadded URL-safe base64.
type CheckpointCOSEGzip string

// EncodeBase64 encodes the raw bytes with standard base64.
func (c CheckpointCOSE) EncodeBase64() CheckpointCOSEBase64 {
	return CheckpointCOSEBase64(base64.StdEncoding.EncodeToString(c))
}

// EncodeURLSafe encodes the raw bytes with unpadded URL-safe base64.
func (c CheckpointCOSE) EncodeURLSafe() CheckpointCOSEURLSafe {
	return CheckpointCOSEURLSafe(base64.RawURLEncoding.EncodeToString(c))
}

// CompressGzip gzips the raw bytes and encodes them URL-safe.
func (c CheckpointCOSE) CompressGzip() (CheckpointCOSEGzip, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(c); err != nil {
		return "", fmt.Errorf("gzip COSE: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip COSE: %w", err)
	}
	return CheckpointCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

// Decode returns the raw COSE bytes.
func (b CheckpointCOSEBase64) Decode() (CheckpointCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return CheckpointCOSE(data), nil
}

// CompressGzip converts to the gzipped URL-safe form.
func (b CheckpointCOSEBase64) CompressGzip() (CheckpointCOSEGzip, error) {
	raw, err := b.Decode()
	if err != nil {
		return "", err
	}
	return raw.CompressGzip()
}

func (b CheckpointCOSEBase64) String() string { return string(b) }

// Decode returns the raw COSE bytes.
func (u CheckpointCOSEURLSafe) Decode() (CheckpointCOSE, error) {
	data, err := base64.RawURLEncoding.DecodeString(string(u))
	if err != nil {
		return nil, fmt.Errorf("decode COSE URL-safe base64: %w", err)
	}
	return CheckpointCOSE(data), nil
}

func (u CheckpointCOSEURLSafe) String() string { return string(u) }

// Decompress returns the raw COSE bytes.
func (g CheckpointCOSEGzip) Decompress() (CheckpointCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(string(g))
	if err != nil {
		return nil, fmt.Errorf("decode gzip base64: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	return CheckpointCOSE(data), nil
}

func (g CheckpointCOSEGzip) String() string { return string(g) }
