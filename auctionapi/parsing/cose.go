package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// sign1Tag is the CBOR tag of a tagged COSE_Sign1 message. The NSM emits untagged
// messages while go-cose tags the checkpoints it signs; both are accepted.
const sign1Tag = 18

// Sign1 is a decoded COSE_Sign1 message: [protected, unprotected, payload, signature].
type Sign1 struct {
	Protected   []byte
	Unprotected cbor.RawMessage
	Payload     []byte
	Signature   []byte
}

// ParseSign1 decodes a tagged or untagged COSE_Sign1 message without verifying it.
// Detached payloads are rejected.
func ParseSign1(coseBytes []byte) (*Sign1, error) {
	data := coseBytes
	if len(data) > 0 && data[0]&0xe0 == 0xc0 { // major type 6: tagged item
		var tag cbor.RawTag
		if err := cbor.Unmarshal(data, &tag); err != nil {
			return nil, fmt.Errorf("parse COSE tag: %w", err)
		}
		if tag.Number != sign1Tag {
			return nil, fmt.Errorf("unexpected COSE tag %d", tag.Number)
		}
		data = tag.Content
	}

	var fields []cbor.RawMessage
	if err := cbor.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(fields) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(fields))
	}

	msg := &Sign1{Unprotected: fields[1]}
	if err := cbor.Unmarshal(fields[0], &msg.Protected); err != nil {
		return nil, fmt.Errorf("invalid protected header: %w", err)
	}
	if err := cbor.Unmarshal(fields[2], &msg.Payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if msg.Payload == nil {
		return nil, fmt.Errorf("invalid payload: detached payloads are not supported")
	}
	if err := cbor.Unmarshal(fields[3], &msg.Signature); err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	return msg, nil
}

// Algorithm returns the COSE algorithm identifier from the protected header.
func (m *Sign1) Algorithm() (int64, error) {
	if len(m.Protected) == 0 {
		return 0, fmt.Errorf("protected header is empty")
	}
	var header map[int64]cbor.RawMessage
	if err := cbor.Unmarshal(m.Protected, &header); err != nil {
		return 0, fmt.Errorf("parse protected header: %w", err)
	}
	raw, ok := header[1]
	if !ok {
		return 0, fmt.Errorf("protected header has no algorithm")
	}
	var alg int64
	if err := cbor.Unmarshal(raw, &alg); err != nil {
		return 0, fmt.Errorf("algorithm is not an integer: %w", err)
	}
	return alg, nil
}

// SigStructure returns the bytes the signature covers:
// ["Signature1", protected, external_aad, payload] with an empty external_aad.
func (m *Sign1) SigStructure() ([]byte, error) {
	data, err := cbor.Marshal([]any{"Signature1", m.Protected, []byte{}, m.Payload})
	if err != nil {
		return nil, fmt.Errorf("marshal Sig_structure: %w", err)
	}
	return data, nil
}

// ExtractCOSEPayload returns the payload of a COSE_Sign1 message without verifying it.
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	msg, err := ParseSign1(coseBytes)
	if err != nil {
		return nil, err
	}
	return msg.Payload, nil
}
