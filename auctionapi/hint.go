package auctionapi

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// hintArguments is the ABI layout of stream user data: a single address, the key that
// should precede the bidder in rank order after the operation.
var hintArguments = func() abi.Arguments {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi address type: %v", err))
	}
	return abi.Arguments{{Name: "previous", Type: addressType}}
}()

// EncodeHint ABI-encodes a position hint as stream user data.
func EncodeHint(previous common.Address) ([]byte, error) {
	data, err := hintArguments.Pack(previous)
	if err != nil {
		return nil, fmt.Errorf("encode hint: %w", err)
	}
	return data, nil
}

// DecodeHint extracts the position hint from stream user data.
func DecodeHint(userData []byte) (common.Address, error) {
	values, err := hintArguments.Unpack(userData)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode hint: %w", err)
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("decode hint: expected 1 value, got %d", len(values))
	}
	previous, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("decode hint: unexpected type %T", values[0])
	}
	return previous, nil
}
