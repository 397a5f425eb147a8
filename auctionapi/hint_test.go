package auctionapi

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestHint_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		previous common.Address
	}{
		{"head", common.Address{}},
		{"after bidder", common.HexToAddress("0x00000000000000000000000000000000000000aa")},
		{"checksummed", common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeHint(tt.previous)
			assert.Nil(t, err)
			check.Equal(t, 32, len(data))

			got, err := DecodeHint(data)
			check.Nil(t, err)
			check.Equal(t, tt.previous, got)
		})
	}
}

func TestDecodeHint_ShortData(t *testing.T) {
	_, err := DecodeHint([]byte{0x01, 0x02})
	check.NotNil(t, err)
}
