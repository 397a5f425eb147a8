package core

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
)

var (
	testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	hostAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	cfaAddr   = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000f3")

	bidderA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	bidderB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	bidderC = common.HexToAddress("0x000000000000000000000000000000000000000c")
	bidderD = common.HexToAddress("0x000000000000000000000000000000000000000d")
	bidderE = common.HexToAddress("0x000000000000000000000000000000000000000e")
)

func rate(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func testConfig() Config {
	return Config{
		Host:         hostAddr,
		Agreement:    cfaAddr,
		Asset:        tokenAddr,
		Owner:        ownerAddr,
		HoldDuration: 100 * time.Second,
		StepPercent:  10,
	}
}

func newTestAuction(t *testing.T) (*Auction, *ManualClock) {
	t.Helper()
	clock := NewManualClock(testStart)
	a, err := New(testConfig(), clock)
	assert.NoError(t, err)
	return a, clock
}

func admitted(key common.Address, r int64) Event {
	return Event{Kind: EventAdmitted, Account: key, Rate: rate(r)}
}

func adjusted(key common.Address, r int64, hint common.Address) Event {
	return Event{Kind: EventAdjusted, Account: key, Rate: rate(r), Hint: hint}
}

func exited(key common.Address) Event {
	return Event{Kind: EventExited, Account: key}
}

func mustHandle(t *testing.T, a *Auction, ev Event) *Outcome {
	t.Helper()
	out, err := a.Handle(ev)
	assert.NoError(t, err)
	assert.NotNil(t, out)
	return out
}

func rankedAccounts(a *Auction) []common.Address {
	entries := a.ListBidders(0, 1000)
	out := make([]common.Address, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Account)
	}
	return out
}

func instructionKinds(out *Outcome) []string {
	kinds := make([]string, 0, len(out.Instructions))
	for _, in := range out.Instructions {
		kinds = append(kinds, in.Kind.String()+":"+strings.ToLower(in.Account.Hex()[40:]))
	}
	return kinds
}

// checkConservation asserts that every value received is accounted for.
func checkConservation(t *testing.T, tot Totals) {
	t.Helper()
	sum := tot.Pending.Add(tot.Stint).Add(tot.OwnerBalance).Add(tot.PaidOut).Add(tot.Withdrawn)
	assert.Equal(t, tot.Received.String(), sum.String())
}
