package journal

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/streamauction/core"
)

var (
	testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	bidderA   = common.HexToAddress("0x000000000000000000000000000000000000000a")
	bidderB   = common.HexToAddress("0x000000000000000000000000000000000000000b")
	bidderC   = common.HexToAddress("0x000000000000000000000000000000000000000c")
)

func testConfig() core.Config {
	return core.Config{
		Host:         common.HexToAddress("0x00000000000000000000000000000000000000f1"),
		Agreement:    common.HexToAddress("0x00000000000000000000000000000000000000f2"),
		Asset:        common.HexToAddress("0x00000000000000000000000000000000000000f3"),
		Owner:        ownerAddr,
		HoldDuration: 100 * time.Second,
		StepPercent:  10,
	}
}

// live is an auction driven the way the daemon drives it: every command goes through
// Apply and is journaled once it commits.
type live struct {
	auction *core.Auction
	clock   *core.ManualClock
	journal *Journal
	now     time.Time
}

func startLive(store Store) (*live, error) {
	ctx := context.Background()

	j, err := Open(ctx, store)
	if err != nil {
		return nil, err
	}

	clock := core.NewManualClock(testStart)
	a, err := core.New(testConfig(), clock)
	if err != nil {
		return nil, err
	}

	g := NewGenesis("auction-1", testConfig(), testStart)
	if _, err := j.Append(ctx, Command{Kind: KindCreate, At: testStart.Unix(), Genesis: &g}); err != nil {
		return nil, err
	}

	return &live{auction: a, clock: clock, journal: j, now: testStart}, nil
}

func newLive(t *testing.T, store Store) *live {
	t.Helper()
	l, err := startLive(store)
	assert.Nil(t, err)
	return l
}

func (l *live) apply(cmd Command) (*core.Outcome, error) {
	out, err := Apply(l.auction, l.clock, cmd)
	if err != nil {
		return nil, err
	}
	if _, err := l.journal.Append(context.Background(), cmd); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *live) advance(d time.Duration) {
	l.now = l.now.Add(d)
}

func (l *live) event(kind core.EventKind, key common.Address, rate int64, hint common.Address) (*core.Outcome, error) {
	return l.apply(NewEventCommand(core.Event{
		Kind:    kind,
		Account: key,
		Rate:    decimal.NewFromInt(rate),
		Hint:    hint,
	}, l.now))
}

func (l *live) admin(kind string, caller common.Address) (*core.Outcome, error) {
	return l.apply(NewAdminCommand(kind, caller, l.now))
}
