package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config holds the construction parameters of an auction.
type Config struct {
	// Host is the stream protocol host delivering events to the auction.
	Host common.Address
	// Agreement is the stream agreement (transport) the bids are made with.
	Agreement common.Address
	// Asset is the token streamed by bidders.
	Asset common.Address
	// Owner receives the winner's payment and is the only caller allowed to stop the auction.
	Owner common.Address

	HoldDuration time.Duration
	StepPercent  int64

	// NFTContract and TokenID describe the item on sale in deployment variants that sell one.
	NFTContract common.Address
	TokenID     uint64

	InitData []byte
}

// Validate checks the construction parameters.
func (c Config) Validate() error {
	required := []struct {
		name string
		addr common.Address
	}{
		{"host", c.Host},
		{"agreement", c.Agreement},
		{"asset", c.Asset},
		{"owner", c.Owner},
	}
	for _, r := range required {
		if r.addr == NoBidder {
			return fmt.Errorf("%w: %s address is required", ErrValidation, r.name)
		}
	}
	if c.HoldDuration < time.Second {
		return fmt.Errorf("%w: hold duration must be at least one second, got %s", ErrValidation, c.HoldDuration)
	}
	if c.StepPercent < 0 || c.StepPercent > maxStepPercent {
		return fmt.Errorf("%w: step percent must be between 0 and %d, got %d", ErrValidation, maxStepPercent, c.StepPercent)
	}
	return nil
}

// Auction is a single continuous-payment auction.
//
// It owns the registry, winner tracker, ledger and clock, and every exported method is
// one serialized, all-or-nothing unit: a command either fails without any effect or
// commits and returns the instructions for the stream host.
type Auction struct {
	mu sync.Mutex

	cfg    Config
	clock  Clock
	timing *AuctionClock

	registry *Registry
	winner   *WinnerTracker
	ledger   *Ledger
}

// New creates a Running auction starting at the clock's current time.
// A nil clock reads wall-clock time.
func New(cfg Config, clock Clock) (*Auction, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = defaultClock
	}

	winner := &WinnerTracker{rate: decimal.Zero}
	cfg.InitData = append([]byte(nil), cfg.InitData...)

	return &Auction{
		cfg:      cfg,
		clock:    clock,
		timing:   newAuctionClock(clock.Now(), cfg.HoldDuration, cfg.StepPercent),
		registry: NewRegistry(cfg.StepPercent, winner),
		winner:   winner,
		ledger:   NewLedger(),
	}, nil
}

// Config returns the construction parameters.
func (a *Auction) Config() Config { return a.cfg }

// StartTime is when the auction was created, truncated to the second.
func (a *Auction) StartTime() time.Time { return a.timing.StartTime() }

// Winner returns the current winner, or NoBidder.
func (a *Auction) Winner() common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.winner.Winner()
}

// WinnerRate returns the rate of the current winner.
func (a *Auction) WinnerRate() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.winner.Rate()
}

// IsFinished reports whether the auction reached its terminal state.
func (a *Auction) IsFinished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timing.Finished()
}

// IsWinningConditionMet reports whether the winner has held the top rank for the hold
// duration. It stays true after the auction finished with a winner.
func (a *Auction) IsWinningConditionMet() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timing.winningConditionMet(a.timing.peek(a.clock.Now()), a.winner.HasWinner())
}

// BidderInfo returns the record of key projected to the current time.
func (a *Auction) BidderInfo(key common.Address) (BidderInfo, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bidderInfo(key, a.timing.peek(a.clock.Now()))
}

func (a *Auction) bidderInfo(key common.Address, now time.Time) (BidderInfo, bool) {
	info, ok := a.ledger.Info(key, now)
	if ok && info.Active {
		info.Next = a.registry.Next(key)
	}
	return info, ok
}

// ListBidders returns a page of the ranked registry.
func (a *Auction) ListBidders(offset, count int) []BidderEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registry.Query(offset, count)
}

// TimeToWin is how much longer key has to hold the top rank for the auction to become
// closable: the remaining hold for the winner, the full hold for anybody else, zero once
// the auction finished.
func (a *Auction) TimeToWin(key common.Address) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timeToWin(key, a.timing.peek(a.clock.Now()))
}

func (a *Auction) timeToWin(key common.Address, now time.Time) time.Duration {
	if a.timing.Finished() {
		return 0
	}
	if key != a.winner.Winner() {
		return a.timing.HoldDuration()
	}
	remaining := a.timing.HoldDuration() - a.timing.heldFor(now, a.winner.HasWinner())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// OwnerBalance is what the owner can withdraw right now.
func (a *Auction) OwnerBalance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.OwnerBalance()
}

// Totals returns every value bucket projected to the current time.
func (a *Auction) Totals() Totals {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.Totals(a.timing.peek(a.clock.Now()))
}

// Standing is one ranked bidder with the columns a leaderboard shows.
type Standing struct {
	BidderEntry

	// TimeToWin is TimeToWin(Account) at the time of the read.
	TimeToWin time.Duration

	// Balance is what the auction currently holds on the bidder's behalf: the amount owed
	// back to it plus the accrual of a running winning stint.
	Balance decimal.Decimal
}

// Standings returns a page of the ranked registry with derived columns, read under a
// single lock so every row reflects the same instant.
func (a *Auction) Standings(offset, count int) []Standing {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.timing.peek(a.clock.Now())
	entries := a.registry.Query(offset, count)
	result := make([]Standing, 0, len(entries))
	for _, e := range entries {
		info, _ := a.ledger.Info(e.Account, now)
		result = append(result, Standing{
			BidderEntry: e,
			TimeToWin:   a.timeToWin(e.Account, now),
			Balance:     info.PendingSettleAmount.Add(info.StintAccrued),
		})
	}
	return result
}
