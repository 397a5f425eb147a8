package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// bidderRecord is retained for the lifetime of the auction, including after exit.
type bidderRecord struct {
	rate                     decimal.Decimal
	cumulativeNonWinningTime time.Duration
	pending                  decimal.Decimal
	stint                    decimal.Decimal
	lastReconciled           time.Time

	winning    bool
	active     bool
	mirrored   bool
	exited     bool
	settled    bool
	terminator common.Address
}

// Totals is a point-in-time summary of every value bucket of the auction.
//
// Received always equals Pending + Stint + OwnerBalance + PaidOut + Withdrawn.
type Totals struct {
	Received     decimal.Decimal
	Pending      decimal.Decimal
	Stint        decimal.Decimal
	OwnerBalance decimal.Decimal
	PaidOut      decimal.Decimal
	Withdrawn    decimal.Decimal
}

// Ledger is the time-weighted balance bookkeeping of every bidder that ever joined.
//
// A bidder's time is reconciled whenever its status or rate changes: elapsed winning time
// accrues rate*seconds to its stint (and to the auction), elapsed non-winning time only
// grows its cumulative non-winning time because the mirrored stream nets it to zero.
// A stint that ends without the auction finishing is owed back through pending.
type Ledger struct {
	records map[common.Address]*bidderRecord
	// joinOrder keeps iteration deterministic for digests and snapshots.
	joinOrder []common.Address

	received     decimal.Decimal
	ownerBalance decimal.Decimal
	paidOut      decimal.Decimal
	withdrawn    decimal.Decimal
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[common.Address]*bidderRecord)}
}

// Known reports whether key ever joined.
func (l *Ledger) Known(key common.Address) bool {
	_, ok := l.records[key]
	return ok
}

// HasExited reports whether key joined and left at some point.
func (l *Ledger) HasExited(key common.Address) bool {
	rec, ok := l.records[key]
	return ok && rec.exited
}

// Open creates the record of a newly admitted bidder.
func (l *Ledger) Open(key common.Address, rate decimal.Decimal, now time.Time) {
	l.records[key] = &bidderRecord{
		rate:           rate,
		pending:        decimal.Zero,
		stint:          decimal.Zero,
		lastReconciled: now,
		active:         true,
	}
	l.joinOrder = append(l.joinOrder, key)
}

// reconcile settles the window since the last reconciliation in the bidder's current status.
func (l *Ledger) reconcile(rec *bidderRecord, now time.Time) {
	if !rec.active {
		return
	}
	elapsed := now.Sub(rec.lastReconciled)
	if elapsed <= 0 {
		return
	}
	if rec.winning {
		amount := accrue(rec.rate, int64(elapsed/time.Second))
		rec.stint = rec.stint.Add(amount)
		l.received = l.received.Add(amount)
	} else {
		rec.cumulativeNonWinningTime += elapsed
	}
	rec.lastReconciled = now
}

// Tick reconciles key and switches it to newRate.
func (l *Ledger) Tick(key common.Address, now time.Time, newRate decimal.Decimal) {
	rec, ok := l.records[key]
	if !ok {
		return
	}
	l.reconcile(rec, now)
	rec.rate = newRate
}

// BecomeWinner starts a new winning stint for key.
func (l *Ledger) BecomeWinner(key common.Address, now time.Time) {
	rec, ok := l.records[key]
	if !ok || rec.winning {
		return
	}
	l.reconcile(rec, now)
	rec.winning = true
	rec.stint = decimal.Zero
}

// LoseWinner ends the stint of key; what it paid during the stint is owed back.
func (l *Ledger) LoseWinner(key common.Address, now time.Time) {
	rec, ok := l.records[key]
	if !ok || !rec.winning {
		return
	}
	l.reconcile(rec, now)
	rec.winning = false
	rec.pending = rec.pending.Add(rec.stint)
	rec.stint = decimal.Zero
}

// Exit deactivates key, ending a stint if it was the winner.
func (l *Ledger) Exit(key common.Address, now time.Time, terminator common.Address) {
	rec, ok := l.records[key]
	if !ok || !rec.active {
		return
	}
	l.LoseWinner(key, now)
	l.reconcile(rec, now)
	rec.active = false
	rec.exited = true
	rec.mirrored = false
	rec.terminator = terminator
}

// SettleOnExit pays out the pending amount of key once. Later calls return zero.
func (l *Ledger) SettleOnExit(key common.Address) decimal.Decimal {
	rec, ok := l.records[key]
	if !ok || rec.settled {
		return decimal.Zero
	}
	amount := rec.pending
	rec.pending = decimal.Zero
	rec.settled = true
	l.paidOut = l.paidOut.Add(amount)
	return amount
}

// FinalizeWinner credits the final stint of key to the owner and returns the refund
// of anything key is still owed from earlier stints.
func (l *Ledger) FinalizeWinner(key common.Address, now time.Time) decimal.Decimal {
	rec, ok := l.records[key]
	if !ok {
		return decimal.Zero
	}
	l.reconcile(rec, now)
	l.ownerBalance = l.ownerBalance.Add(rec.stint)
	rec.stint = decimal.Zero
	rec.winning = false
	rec.active = false
	rec.exited = true
	rec.mirrored = false
	return l.SettleOnExit(key)
}

// WithdrawOwner empties the owner balance and returns what was in it.
func (l *Ledger) WithdrawOwner() decimal.Decimal {
	amount := l.ownerBalance
	l.ownerBalance = decimal.Zero
	l.withdrawn = l.withdrawn.Add(amount)
	return amount
}

// OwnerBalance is what the owner can withdraw right now.
func (l *Ledger) OwnerBalance() decimal.Decimal { return l.ownerBalance }

func (l *Ledger) setMirrored(key common.Address, mirrored bool) {
	if rec, ok := l.records[key]; ok {
		rec.mirrored = mirrored
	}
}

func (l *Ledger) isMirrored(key common.Address) bool {
	rec, ok := l.records[key]
	return ok && rec.mirrored
}

// projected returns the stint and non-winning time of rec as if reconciled at now,
// without mutating anything.
func projected(rec *bidderRecord, now time.Time) (decimal.Decimal, time.Duration) {
	stint, nonWinning := rec.stint, rec.cumulativeNonWinningTime
	if !rec.active {
		return stint, nonWinning
	}
	elapsed := now.Sub(rec.lastReconciled)
	if elapsed <= 0 {
		return stint, nonWinning
	}
	if rec.winning {
		stint = stint.Add(accrue(rec.rate, int64(elapsed/time.Second)))
	} else {
		nonWinning += elapsed
	}
	return stint, nonWinning
}

// Info returns the ledger side of a bidder view projected to now.
func (l *Ledger) Info(key common.Address, now time.Time) (BidderInfo, bool) {
	rec, ok := l.records[key]
	if !ok {
		return BidderInfo{Account: key}, false
	}
	stint, nonWinning := projected(rec, now)
	rate := rec.rate
	if !rec.active {
		rate = decimal.Zero
	}
	return BidderInfo{
		Account:                  key,
		Rate:                     rate,
		CumulativeNonWinningTime: nonWinning,
		PendingSettleAmount:      rec.pending,
		StintAccrued:             stint,
		Active:                   rec.active,
		Mirrored:                 rec.mirrored,
		HasExited:                rec.exited,
		Settled:                  rec.settled,
		Terminator:               rec.terminator,
	}, true
}

// Totals sums every bucket projected to now.
func (l *Ledger) Totals(now time.Time) Totals {
	t := Totals{
		Received:     l.received,
		Pending:      decimal.Zero,
		Stint:        decimal.Zero,
		OwnerBalance: l.ownerBalance,
		PaidOut:      l.paidOut,
		Withdrawn:    l.withdrawn,
	}
	for _, key := range l.joinOrder {
		rec := l.records[key]
		stint, _ := projected(rec, now)
		t.Received = t.Received.Add(stint.Sub(rec.stint))
		t.Stint = t.Stint.Add(stint)
		t.Pending = t.Pending.Add(rec.pending)
	}
	return t
}

// Accounts lists every bidder that ever joined, in join order.
func (l *Ledger) Accounts() []common.Address {
	out := make([]common.Address, len(l.joinOrder))
	copy(out, l.joinOrder)
	return out
}

// accrue returns rate * seconds.
func accrue(rate decimal.Decimal, seconds int64) decimal.Decimal {
	if seconds <= 0 || !rate.IsPositive() {
		return decimal.Zero
	}
	return rate.Mul(decimal.NewFromInt(seconds))
}
