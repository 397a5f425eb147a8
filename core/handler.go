package core

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Handle applies one lifecycle event delivered by the stream host.
//
// Parameters:
//   - ev: the event; Rate and Hint are used by admitted/adjusted events only
//
// Returns:
//   - the Outcome with the instructions for the host, or an error and no state change
//
// Processing flow:
//  1. Read the clock (never earlier than the previous command)
//  2. Validate the event against the lifecycle, the bidder record and the registry
//  3. Mutate ledger and registry, then reconcile the winner transition
//  4. Re-evaluate whether the auction is due to finish
func (a *Auction) Handle(ev Event) (*Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.timing.peek(a.clock.Now())

	var (
		out *Outcome
		err error
	)
	switch ev.Kind {
	case EventAdmitted:
		out, err = a.admit(ev.Account, ev.Rate, ev.Hint, now)
	case EventAdjusted:
		out, err = a.adjust(ev.Account, ev.Rate, ev.Hint, now)
	case EventExited:
		out = a.exit(ev.Account, NoBidder, now)
	case EventForcedExit:
		out = a.exit(ev.Account, ev.Terminator, now)
	default:
		return nil, fmt.Errorf("%w: unknown event kind %d", ErrState, ev.Kind)
	}
	if err != nil {
		return nil, err
	}
	a.timing.observe(now)
	return out, nil
}

// closed reports whether mutations other than exits are refused at now.
func (a *Auction) closed(now time.Time) bool {
	return a.timing.Finished() || a.timing.due(now, a.winner.HasWinner())
}

func (a *Auction) admit(key common.Address, rate decimal.Decimal, hint common.Address, now time.Time) (*Outcome, error) {
	if a.closed(now) {
		return nil, fmt.Errorf("%w: cannot admit %s", ErrAuctionClosed, key.Hex())
	}
	if a.ledger.HasExited(key) {
		return nil, fmt.Errorf("%w: %s already left this auction", ErrRejoinDenied, key.Hex())
	}
	if err := a.registry.ValidateInsert(key, rate, hint); err != nil {
		return nil, err
	}

	out := &Outcome{Applied: true, Paid: decimal.Zero}
	prev := a.winner.Winner()

	a.ledger.Open(key, rate, now)
	if err := a.registry.Insert(key, rate, hint); err != nil {
		return nil, err
	}
	a.reconcileWinner(prev, now, out)

	if key != a.winner.Winner() {
		a.openMirror(key, rate, out)
	}
	a.finishIfDue(now, out)
	return out, nil
}

func (a *Auction) adjust(key common.Address, newRate decimal.Decimal, hint common.Address, now time.Time) (*Outcome, error) {
	if a.closed(now) {
		return nil, fmt.Errorf("%w: cannot adjust %s", ErrAuctionClosed, key.Hex())
	}
	if !a.registry.Contains(key) {
		return nil, fmt.Errorf("%w: %s is not an active bidder", ErrState, key.Hex())
	}
	if err := a.registry.ValidateUpdate(key, newRate, hint); err != nil {
		return nil, err
	}

	out := &Outcome{Applied: true, Paid: decimal.Zero}
	prev := a.winner.Winner()
	oldRate, _ := a.registry.Rate(key)

	a.ledger.Tick(key, now, newRate)
	if err := a.registry.Update(key, newRate, hint); err != nil {
		return nil, err
	}
	a.reconcileWinner(prev, now, out)

	if key != prev && key != a.winner.Winner() && !oldRate.Equal(newRate) {
		out.emit(Instruction{Kind: InstructionUpdateMirror, Account: key, Rate: newRate, Amount: decimal.Zero})
	}
	a.finishIfDue(now, out)
	return out, nil
}

// exit never fails: streams must always be able to unwind.
func (a *Auction) exit(key, terminator common.Address, now time.Time) *Outcome {
	out := &Outcome{Paid: decimal.Zero}
	a.finishIfDue(now, out)

	if !a.registry.Contains(key) {
		return out
	}

	prev := a.winner.Winner()
	mirrored := a.ledger.isMirrored(key)

	a.ledger.Exit(key, now, terminator)
	a.registry.Remove(key)
	if mirrored {
		out.emit(Instruction{Kind: InstructionCloseMirror, Account: key, Rate: decimal.Zero, Amount: decimal.Zero})
	}
	out.Applied = true

	if a.timing.Finished() {
		a.payout(key, a.ledger.SettleOnExit(key), out)
		return out
	}

	a.reconcileWinner(prev, now, out)
	a.finishIfDue(now, out)
	return out
}

// reconcileWinner drives the ledger and mirror transitions after the head moved from prev.
func (a *Auction) reconcileWinner(prev common.Address, now time.Time, out *Outcome) {
	cur := a.winner.Winner()
	if cur == prev {
		return
	}

	if prev != NoBidder && a.registry.Contains(prev) {
		a.ledger.LoseWinner(prev, now)
		rate, _ := a.registry.Rate(prev)
		a.openMirror(prev, rate, out)
	}

	if cur == NoBidder {
		a.timing.startWinning(time.Time{})
		return
	}
	a.ledger.BecomeWinner(cur, now)
	a.timing.startWinning(now)
	if a.ledger.isMirrored(cur) {
		a.ledger.setMirrored(cur, false)
		out.emit(Instruction{Kind: InstructionCloseMirror, Account: cur, Rate: decimal.Zero, Amount: decimal.Zero})
	}
}

func (a *Auction) openMirror(key common.Address, rate decimal.Decimal, out *Outcome) {
	a.ledger.setMirrored(key, true)
	out.emit(Instruction{Kind: InstructionOpenMirror, Account: key, Rate: rate, Amount: decimal.Zero})
}

func (a *Auction) payout(key common.Address, amount decimal.Decimal, out *Outcome) {
	if !amount.IsPositive() {
		return
	}
	out.emit(Instruction{Kind: InstructionTransfer, Account: key, Rate: decimal.Zero, Amount: amount})
}

func (a *Auction) finishIfDue(now time.Time, out *Outcome) {
	if a.timing.due(now, a.winner.HasWinner()) {
		a.finish(now, out)
	}
}

// finish moves the auction to Finished. The winner's inbound stream is stopped, its final
// stint goes to the owner and whatever it is still owed from earlier stints is refunded.
func (a *Auction) finish(now time.Time, out *Outcome) {
	w := a.winner.Winner()
	a.timing.finish(now)
	a.winner.Freeze()

	if w != NoBidder {
		refund := a.ledger.FinalizeWinner(w, now)
		a.registry.Remove(w)
		out.emit(Instruction{Kind: InstructionStopInbound, Account: w, Rate: decimal.Zero, Amount: decimal.Zero})
		a.payout(w, refund, out)
	}
	out.Finished = true
	out.Applied = true
}
