package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// FinishAuction finishes the auction if the winner has held the top rank long enough.
// Otherwise it is a no-op, so it can be polled.
func (a *Auction) FinishAuction() (*Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.timing.peek(a.clock.Now())
	out := &Outcome{Paid: decimal.Zero}
	a.finishIfDue(now, out)
	a.timing.observe(now)
	return out, nil
}

// StopAuction aborts a Running auction nobody has bid on. Only the owner may call it;
// with bidders present it is a no-op.
func (a *Auction) StopAuction(caller common.Address) (*Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if caller != a.cfg.Owner {
		return nil, fmt.Errorf("%w: only the owner can stop the auction", ErrState)
	}

	now := a.timing.peek(a.clock.Now())
	out := &Outcome{Paid: decimal.Zero}
	if a.timing.Finished() || a.registry.Len() > 0 {
		return out, nil
	}
	a.finish(now, out)
	a.timing.observe(now)
	return out, nil
}

// Withdraw transfers the owner balance to the owner once the auction is Finished.
// Later calls transfer zero.
func (a *Auction) Withdraw(caller common.Address) (*Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if caller != a.cfg.Owner {
		return nil, fmt.Errorf("%w: only the owner can withdraw", ErrState)
	}

	if !a.timing.Finished() {
		return nil, fmt.Errorf("%w: auction is still running", ErrState)
	}

	now := a.timing.peek(a.clock.Now())
	out := &Outcome{Paid: decimal.Zero}

	a.payout(a.cfg.Owner, a.ledger.WithdrawOwner(), out)
	out.Applied = true
	a.timing.observe(now)
	return out, nil
}

// WithdrawNonWinner pays caller what it is owed, once, after the auction is Finished.
// A caller that is still bidding is exited first. A due but unfinished auction is
// still Running here; FinishAuction or the next stream event closes it.
func (a *Auction) WithdrawNonWinner(caller common.Address) (*Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if caller == NoBidder {
		return nil, fmt.Errorf("%w: caller address is empty", ErrState)
	}
	if caller == a.winner.Winner() {
		return nil, fmt.Errorf("%w: caller is the winner", ErrState)
	}

	if !a.timing.Finished() {
		return nil, fmt.Errorf("%w: auction is still running", ErrState)
	}

	now := a.timing.peek(a.clock.Now())
	out := &Outcome{Paid: decimal.Zero}

	if a.registry.Contains(caller) {
		if a.ledger.isMirrored(caller) {
			out.emit(Instruction{Kind: InstructionCloseMirror, Account: caller, Rate: decimal.Zero, Amount: decimal.Zero})
		}
		out.emit(Instruction{Kind: InstructionStopInbound, Account: caller, Rate: decimal.Zero, Amount: decimal.Zero})
		a.ledger.Exit(caller, now, NoBidder)
		a.registry.Remove(caller)
	}
	if a.ledger.Known(caller) {
		a.payout(caller, a.ledger.SettleOnExit(caller), out)
		out.Applied = true
	}
	a.timing.observe(now)
	return out, nil
}
