package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// WinnerTracker caches the head of the registry for O(1) reads.
type WinnerTracker struct {
	winner common.Address
	rate   decimal.Decimal
	frozen bool
}

// OnHeadChanged implements HeadListener. Updates after Freeze are ignored.
func (w *WinnerTracker) OnHeadChanged(head common.Address, rate decimal.Decimal) {
	if w.frozen {
		return
	}
	w.winner = head
	if head == NoBidder {
		w.rate = decimal.Zero
		return
	}
	w.rate = rate
}

// Freeze pins the final winner once the auction finishes.
func (w *WinnerTracker) Freeze() { w.frozen = true }

// Winner returns the cached winner, NoBidder when there is none.
func (w *WinnerTracker) Winner() common.Address { return w.winner }

// Rate returns the cached winner rate.
func (w *WinnerTracker) Rate() decimal.Decimal { return w.rate }

// HasWinner reports whether a winner is cached.
func (w *WinnerTracker) HasWinner() bool { return w.winner != NoBidder }
