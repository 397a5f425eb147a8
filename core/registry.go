package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// HeadListener is notified whenever the head of the registry changes account or rate.
type HeadListener interface {
	OnHeadChanged(head common.Address, rate decimal.Decimal)
}

type registryEntry struct {
	rate decimal.Decimal
	next common.Address
	prev common.Address
}

// Registry is the rank-ordered chain of active bidders, strictly descending by rate.
//
// Every insert and update is validated against a caller-supplied predecessor hint before
// anything is mutated, which makes a mutation a compare-and-swap on list position.
type Registry struct {
	entries     map[common.Address]*registryEntry
	head        common.Address
	size        int
	stepPercent int64
	listener    HeadListener
}

// NewRegistry creates an empty registry enforcing stepPercent on new top bids.
func NewRegistry(stepPercent int64, listener HeadListener) *Registry {
	return &Registry{
		entries:     make(map[common.Address]*registryEntry),
		stepPercent: stepPercent,
		listener:    listener,
	}
}

// Len is the number of active bidders.
func (r *Registry) Len() int { return r.size }

// Head returns the top-ranked bidder, or NoBidder when empty.
func (r *Registry) Head() common.Address { return r.head }

// Contains reports whether key is an active bidder.
func (r *Registry) Contains(key common.Address) bool {
	_, ok := r.entries[key]
	return ok
}

// Rate returns the current rate of an active bidder.
func (r *Registry) Rate(key common.Address) (decimal.Decimal, bool) {
	e, ok := r.entries[key]
	if !ok {
		return decimal.Zero, false
	}
	return e.rate, true
}

// Next returns the bidder ranked immediately below key.
func (r *Registry) Next(key common.Address) common.Address {
	if e, ok := r.entries[key]; ok {
		return e.next
	}
	return NoBidder
}

// TopRate returns the rate of the head, zero when empty.
func (r *Registry) TopRate() decimal.Decimal {
	if r.head == NoBidder {
		return decimal.Zero
	}
	return r.entries[r.head].rate
}

// ValidateInsert checks an admission without mutating anything.
func (r *Registry) ValidateInsert(key common.Address, rate decimal.Decimal, hint common.Address) error {
	if key == NoBidder {
		return fmt.Errorf("%w: bidder address is empty", ErrState)
	}
	if r.Contains(key) {
		return fmt.Errorf("%w: bidder %s is already ranked", ErrState, key.Hex())
	}
	if !rate.IsPositive() {
		return fmt.Errorf("%w: rate %s must be positive", ErrBidTooLow, rate)
	}
	if r.size > 0 && !RateMeetsIncrement(rate, r.TopRate(), r.stepPercent) {
		return fmt.Errorf("%w: rate %s must exceed %s", ErrBidTooLow, rate, MinimumNextRate(r.TopRate(), r.stepPercent))
	}
	// An admitted bid always becomes the head, so its true predecessor is none.
	if hint != NoBidder {
		return fmt.Errorf("%w: new top bid cannot follow %s", ErrPositionHintMismatch, hint.Hex())
	}
	return nil
}

// Insert admits key at rate as the new head.
func (r *Registry) Insert(key common.Address, rate decimal.Decimal, hint common.Address) error {
	if err := r.ValidateInsert(key, rate, hint); err != nil {
		return err
	}

	r.entries[key] = &registryEntry{rate: rate}
	r.linkAfter(key, NoBidder)
	r.size++
	r.notify()
	return nil
}

// successorWithout returns the successor of pred in the chain with key spliced out.
func (r *Registry) successorWithout(pred, key common.Address) common.Address {
	var succ common.Address
	if pred == NoBidder {
		succ = r.head
	} else {
		succ = r.entries[pred].next
	}
	if succ == key {
		succ = r.entries[key].next
	}
	return succ
}

// ValidateUpdate checks a rate change of key to newRate placed right after hint.
func (r *Registry) ValidateUpdate(key common.Address, newRate decimal.Decimal, hint common.Address) error {
	if !r.Contains(key) {
		return fmt.Errorf("%w: bidder %s is not ranked", ErrState, key.Hex())
	}
	if !newRate.IsPositive() {
		return fmt.Errorf("%w: rate %s must be positive", ErrBidTooLow, newRate)
	}
	if hint == key {
		return fmt.Errorf("%w: bidder cannot precede itself", ErrPositionHintMismatch)
	}
	if hint != NoBidder && !r.Contains(hint) {
		return fmt.Errorf("%w: hint %s is not ranked", ErrPositionHintMismatch, hint.Hex())
	}

	succ := r.successorWithout(hint, key)

	if hint != NoBidder {
		predRate := r.entries[hint].rate
		if predRate.Equal(newRate) {
			return fmt.Errorf("%w: rate %s ties with %s", ErrBidTooLow, newRate, hint.Hex())
		}
		if predRate.LessThan(newRate) {
			return fmt.Errorf("%w: rate %s ranks above hint %s", ErrPositionHintMismatch, newRate, hint.Hex())
		}
	}
	if succ != NoBidder {
		succRate := r.entries[succ].rate
		if succRate.Equal(newRate) {
			return fmt.Errorf("%w: rate %s ties with %s", ErrBidTooLow, newRate, succ.Hex())
		}
		if succRate.GreaterThan(newRate) {
			return fmt.Errorf("%w: rate %s ranks below %s", ErrPositionHintMismatch, newRate, succ.Hex())
		}
	}

	// Taking the head from somebody else needs the step increment over the current head.
	if hint == NoBidder && r.head != key && r.head != NoBidder {
		top := r.entries[r.head].rate
		if !RateMeetsIncrement(newRate, top, r.stepPercent) {
			return fmt.Errorf("%w: rate %s must exceed %s to take the lead", ErrBidTooLow, newRate, MinimumNextRate(top, r.stepPercent))
		}
	}
	return nil
}

// Update changes the rate of key and moves it right after hint.
func (r *Registry) Update(key common.Address, newRate decimal.Decimal, hint common.Address) error {
	if err := r.ValidateUpdate(key, newRate, hint); err != nil {
		return err
	}

	e := r.entries[key]
	if e.prev != hint {
		r.unlink(key)
		r.linkAfter(key, hint)
	}
	e.rate = newRate
	r.notify()
	return nil
}

// Remove splices key out of the chain. Removing an unknown key is a no-op.
func (r *Registry) Remove(key common.Address) {
	if !r.Contains(key) {
		return
	}
	wasHead := r.head == key
	r.unlink(key)
	delete(r.entries, key)
	r.size--
	if wasHead {
		r.notify()
	}
}

// Query returns up to count entries in rank order starting at offset.
func (r *Registry) Query(offset, count int) []BidderEntry {
	if offset < 0 {
		offset = 0
	}
	if count <= 0 || offset >= r.size {
		return []BidderEntry{}
	}
	if remaining := r.size - offset; count > remaining {
		count = remaining
	}

	result := make([]BidderEntry, 0, count)
	cursor := r.head
	for i := 0; cursor != NoBidder && len(result) < count; i++ {
		e := r.entries[cursor]
		if i >= offset {
			result = append(result, BidderEntry{Account: cursor, Rate: e.rate, Next: e.next})
		}
		cursor = e.next
	}
	return result
}

func (r *Registry) linkAfter(key, pred common.Address) {
	e := r.entries[key]
	e.prev = pred
	if pred == NoBidder {
		e.next = r.head
		r.head = key
	} else {
		p := r.entries[pred]
		e.next = p.next
		p.next = key
	}
	if e.next != NoBidder {
		r.entries[e.next].prev = key
	}
}

func (r *Registry) unlink(key common.Address) {
	e := r.entries[key]
	if e.prev == NoBidder {
		r.head = e.next
	} else {
		r.entries[e.prev].next = e.next
	}
	if e.next != NoBidder {
		r.entries[e.next].prev = e.prev
	}
	e.next, e.prev = NoBidder, NoBidder
}

func (r *Registry) notify() {
	if r.listener == nil {
		return
	}
	r.listener.OnHeadChanged(r.head, r.TopRate())
}
