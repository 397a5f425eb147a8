package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// NoBidder is the zero address, used wherever "none" is meant (empty hint, no winner, end of chain).
var NoBidder = common.Address{}

// EventKind identifies a lifecycle notification delivered by the stream host.
type EventKind uint8

const (
	// EventAdmitted is delivered when a bidder opens an inbound stream.
	EventAdmitted EventKind = iota + 1
	// EventAdjusted is delivered when a bidder changes the rate of its inbound stream.
	EventAdjusted
	// EventExited is delivered when a bidder closes its own inbound stream.
	EventExited
	// EventForcedExit is delivered when a third party terminates a bidder's inbound stream.
	EventForcedExit
)

func (k EventKind) String() string {
	switch k {
	case EventAdmitted:
		return "admitted"
	case EventAdjusted:
		return "adjusted"
	case EventExited:
		return "exited"
	case EventForcedExit:
		return "forced_exit"
	default:
		return "unknown"
	}
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, bool) {
	for _, k := range []EventKind{EventAdmitted, EventAdjusted, EventExited, EventForcedExit} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Event is one lifecycle notification from the stream host.
type Event struct {
	Kind    EventKind
	Account common.Address

	// Rate is the inbound stream rate in value units per second (admitted/adjusted only).
	Rate decimal.Decimal

	// Hint is the account that should immediately precede Account in rank order after the
	// mutation. NoBidder means "Account becomes the head".
	Hint common.Address

	// UserData is the opaque payload the bidder attached to its stream operation.
	UserData []byte

	// Terminator is the party that closed the stream of a forced exit.
	Terminator common.Address
}

// InstructionKind identifies a follow-up action the stream host must perform.
type InstructionKind uint8

const (
	// InstructionOpenMirror opens an outbound stream to Account at Rate.
	InstructionOpenMirror InstructionKind = iota + 1
	// InstructionUpdateMirror changes the rate of the outbound stream to Account.
	InstructionUpdateMirror
	// InstructionCloseMirror closes the outbound stream to Account.
	InstructionCloseMirror
	// InstructionStopInbound closes the inbound stream from Account.
	InstructionStopInbound
	// InstructionTransfer pays Amount to Account from the auction balance.
	InstructionTransfer
)

func (k InstructionKind) String() string {
	switch k {
	case InstructionOpenMirror:
		return "open_mirror"
	case InstructionUpdateMirror:
		return "update_mirror"
	case InstructionCloseMirror:
		return "close_mirror"
	case InstructionStopInbound:
		return "stop_inbound"
	case InstructionTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Instruction is an action emitted after a command commits.
type Instruction struct {
	Kind    InstructionKind
	Account common.Address
	Rate    decimal.Decimal
	Amount  decimal.Decimal
}

// Outcome is what a committed command produced.
type Outcome struct {
	// Instructions are ordered; the host applies them in sequence.
	Instructions []Instruction

	// Paid is the total amount transferred by this command.
	Paid decimal.Decimal

	// Finished reports whether this command moved the auction to Finished.
	Finished bool

	// Applied is false for commands accepted as no-ops (exit of an unknown bidder,
	// finish before the winner has the time, ...).
	Applied bool
}

func (o *Outcome) emit(in Instruction) {
	o.Instructions = append(o.Instructions, in)
	if in.Kind == InstructionTransfer {
		o.Paid = o.Paid.Add(in.Amount)
	}
}

// BidderEntry is one row of the ranked registry.
type BidderEntry struct {
	Account common.Address
	Rate    decimal.Decimal
	Next    common.Address
}

// BidderInfo is the public view of a bidder record.
type BidderInfo struct {
	Account                  common.Address
	Rate                     decimal.Decimal
	Next                     common.Address
	CumulativeNonWinningTime time.Duration
	PendingSettleAmount      decimal.Decimal

	// StintAccrued is what the auction has received from this bidder during its current
	// winning stint. Always zero for non-winners.
	StintAccrued decimal.Decimal

	Active    bool
	Mirrored  bool
	HasExited bool
	Settled   bool

	// Terminator is the third party that force-closed the bidder's stream, if any.
	Terminator common.Address
}
