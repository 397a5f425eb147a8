package auctionapi

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/streamauction/core"
)

// ParseAddress parses a 0x-prefixed hex address. An empty string is the zero address.
func ParseAddress(s string) (common.Address, error) {
	if s == "" {
		return core.NoBidder, nil
	}
	if !common.IsHexAddress(s) {
		return core.NoBidder, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ParseRate parses a decimal rate. An empty string is zero.
func ParseRate(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	return d, nil
}

// FormatAddress renders an address for the wire; the zero address renders as "".
func FormatAddress(a common.Address) string {
	if a == core.NoBidder {
		return ""
	}
	return a.Hex()
}

// ToCoreEvent converts a wire event into a core event. The position hint is taken from
// Hint when set, otherwise decoded from UserData.
func (r *StreamEventRequest) ToCoreEvent() (core.Event, error) {
	kind, ok := core.ParseEventKind(r.Event)
	if !ok {
		return core.Event{}, fmt.Errorf("unknown event %q", r.Event)
	}
	account, err := ParseAddress(r.Account)
	if err != nil {
		return core.Event{}, fmt.Errorf("account: %w", err)
	}
	if account == core.NoBidder {
		return core.Event{}, fmt.Errorf("account is required")
	}
	rate, err := ParseRate(r.Rate)
	if err != nil {
		return core.Event{}, err
	}
	terminator, err := ParseAddress(r.Terminator)
	if err != nil {
		return core.Event{}, fmt.Errorf("terminator: %w", err)
	}

	var userData []byte
	if r.UserData != "" {
		userData, err = hex.DecodeString(strings.TrimPrefix(r.UserData, "0x"))
		if err != nil {
			return core.Event{}, fmt.Errorf("decode user data: %w", err)
		}
	}

	hint := core.NoBidder
	switch {
	case r.Hint != "":
		hint, err = ParseAddress(r.Hint)
		if err != nil {
			return core.Event{}, fmt.Errorf("hint: %w", err)
		}
	case len(userData) > 0:
		hint, err = DecodeHint(userData)
		if err != nil {
			return core.Event{}, err
		}
	}

	return core.Event{
		Kind:       kind,
		Account:    account,
		Rate:       rate,
		Hint:       hint,
		UserData:   userData,
		Terminator: terminator,
	}, nil
}

// NewInstructionViews renders instructions for the wire.
func NewInstructionViews(instructions []core.Instruction) []InstructionView {
	views := make([]InstructionView, 0, len(instructions))
	for _, in := range instructions {
		view := InstructionView{
			Kind:    in.Kind.String(),
			Account: in.Account.Hex(),
		}
		switch in.Kind {
		case core.InstructionOpenMirror, core.InstructionUpdateMirror:
			view.Rate = in.Rate.String()
		case core.InstructionTransfer:
			view.Amount = in.Amount.String()
		}
		views = append(views, view)
	}
	return views
}

// NewCommandResponse renders a committed outcome.
func NewCommandResponse(requestType string, out *core.Outcome, seq uint64, elapsed time.Duration) CommandResponse {
	msg := "applied"
	if !out.Applied {
		msg = "no-op"
	}
	return CommandResponse{
		Type:           requestType + "_response",
		Success:        true,
		Message:        msg,
		Applied:        out.Applied,
		Finished:       out.Finished,
		Paid:           out.Paid.String(),
		Seq:            seq,
		Instructions:   NewInstructionViews(out.Instructions),
		ProcessingTime: elapsed.Milliseconds(),
	}
}

// NewErrorResponse renders a rejected command.
func NewErrorResponse(requestType string, err error, elapsed time.Duration) CommandResponse {
	return CommandResponse{
		Type:           requestType + "_response",
		Success:        false,
		Message:        err.Error(),
		ErrorCode:      core.ErrorCode(err),
		ProcessingTime: elapsed.Milliseconds(),
	}
}

// NewBidderInfoView renders a bidder record.
func NewBidderInfoView(info core.BidderInfo) *BidderInfoView {
	return &BidderInfoView{
		Account:                  info.Account.Hex(),
		Rate:                     info.Rate.String(),
		Next:                     FormatAddress(info.Next),
		CumulativeNonWinningTime: int64(info.CumulativeNonWinningTime / time.Second),
		PendingSettleAmount:      info.PendingSettleAmount.String(),
		StintAccrued:             info.StintAccrued.String(),
		Active:                   info.Active,
		Mirrored:                 info.Mirrored,
		HasExited:                info.HasExited,
		Settled:                  info.Settled,
		Terminator:               FormatAddress(info.Terminator),
	}
}

// NewCheckpoint builds the checkpoint of snap, taken right after journal entry seq.
func NewCheckpoint(auctionID string, seq uint64, journalHash []byte, snap *core.Snapshot) *Checkpoint {
	return &Checkpoint{
		AuctionID:   auctionID,
		Seq:         seq,
		JournalHash: hex.EncodeToString(journalHash),
		StateDigest: core.ComputeStateDigest(snap),
		Winner:      FormatAddress(snap.Winner),
		WinnerRate:  snap.WinnerRate.String(),
		Finished:    snap.Finished,
		Timestamp:   snap.At.Unix(),
	}
}
