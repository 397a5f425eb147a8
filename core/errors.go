package core

import "errors"

var (
	// ErrValidation reports bad construction parameters.
	ErrValidation = errors.New("invalid auction configuration")

	// ErrBidTooLow reports a rate that fails the minimum-increment or ordering rule.
	ErrBidTooLow = errors.New("bid too low")

	// ErrAuctionClosed reports a mutation attempted after the auction finished
	// (or once the winner already holds the top rank for the full hold duration).
	ErrAuctionClosed = errors.New("auction closed")

	// ErrRejoinDenied reports an admission by an account that already exited once.
	ErrRejoinDenied = errors.New("rejoin denied")

	// ErrPositionHintMismatch reports a predecessor hint that does not match the registry.
	ErrPositionHintMismatch = errors.New("position hint mismatch")

	// ErrState reports an operation invoked in the wrong lifecycle state or by the wrong caller.
	ErrState = errors.New("invalid state")
)

// ErrorCode maps an error returned by this package to a stable code for wire responses and metrics.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, ErrRejoinDenied):
		return "rejoin_denied"
	case errors.Is(err, ErrPositionHintMismatch):
		return "position_hint_mismatch"
	case errors.Is(err, ErrState):
		return "state"
	default:
		return "internal"
	}
}
