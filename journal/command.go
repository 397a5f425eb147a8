package journal

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/streamauction/core"
)

// Command kinds. The strings match the daemon's request types.
const (
	KindCreate            = "create"
	KindStreamEvent       = "stream_event"
	KindWithdraw          = "withdraw"
	KindWithdrawNonWinner = "withdraw_non_winner"
	KindFinish            = "finish"
	KindStop              = "stop"
)

// Command is one committed mutation of an auction, with the time it was applied at.
type Command struct {
	Kind string `cbor:"kind" json:"kind"`
	At   int64  `cbor:"at" json:"at"` // unix seconds

	Event      string `cbor:"event,omitempty" json:"event,omitempty"`
	Account    string `cbor:"account,omitempty" json:"account,omitempty"`
	Rate       string `cbor:"rate,omitempty" json:"rate,omitempty"`
	Hint       string `cbor:"hint,omitempty" json:"hint,omitempty"`
	Terminator string `cbor:"terminator,omitempty" json:"terminator,omitempty"`
	UserData   []byte `cbor:"user_data,omitempty" json:"user_data,omitempty"`

	Caller string `cbor:"caller,omitempty" json:"caller,omitempty"`

	Genesis *Genesis `cbor:"genesis,omitempty" json:"genesis,omitempty"`
}

// Genesis records how an auction was created. It is always the first journal entry.
type Genesis struct {
	AuctionID    string `cbor:"auction_id" json:"auction_id"`
	Host         string `cbor:"host" json:"host"`
	Agreement    string `cbor:"agreement" json:"agreement"`
	Asset        string `cbor:"asset" json:"asset"`
	Owner        string `cbor:"owner" json:"owner"`
	NFTContract  string `cbor:"nft_contract,omitempty" json:"nft_contract,omitempty"`
	TokenID      uint64 `cbor:"token_id,omitempty" json:"token_id,omitempty"`
	HoldDuration int64  `cbor:"hold_duration_ns" json:"hold_duration_ns"`
	StepPercent  int64  `cbor:"step_percent" json:"step_percent"`
	InitData     []byte `cbor:"init_data,omitempty" json:"init_data,omitempty"`
	Start        int64  `cbor:"start" json:"start"` // unix seconds
}

// NewGenesis describes the creation of auctionID with cfg at start.
func NewGenesis(auctionID string, cfg core.Config, start time.Time) Genesis {
	g := Genesis{
		AuctionID:    auctionID,
		Host:         cfg.Host.Hex(),
		Agreement:    cfg.Agreement.Hex(),
		Asset:        cfg.Asset.Hex(),
		Owner:        cfg.Owner.Hex(),
		TokenID:      cfg.TokenID,
		HoldDuration: int64(cfg.HoldDuration),
		StepPercent:  cfg.StepPercent,
		InitData:     cfg.InitData,
		Start:        start.Unix(),
	}
	if cfg.NFTContract != core.NoBidder {
		g.NFTContract = cfg.NFTContract.Hex()
	}
	return g
}

// Config rebuilds the auction configuration.
func (g Genesis) Config() core.Config {
	cfg := core.Config{
		Host:         common.HexToAddress(g.Host),
		Agreement:    common.HexToAddress(g.Agreement),
		Asset:        common.HexToAddress(g.Asset),
		Owner:        common.HexToAddress(g.Owner),
		TokenID:      g.TokenID,
		HoldDuration: time.Duration(g.HoldDuration),
		StepPercent:  g.StepPercent,
		InitData:     g.InitData,
	}
	if g.NFTContract != "" {
		cfg.NFTContract = common.HexToAddress(g.NFTContract)
	}
	return cfg
}

// StartTime is when the auction was created.
func (g Genesis) StartTime() time.Time {
	return time.Unix(g.Start, 0).UTC()
}

// NewEventCommand records a stream event applied at at.
func NewEventCommand(ev core.Event, at time.Time) Command {
	cmd := Command{
		Kind:     KindStreamEvent,
		At:       at.Unix(),
		Event:    ev.Kind.String(),
		Account:  ev.Account.Hex(),
		UserData: ev.UserData,
	}
	if ev.Kind == core.EventAdmitted || ev.Kind == core.EventAdjusted {
		cmd.Rate = ev.Rate.String()
	}
	if ev.Hint != core.NoBidder {
		cmd.Hint = ev.Hint.Hex()
	}
	if ev.Terminator != core.NoBidder {
		cmd.Terminator = ev.Terminator.Hex()
	}
	return cmd
}

// NewAdminCommand records an admin call (withdraw, withdraw_non_winner, finish, stop).
func NewAdminCommand(kind string, caller common.Address, at time.Time) Command {
	cmd := Command{Kind: kind, At: at.Unix()}
	if caller != core.NoBidder {
		cmd.Caller = caller.Hex()
	}
	return cmd
}

// Time is the time the command was applied at.
func (c Command) Time() time.Time {
	return time.Unix(c.At, 0).UTC()
}

func optionalAddress(s string) common.Address {
	if s == "" {
		return core.NoBidder
	}
	return common.HexToAddress(s)
}

// CoreEvent rebuilds the stream event of a stream_event command.
func (c Command) CoreEvent() (core.Event, error) {
	kind, ok := core.ParseEventKind(c.Event)
	if !ok {
		return core.Event{}, fmt.Errorf("unknown event %q", c.Event)
	}
	rate := decimal.Zero
	if c.Rate != "" {
		var err error
		rate, err = decimal.NewFromString(c.Rate)
		if err != nil {
			return core.Event{}, fmt.Errorf("invalid rate %q: %w", c.Rate, err)
		}
	}
	return core.Event{
		Kind:       kind,
		Account:    optionalAddress(c.Account),
		Rate:       rate,
		Hint:       optionalAddress(c.Hint),
		UserData:   c.UserData,
		Terminator: optionalAddress(c.Terminator),
	}, nil
}

// Apply moves clock to the command's time and applies the command to a. It is the only
// path from a command to the auction, live and on replay, so both see identical inputs.
func Apply(a *core.Auction, clock *core.ManualClock, cmd Command) (*core.Outcome, error) {
	clock.Set(cmd.Time())

	switch cmd.Kind {
	case KindStreamEvent:
		ev, err := cmd.CoreEvent()
		if err != nil {
			return nil, err
		}
		return a.Handle(ev)
	case KindWithdraw:
		return a.Withdraw(optionalAddress(cmd.Caller))
	case KindWithdrawNonWinner:
		return a.WithdrawNonWinner(optionalAddress(cmd.Caller))
	case KindFinish:
		return a.FinishAuction()
	case KindStop:
		return a.StopAuction(optionalAddress(cmd.Caller))
	case KindCreate:
		return nil, fmt.Errorf("create is only valid as the first entry")
	default:
		return nil, fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}
