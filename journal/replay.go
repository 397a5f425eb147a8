package journal

import (
	"fmt"

	"github.com/cloudx-io/streamauction/core"
)

// Replayed is an auction rebuilt from its journal.
type Replayed struct {
	Genesis Genesis
	Auction *core.Auction
	// Clock drives Auction; callers continuing the auction live keep using it.
	Clock *core.ManualClock
	// Seq and Hash identify the last applied entry.
	Seq  uint64
	Hash []byte
}

// Replay verifies the chain and re-applies every command on a fresh auction. A command that
// fails on replay means the journal does not describe a valid history.
func Replay(entries []Entry) (*Replayed, error) {
	if err := VerifyChain(entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 || entries[0].Command.Kind != KindCreate || entries[0].Command.Genesis == nil {
		return nil, ErrNoGenesis
	}

	g := *entries[0].Command.Genesis
	clock := core.NewManualClock(g.StartTime())
	a, err := core.New(g.Config(), clock)
	if err != nil {
		return nil, fmt.Errorf("replay genesis: %w", err)
	}

	for _, e := range entries[1:] {
		if _, err := Apply(a, clock, e.Command); err != nil {
			return nil, fmt.Errorf("replay entry %d (%s): %w", e.Seq, e.Command.Kind, err)
		}
	}

	last := entries[len(entries)-1]
	return &Replayed{
		Genesis: g,
		Auction: a,
		Clock:   clock,
		Seq:     last.Seq,
		Hash:    last.Hash,
	}, nil
}
