package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/streamauction/core"
)

func TestJournal_AppendChainsEntries(t *testing.T) {
	l := newLive(t, NewMemoryStore())
	_, err := l.event(core.EventAdmitted, bidderA, 10, core.NoBidder)
	assert.Nil(t, err)
	l.advance(5 * time.Second)
	_, err = l.event(core.EventAdmitted, bidderB, 20, core.NoBidder)
	assert.Nil(t, err)

	entries, err := l.journal.Entries(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, 3, len(entries))

	check.Equal(t, KindCreate, entries[0].Command.Kind)
	check.Equal(t, 0, len(entries[0].PrevHash))
	check.Equal(t, entries[0].Hash, entries[1].PrevHash)
	check.Equal(t, entries[1].Hash, entries[2].PrevHash)
	check.Equal(t, 32, len(entries[2].Hash))
	check.True(t, entries[1].ID != entries[2].ID)

	seq, head := l.journal.Head()
	check.Equal(t, uint64(2), seq)
	check.Equal(t, entries[2].Hash, head)
	check.Equal(t, uint64(3), l.journal.Len())
}

func TestJournal_GenesisRules(t *testing.T) {
	ctx := context.Background()

	t.Run("first entry must be create", func(t *testing.T) {
		j, err := Open(ctx, NewMemoryStore())
		assert.Nil(t, err)
		_, err = j.Append(ctx, NewAdminCommand(KindFinish, core.NoBidder, testStart))
		check.True(t, errors.Is(err, ErrNoGenesis))
	})

	t.Run("create needs a genesis", func(t *testing.T) {
		j, err := Open(ctx, NewMemoryStore())
		assert.Nil(t, err)
		_, err = j.Append(ctx, Command{Kind: KindCreate})
		check.NotNil(t, err)
	})

	t.Run("second create is refused", func(t *testing.T) {
		l := newLive(t, NewMemoryStore())
		g := NewGenesis("auction-2", testConfig(), testStart)
		_, err := l.journal.Append(ctx, Command{Kind: KindCreate, Genesis: &g})
		check.NotNil(t, err)
		check.Equal(t, uint64(1), l.journal.Len())
	})
}

func TestJournal_FailedCommandsAreNotJournaled(t *testing.T) {
	l := newLive(t, NewMemoryStore())
	_, err := l.event(core.EventAdmitted, bidderA, 10, core.NoBidder)
	assert.Nil(t, err)

	_, err = l.event(core.EventAdmitted, bidderB, 10, core.NoBidder)
	check.True(t, errors.Is(err, core.ErrBidTooLow))
	check.Equal(t, uint64(2), l.journal.Len())
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	l := newLive(t, NewMemoryStore())
	_, err := l.event(core.EventAdmitted, bidderA, 10, core.NoBidder)
	assert.Nil(t, err)
	l.advance(time.Second)
	_, err = l.event(core.EventAdmitted, bidderB, 20, core.NoBidder)
	assert.Nil(t, err)

	tests := []struct {
		name   string
		tamper func(entries []Entry) []Entry
	}{
		{
			name: "rate changed",
			tamper: func(entries []Entry) []Entry {
				entries[1].Command.Rate = "1000"
				return entries
			},
		},
		{
			name: "entry dropped",
			tamper: func(entries []Entry) []Entry {
				return append(entries[:1], entries[2:]...)
			},
		},
		{
			name: "entries swapped",
			tamper: func(entries []Entry) []Entry {
				entries[1], entries[2] = entries[2], entries[1]
				return entries
			},
		},
		{
			name: "hash replaced",
			tamper: func(entries []Entry) []Entry {
				entries[2].Hash = make([]byte, 32)
				return entries
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := l.journal.Entries(context.Background())
			assert.Nil(t, err)
			check.Nil(t, VerifyChain(entries))

			err = VerifyChain(tt.tamper(entries))
			check.True(t, errors.Is(err, ErrChainBroken))
		})
	}
}

func TestOpen_ResumesHead(t *testing.T) {
	store := NewMemoryStore()
	l := newLive(t, store)
	_, err := l.event(core.EventAdmitted, bidderA, 10, core.NoBidder)
	assert.Nil(t, err)

	reopened, err := Open(context.Background(), store)
	assert.Nil(t, err)

	seq, head := reopened.Head()
	wantSeq, wantHead := l.journal.Head()
	check.Equal(t, wantSeq, seq)
	check.Equal(t, wantHead, head)

	entry, err := reopened.Append(context.Background(), NewAdminCommand(KindFinish, core.NoBidder, testStart))
	assert.Nil(t, err)
	check.Equal(t, uint64(2), entry.Seq)
	check.Equal(t, wantHead, entry.PrevHash)
}

func TestMemoryStore_RejectsGaps(t *testing.T) {
	store := NewMemoryStore()
	err := store.Append(context.Background(), Record{Seq: 1})
	check.True(t, errors.Is(err, ErrSeqConflict))
}
