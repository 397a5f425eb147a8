// Package journal keeps the hash-chained log of committed auction commands and rebuilds
// auction state from it.
package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrChainBroken reports entries whose sequence or hash links do not verify.
	ErrChainBroken = errors.New("journal chain broken")
	// ErrNoGenesis reports a journal that does not start with a create entry.
	ErrNoGenesis = errors.New("journal has no genesis entry")
)

var entryEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	return em
}()

// Entry is one journaled command.
type Entry struct {
	Seq      uint64  `cbor:"seq"`
	ID       string  `cbor:"id"`
	Command  Command `cbor:"command"`
	PrevHash []byte  `cbor:"prev_hash"`

	// Hash is keccak256(PrevHash || body), where body is the deterministic CBOR
	// encoding of the fields above.
	Hash []byte `cbor:"-"`
}

func (e *Entry) body() ([]byte, error) {
	data, err := entryEncMode.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode entry %d: %w", e.Seq, err)
	}
	return data, nil
}

func chainHash(prev, body []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(prev)
	h.Write(body)
	return h.Sum(nil)
}

// Record is an encoded entry as kept by a Store.
type Record struct {
	Seq  uint64
	ID   string
	At   int64
	Body []byte
	Hash []byte
}

// DecodeRecord decodes a stored record. The hash is taken as stored; VerifyChain checks it.
func DecodeRecord(rec Record) (Entry, error) {
	var e Entry
	if err := cbor.Unmarshal(rec.Body, &e); err != nil {
		return Entry{}, fmt.Errorf("decode entry %d: %w", rec.Seq, err)
	}
	if e.Seq != rec.Seq {
		return Entry{}, fmt.Errorf("%w: record %d holds entry %d", ErrChainBroken, rec.Seq, e.Seq)
	}
	e.Hash = rec.Hash
	return e, nil
}

// VerifyChain checks that entries are numbered from zero, link to their predecessor and
// carry the hash of their content.
func VerifyChain(entries []Entry) error {
	var prev []byte
	for i := range entries {
		e := &entries[i]
		if e.Seq != uint64(i) {
			return fmt.Errorf("%w: entry %d has seq %d", ErrChainBroken, i, e.Seq)
		}
		if !bytes.Equal(e.PrevHash, prev) {
			return fmt.Errorf("%w: entry %d does not link to its predecessor", ErrChainBroken, i)
		}
		body, err := e.body()
		if err != nil {
			return err
		}
		if !bytes.Equal(chainHash(prev, body), e.Hash) {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, i)
		}
		prev = e.Hash
	}
	return nil
}

// Journal appends commands to a Store, extending the hash chain.
type Journal struct {
	mu    sync.Mutex
	store Store
	next  uint64
	head  []byte
}

// Open loads and verifies the entries already in store.
func Open(ctx context.Context, store Store) (*Journal, error) {
	entries, err := LoadEntries(ctx, store)
	if err != nil {
		return nil, err
	}
	j := &Journal{store: store, next: uint64(len(entries))}
	if n := len(entries); n > 0 {
		j.head = entries[n-1].Hash
	}
	return j, nil
}

// LoadEntries reads, decodes and verifies every entry in store.
func LoadEntries(ctx context.Context, store Store) ([]Entry, error) {
	records, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		e, err := DecodeRecord(rec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := VerifyChain(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Append journals cmd as the next entry. The first entry must be a create command and
// no later entry may be one.
func (j *Journal) Append(ctx context.Context, cmd Command) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if (j.next == 0) != (cmd.Kind == KindCreate) {
		if j.next == 0 {
			return nil, ErrNoGenesis
		}
		return nil, fmt.Errorf("journal already has a genesis entry")
	}
	if cmd.Kind == KindCreate && cmd.Genesis == nil {
		return nil, fmt.Errorf("create command without genesis")
	}

	e := &Entry{
		Seq:      j.next,
		ID:       uuid.NewString(),
		Command:  cmd,
		PrevHash: j.head,
	}
	body, err := e.body()
	if err != nil {
		return nil, err
	}
	e.Hash = chainHash(j.head, body)

	rec := Record{Seq: e.Seq, ID: e.ID, At: cmd.At, Body: body, Hash: e.Hash}
	if err := j.store.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("append entry %d: %w", e.Seq, err)
	}

	j.next++
	j.head = e.Hash
	return e, nil
}

// Head returns the sequence number and hash of the last entry. An empty journal returns
// zero and nil.
func (j *Journal) Head() (uint64, []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.next == 0 {
		return 0, nil
	}
	return j.next - 1, j.head
}

// Len is the number of entries, genesis included.
func (j *Journal) Len() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.next
}

// Entries returns every entry, verified.
func (j *Journal) Entries(ctx context.Context) ([]Entry, error) {
	return LoadEntries(ctx, j.store)
}
