// Package viewer serves paginated leaderboards of running auctions.
package viewer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/streamauction/core"
)

const (
	// DefaultPageSize is used when a caller asks for zero rows.
	DefaultPageSize = 100
	// MaxPageSize caps a single page.
	MaxPageSize = 1000
)

var (
	// ErrUnknownAuction reports a reference no auction is registered under.
	ErrUnknownAuction = errors.New("unknown auction")
	// ErrInvalidPage reports a negative offset or count.
	ErrInvalidPage = errors.New("invalid page")
)

// Source is the read surface of one auction.
type Source interface {
	Standings(offset, count int) []core.Standing
}

// Directory resolves an auction reference to its Source.
type Directory interface {
	Lookup(auctionRef string) (Source, bool)
}

// Row is one leaderboard line.
type Row struct {
	Account   common.Address
	Rate      decimal.Decimal
	Next      common.Address
	TimeToWin time.Duration
	Balance   decimal.Decimal
}

// ListBidders returns the bidders of auctionRef in rank order, starting at offset.
// A zero count means DefaultPageSize; counts above MaxPageSize are capped.
func ListBidders(dir Directory, auctionRef string, offset, count int) ([]Row, error) {
	if offset < 0 || count < 0 {
		return nil, fmt.Errorf("%w: offset %d count %d", ErrInvalidPage, offset, count)
	}
	if count == 0 {
		count = DefaultPageSize
	}
	if count > MaxPageSize {
		count = MaxPageSize
	}

	src, ok := dir.Lookup(auctionRef)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAuction, auctionRef)
	}

	return NewRows(src.Standings(offset, count)), nil
}

// NewRows renders standings as leaderboard rows.
func NewRows(standings []core.Standing) []Row {
	rows := make([]Row, 0, len(standings))
	for _, s := range standings {
		rows = append(rows, Row{
			Account:   s.Account,
			Rate:      s.Rate,
			Next:      s.Next,
			TimeToWin: s.TimeToWin,
			Balance:   s.Balance,
		})
	}
	return rows
}

// Registry is a concurrency-safe Directory.
type Registry struct {
	mu       sync.RWMutex
	auctions map[string]Source
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{auctions: make(map[string]Source)}
}

// Register makes src reachable under auctionRef, replacing any previous entry.
func (r *Registry) Register(auctionRef string, src Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[auctionRef] = src
}

// Lookup implements Directory.
func (r *Registry) Lookup(auctionRef string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.auctions[auctionRef]
	return src, ok
}
