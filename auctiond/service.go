package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/cloudx-io/streamauction/auctionapi"
	"github.com/cloudx-io/streamauction/core"
	"github.com/cloudx-io/streamauction/journal"
	"github.com/cloudx-io/streamauction/viewer"
)

// ErrJournalUnavailable reports a command that committed in memory but could not be
// journaled, and could not be rolled back either. The service refuses further commands.
var ErrJournalUnavailable = errors.New("journal unavailable")

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Auction    core.Config
	Store      journal.Store
	KeyManager *KeyManager
	Feed       *Feed
	Viewer     *viewer.Registry

	// Attester returns the NSM attester for checkpoint attestations. Nil disables them.
	Attester func() (EnclaveAttester, error)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service owns the auction of this daemon. Commands are serialized: each one is applied at
// the service clock's current second and journaled once it commits, so a replay of the
// journal rebuilds exactly the state clients observed.
type Service struct {
	mu sync.Mutex

	auctionID string
	auction   *core.Auction
	clock     *core.ManualClock
	journal   *journal.Journal
	failed    error

	keyManager *KeyManager
	feed       *Feed
	attester   func() (EnclaveAttester, error)
	now        func() time.Time
}

// NewService resumes the auction journaled in cfg.Store, or creates one from cfg.Auction
// when the store is empty.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	if cfg.KeyManager == nil {
		return nil, fmt.Errorf("key manager is required")
	}
	s := &Service{
		keyManager: cfg.KeyManager,
		feed:       cfg.Feed,
		attester:   cfg.Attester,
		now:        cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	entries, err := journal.LoadEntries(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	s.journal = j

	if len(entries) == 0 {
		if err := s.create(ctx, cfg.Auction); err != nil {
			return nil, err
		}
	} else {
		replayed, err := journal.Replay(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to replay journal: %w", err)
		}
		if !sameTerms(replayed.Genesis.Config(), cfg.Auction) {
			log.Printf("WARNING: Configured auction terms differ from the journal; continuing auction %s with its journaled terms", replayed.Genesis.AuctionID)
		}
		s.auctionID = replayed.Genesis.AuctionID
		s.auction = replayed.Auction
		s.clock = replayed.Clock
		log.Printf("INFO: Resumed auction %s from %d journal entries", s.auctionID, len(entries))
	}

	if cfg.Viewer != nil {
		cfg.Viewer.Register(s.auctionID, s)
	}
	seq, _ := s.journal.Head()
	recordState(s.auction.Snapshot(), seq)
	return s, nil
}

func (s *Service) create(ctx context.Context, cfg core.Config) error {
	start := s.second()
	clock := core.NewManualClock(start)
	a, err := core.New(cfg, clock)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	g := journal.NewGenesis(id, cfg, start)
	if _, err := s.journal.Append(ctx, journal.Command{Kind: journal.KindCreate, At: start.Unix(), Genesis: &g}); err != nil {
		return fmt.Errorf("failed to journal genesis: %w", err)
	}

	s.auctionID = id
	s.auction = a
	s.clock = clock
	log.Printf("INFO: Created auction %s (owner %s, hold %s, step %d%%)", id, cfg.Owner.Hex(), cfg.HoldDuration, cfg.StepPercent)
	return nil
}

func sameTerms(a, b core.Config) bool {
	return a.Host == b.Host &&
		a.Agreement == b.Agreement &&
		a.Asset == b.Asset &&
		a.Owner == b.Owner &&
		a.HoldDuration == b.HoldDuration &&
		a.StepPercent == b.StepPercent
}

// second is the current time truncated to the second, the resolution commands are applied at.
func (s *Service) second() time.Time {
	return time.Unix(s.now().Unix(), 0).UTC()
}

// AuctionID identifies the auction served by this daemon.
func (s *Service) AuctionID() string {
	return s.auctionID
}

// StreamEvent applies a stream lifecycle notification.
func (s *Service) StreamEvent(ctx context.Context, ev core.Event) auctionapi.CommandResponse {
	return s.execute(ctx, auctionapi.RequestStreamEvent, func(at time.Time) journal.Command {
		return journal.NewEventCommand(ev, at)
	})
}

// Admin applies withdraw, withdraw_non_winner, finish or stop on behalf of caller.
func (s *Service) Admin(ctx context.Context, kind string, caller common.Address) auctionapi.CommandResponse {
	return s.execute(ctx, kind, func(at time.Time) journal.Command {
		return journal.NewAdminCommand(kind, caller, at)
	})
}

// execute applies the command built by build and journals it. A rejected command leaves
// neither state nor journal changed.
func (s *Service) execute(ctx context.Context, requestType string, build func(at time.Time) journal.Command) auctionapi.CommandResponse {
	start := time.Now()
	defer func() {
		mtxCommandDuration.WithLabelValues(requestType).Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed != nil {
		mtxCommands.WithLabelValues(requestType, core.ErrorCode(s.failed)).Inc()
		return auctionapi.NewErrorResponse(requestType, s.failed, time.Since(start))
	}

	cmd := build(s.second())
	out, err := journal.Apply(s.auction, s.clock, cmd)
	if err != nil {
		mtxCommands.WithLabelValues(requestType, core.ErrorCode(err)).Inc()
		log.Printf("INFO: %s rejected: %v", requestType, err)
		return auctionapi.NewErrorResponse(requestType, err, time.Since(start))
	}

	entry, err := s.journal.Append(ctx, cmd)
	if err != nil {
		log.Printf("ERROR: Failed to journal %s: %v", requestType, err)
		s.rollback(ctx)
		mtxCommands.WithLabelValues(requestType, core.ErrorCode(err)).Inc()
		return auctionapi.NewErrorResponse(requestType, fmt.Errorf("failed to journal command: %w", err), time.Since(start))
	}

	mtxCommands.WithLabelValues(requestType, "ok").Inc()
	recordOutcome(out)
	snap := s.auction.Snapshot()
	recordState(snap, entry.Seq)
	s.publish(entry.Seq, snap)

	if out.Finished {
		log.Printf("INFO: Auction %s finished at seq %d, winner %s paid %s", s.auctionID, entry.Seq, snap.Winner.Hex(), out.Paid)
	}
	return auctionapi.NewCommandResponse(requestType, out, entry.Seq, time.Since(start))
}

// rollback rebuilds the auction from the journal after a command committed in memory but
// failed to journal. Called with s.mu held.
func (s *Service) rollback(ctx context.Context) {
	entries, err := s.journal.Entries(ctx)
	if err == nil {
		var replayed *journal.Replayed
		if replayed, err = journal.Replay(entries); err == nil {
			s.auction = replayed.Auction
			s.clock = replayed.Clock
			log.Printf("WARNING: Rolled auction %s back to journal seq %d", s.auctionID, replayed.Seq)
			return
		}
	}
	s.failed = fmt.Errorf("%w: %v", ErrJournalUnavailable, err)
	log.Printf("ERROR: Rollback failed, refusing further commands: %v", err)
}

func (s *Service) publish(seq uint64, snap *core.Snapshot) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(s.feedMessage(seq, snap))
}

// feedMessage renders the first page of the leaderboard. Called with s.mu held.
func (s *Service) feedMessage(seq uint64, snap *core.Snapshot) auctionapi.FeedMessage {
	s.clock.Set(s.second())
	return auctionapi.FeedMessage{
		AuctionID: s.auctionID,
		Seq:       seq,
		Winner:    auctionapi.FormatAddress(snap.Winner),
		Finished:  snap.Finished,
		Bidders:   newBidderViews(viewer.NewRows(s.auction.Standings(0, viewer.DefaultPageSize))),
		Timestamp: s.clock.Now(),
	}
}

// FeedSnapshot is the message a new feed subscriber starts from.
func (s *Service) FeedSnapshot() auctionapi.FeedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, _ := s.journal.Head()
	return s.feedMessage(seq, s.auction.Snapshot())
}

// Standings implements viewer.Source at the current time.
func (s *Service) Standings(offset, count int) []core.Standing {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Set(s.second())
	return s.auction.Standings(offset, count)
}

// BidderInfo returns the record of account projected to the current time.
func (s *Service) BidderInfo(account common.Address) (core.BidderInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Set(s.second())
	return s.auction.BidderInfo(account)
}

// Winner reports the winner and whether the auction is due to finish.
func (s *Service) Winner() auctionapi.WinnerView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Set(s.second())

	winner := s.auction.Winner()
	view := auctionapi.WinnerView{
		AuctionID:           s.auctionID,
		Winner:              auctionapi.FormatAddress(winner),
		WinnerRate:          s.auction.WinnerRate().String(),
		Finished:            s.auction.IsFinished(),
		WinningConditionMet: s.auction.IsWinningConditionMet(),
		OwnerBalance:        s.auction.OwnerBalance().String(),
	}
	if winner != core.NoBidder {
		view.TimeToWinSeconds = int64(s.auction.TimeToWin(winner) / time.Second)
	}
	return view
}

// Checkpoint signs a checkpoint of the last committed state. With attest set the NSM also
// attests the checkpoint and the signing key.
func (s *Service) Checkpoint(attest bool) auctionapi.CheckpointResponse {
	start := time.Now()
	fail := func(err error) auctionapi.CheckpointResponse {
		log.Printf("ERROR: Checkpoint failed: %v", err)
		return auctionapi.CheckpointResponse{
			Type:           "checkpoint_response",
			Success:        false,
			Message:        err.Error(),
			ProcessingTime: time.Since(start).Milliseconds(),
		}
	}

	s.mu.Lock()
	seq, hash := s.journal.Head()
	snap := s.auction.Snapshot()
	s.mu.Unlock()

	cp := auctionapi.NewCheckpoint(s.auctionID, seq, hash, snap)
	publicKeyPEM := s.keyManager.PublicKeyPEM()

	if attest {
		if s.attester == nil {
			return fail(fmt.Errorf("attestation is not available outside an enclave"))
		}
		attester, err := s.attester()
		if err != nil {
			return fail(fmt.Errorf("failed to initialize TEE attester: %w", err))
		}
		doc, err := GenerateCheckpointAttestation(attester, cp, publicKeyPEM)
		if err != nil {
			return fail(err)
		}
		cp.Attestation = doc
	}

	signed, err := cp.Sign(rand.Reader, s.keyManager.Signer())
	if err != nil {
		return fail(err)
	}

	log.Printf("INFO: Checkpoint signed at seq %d (digest %s)", seq, cp.StateDigest)
	return auctionapi.CheckpointResponse{
		Type:           "checkpoint_response",
		Success:        true,
		Checkpoint:     cp,
		CheckpointCOSE: signed.EncodeBase64(),
		PublicKey:      publicKeyPEM,
		ProcessingTime: time.Since(start).Milliseconds(),
	}
}

func newBidderViews(rows []viewer.Row) []auctionapi.BidderView {
	views := make([]auctionapi.BidderView, 0, len(rows))
	for _, r := range rows {
		views = append(views, auctionapi.BidderView{
			Account:          r.Account.Hex(),
			Rate:             r.Rate.String(),
			Next:             auctionapi.FormatAddress(r.Next),
			TimeToWinSeconds: int64(r.TimeToWin / time.Second),
			Balance:          r.Balance.String(),
		})
	}
	return views
}
