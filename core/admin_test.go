package core

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestNew_ConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"valid", func(*Config) {}, true},
		{"zero step", func(c *Config) { c.StepPercent = 0 }, true},
		{"max step", func(c *Config) { c.StepPercent = 100 }, true},
		{"step above 100", func(c *Config) { c.StepPercent = 101 }, false},
		{"negative step", func(c *Config) { c.StepPercent = -1 }, false},
		{"zero hold", func(c *Config) { c.HoldDuration = 0 }, false},
		{"sub-second hold", func(c *Config) { c.HoldDuration = 500 * time.Millisecond }, false},
		{"missing host", func(c *Config) { c.Host = NoBidder }, false},
		{"missing agreement", func(c *Config) { c.Agreement = NoBidder }, false},
		{"missing asset", func(c *Config) { c.Asset = NoBidder }, false},
		{"missing owner", func(c *Config) { c.Owner = NoBidder }, false},
		{"optional fields set", func(c *Config) {
			c.NFTContract = bidderE
			c.TokenID = 7
			c.InitData = []byte("hello")
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			a, err := New(cfg, NewManualClock(testStart))
			if tt.valid {
				check.NoError(t, err)
				check.NotNil(t, a)
				return
			}
			check.Nil(t, a)
			check.True(t, errors.Is(err, ErrValidation))
			check.Equal(t, "validation", ErrorCode(err))
		})
	}
}

func TestNew_NilClockUsesWallClock(t *testing.T) {
	a, err := New(testConfig(), nil)
	assert.NoError(t, err)
	check.True(t, time.Since(a.StartTime()) < time.Minute)
}

func TestWithdraw_Errors(t *testing.T) {
	a, _ := newTestAuction(t)
	mustHandle(t, a, admitted(bidderA, 100))

	_, err := a.Withdraw(bidderA)
	check.True(t, errors.Is(err, ErrState))

	_, err = a.Withdraw(ownerAddr)
	check.True(t, errors.Is(err, ErrState))
	check.True(t, !a.IsFinished())
}

func TestWithdraw_RequiresFinishedAuction(t *testing.T) {
	a, clock := newTestAuction(t)
	mustHandle(t, a, admitted(bidderA, 100))
	clock.Advance(150 * time.Second)

	// The winner has held long enough, but nobody has finished the auction yet.
	check.True(t, a.IsWinningConditionMet())
	before := ComputeStateDigest(a.Snapshot())
	_, err := a.Withdraw(ownerAddr)
	check.True(t, errors.Is(err, ErrState))
	check.True(t, !a.IsFinished())
	check.Equal(t, before, ComputeStateDigest(a.Snapshot()))

	out, err := a.FinishAuction()
	check.NoError(t, err)
	check.True(t, out.Finished)
	check.Equal(t, []string{"stop_inbound:0a"}, instructionKinds(out))

	out, err = a.Withdraw(ownerAddr)
	check.NoError(t, err)
	check.True(t, !out.Finished)
	check.Equal(t, []string{"transfer:f0"}, instructionKinds(out))
	check.Equal(t, "15000", out.Paid.String())

	out, err = a.Withdraw(ownerAddr)
	check.NoError(t, err)
	check.Equal(t, "0", out.Paid.String())
	check.Equal(t, 0, len(out.Instructions))
}

func TestWithdrawNonWinner_Errors(t *testing.T) {
	a, clock := newTestAuction(t)
	mustHandle(t, a, admitted(bidderA, 100))
	clock.Advance(time.Second)
	mustHandle(t, a, admitted(bidderB, 200))

	tests := []struct {
		name   string
		caller func() error
	}{
		{"winner while running", func() error { _, err := a.WithdrawNonWinner(bidderB); return err }},
		{"non-winner while running", func() error { _, err := a.WithdrawNonWinner(bidderA); return err }},
		{"empty caller", func() error { _, err := a.WithdrawNonWinner(NoBidder); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check.True(t, errors.Is(tt.caller(), ErrState))
		})
	}

	clock.Advance(150 * time.Second)
	check.True(t, a.IsWinningConditionMet())

	_, err := a.WithdrawNonWinner(bidderB)
	check.True(t, errors.Is(err, ErrState))
	_, err = a.WithdrawNonWinner(bidderA)
	check.True(t, errors.Is(err, ErrState))
	check.True(t, !a.IsFinished())
	check.Equal(t, []common.Address{bidderB, bidderA}, rankedAccounts(a))

	out, err := a.FinishAuction()
	check.NoError(t, err)
	check.True(t, out.Finished)
	check.Equal(t, []string{"stop_inbound:0b"}, instructionKinds(out))

	out, err = a.WithdrawNonWinner(bidderA)
	check.NoError(t, err)
	check.True(t, !out.Finished)
	check.Equal(t, []string{"close_mirror:0a", "stop_inbound:0a", "transfer:0a"}, instructionKinds(out))
	check.Equal(t, "100", out.Paid.String())

	_, err = a.WithdrawNonWinner(bidderB)
	check.True(t, errors.Is(err, ErrState))
}

func TestWithdrawNonWinner_UnknownCaller(t *testing.T) {
	a, clock := newTestAuction(t)
	mustHandle(t, a, admitted(bidderA, 100))
	clock.Advance(100 * time.Second)

	_, err := a.WithdrawNonWinner(bidderE)
	check.True(t, errors.Is(err, ErrState))

	_, err = a.FinishAuction()
	assert.NoError(t, err)

	out, err := a.WithdrawNonWinner(bidderE)
	check.NoError(t, err)
	check.True(t, !out.Applied)
	check.Equal(t, "0", out.Paid.String())
	check.Equal(t, 0, len(out.Instructions))
}

func TestStopAuction(t *testing.T) {
	t.Run("owner on empty auction", func(t *testing.T) {
		a, _ := newTestAuction(t)
		out, err := a.StopAuction(ownerAddr)
		check.NoError(t, err)
		check.True(t, out.Finished)
		check.True(t, a.IsFinished())
		check.Equal(t, NoBidder, a.Winner())
		check.True(t, !a.IsWinningConditionMet())

		_, err = a.Handle(admitted(bidderA, 100))
		check.True(t, errors.Is(err, ErrAuctionClosed))

		out, err = a.Withdraw(ownerAddr)
		check.NoError(t, err)
		check.Equal(t, "0", out.Paid.String())
	})

	t.Run("not the owner", func(t *testing.T) {
		a, _ := newTestAuction(t)
		_, err := a.StopAuction(bidderA)
		check.True(t, errors.Is(err, ErrState))
		check.True(t, !a.IsFinished())
	})

	t.Run("bidders present", func(t *testing.T) {
		a, _ := newTestAuction(t)
		mustHandle(t, a, admitted(bidderA, 100))
		out, err := a.StopAuction(ownerAddr)
		check.NoError(t, err)
		check.True(t, !out.Applied)
		check.True(t, !a.IsFinished())
	})

	t.Run("already finished", func(t *testing.T) {
		a, _ := newTestAuction(t)
		_, err := a.StopAuction(ownerAddr)
		assert.NoError(t, err)
		out, err := a.StopAuction(ownerAddr)
		check.NoError(t, err)
		check.True(t, !out.Finished)
	})

	t.Run("everybody left", func(t *testing.T) {
		a, clock := newTestAuction(t)
		mustHandle(t, a, admitted(bidderA, 100))
		clock.Advance(3 * time.Second)
		mustHandle(t, a, exited(bidderA))

		out, err := a.StopAuction(ownerAddr)
		check.NoError(t, err)
		check.True(t, out.Finished)

		out, err = a.WithdrawNonWinner(bidderA)
		check.NoError(t, err)
		check.Equal(t, []string{"transfer:0a"}, instructionKinds(out))
		check.Equal(t, "300", out.Paid.String())
		checkConservation(t, a.Totals())
	})
}
