package core

import (
	"sync"
	"time"
)

// Clock provides the current time to the auction.
// This interface enables dependency injection for deterministic testing and journal replay.
type Clock interface {
	Now() time.Time
}

// systemClock reads wall-clock time for production use
type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// defaultClock is used when New is called without a clock
var defaultClock Clock = systemClock{}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a ManualClock reading start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// AuctionClock holds the time-related state of the auction lifecycle.
type AuctionClock struct {
	startTime    time.Time
	holdDuration time.Duration
	stepPercent  int64

	finished     bool
	finishedAt   time.Time
	winningSince time.Time

	// last is the latest time observed by a command; time never runs backwards past it.
	last time.Time
}

func newAuctionClock(start time.Time, hold time.Duration, step int64) *AuctionClock {
	start = start.Truncate(time.Second)
	return &AuctionClock{
		startTime:    start,
		holdDuration: hold,
		stepPercent:  step,
		last:         start,
	}
}

// observe returns now truncated to whole seconds, never earlier than the last observation.
func (c *AuctionClock) observe(now time.Time) time.Time {
	now = now.Truncate(time.Second)
	if now.Before(c.last) {
		return c.last
	}
	c.last = now
	return now
}

// peek is observe without recording the reading; used by read-only paths and failed commands.
func (c *AuctionClock) peek(now time.Time) time.Time {
	now = now.Truncate(time.Second)
	if now.Before(c.last) {
		return c.last
	}
	return now
}

func (c *AuctionClock) startWinning(now time.Time) {
	c.winningSince = now
}

// heldFor is how long the current winner has held the top rank at now.
func (c *AuctionClock) heldFor(now time.Time, hasWinner bool) time.Duration {
	if !hasWinner || c.winningSince.IsZero() {
		return 0
	}
	if c.finished {
		return c.finishedAt.Sub(c.winningSince)
	}
	return now.Sub(c.winningSince)
}

// winningConditionMet reports whether the winner has held the top rank for the hold
// duration. Once finished the hold is measured up to finishedAt.
func (c *AuctionClock) winningConditionMet(now time.Time, hasWinner bool) bool {
	if !hasWinner {
		return false
	}
	return c.heldFor(now, hasWinner) >= c.holdDuration
}

// due reports whether a Running auction has to finish at now.
func (c *AuctionClock) due(now time.Time, hasWinner bool) bool {
	return !c.finished && c.winningConditionMet(now, hasWinner)
}

func (c *AuctionClock) finish(now time.Time) {
	c.finished = true
	c.finishedAt = now
}

// StartTime is when the auction was created.
func (c *AuctionClock) StartTime() time.Time { return c.startTime }

// HoldDuration is how long a winner has to hold the top rank.
func (c *AuctionClock) HoldDuration() time.Duration { return c.holdDuration }

// StepPercent is the minimum increment over the top rate, in percent.
func (c *AuctionClock) StepPercent() int64 { return c.stepPercent }

// Finished reports whether the auction reached its terminal state.
func (c *AuctionClock) Finished() bool { return c.finished }
