package core

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func TestAuctionClock(t *testing.T) {
	c := newAuctionClock(testStart.Add(400*time.Millisecond), 10*time.Second, 5)
	check.Equal(t, testStart, c.StartTime())
	check.Equal(t, int64(5), c.StepPercent())
	check.Equal(t, 10*time.Second, c.HoldDuration())

	check.Equal(t, testStart.Add(3*time.Second), c.observe(testStart.Add(3900*time.Millisecond)))
	check.Equal(t, testStart.Add(3*time.Second), c.observe(testStart.Add(time.Second)))
	check.Equal(t, testStart.Add(3*time.Second), c.peek(testStart))

	check.True(t, !c.winningConditionMet(testStart.Add(time.Hour), false))
	check.True(t, !c.due(testStart.Add(time.Hour), false))

	c.startWinning(testStart.Add(3 * time.Second))
	check.Equal(t, 5*time.Second, c.heldFor(testStart.Add(8*time.Second), true))
	check.True(t, !c.winningConditionMet(testStart.Add(12*time.Second), true))
	check.True(t, !c.due(testStart.Add(12*time.Second), true))
	check.True(t, c.winningConditionMet(testStart.Add(13*time.Second), true))
	check.True(t, c.due(testStart.Add(13*time.Second), true))

	c.finish(testStart.Add(20 * time.Second))
	check.True(t, c.Finished())
	check.Equal(t, 17*time.Second, c.heldFor(testStart.Add(time.Hour), true))
	check.True(t, c.winningConditionMet(testStart.Add(time.Hour), true))
	check.True(t, !c.due(testStart.Add(time.Hour), true))
	check.True(t, !c.winningConditionMet(testStart.Add(time.Hour), false))
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(testStart)
	c.Advance(90 * time.Second)
	check.Equal(t, testStart.Add(90*time.Second), c.Now())
	c.Set(testStart)
	check.Equal(t, testStart, c.Now())
}
