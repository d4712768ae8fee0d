// Package clock implements the two-sided match clock. Remaining time is derived
// lazily from a stored duration and the wall time since the last click, so no
// timer has to run between decisions.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/shuuro/go/internal/models"
)

// Controller holds both sides' clocks for one match. It is not safe for
// concurrent use; the owning session serializes access.
type Controller struct {
	clock     clockwork.Clock
	remaining [2]time.Duration
	increment time.Duration
	lastClick time.Time
	stage     models.Stage
	// stopped marks a side that already confirmed during the shop stage,
	// where both clocks run at once.
	stopped [2]bool
}

// New starts a clock with base time per side at the shop stage.
func New(c clockwork.Clock, base, increment time.Duration) *Controller {
	return &Controller{
		clock:     c,
		remaining: [2]time.Duration{base, base},
		increment: increment,
		lastClick: c.Now(),
		stage:     models.StageShop,
	}
}

// Restore rebuilds a clock from its persisted record. The persisted last click
// is kept so time spent while the process was down is charged exactly once.
func Restore(c clockwork.Clock, rec models.ClockRecord, stage models.Stage) *Controller {
	return &Controller{
		clock: c,
		remaining: [2]time.Duration{
			time.Duration(rec.RemainingMs[models.White]) * time.Millisecond,
			time.Duration(rec.RemainingMs[models.Black]) * time.Millisecond,
		},
		increment: time.Duration(rec.IncrementMs) * time.Millisecond,
		lastClick: rec.LastClick,
		stage:     stage,
		stopped:   rec.Stopped,
	}
}

// CurrentRemaining returns the time left for side, or false once it has expired.
// Outside the shop it is only meaningful for the side to move; use Stored for
// the waiting side.
func (c *Controller) CurrentRemaining(side models.Side) (time.Duration, bool) {
	if c.stopped[side] {
		return c.remaining[side], true
	}
	left := c.remaining[side] - c.clock.Now().Sub(c.lastClick)
	if left < 0 {
		return 0, false
	}
	return left, true
}

// Click charges the elapsed time to side, adds the increment outside the shop
// and restarts the reference point. It returns false, changing nothing, when
// side had already run out of time.
func (c *Controller) Click(side models.Side) ([2]time.Duration, bool) {
	left, ok := c.CurrentRemaining(side)
	if !ok {
		return [2]time.Duration{}, false
	}

	if c.stage == models.StageShop {
		// the other clock keeps running from the shared reference
		c.remaining[side] = left
		c.stopped[side] = true
		return c.remaining, true
	}

	c.remaining[side] = left + c.increment
	c.lastClick = c.clock.Now()
	return c.remaining, true
}

// AdvanceStage moves the clock to a new stage and restarts the reference point.
// Stored time is not touched.
func (c *Controller) AdvanceStage(stage models.Stage) {
	if stage <= c.stage {
		return
	}
	if c.stage == models.StageShop {
		// both sides are stopped by their confirmations at this point
		for side := range c.remaining {
			if !c.stopped[side] {
				left, _ := c.CurrentRemaining(models.Side(side))
				c.remaining[side] = left
			}
		}
		c.stopped = [2]bool{}
	}
	c.stage = stage
	c.lastClick = c.clock.Now()
}

// Stop freezes the clocks when the match ends. Outside the shop only the side
// to move is running and gets charged.
func (c *Controller) Stop(running models.Side) {
	for side := range c.remaining {
		s := models.Side(side)
		if c.stopped[s] || (c.stage != models.StageShop && s != running) {
			continue
		}
		left, _ := c.CurrentRemaining(s)
		c.remaining[s] = left
	}
	c.stopped = [2]bool{true, true}
	c.lastClick = c.clock.Now()
}

// Stored returns the remaining time as of the last click, without the running
// side's elapsed time.
func (c *Controller) Stored() [2]time.Duration {
	return c.remaining
}

// Record returns the persistable clock state. Stored values are never negative.
func (c *Controller) Record() models.ClockRecord {
	rec := models.ClockRecord{
		IncrementMs: c.increment.Milliseconds(),
		LastClick:   c.lastClick,
		Stopped:     c.stopped,
	}
	for side, d := range c.remaining {
		if d < 0 {
			d = 0
		}
		rec.RemainingMs[side] = d.Milliseconds()
	}
	return rec
}
