package engine

import (
	"time"

	"github.com/coder/quartz"
)

// TurnTimer holds the deadline of the decision currently open at a table.
// Its methods are called from the table serializer; the expiry callback runs
// on a clock goroutine and must route back through the serializer.
//
// Every Arm and Extend starts a new generation. A callback that fired for an
// older generation is stale even when it names the current decision.
type TurnTimer struct {
	clock      quartz.Clock
	timer      *quartz.Timer
	decision   uint64
	generation uint64
	deadline   time.Time
	onExpire   func(decision, generation uint64)
}

func NewTurnTimer(clock quartz.Clock, onExpire func(decision, generation uint64)) *TurnTimer {
	return &TurnTimer{clock: clock, onExpire: onExpire}
}

// Arm replaces any running timer with one for the given decision. A zero or
// negative timeout leaves the decision without a deadline.
func (tt *TurnTimer) Arm(decision uint64, timeout time.Duration) time.Time {
	tt.Stop()
	tt.decision = decision
	if timeout <= 0 {
		return time.Time{}
	}
	tt.deadline = tt.clock.Now().Add(timeout)
	tt.start(timeout)
	return tt.deadline
}

// Extend pushes the deadline of the armed decision back by extra.
func (tt *TurnTimer) Extend(decision uint64, extra time.Duration) (time.Time, bool) {
	if tt.timer == nil || tt.decision != decision || extra <= 0 {
		return tt.deadline, false
	}
	remaining := tt.Remaining()
	tt.timer.Stop()
	tt.deadline = tt.deadline.Add(extra)
	tt.start(remaining + extra)
	return tt.deadline, true
}

func (tt *TurnTimer) start(after time.Duration) {
	tt.generation++
	decision, generation := tt.decision, tt.generation
	tt.timer = tt.clock.AfterFunc(after, func() {
		tt.onExpire(decision, generation)
	}, "turn", "deadline")
}

func (tt *TurnTimer) Stop() {
	if tt.timer != nil {
		tt.timer.Stop()
		tt.timer = nil
	}
	tt.deadline = time.Time{}
}

// Current reports whether a fired callback belongs to the running timer.
func (tt *TurnTimer) Current(decision, generation uint64) bool {
	return tt.timer != nil && tt.decision == decision && tt.generation == generation
}

// Remaining is the time left before the armed decision expires.
func (tt *TurnTimer) Remaining() time.Duration {
	if tt.timer == nil {
		return 0
	}
	d := tt.deadline.Sub(tt.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Armed reports whether a deadline is running.
func (tt *TurnTimer) Armed() bool {
	return tt.timer != nil
}

func (tt *TurnTimer) Decision() uint64 {
	return tt.decision
}

func (tt *TurnTimer) Generation() uint64 {
	return tt.generation
}
