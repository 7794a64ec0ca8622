package storage

import (
	"sync"
	"time"
)

// Alarm is the single schedulable wake-up deadline attached to a room's
// storage. Arming replaces any pending deadline rather than accumulating.
type Alarm interface {
	// Arm schedules the wake-up, replacing a pending one.
	Arm(at time.Time)

	// Disarm cancels a pending wake-up, if any.
	Disarm()

	// Pending reports the currently armed deadline.
	Pending() (time.Time, bool)
}

// TimerAlarm drives the wake-up with an in-process timer.
type TimerAlarm struct {
	mu    sync.Mutex
	fire  func(now time.Time)
	timer *time.Timer
	at    time.Time
	armed bool
}

// NewTimerAlarm wires the alarm to its handler. The handler runs on the
// timer's goroutine; it must do its own locking.
func NewTimerAlarm(fire func(now time.Time)) *TimerAlarm {
	return &TimerAlarm{fire: fire}
}

func (a *TimerAlarm) Arm(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.at = at
	a.armed = true
	a.timer = time.AfterFunc(time.Until(at), func() {
		a.mu.Lock()
		a.armed = false
		a.mu.Unlock()
		a.fire(time.Now())
	})
}

func (a *TimerAlarm) Disarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.armed = false
}

func (a *TimerAlarm) Pending() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.at, a.armed
}
