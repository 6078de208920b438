// coordinator.go
//
// Copyright 2021 Eugenio Paolantonio (g7)
//
// Permission is hereby granted, free of charge, to any person obtaining
// a copy of this software and associated documentation files (the
// "Software"), to deal in the Software without restriction, including
// without limitation the rights to use, copy, modify, merge, publish,
// distribute, sublicense, and/or sell copies of the Software, and to
// permit persons to whom the Software is furnished to do so, subject to
// the following conditions:
//
// The above copyright notice and this permission notice shall be
// included in all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE X CONSORTIUM BE LIABLE FOR ANY
// CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
// TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
// SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Except as contained in this notice, the name(s) of the above copyright
// holders shall not be used in advertising or otherwise to promote the sale,
// use or other dealings in this Software without prior written
// authorization.

// Package coordinator implements the policy layer of spec section 4.7:
// the single serialised loop that turns display, input and resume events
// into wakelock acquisitions, and the sleep/resume-loop damping logic
// that grows the post-resume awake window under repeated thrashing.
package coordinator

import (
	"time"

	"gopkg.in/tomb.v2"

	"github.com/droidian/stated/logger"
	"github.com/droidian/stated/sleeptracker"
)

// Well-known wakelock names, externally observable via /sys/power/wake_lock
// readback per spec section 6.
const (
	DisplayWakelock  = "stated_display"
	PowerkeyWakelock = "stated_powerkey_timer"
	ResumeWakelock   = "stated_resume_timer"
)

// Tunable policy constants, spec section 6.
const (
	DefaultWaitTime     = 10 * time.Second
	ResumeLockWaitTime  = 2 * time.Second
	ResumeMaxCeiling    = 7
	ResumeLoopThreshold = 15000 // milliseconds
)

// wakelocks is the subset of wakelock.Registry the coordinator drives;
// letting tests substitute a fake keeps policy tests free of sysfs.
type wakelocks interface {
	Lock(name string)
	Unlock(name string)
	Timed(name string, d time.Duration)
	Cancel(name string, keepLock bool)
	CancelAll()
}

// autosleeper is the subset of the autosleep toggler the coordinator
// drives at shutdown.
type autosleeper interface {
	Disable()
}

// Coordinator owns the damping state machine from spec section 4.7 and
// serialises every policy decision onto a single goroutine, mirroring the
// single-threaded cooperative loop described in spec section 5.
type Coordinator struct {
	wl        wakelocks
	autosleep autosleeper

	displayChanges <-chan bool
	keyPresses     <-chan uint16
	resumes        <-chan sleeptracker.ResumeEvent

	// subsequentResumes starts at 1 and grows (capped at
	// ResumeMaxCeiling) while the boottime gap between resumes, plus a
	// time offset that itself grows with the counter, stays under
	// ResumeLoopThreshold; it resets to 1 the first time that sum doesn't.
	// Intentionally never resets to 0 — see spec section 9.
	subsequentResumes int

	t tomb.Tomb
}

// New wires a Coordinator. Any of the channel inputs may be nil when the
// corresponding source found no hardware to watch (display or input); a
// nil channel simply never fires in the select below.
func New(wl wakelocks, autosleep autosleeper, displayChanges <-chan bool, keyPresses <-chan uint16, resumes <-chan sleeptracker.ResumeEvent) *Coordinator {
	return &Coordinator{
		wl:                wl,
		autosleep:         autosleep,
		displayChanges:    displayChanges,
		keyPresses:        keyPresses,
		resumes:           resumes,
		subsequentResumes: 1,
	}
}

// Start launches the loop goroutine under the coordinator's tomb.
func (co *Coordinator) Start() {
	co.t.Go(func() error {
		co.loop()
		return nil
	})
}

// Stop requests loop exit and waits for it, then runs the documented
// shutdown sequence: autosleep disable, then release every tracked
// wakelock. There is no graceful-draining delay, per spec section 5.
func (co *Coordinator) Stop() {
	co.t.Kill(nil)
	co.t.Wait()
	if co.autosleep != nil {
		co.autosleep.Disable()
	}
	co.wl.CancelAll()
}

func (co *Coordinator) loop() {
	for {
		select {
		case <-co.t.Dying():
			return
		case on, ok := <-co.displayChanges:
			if !ok {
				co.displayChanges = nil
				continue
			}
			co.onDisplayChange(on)
		case code, ok := <-co.keyPresses:
			if !ok {
				co.keyPresses = nil
				continue
			}
			co.onPowerkeyPressed(code)
		case ev, ok := <-co.resumes:
			if !ok {
				co.resumes = nil
				continue
			}
			co.onResume(ev)
		}
	}
}

// onDisplayChange implements spec section 4.7's display handler.
func (co *Coordinator) onDisplayChange(on bool) {
	if on {
		co.wl.Lock(DisplayWakelock)
		co.wl.Cancel(DisplayWakelock, true)
		return
	}
	co.wl.Timed(DisplayWakelock, DefaultWaitTime)
}

// onPowerkeyPressed implements spec section 4.7's powerkey handler: an
// unconditional awake window regardless of display state, since the
// press itself may be what's waking the device.
func (co *Coordinator) onPowerkeyPressed(code uint16) {
	logger.L.WithField("key", code).Debug("powerkey pressed")
	co.wl.Timed(PowerkeyWakelock, DefaultWaitTime)
}

// onResume implements spec section 4.7's resume handler, including the
// loop-damping multiplier that grows the awake window under repeated
// quick resumes and the deliberately-preserved +1 offset and
// reset-to-1-not-0 quirks documented in spec section 9.
func (co *Coordinator) onResume(ev sleeptracker.ResumeEvent) {
	co.wl.Lock(ResumeWakelock)

	var timeOffset uint64
	if co.subsequentResumes != 0 {
		timeOffset = uint64(ResumeLockWaitTime/time.Millisecond) * uint64(co.subsequentResumes+1)
	}

	elapsed := ev.NowBootMS - ev.PreviousBootMS + timeOffset
	if elapsed < ResumeLoopThreshold {
		co.subsequentResumes++
		if co.subsequentResumes > ResumeMaxCeiling {
			co.subsequentResumes = ResumeMaxCeiling
		}
		logger.L.WithField("subsequent_resumes", co.subsequentResumes).Debug("sleep/resume loop detected")
	} else {
		co.subsequentResumes = 1
	}

	co.wl.Timed(ResumeWakelock, ResumeLockWaitTime*time.Duration(co.subsequentResumes))
}
