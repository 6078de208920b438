// sleeptracker.go
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

// Package sleeptracker detects resume-from-suspend using the same trick
// mce and the C original use: a CLOCK_REALTIME timerfd armed at a
// far-future absolute deadline with TFD_TIMER_CANCEL_ON_SET delivers
// ECANCELED the moment the kernel steps the realtime clock after resume
// (spec section 4.4).
package sleeptracker

import (
	"errors"

	"golang.org/x/xerrors"

	"github.com/droidian/stated/clock"
	"github.com/droidian/stated/logger"
)

const wakelockName = "stated_sleeptracker"

// ErrCanceled is returned by timerfd.wait when the watched timer was
// cancelled by a realtime clock step — the resume signal itself.
var ErrCanceled = errors.New("sleeptracker: timer cancelled by clock step")

// locker is the subset of wakelock.Registry the tracker needs.
type locker interface {
	Lock(name string)
	Unlock(name string)
}

// timerfd abstracts the CLOCK_REALTIME/CANCEL_ON_SET timer so tests can
// drive the state machine without a real kernel timerfd.
type timerfd interface {
	// arm (re)creates and arms the timer. Closes any previously armed fd.
	arm() error
	// wait blocks until the timer fires or is cancelled. Returns
	// ErrCanceled on a clock step, nil on a normal (effectively never
	// reached) expiry, or another error on a spurious failure.
	wait() error
	close()
}

// ResumeEvent carries the boottime readings bracketing a detected resume.
type ResumeEvent struct {
	PreviousBootMS uint64
	NowBootMS      uint64
}

// SleepTracker emits a ResumeEvent on Resume for every detected
// resume-from-suspend. If arming fails at startup it logs and stays
// dormant for the process lifetime, per spec section 4.4/7.
type SleepTracker struct {
	tf             timerfd
	wakelock       locker
	previousBootMS uint64
	stop           chan struct{}

	// Resume is unbuffered: sending blocks until the coordinator's event
	// loop receives it, preserving the single-consumer serialization
	// spec section 5 requires of all policy-affecting callbacks.
	Resume chan ResumeEvent
}

// New returns a SleepTracker backed by a real CLOCK_REALTIME timerfd.
func New(wl locker) *SleepTracker {
	return newWithTimerfd(wl, &realTimerfd{fd: -1})
}

func newWithTimerfd(wl locker, tf timerfd) *SleepTracker {
	return &SleepTracker{
		tf:       tf,
		wakelock: wl,
		stop:     make(chan struct{}),
		Resume:   make(chan ResumeEvent),
	}
}

// Start arms the initial timer and begins watching it. If arming fails,
// it logs at error level and returns the error; the tracker never emits.
func (st *SleepTracker) Start() error {
	st.previousBootMS = clock.BootMS()
	if err := st.tf.arm(); err != nil {
		logger.L.WithError(err).Error("sleep tracker: unable to arm timer, staying dormant")
		return xerrors.Errorf("sleeptracker: arm timer: %w", err)
	}
	go st.loop()
	return nil
}

// Stop tears down the watched timer. There is no graceful drain: the
// watcher goroutine may remain blocked in a kernel read past this call,
// which is harmless because the process exits shortly after shutdown
// per spec section 5.
func (st *SleepTracker) Stop() {
	close(st.stop)
	st.tf.close()
}

func (st *SleepTracker) loop() {
	for {
		err := st.tf.wait()
		select {
		case <-st.stop:
			return
		default:
		}

		switch {
		case errors.Is(err, ErrCanceled):
			if !st.handleResume() {
				return
			}
		case err != nil:
			logger.L.WithError(err).Debug("sleep tracker: spurious timer wakeup")
		}
	}
}

// handleResume runs the resume sequence from spec section 4.4 and
// reports whether the tracker is still armed afterward; false means
// rearming failed and the tracker goes permanently dormant.
func (st *SleepTracker) handleResume() bool {
	st.wakelock.Lock(wakelockName)

	now := clock.BootMS()
	prev := st.previousBootMS
	logger.L.WithField("prev_boot_ms", prev).WithField("now_boot_ms", now).Debug("resume detected")

	st.Resume <- ResumeEvent{PreviousBootMS: prev, NowBootMS: now}
	st.previousBootMS = now

	err := st.tf.arm()
	st.wakelock.Unlock(wakelockName)
	if err != nil {
		logger.L.WithError(err).Error("sleep tracker: unable to rearm timer after resume, staying dormant")
		return false
	}
	return true
}
