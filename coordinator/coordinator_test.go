// coordinator_test.go
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

package coordinator

import (
	"sync"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/droidian/stated/sleeptracker"
)

func Test(t *testing.T) { TestingT(t) }

var _ = Suite(&coordinatorSuite{})

type coordinatorSuite struct{}

type call struct {
	op   string
	name string
	dur  time.Duration
	keep bool
}

type fakeWakelocks struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeWakelocks) Lock(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "lock", name: name})
}

func (f *fakeWakelocks) Unlock(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "unlock", name: name})
}

func (f *fakeWakelocks) Timed(name string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "timed", name: name, dur: d})
}

func (f *fakeWakelocks) Cancel(name string, keepLock bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "cancel", name: name, keep: keepLock})
}

func (f *fakeWakelocks) CancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "cancelAll"})
}

func (f *fakeWakelocks) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fakeAutosleeper struct {
	disabled bool
}

func (a *fakeAutosleeper) Disable() { a.disabled = true }

func (s *coordinatorSuite) TestDisplayOnLocksAndClearsPendingCancel(c *C) {
	wl := &fakeWakelocks{}
	displayCh := make(chan bool, 1)
	co := New(wl, &fakeAutosleeper{}, displayCh, nil, nil)
	co.Start()

	displayCh <- true
	waitForCalls(c, wl, 2)

	calls := wl.snapshot()
	c.Check(calls[0], Equals, call{op: "lock", name: DisplayWakelock})
	c.Check(calls[1], Equals, call{op: "cancel", name: DisplayWakelock, keep: true})

	co.Stop()
}

func (s *coordinatorSuite) TestDisplayOffSchedulesTimedRelease(c *C) {
	wl := &fakeWakelocks{}
	displayCh := make(chan bool, 1)
	co := New(wl, &fakeAutosleeper{}, displayCh, nil, nil)
	co.Start()

	displayCh <- false
	waitForCalls(c, wl, 1)

	calls := wl.snapshot()
	c.Check(calls[0], Equals, call{op: "timed", name: DisplayWakelock, dur: DefaultWaitTime})

	co.Stop()
}

func (s *coordinatorSuite) TestPowerkeyLocksRegardlessOfDisplay(c *C) {
	wl := &fakeWakelocks{}
	keys := make(chan uint16, 1)
	co := New(wl, &fakeAutosleeper{}, nil, keys, nil)
	co.Start()

	keys <- 116
	waitForCalls(c, wl, 1)

	calls := wl.snapshot()
	c.Check(calls[0], Equals, call{op: "timed", name: PowerkeyWakelock, dur: DefaultWaitTime})

	co.Stop()
}

func (s *coordinatorSuite) TestResumeFarApartResetsToOne(c *C) {
	wl := &fakeWakelocks{}
	resumes := make(chan sleeptracker.ResumeEvent, 1)
	co := New(wl, &fakeAutosleeper{}, nil, nil, resumes)
	co.Start()

	resumes <- sleeptracker.ResumeEvent{PreviousBootMS: 0, NowBootMS: 100000}
	waitForCalls(c, wl, 2)

	calls := wl.snapshot()
	c.Check(calls[0], Equals, call{op: "lock", name: ResumeWakelock})
	c.Check(calls[1], Equals, call{op: "timed", name: ResumeWakelock, dur: ResumeLockWaitTime * 1})
	c.Check(co.subsequentResumes, Equals, 1)

	co.Stop()
}

func (s *coordinatorSuite) TestResumeLoopGrowsDampingCeiling(c *C) {
	wl := &fakeWakelocks{}
	resumes := make(chan sleeptracker.ResumeEvent, 1)
	co := New(wl, &fakeAutosleeper{}, nil, nil, resumes)
	co.Start()

	// Each resume is only 1ms apart at the boottime clock. With the
	// time_offset compensation of 2000ms*(subsequent_resumes+1) the
	// compared gap is 4001, 6001, ..., 14001ms for counters 1..6, all
	// inside the 15s threshold, so six resumes climb subsequent_resumes to
	// the ceiling of 7. (At 7 the offset alone is 16000ms, so a seventh
	// resume would reset the counter to 1.)
	base := uint64(0)
	for i := 0; i < 6; i++ {
		resumes <- sleeptracker.ResumeEvent{PreviousBootMS: base, NowBootMS: base + 1}
		waitForCalls(c, wl, (i+1)*2)
		base++
	}

	c.Check(co.subsequentResumes, Equals, ResumeMaxCeiling)

	calls := wl.snapshot()
	last := calls[len(calls)-1]
	c.Check(last, Equals, call{op: "timed", name: ResumeWakelock, dur: ResumeLockWaitTime * ResumeMaxCeiling})

	co.Stop()
}

func (s *coordinatorSuite) TestStopDisablesAutosleepThenCancelsAll(c *C) {
	wl := &fakeWakelocks{}
	as := &fakeAutosleeper{}
	co := New(wl, as, nil, nil, nil)
	co.Start()

	co.Stop()

	c.Check(as.disabled, Equals, true)
	calls := wl.snapshot()
	c.Check(calls[len(calls)-1], Equals, call{op: "cancelAll"})
}

func waitForCalls(c *C, wl *fakeWakelocks, n int) {
	for i := 0; i < 1000; i++ {
		if len(wl.snapshot()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	c.Fatalf("timed out waiting for %d calls, got %d", n, len(wl.snapshot()))
}
