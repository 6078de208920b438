// registry_test.go
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

package wakelock

import (
	"sync"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/droidian/stated/dirs"
)

func Test(t *testing.T) { TestingT(t) }

type call struct {
	op   string // "lock" or "unlock"
	name string
}

type fakeGate struct {
	mu     sync.Mutex
	calls  []call
	exists bool
}

func (g *fakeGate) WriteLine(path, content string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	op := "lock"
	if path == dirs.WakeUnlockFile() {
		op = "unlock"
	}
	g.calls = append(g.calls, call{op: op, name: content})
	return nil
}

func (g *fakeGate) Exists(path string) bool {
	return g.exists
}

func (g *fakeGate) snapshot() []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]call, len(g.calls))
	copy(out, g.calls)
	return out
}

var _ = Suite(&registrySuite{})

type registrySuite struct{}

func (s *registrySuite) TestUnsupportedIsNoOp(c *C) {
	g := &fakeGate{exists: false}
	r := newWithGate(g)

	r.Lock("stated_display")
	r.Timed("stated_display", time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	c.Check(g.snapshot(), HasLen, 0)
}

func (s *registrySuite) TestLockUnlock(c *C) {
	g := &fakeGate{exists: true}
	r := newWithGate(g)

	r.Lock("stated_display")
	r.Unlock("stated_display")

	c.Check(g.snapshot(), DeepEquals, []call{
		{op: "lock", name: "stated_display"},
		{op: "unlock", name: "stated_display"},
	})
}

func (s *registrySuite) TestTimedExpires(c *C) {
	g := &fakeGate{exists: true}
	r := newWithGate(g)

	r.Timed("stated_powerkey_timer", 10*time.Millisecond)
	c.Check(g.snapshot(), DeepEquals, []call{{op: "lock", name: "stated_powerkey_timer"}})

	time.Sleep(60 * time.Millisecond)
	c.Check(g.snapshot(), DeepEquals, []call{
		{op: "lock", name: "stated_powerkey_timer"},
		{op: "unlock", name: "stated_powerkey_timer"},
	})
	c.Check(r.entries, HasLen, 0)
}

// TestRearmDoesNotRelock mirrors scenario S3: repeated Timed calls on an
// already-tracked name must not issue extra lock writes, and the deadline
// used is always the most recent call's.
func (s *registrySuite) TestRearmDoesNotRelock(c *C) {
	g := &fakeGate{exists: true}
	r := newWithGate(g)

	r.Timed("stated_powerkey_timer", 30*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	r.Timed("stated_powerkey_timer", 30*time.Millisecond) // rearm, pushes deadline out
	time.Sleep(10 * time.Millisecond)
	r.Timed("stated_powerkey_timer", 30*time.Millisecond) // rearm again

	// Still held, only one lock call total, no unlock yet.
	c.Check(g.snapshot(), DeepEquals, []call{{op: "lock", name: "stated_powerkey_timer"}})

	time.Sleep(60 * time.Millisecond)
	c.Check(g.snapshot(), DeepEquals, []call{
		{op: "lock", name: "stated_powerkey_timer"},
		{op: "unlock", name: "stated_powerkey_timer"},
	})
}

func (s *registrySuite) TestCancelKeepLock(c *C) {
	g := &fakeGate{exists: true}
	r := newWithGate(g)

	r.Lock("stated_display")
	r.Timed("stated_display", 15*time.Millisecond)
	r.Cancel("stated_display", true)

	time.Sleep(40 * time.Millisecond)

	// Lock writes a lock but doesn't track the name, so Timed is a fresh
	// acquire and writes a second lock; then Cancel(keepLock=true) issues
	// no unlock, and the cancelled expiry must not fire later.
	calls := g.snapshot()
	for _, cc := range calls {
		c.Check(cc.op, Equals, "lock")
	}
	c.Check(r.entries, HasLen, 0)
}

func (s *registrySuite) TestCancelWithoutKeepReleases(c *C) {
	g := &fakeGate{exists: true}
	r := newWithGate(g)

	r.Timed("stated_resume_timer", time.Hour)
	r.Cancel("stated_resume_timer", false)

	c.Check(g.snapshot(), DeepEquals, []call{
		{op: "lock", name: "stated_resume_timer"},
		{op: "unlock", name: "stated_resume_timer"},
	})
	c.Check(r.entries, HasLen, 0)
}

func (s *registrySuite) TestCancelAll(c *C) {
	g := &fakeGate{exists: true}
	r := newWithGate(g)

	r.Timed("stated_display", time.Hour)
	r.Timed("stated_powerkey_timer", time.Hour)
	r.CancelAll()

	c.Check(r.entries, HasLen, 0)
	calls := g.snapshot()
	unlocked := map[string]bool{}
	for _, cc := range calls {
		if cc.op == "unlock" {
			unlocked[cc.name] = true
		}
	}
	c.Check(unlocked["stated_display"], Equals, true)
	c.Check(unlocked["stated_powerkey_timer"], Equals, true)
}

// TestRearmRaceFavorsNewDeadline covers the same-tick tie-break: rearming
// right as the old timer would have fired must not let a stale expiry
// unlock the name out from under the new deadline.
func (s *registrySuite) TestRearmRaceFavorsNewDeadline(c *C) {
	g := &fakeGate{exists: true}
	r := newWithGate(g)

	r.Timed("stated_resume_timer", 5*time.Millisecond)
	time.Sleep(5 * time.Millisecond) // let the old timer fire concurrently with...
	r.Timed("stated_resume_timer", 40*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	// Must still be tracked and not unlocked by the stale first expiry.
	c.Check(r.entries, HasLen, 1)
}
