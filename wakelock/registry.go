// registry.go
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

// Package wakelock implements the process-wide named-wakelock registry
// described in spec section 4.3: acquire/release through SysfsGate, plus
// timed entries that self-release on an expiry timer, with rearm-wins
// tie-breaking per spec section 4.3's ordering guarantees.
package wakelock

import (
	"sync"
	"time"

	"github.com/droidian/stated/dirs"
	"github.com/droidian/stated/internal/capability"
	"github.com/droidian/stated/internal/sysfsgate"
	"github.com/droidian/stated/logger"
)

// entry tracks a timed wakelock's pending expiry. gen guards against a
// timer that fires in the same tick a rearm replaces it: the callback
// only acts if it's still the entry's current generation.
type entry struct {
	timer *time.Timer
	gen   uint64
}

// gate is the subset of sysfsgate.Gate the registry needs; letting tests
// substitute a fake keeps wakelock tests from depending on real files.
type gate interface {
	WriteLine(path, content string) error
	Exists(path string) bool
}

// Registry is the process-wide wakelock service. Its map is guarded by a
// single mutex, uncontended today but held on every mutating access per
// spec section 5, since a future deployment may drive Timed/Cancel from a
// helper goroutine.
type Registry struct {
	gate    gate
	cap     *capability.Cache
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns a Registry backed by a real sysfsgate.Gate.
func New() *Registry {
	return newWithGate(sysfsgate.New())
}

func newWithGate(g gate) *Registry {
	return &Registry{
		gate:    g,
		cap:     capability.NewCache(),
		entries: make(map[string]*entry),
	}
}

func (r *Registry) supported() bool {
	st := r.cap.Probe(dirs.WakeLockFile(), r.gate.Exists)
	if st == capability.Unsupported {
		logger.L.Warn("wakelocks not supported on this kernel")
	}
	return st == capability.Supported
}

// Lock acquires name unconditionally. Idempotent at the kernel level; the
// registry does not track a refcount for non-timed locks.
func (r *Registry) Lock(name string) {
	if !r.supported() {
		return
	}
	if err := r.gate.WriteLine(dirs.WakeLockFile(), name); err == nil {
		logger.L.WithField("name", name).Debug("wakelock acquired")
	}
}

// Unlock releases name unconditionally. Idempotent at the kernel level.
func (r *Registry) Unlock(name string) {
	if !r.supported() {
		return
	}
	if err := r.gate.WriteLine(dirs.WakeUnlockFile(), name); err == nil {
		logger.L.WithField("name", name).Debug("wakelock released")
	}
}

// Timed acquires name if it isn't already tracked and schedules its
// release after d. If name already has a pending expiry this rearms it:
// the prior handle is cancelled and a new deadline installed without an
// extra Lock call, since the name is assumed already held at the kernel.
func (r *Registry) Timed(name string, d time.Duration) {
	if !r.supported() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, tracked := r.entries[name]
	if !tracked {
		if err := r.gate.WriteLine(dirs.WakeLockFile(), name); err == nil {
			logger.L.WithField("name", name).Debug("wakelock acquired")
		}
		e = &entry{}
		r.entries[name] = e
	} else {
		e.timer.Stop()
	}

	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(d, func() { r.expire(name, gen) })
}

func (r *Registry) expire(name string, gen uint64) {
	r.mu.Lock()
	e, tracked := r.entries[name]
	if !tracked || e.gen != gen {
		// Superseded by a rearm or an explicit cancel; not our turn.
		r.mu.Unlock()
		return
	}
	delete(r.entries, name)
	r.mu.Unlock()

	if !r.supported() {
		return
	}
	if err := r.gate.WriteLine(dirs.WakeUnlockFile(), name); err == nil {
		logger.L.WithField("name", name).Debug("wakelock expired")
	}
}

// Cancel drops name's pending expiry, if any. If keepLock is false, name
// is also released at the kernel; if true, the caller has taken over the
// lock's lifetime and it stays held with no scheduled release.
func (r *Registry) Cancel(name string, keepLock bool) {
	r.mu.Lock()
	if e, tracked := r.entries[name]; tracked {
		e.timer.Stop()
		delete(r.entries, name)
	}
	r.mu.Unlock()

	if !keepLock {
		r.Unlock(name)
	}
}

// CancelAll cancels every tracked expiry and releases every tracked name.
// Intended for process shutdown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		e.timer.Stop()
		names = append(names, name)
	}
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, name := range names {
		r.Unlock(name)
	}
}
