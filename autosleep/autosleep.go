// autosleep.go
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

// Package autosleep toggles kernel autosleep via /sys/power/autosleep,
// grounded on the original wakelocks.c sleep.c module: same capability
// probe and write-is-fire-and-forget semantics as the wakelock registry,
// applied to a single two-valued sysfs property instead of a name set.
package autosleep

import (
	"github.com/droidian/stated/dirs"
	"github.com/droidian/stated/internal/capability"
	"github.com/droidian/stated/internal/sysfsgate"
	"github.com/droidian/stated/logger"
)

// gate is the subset of sysfsgate.Gate autosleep needs.
type gate interface {
	WriteLine(path, content string) error
	Exists(path string) bool
}

// Toggler enables or disables kernel autosleep.
type Toggler struct {
	gate gate
	cap  *capability.Cache
}

// New returns a Toggler backed by a real sysfsgate.Gate.
func New() *Toggler {
	return newWithGate(sysfsgate.New())
}

func newWithGate(g gate) *Toggler {
	return &Toggler{gate: g, cap: capability.NewCache()}
}

func (t *Toggler) supported() bool {
	st := t.cap.Probe(dirs.AutosleepFile(), t.gate.Exists)
	if st == capability.Unsupported {
		logger.L.Warn("autosleep not supported on this kernel")
	}
	return st == capability.Supported
}

// Enable writes "mem" to the autosleep file.
func (t *Toggler) Enable() {
	if !t.supported() {
		return
	}
	if err := t.gate.WriteLine(dirs.AutosleepFile(), "mem"); err == nil {
		logger.L.Debug("autosleep enabled")
	}
}

// Disable writes "off" to the autosleep file.
func (t *Toggler) Disable() {
	if !t.supported() {
		return
	}
	if err := t.gate.WriteLine(dirs.AutosleepFile(), "off"); err == nil {
		logger.L.Debug("autosleep disabled")
	}
}
