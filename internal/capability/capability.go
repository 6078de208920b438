// capability.go
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

// Package capability implements the tri-state "is this sysfs facility
// present" cache described in spec section 3: probed lazily via access(2)
// on first use, then cached for the rest of the process's life.
package capability

import "sync"

// State is the tri-state result of a capability probe.
type State int

const (
	// Unknown means the facility has not been probed yet.
	Unknown State = iota
	// Supported means the probe found the facility present.
	Supported
	// Unsupported means the probe found the facility absent.
	Unsupported
)

// Prober is implemented by whatever can test for presence of a facility
// (normally sysfsgate.Gate.Exists).
type Prober func(path string) bool

// Cache probes and remembers capability state per sysfs path.
type Cache struct {
	mu    sync.Mutex
	state map[string]State
}

// NewCache returns an empty capability cache.
func NewCache() *Cache {
	return &Cache{state: make(map[string]State)}
}

// Probe returns the cached state for path, probing with exists on first
// use. Safe for concurrent use.
func (c *Cache) Probe(path string, exists Prober) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.state[path]; ok {
		return st
	}

	st := Unsupported
	if exists(path) {
		st = Supported
	}
	c.state[path] = st
	return st
}
