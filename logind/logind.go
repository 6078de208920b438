// logind.go
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

// Package logind best-effort-watches logind's PrepareForSleep signal
// purely to corroborate SleepTracker's own resume detection in logs; it
// never drives coordinator policy (spec section 9's supplemented
// feature). Modeled on the godbus/dbus signal-subscription idiom used by
// canonical-snapd's desktop/notification backend.
package logind

import (
	"github.com/godbus/dbus/v5"
	"golang.org/x/xerrors"

	"github.com/droidian/stated/logger"
)

const (
	logindDest      = "org.freedesktop.login1"
	logindPath      = "/org/freedesktop/login1"
	logindInterface = "org.freedesktop.login1.Manager"
	prepareForSleep = logindInterface + ".PrepareForSleep"
)

// conn abstracts the parts of *dbus.Conn the watcher needs, so tests can
// substitute a fake bus.
type conn interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	Close() error
}

// Watcher subscribes to PrepareForSleep and logs each transition at
// debug level. It never fails loudly: any setup error is logged once and
// the watcher simply stays dormant, matching the "best-effort corroborating
// signal" status this component has relative to SleepTracker.
type Watcher struct {
	conn conn
	ch   chan *dbus.Signal
	stop chan struct{}
}

// connectSystemBus is overridden in tests.
var connectSystemBus = func() (conn, error) {
	c, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, xerrors.Errorf("logind: connect system bus: %w", err)
	}
	return c, nil
}

// New connects to the system bus and subscribes to PrepareForSleep. It
// returns nil if the bus or logind is unavailable, after logging once.
func New() *Watcher {
	c, err := connectSystemBus()
	if err != nil {
		logger.L.WithError(err).Debug("logind: system bus unavailable, resume corroboration disabled")
		return nil
	}
	return newWithConn(c)
}

func newWithConn(c conn) *Watcher {
	if err := c.AddMatchSignal(
		dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember("PrepareForSleep"),
		dbus.WithMatchObjectPath(dbus.ObjectPath(logindPath)),
	); err != nil {
		logger.L.WithError(err).Debug("logind: unable to subscribe to PrepareForSleep")
		c.Close()
		return nil
	}

	w := &Watcher{
		conn: c,
		ch:   make(chan *dbus.Signal, 8),
		stop: make(chan struct{}),
	}
	c.Signal(w.ch)
	return w
}

// Start begins logging PrepareForSleep transitions in the background.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop tears down the bus subscription.
func (w *Watcher) Stop() {
	close(w.stop)
	w.conn.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stop:
			return
		case sig, ok := <-w.ch:
			if !ok {
				return
			}
			w.handle(sig)
		}
	}
}

func (w *Watcher) handle(sig *dbus.Signal) {
	if sig.Name != prepareForSleep || len(sig.Body) != 1 {
		return
	}
	entering, ok := sig.Body[0].(bool)
	if !ok {
		return
	}
	if entering {
		logger.L.Debug("logind: PrepareForSleep(true) — kernel is about to suspend")
	} else {
		logger.L.Debug("logind: PrepareForSleep(false) — corroborates a resume")
	}
}
