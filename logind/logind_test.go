// logind_test.go
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

package logind

import (
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

var _ = Suite(&logindSuite{})

type logindSuite struct{}

type fakeConn struct {
	addMatchErr error
	ch          chan<- *dbus.Signal
	closed      bool
}

func (c *fakeConn) AddMatchSignal(options ...dbus.MatchOption) error {
	return c.addMatchErr
}

func (c *fakeConn) Signal(ch chan<- *dbus.Signal) {
	c.ch = ch
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (s *logindSuite) TestNewReturnsNilWhenBusUnavailable(c *C) {
	prev := connectSystemBus
	connectSystemBus = func() (conn, error) { return nil, errors.New("no bus") }
	defer func() { connectSystemBus = prev }()

	c.Check(New(), IsNil)
}

func (s *logindSuite) TestNewReturnsNilWhenSubscribeFails(c *C) {
	fc := &fakeConn{addMatchErr: errors.New("no logind")}
	w := newWithConn(fc)
	c.Check(w, IsNil)
	c.Check(fc.closed, Equals, true)
}

func (s *logindSuite) TestIgnoresUnrelatedSignals(c *C) {
	fc := &fakeConn{}
	w := newWithConn(fc)
	c.Assert(w, NotNil)
	w.Start()

	fc.ch <- &dbus.Signal{Name: "org.freedesktop.DBus.NameOwnerChanged"}

	// No assertion beyond "doesn't panic/block"; give the loop a tick.
	time.Sleep(10 * time.Millisecond)
	w.Stop()
	c.Check(fc.closed, Equals, true)
}

func (s *logindSuite) TestHandlesPrepareForSleep(c *C) {
	fc := &fakeConn{}
	w := newWithConn(fc)
	c.Assert(w, NotNil)
	w.Start()

	fc.ch <- &dbus.Signal{Name: prepareForSleep, Body: []interface{}{true}}
	fc.ch <- &dbus.Signal{Name: prepareForSleep, Body: []interface{}{false}}

	time.Sleep(10 * time.Millisecond)
	w.Stop()
}
