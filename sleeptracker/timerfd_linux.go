// timerfd_linux.go
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

package sleeptracker

import (
	"math"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// realTimerfd is the production timerfd implementation: CLOCK_REALTIME,
// absolute deadline of math.MaxInt32 seconds, TFD_TIMER_CANCEL_ON_SET.
type realTimerfd struct {
	fd int
}

func (t *realTimerfd) arm() error {
	t.close()

	fd, err := unix.TimerfdCreate(unix.CLOCK_REALTIME, unix.TFD_CLOEXEC)
	if err != nil {
		return xerrors.Errorf("sleeptracker: timerfd_create: %w", err)
	}

	spec := unix.ItimerSpec{
		Value: unix.Timespec{Sec: math.MaxInt32, Nsec: 0},
	}
	if err := unix.TimerfdSettime(fd, unix.TFD_TIMER_ABSTIME|unix.TFD_TIMER_CANCEL_ON_SET, &spec, nil); err != nil {
		unix.Close(fd)
		return xerrors.Errorf("sleeptracker: timerfd_settime: %w", err)
	}

	t.fd = fd
	return nil
}

func (t *realTimerfd) wait() error {
	if t.fd < 0 {
		return xerrors.Errorf("sleeptracker: wait: %w", unix.EBADF)
	}
	buf := make([]byte, 8)
	_, err := unix.Read(t.fd, buf)
	if err == unix.ECANCELED {
		return ErrCanceled
	}
	if err != nil {
		return xerrors.Errorf("sleeptracker: timerfd read: %w", err)
	}
	return nil
}

func (t *realTimerfd) close() {
	if t.fd >= 0 {
		unix.Close(t.fd)
		t.fd = -1
	}
}
