// clock.go
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

// Package clock provides the two time sources stated's policy layer needs:
// a monotonic clock for in-process scheduling and the Linux boottime clock
// (which keeps advancing across suspend) for measuring sleep/resume gaps.
package clock

import "golang.org/x/sys/unix"

// MonotonicMS returns CLOCK_MONOTONIC in milliseconds since an arbitrary
// epoch. Never persisted; only used for elapsed-time arithmetic.
func MonotonicMS() uint64 {
	return clockMS(unix.CLOCK_MONOTONIC)
}

// BootMS returns CLOCK_BOOTTIME in milliseconds, a clock that advances
// during suspend.
func BootMS() uint64 {
	return clockMS(unix.CLOCK_BOOTTIME)
}

func clockMS(clockid int32) uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(clockid, &ts); err != nil {
		// CLOCK_MONOTONIC and CLOCK_BOOTTIME are always present on Linux;
		// a failure here means the kernel is broken beyond repair.
		panic("clock: clock_gettime: " + err.Error())
	}
	return uint64(ts.Sec)*1000 + uint64(ts.Nsec)/1_000_000
}
