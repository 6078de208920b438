// sysfsgate.go
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

// Package sysfsgate is the only part of stated that writes sysfs files
// (the display source reads its marker file directly). It performs atomic
// single writes with no retry and no locking
// beyond what the kernel's own sysfs interface provides, per spec section
// 4.1, and throttles writes with a token bucket so a sleep/resume storm
// can't turn into a write storm against /sys/power/wake_lock.
package sysfsgate

import (
	"os"
	"time"

	"github.com/juju/ratelimit"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/droidian/stated/logger"
)

// Gate performs line writes and existence checks against sysfs files.
type Gate struct {
	bucket *ratelimit.Bucket
}

// New returns a Gate. The rate limit is generous — far above any
// legitimate acquire/release rate — and exists purely as a backstop
// against pathological thrashing, not as a normal-path throttle.
func New() *Gate {
	return &Gate{
		bucket: ratelimit.NewBucket(writeInterval, writeBurst),
	}
}

const (
	writeBurst    = 64
	writeInterval = time.Second / 200 // 200 writes/sec sustained
)

// WriteLine writes content to path exactly, with no appended newline, and
// closes the file. A throttled or failed write is logged at warning level
// and returned as an error; callers treat it as a no-op per spec section
// 4.1/4.3 and never retry.
func (g *Gate) WriteLine(path, content string) error {
	if g.bucket.TakeAvailable(1) == 0 {
		logger.L.WithField("path", path).Warn("sysfs write throttled")
		return xerrors.Errorf("sysfsgate: write %s: throttled", path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		logger.L.WithError(err).WithField("path", path).Warn("sysfs write failed")
		return xerrors.Errorf("sysfsgate: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		logger.L.WithError(err).WithField("path", path).Warn("sysfs write failed")
		return xerrors.Errorf("sysfsgate: write %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path is accessible, via access(F_OK).
func (g *Gate) Exists(path string) bool {
	return unix.Access(path, unix.F_OK) == nil
}
