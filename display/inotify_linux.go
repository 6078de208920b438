// inotify_linux.go
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

package display

import (
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/droidian/stated/logger"
)

// inotifyWatcher is the production watcher: one inotify instance per
// Source, watching a single file for IN_MODIFY and IN_CLOSE_WRITE.
type inotifyWatcher struct {
	fd int
	wd int
}

func newInotifyWatcher() *inotifyWatcher {
	return &inotifyWatcher{fd: -1, wd: -1}
}

func (w *inotifyWatcher) watch(path string) (<-chan struct{}, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, xerrors.Errorf("display: inotify_init1: %w", err)
	}
	wd, err := unix.InotifyAddWatch(fd, path, unix.IN_MODIFY|unix.IN_CLOSE_WRITE)
	if err != nil {
		unix.Close(fd)
		return nil, xerrors.Errorf("display: inotify_add_watch %s: %w", path, err)
	}
	w.fd = fd
	w.wd = wd

	events := make(chan struct{}, 1)
	go w.loop(fd, events)
	return events, nil
}

func (w *inotifyWatcher) loop(fd int, events chan struct{}) {
	defer close(events)
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, buf)
		if err != nil || n <= 0 {
			return
		}
		// One or more inotify_event structs arrived; the exact content
		// doesn't matter, only that something changed — the caller
		// re-reads the watched file itself.
		select {
		case events <- struct{}{}:
		default:
		}
	}
}

func (w *inotifyWatcher) close() {
	if w.fd >= 0 {
		if w.wd >= 0 {
			unix.InotifyRmWatch(w.fd, uint32(w.wd))
		}
		if err := unix.Close(w.fd); err != nil {
			logger.L.WithError(err).Debug("display: error closing inotify fd")
		}
		w.fd, w.wd = -1, -1
	}
}
