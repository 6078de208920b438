// display.go
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

// Package display watches the panel on/off sysfs marker file and reports
// boolean on/off transitions, per spec section 4.5. Two hardware
// generations are supported: the DRM "enabled" file and the legacy
// framebuffer "show_blank_event" file; the first one found at
// construction wins, DRM taking priority per spec section 9.
package display

import (
	"os"

	"golang.org/x/xerrors"

	"github.com/droidian/stated/dirs"
	"github.com/droidian/stated/logger"
)

// candidate pairs a display backend's marker file with the exact content
// string that means "on".
type candidate struct {
	path    string
	onValue string
}

func candidates() []candidate {
	return []candidate{
		{path: dirs.DRMDisplayFile(), onValue: "enabled\n"},
		{path: dirs.FBDisplayFile(), onValue: "panel_power_on = 1\n"},
	}
}

// watcher abstracts the filesystem change notification so tests can drive
// Source without real inotify plumbing.
type watcher interface {
	// watch starts watching path for content changes and returns a
	// channel that receives one value per change notification.
	watch(path string) (<-chan struct{}, error)
	close()
}

// Source observes a single boolean "on" property and emits every
// transition on Changes.
type Source struct {
	path        string
	onValue     string
	on          bool
	everEmitted bool
	w           watcher

	// Changes receives the new on/off value, but only when it differs
	// from the last reported value (spec section 4.5, point 3).
	Changes chan bool
}

// New selects the first existing candidate display file and returns a
// Source for it. If neither candidate exists, it returns nil — the
// coordinator simply never receives display events, per spec.
func New() *Source {
	for _, cand := range candidates() {
		if _, err := os.Stat(cand.path); err == nil {
			logger.L.WithField("path", cand.path).Debug("found display state file")
			return newWithWatcher(cand.path, cand.onValue, newInotifyWatcher())
		}
	}
	logger.L.Warn("no display state file found, display events disabled")
	return nil
}

func newWithWatcher(path, onValue string, w watcher) *Source {
	return &Source{
		path:    path,
		onValue: onValue,
		w:       w,
		Changes: make(chan bool, 1),
	}
}

// Start performs the initial synchronous read (emitting the starting
// value) and begins watching for further changes.
func (s *Source) Start() error {
	s.checkAndEmit()

	events, err := s.w.watch(s.path)
	if err != nil {
		return xerrors.Errorf("display: watch %s: %w", s.path, err)
	}
	go func() {
		for range events {
			s.checkAndEmit()
		}
	}()
	return nil
}

// Stop tears down the underlying watch.
func (s *Source) Stop() {
	s.w.close()
}

// checkAndEmit reads the marker file and emits a transition only if the
// derived on/off value differs from the last reported one.
func (s *Source) checkAndEmit() {
	content, err := os.ReadFile(s.path)
	if err != nil {
		logger.L.WithError(err).WithField("path", s.path).Warn("unable to read display state file")
		return
	}

	on := string(content) == s.onValue
	if on == s.on && s.everEmitted {
		return
	}
	s.on = on
	s.everEmitted = true

	logger.L.WithField("on", on).Debug("display state changed")
	select {
	case s.Changes <- on:
	default:
		// Coordinator hasn't drained the previous value yet; drop the
		// stale one and keep only the freshest, matching a property
		// notification rather than a queued event log.
		<-s.Changes
		s.Changes <- on
	}
}
