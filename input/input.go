// input.go
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

// Package input finds one evdev device that exposes a given key code and
// reports its press events, per spec section 4.6. The device scan and its
// "exclude keyboard-named devices" exclusion are preserved verbatim from
// the C original's input.c, per spec section 9's design notes; only the
// glob test itself is reworked onto doublestar.
package input

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/droidian/stated/dirs"
	"github.com/droidian/stated/logger"
)

// KeyPower is the linux/input-event-codes.h KEY_POWER code.
const KeyPower = 116

// EV_KEY is the evdev event type for keyboard/button events.
const evKey = 0x01

// probeDevice is overridden in tests to avoid touching real device nodes.
// The production implementation lives in input_linux.go.
var probeDevice func(path string, key uint16) (hasKey bool, name string, err error) = probeDeviceIoctl

// device abstracts the opened evdev node so tests can substitute a fake
// without a real /dev/input device.
type device interface {
	// readEvents blocks until at least one event is available, then
	// drains until EAGAIN, calling emit(code) for every key-down
	// (value == 1) event of any key code; Source filters for the
	// watched key.
	readEvents(emit func(code uint16))
	close()
}

// Source watches a single key across whatever evdev device exposes it
// and reports presses on Pressed.
type Source struct {
	key uint16
	dev device

	// Pressed receives the watched key code on every press (value == 1).
	// The send doesn't block: a press arriving while the previous one is
	// still unread is dropped.
	Pressed chan uint16
}

// New scans /dev/input for a device exposing key and returns a Source for
// it. If no suitable device exists, it returns nil: the coordinator never
// receives powerkey events, matching spec section 4.6/7.
func New(key uint16) *Source {
	path, err := findDeviceForKey(dirs.InputDeviceDir(), key)
	if err != nil {
		logger.L.WithError(err).Warn("unable to scan /dev/input")
		return nil
	}
	if path == "" {
		logger.L.WithField("key", key).Warn("no suitable input device found for key")
		return nil
	}

	dev, err := openEvdevDevice(path)
	if err != nil {
		logger.L.WithError(err).WithField("path", path).Warn("unable to open input device")
		return nil
	}

	logger.L.WithField("path", path).WithField("key", key).Debug("found key on device")
	return &Source{
		key:     key,
		dev:     dev,
		Pressed: make(chan uint16, 1),
	}
}

// Start begins draining input events in the background.
func (s *Source) Start() {
	go func() {
		for {
			s.dev.readEvents(func(code uint16) {
				if code != s.key {
					return
				}
				select {
				case s.Pressed <- code:
				default:
				}
			})
		}
	}()
}

// Stop closes the underlying device.
func (s *Source) Stop() {
	s.dev.close()
}

// findDeviceForKey enumerates dir for /dev/input/event* nodes (in stable
// sorted order) and returns the path of the first one whose capability
// bitmap includes key and whose device name (case-folded) does not
// contain "keyboard". Returns "" with a nil error if none qualify.
func findDeviceForKey(dir string, key uint16) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		ok, err := doublestar.Match("event*", name)
		if err != nil || !ok {
			continue
		}
		path := filepath.Join(dir, name)

		hasKey, devName, err := probeDevice(path, key)
		if err != nil {
			logger.L.WithError(err).WithField("path", path).Debug("unable to probe input device")
			continue
		}
		if !hasKey {
			logger.L.WithField("path", path).Debug("device doesn't support the specified key")
			continue
		}
		if strings.Contains(strings.ToLower(devName), "keyboard") {
			// FIXME: shouldn't exclude keyboards wholesale; preserved
			// from the original pragmatic workaround for devices that
			// map the power key on both a gpio-keys node and an
			// integrated keyboard matrix.
			continue
		}
		return path, nil
	}
	return "", nil
}
