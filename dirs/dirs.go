// dirs.go
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

// Package dirs centralizes every filesystem and sysfs path stated touches,
// rooted under GlobalRootDir so tests can redirect all I/O into a sandbox
// the way canonical-snapd's dirs package does.
package dirs

import "path/filepath"

// GlobalRootDir is prepended to every path the daemon touches. Production
// code never changes it from "/"; tests call SetRootDir to sandbox I/O.
var GlobalRootDir = "/"

// SetRootDir overrides GlobalRootDir. An empty root is treated as "/".
func SetRootDir(root string) {
	if root == "" {
		root = "/"
	}
	GlobalRootDir = root
}

func path(elem ...string) string {
	return filepath.Join(append([]string{GlobalRootDir}, elem...)...)
}

// WakeLockFile is the sysfs file that acquires a named wakelock when
// written to.
func WakeLockFile() string { return path("/sys/power/wake_lock") }

// WakeUnlockFile is the sysfs file that releases a named wakelock when
// written to.
func WakeUnlockFile() string { return path("/sys/power/wake_unlock") }

// AutosleepFile toggles kernel autosleep ("mem" to enable, "off" to
// disable).
func AutosleepFile() string { return path("/sys/power/autosleep") }

// DRMDisplayFile is the DRM panel-enabled marker file.
func DRMDisplayFile() string { return path("/sys/class/drm/card0-DSI-1/enabled") }

// FBDisplayFile is the legacy framebuffer blank-event marker file.
func FBDisplayFile() string { return path("/sys/class/graphics/fb0/show_blank_event") }

// InputDeviceDir is the directory evdev device nodes are enumerated from.
func InputDeviceDir() string { return path("/dev/input") }
