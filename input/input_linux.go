// input_linux.go
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

package input

import (
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/droidian/stated/logger"
)

// evdevInputEvent mirrors struct input_event from linux/input.h (64-bit
// time fields, matching modern kernels).
type evdevInputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const keyBitsLen = (0x300 + 7) / 8

// ioctl issues a generic ioctl against fd.
func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// probeDeviceIoctl opens path read-only, reads its name and EV_KEY
// capability bitmap, and reports whether it supports key.
func probeDeviceIoctl(path string, key uint16) (hasKey bool, name string, err error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return false, "", xerrors.Errorf("input: open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var nameBuf [256]byte
	if err := ioctl(fd, eviocgnameReq(len(nameBuf)), unsafe.Pointer(&nameBuf[0])); err != nil {
		return false, "", xerrors.Errorf("input: EVIOCGNAME %s: %w", path, err)
	}
	name = strings.TrimRight(string(nameBuf[:]), "\x00")

	var bits [keyBitsLen]byte
	if err := ioctl(fd, eviocgbitReq(evKey, len(bits)), unsafe.Pointer(&bits[0])); err != nil {
		return false, "", xerrors.Errorf("input: EVIOCGBIT %s: %w", path, err)
	}

	byteIdx := key / 8
	bitIdx := key % 8
	if int(byteIdx) >= len(bits) {
		return false, name, nil
	}
	hasKey = bits[byteIdx]&(1<<bitIdx) != 0
	return hasKey, name, nil
}

// eviocgnameReq builds the EVIOCGNAME(len) ioctl request number.
func eviocgnameReq(size int) uintptr {
	const ioctlRead = 2
	return ioctlNumber(ioctlRead, 'E', 0x06, size)
}

// eviocgbitReq builds the EVIOCGBIT(ev, len) ioctl request number.
func eviocgbitReq(ev int, size int) uintptr {
	const ioctlRead = 2
	return ioctlNumber(ioctlRead, 'E', 0x20+ev, size)
}

// ioctlNumber replicates the _IOC macro from asm-generic/ioctl.h.
func ioctlNumber(dir int, typ byte, nr int, size int) uintptr {
	const (
		nrBits   = 8
		typeBits = 8
		sizeBits = 14
		dirBits  = 2

		nrShift   = 0
		typeShift = nrShift + nrBits
		sizeShift = typeShift + typeBits
		dirShift  = sizeShift + sizeBits
	)
	return uintptr(dir)<<dirShift | uintptr(typ)<<typeShift | uintptr(nr)<<nrShift | uintptr(size)<<sizeShift
}

// evdevDevice is the production device: a non-blocking fd drained until
// EAGAIN on every wakeup.
type evdevDevice struct {
	fd int
}

func openEvdevDevice(path string) (*evdevDevice, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, xerrors.Errorf("input: open %s: %w", path, err)
	}
	return &evdevDevice{fd: fd}, nil
}

// readEvents blocks (via a plain blocking poll) until data is available,
// then drains every queued struct input_event until EAGAIN, invoking emit
// for each key-down event.
func (d *evdevDevice) readEvents(emit func(code uint16)) {
	pfd := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	if _, err := unix.Poll(pfd, -1); err != nil {
		if err == unix.EINTR {
			return
		}
		logger.L.WithError(err).Debug("input: poll error")
		return
	}

	const evSize = int(unsafe.Sizeof(evdevInputEvent{}))
	buf := make([]byte, evSize*64)
	for {
		n, err := unix.Read(d.fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			logger.L.WithError(err).Debug("input: read error")
			return
		}
		for off := 0; off+evSize <= n; off += evSize {
			ev := (*evdevInputEvent)(unsafe.Pointer(&buf[off]))
			if ev.Type == evKey && ev.Value == 1 {
				emit(ev.Code)
			}
		}
	}
}

func (d *evdevDevice) close() {
	if d.fd >= 0 {
		unix.Close(d.fd)
		d.fd = -1
	}
}
