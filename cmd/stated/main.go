// main.go
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

// Command stated is a power-state coordinator daemon: it watches the
// display, the power key and suspend/resume transitions, and holds
// kernel wakelocks just long enough for user space to react before the
// kernel is allowed to suspend again.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/jessevdk/go-flags"

	"github.com/droidian/stated/autosleep"
	"github.com/droidian/stated/coordinator"
	"github.com/droidian/stated/display"
	"github.com/droidian/stated/input"
	"github.com/droidian/stated/logger"
	"github.com/droidian/stated/logind"
	"github.com/droidian/stated/sleeptracker"
	"github.com/droidian/stated/version"
	"github.com/droidian/stated/wakelock"
)

type options struct {
	Version bool `long:"version" description:"Print the version and exit"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	args, err := parser.Parse()
	if err != nil {
		if ferr, ok := err.(*flags.Error); ok && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(args) > 0 {
		fmt.Fprintf(os.Stderr, "stated: unexpected arguments: %v\n", args)
		return 1
	}
	if opts.Version {
		fmt.Println(version.Version)
		return 0
	}

	wl := wakelock.New()
	as := autosleep.New()
	as.Enable()

	disp := display.New()
	var displayChanges chan bool
	if disp != nil {
		if err := disp.Start(); err != nil {
			logger.L.WithError(err).Warn("unable to start display watch")
		} else {
			defer disp.Stop()
			displayChanges = disp.Changes
		}
	}

	keys := input.New(input.KeyPower)
	var keyPresses chan uint16
	if keys != nil {
		keys.Start()
		defer keys.Stop()
		keyPresses = keys.Pressed
	}

	st := sleeptracker.New(wl)
	if err := st.Start(); err != nil {
		logger.L.WithError(err).Error("unable to start sleep tracker")
	} else {
		defer st.Stop()
	}

	li := logind.New()
	if li != nil {
		li.Start()
		defer li.Stop()
	}

	co := coordinator.New(wl, as, displayChanges, keyPresses, st.Resume)
	co.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.L.WithError(err).Debug("sd_notify READY failed")
	} else if !ok {
		logger.L.Debug("not running under systemd notify supervision")
	}

	stopWatchdog := startWatchdogPinger()
	defer stopWatchdog()

	<-sigCh

	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		logger.L.WithError(err).Debug("sd_notify STOPPING failed")
	}

	co.Stop()
	return 0
}

// startWatchdogPinger pings systemd's watchdog at half the interval it
// requested via WATCHDOG_USEC, if any. Returns a no-op stop func when no
// watchdog is configured.
func startWatchdogPinger() func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return func() {}
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
					logger.L.WithError(err).Debug("sd_notify WATCHDOG=1 failed")
				}
			}
		}
	}()
	return func() { close(stop) }
}
