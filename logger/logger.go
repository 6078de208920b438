// logger.go
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

// Package logger gives stated a single leveled logging entry point, the
// same shape containerd's cmd/ctr wires around logrus: a package-level
// entry (L) plus a SetLevel helper, rather than threading a logger
// instance through every constructor.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// L is the logger every package in stated logs through.
var L = logrus.NewEntry(logrus.StandardLogger())

func init() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if os.Getenv("STATED_DEBUG") != "" {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// SetLevel parses level and applies it to the standard logger. Nothing in
// stated calls it; the startup level comes from the STATED_DEBUG check in
// init.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return xerrors.Errorf("logger: parse level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	return nil
}
