// Package monitoring holds the process-wide diagnostic logger. Packages log
// through Logf (or a Component prefix) so tests and embedders can redirect or
// mute output in one place.
package monitoring

import (
	"log"
	"sync/atomic"
)

type logFunc = func(format string, v ...interface{})

var current atomic.Pointer[logFunc]

func init() {
	f := logFunc(log.Printf)
	current.Store(&f)
}

// Logf writes through the installed logger. It defaults to log.Printf.
func Logf(format string, v ...interface{}) {
	(*current.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
// It is safe to call while other goroutines are logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	current.Store(&f)
}

// Component prefixes every message with "[name] ", matching the bracketed
// tags used across the service logs (for example "[controller]").
type Component string

// Logf logs a message tagged with the component name.
func (c Component) Logf(format string, v ...interface{}) {
	Logf("["+string(c)+"] "+format, v...)
}
