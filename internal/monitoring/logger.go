package monitoring

import (
	"log"
	"time"
)

// Logf is the package-level diagnostic logger shared by every reconstruction
// stage. It defaults to log.Printf but may be replaced by SetLogger so tests
// or embedding applications can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Stage starts a wall-clock timer for a named processing stage and returns a
// func that logs the elapsed time when called. Typical use:
//
//	defer monitoring.Stage("track fit")()
func Stage(name string) func() {
	start := time.Now()
	return func() {
		Logf("[stage] %s took %s", name, time.Since(start).Round(time.Microsecond))
	}
}
