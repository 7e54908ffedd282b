// Package monitoring carries the diagnostic logger shared by the vidpred
// library packages.
package monitoring

import "log"

// Logf receives library notices such as sequences dropped for being too
// short or GIFs written to disk. Commands keep the log.Printf default; tests
// usually silence it from TestMain.
var Logf = log.Printf

// SetLogger routes library notices to f. A nil f discards them.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		f = func(string, ...any) {}
	}
	Logf = f
}
