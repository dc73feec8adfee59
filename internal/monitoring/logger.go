// Package monitoring holds the process-wide diagnostic log hook used by the
// journal, the session controller and the CLI.
package monitoring

import (
	"log"
	"strings"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger; the CLI points it at zap.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil sets a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Writer adapts Logf to an io.Writer, one call per Write with the trailing
// newline removed. Use it to feed package log streams into Logf.
type Writer struct{}

func (Writer) Write(p []byte) (int, error) {
	Logf("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
