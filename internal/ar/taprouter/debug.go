package taprouter

import (
	"io"
	"log"
)

var (
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the logging streams for the taprouter package.
// The router has no ops-level events; ops is accepted for symmetry with the
// other pipeline packages and ignored. Pass nil to disable a stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	_ = ops
	diagLogger = newLogger("[taprouter] ", diag)
	traceLogger = newLogger("[taprouter] ", trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// diagf logs to the diag stream (anchor creation and eviction).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// tracef logs to the trace stream (per-tap hit-test detail).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
