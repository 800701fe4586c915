// Package obs provides the ambient logging and metrics wrapping used
// by lsmkv's network collaborators (kvserver and replication); the
// engine in pkg/lsm does not log.
package obs

import (
	"log"
	"os"
)

// Logger wraps a *log.Logger with a fixed component prefix, so each
// line is attributable to the component that wrote it.
type Logger struct {
	*log.Logger
}

// New returns a Logger that prefixes every line with "[component] ".
func New(component string) *Logger {
	return &Logger{Logger: log.New(os.Stderr, "["+component+"] ", log.LstdFlags|log.Lmicroseconds)}
}

// Errorf logs at error severity; lsmkv has no leveled logging beyond
// this convention (grep for "[component] " to isolate a subsystem).
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Printf("ERROR: "+format, args...)
}

// Warnf logs at warning severity.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Printf("WARN: "+format, args...)
}
