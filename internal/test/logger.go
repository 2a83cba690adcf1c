// Package test contains test utilities.
package test

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bluenviron/mp4mux/internal/logger"
)

type nilLogger struct{}

func (nilLogger) Log(_ logger.Level, _ string, _ ...interface{}) {
}

// NilLogger is a logger to /dev/null
var NilLogger logger.Writer = &nilLogger{}

// LogRecorder is a logger that keeps formatted lines in memory.
type LogRecorder struct {
	mutex sync.Mutex
	lines []string
}

// Log implements logger.Writer.
func (l *LogRecorder) Log(_ logger.Level, format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

// Contains checks whether a line containing s was logged.
func (l *LogRecorder) Contains(s string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}
