package logsvc

import (
	"strings"
	"sync"

	"github.com/trezcool/appgen/core"
)

// Entry is a message recorded by a MemoryLogger.
type Entry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// MemoryLogger records messages instead of reporting them.
type MemoryLogger struct {
	mu      sync.Mutex
	entries []Entry
}

var _ core.Logger = (*MemoryLogger)(nil)

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) record(level, msg string, args []interface{}) {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, Args: args})
	l.mu.Unlock()
}

func (l *MemoryLogger) Debug(msg string, args ...interface{}) { l.record("DEBUG", msg, args) }
func (l *MemoryLogger) Info(msg string, args ...interface{})  { l.record("INFO", msg, args) }
func (l *MemoryLogger) Warn(msg string, args ...interface{})  { l.record("WARN", msg, args) }
func (l *MemoryLogger) Error(msg string, args ...interface{}) { l.record("ERROR", msg, args) }
func (l *MemoryLogger) Fatal(msg string, args ...interface{}) { l.record("FATAL", msg, args) }

// Entries returns a copy of the recorded messages of `level`, or all of them when level is empty.
func (l *MemoryLogger) Entries(level string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Contains reports whether a message of `level` contains `substr`.
func (l *MemoryLogger) Contains(level, substr string) bool {
	for _, e := range l.Entries(level) {
		if strings.Contains(e.Msg, substr) {
			return true
		}
	}
	return false
}
