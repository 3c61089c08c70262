// Package logger defines the logging surface shared by the transfer engine,
// the queue manager and the command line front-end.
package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Logger is the printf-style logging interface used across raad.
// Implementations must be safe for concurrent use.
type Logger interface {
	// Debug logs diagnostic detail such as request ranges and throttle waits.
	Debug(format string, args ...interface{})

	// Info logs an informational message (e.g., "Task started").
	Info(format string, args ...interface{})

	// Warning logs a recoverable problem (e.g., "Resume rejected; restarting").
	Warning(format string, args ...interface{})

	// Error logs a failure that ends an operation.
	Error(format string, args ...interface{})

	// Named returns a child logger whose messages carry the given component name.
	Named(name string) Logger

	// Close flushes buffered output. Safe to call multiple times.
	Close() error
}

// StandardLogger writes to a stdlib *log.Logger with level prefixes.
type StandardLogger struct {
	logger *log.Logger
	prefix string
	debug  bool
}

// NewStandardLogger wraps l. Debug messages are dropped unless debug is set.
func NewStandardLogger(l *log.Logger, debug bool) *StandardLogger {
	return &StandardLogger{logger: l, debug: debug}
}

func (s *StandardLogger) printf(level, format string, args ...interface{}) {
	s.logger.Printf(level+s.prefix+format, args...)
}

func (s *StandardLogger) Debug(format string, args ...interface{}) {
	if s.debug {
		s.printf("[DEBUG] ", format, args...)
	}
}

func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.printf("[INFO] ", format, args...)
}

func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.printf("[WARNING] ", format, args...)
}

func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.printf("[ERROR] ", format, args...)
}

// Named prefixes every message with "name: ". Nested names are joined by dots.
func (s *StandardLogger) Named(name string) Logger {
	prefix := name + ": "
	if s.prefix != "" {
		prefix = strings.TrimSuffix(s.prefix, ": ") + "." + prefix
	}
	return &StandardLogger{logger: s.logger, prefix: prefix, debug: s.debug}
}

// Close is a no-op.
func (s *StandardLogger) Close() error {
	return nil
}

// NopLogger discards all messages.
type NopLogger struct{}

// NewNopLogger creates a logger that discards all messages.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Debug(format string, args ...interface{})   {}
func (n *NopLogger) Info(format string, args ...interface{})    {}
func (n *NopLogger) Warning(format string, args ...interface{}) {}
func (n *NopLogger) Error(format string, args ...interface{})   {}
func (n *NopLogger) Named(string) Logger                        { return n }
func (n *NopLogger) Close() error                               { return nil }

var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = (*NopLogger)(nil)
)

// MockLogger records every formatted message for assertions in tests.
// Children created by Named share the parent's records.
type MockLogger struct {
	rec  *records
	name string
}

type records struct {
	mu       sync.Mutex
	debugs   []string
	infos    []string
	warnings []string
	errors   []string
	closed   bool
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{rec: &records{}}
}

func (m *MockLogger) record(dst *[]string, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if m.name != "" {
		msg = m.name + ": " + msg
	}
	m.rec.mu.Lock()
	*dst = append(*dst, msg)
	m.rec.mu.Unlock()
}

func (m *MockLogger) Debug(format string, args ...interface{}) {
	m.record(&m.rec.debugs, format, args...)
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.record(&m.rec.infos, format, args...)
}

func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.record(&m.rec.warnings, format, args...)
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.record(&m.rec.errors, format, args...)
}

func (m *MockLogger) Named(name string) Logger {
	return &MockLogger{rec: m.rec, name: name}
}

func (m *MockLogger) Close() error {
	m.rec.mu.Lock()
	m.rec.closed = true
	m.rec.mu.Unlock()
	return nil
}

func (m *MockLogger) snapshot(src *[]string) []string {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	return append([]string(nil), *src...)
}

// Infos returns the recorded info messages.
func (m *MockLogger) Infos() []string { return m.snapshot(&m.rec.infos) }

// Warnings returns the recorded warning messages.
func (m *MockLogger) Warnings() []string { return m.snapshot(&m.rec.warnings) }

// Errors returns the recorded error messages.
func (m *MockLogger) Errors() []string { return m.snapshot(&m.rec.errors) }

// Closed reports whether Close was called.
func (m *MockLogger) Closed() bool {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	return m.rec.closed
}

var _ Logger = (*MockLogger)(nil)
