package logger

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStandardLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		log    func(Logger)
		prefix string
		want   string
	}{
		{"info", func(l Logger) { l.Info("started %d", 1) }, "[INFO]", "started 1"},
		{"warning", func(l Logger) { l.Warning("retry %s", "now") }, "[WARNING]", "retry now"},
		{"error", func(l Logger) { l.Error("failed: %v", "eof") }, "[ERROR]", "failed: eof"},
		{"debug", func(l Logger) { l.Debug("range %d-%d", 0, 9) }, "[DEBUG]", "range 0-9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.log(NewStandardLogger(log.New(buf, "", 0), true))
			out := buf.String()
			if !strings.Contains(out, tt.prefix) {
				t.Errorf("expected %s prefix, got: %s", tt.prefix, out)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("expected %q, got: %s", tt.want, out)
			}
		})
	}
}

func TestStandardLogger_DebugDisabled(t *testing.T) {
	buf := &bytes.Buffer{}
	NewStandardLogger(log.New(buf, "", 0), false).Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got: %s", buf.String())
	}
}

func TestStandardLogger_Named(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewStandardLogger(log.New(buf, "", 0), false).Named("manager").Named("task")
	l.Info("hello")
	if got := buf.String(); !strings.Contains(got, "[INFO] manager.task: hello") {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestMockLogger_RecordsCalls(t *testing.T) {
	m := NewMockLogger()
	m.Info("a %d", 1)
	m.Named("task").Warning("b")
	m.Error("c")
	if got := m.Infos(); len(got) != 1 || got[0] != "a 1" {
		t.Fatalf("unexpected infos: %v", got)
	}
	if got := m.Warnings(); len(got) != 1 || got[0] != "task: b" {
		t.Fatalf("unexpected warnings: %v", got)
	}
	if got := m.Errors(); len(got) != 1 {
		t.Fatalf("unexpected errors: %v", got)
	}
	if err := m.Close(); err != nil || !m.Closed() {
		t.Fatalf("expected close to be recorded")
	}
}

func TestZapLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	z := NewZapLoggerFrom(zap.New(core))
	z.Debug("d %d", 1)
	z.Info("i")
	z.Warning("w")
	z.Named("task").Error("e %s", "x")

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[0].Message != "d 1" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[2].Level != zapcore.WarnLevel {
		t.Errorf("expected warn level, got %v", entries[2].Level)
	}
	if entries[3].LoggerName != "task" || entries[3].Message != "e x" {
		t.Errorf("unexpected named entry: %+v", entries[3])
	}
}

func TestNewZapLogger_InvalidLevel(t *testing.T) {
	if _, err := NewZapLogger(ZapConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

type failingLogger struct {
	NopLogger
	err error
}

func (f *failingLogger) Close() error { return f.err }

func TestMultiLogger(t *testing.T) {
	a, b := NewMockLogger(), NewMockLogger()
	m := NewMultiLogger(a, b)
	m.Info("x")
	m.Named("n").Warning("y")
	for i, l := range []*MockLogger{a, b} {
		if len(l.Infos()) != 1 || len(l.Warnings()) != 1 {
			t.Errorf("logger %d: expected one info and one warning", i)
		}
		if l.Warnings()[0] != "n: y" {
			t.Errorf("logger %d: unexpected warning %q", i, l.Warnings()[0])
		}
	}

	first := errors.New("first")
	m = NewMultiLogger(&failingLogger{err: first}, a, &failingLogger{err: errors.New("second")})
	if err := m.Close(); err != first {
		t.Fatalf("expected first error, got %v", err)
	}
	if !a.Closed() {
		t.Fatal("expected all loggers to be closed")
	}
}
