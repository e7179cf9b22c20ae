package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, Format: "json"})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithCheckoutSessionID(ctx, "cs_test_1")

	log.Error(ctx, "boom", errors.New("boom"))

	for _, field := range []string{`"request_id":"req-123"`, `"checkout_session_id":"cs_test_1"`, `"stack"`, `"error":"boom"`} {
		if !bytes.Contains(buf.Bytes(), []byte(field)) {
			t.Fatalf("expected %s in entry=%s", field, buf.String())
		}
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true, Format: "json"})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected stack when warn stack enabled; entry=%s", buf.String())
	}

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf, Format: "json"})
	quiet.Warn(context.Background(), "warny")
	if bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("did not expect stack when warn stack disabled; entry=%s", buf.String())
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: buf, Format: "json"})
	log.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug entry to be filtered, got %s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" WARN "); lvl != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", lvl)
	}
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	ctx := log.WithField(context.TODO(), "k", "v")
	log.Info(ctx, "nothing")
	log.Error(ctx, "nothing", errors.New("x"))
}
