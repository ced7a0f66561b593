package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFormatChatLine(t *testing.T) {
	t.Parallel()

	line := []byte(`{"level":"error","time":"x","message":"delivery failed","op":"push","comp":"delivery"}` + "\n")
	got := formatChatLine(line)
	want := "[ERROR] delivery failed\n- comp=delivery\n- op=push"
	if got != want {
		t.Fatalf("formatChatLine=%q want %q", got, want)
	}
}

func TestFormatChatLineRaw(t *testing.T) {
	t.Parallel()

	if got := formatChatLine([]byte("  not json \n")); got != "not json" {
		t.Fatalf("raw line=%q", got)
	}
	long := strings.Repeat("a", chatTextLimit+50)
	if got := formatChatLine([]byte(long)); len(got) != chatTextLimit || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncation to %d, got %d", chatTextLimit, len(got))
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in, zerolog.InfoLevel); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := FromZerolog(zerolog.New(&buf)).With(Component("session"))
	l.Info("flow started", String("kind", "song"), Int64("user", 7))

	out := buf.String()
	for _, want := range []string{`"comp":"session"`, `"kind":"song"`, `"user":7`, `"message":"flow started"`, `"caller":"logx_test.go:`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %s missing %s", out, want)
		}
	}
}

func TestZeroLoggerIsSilent(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Error("nothing happens")
	if l.Enabled(LevelError) {
		t.Fatalf("nop root should not enable error")
	}
}
