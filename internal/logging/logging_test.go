package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestComponentPrefersContextLogger(t *testing.T) {
	var ctxBuf, baseBuf bytes.Buffer
	ctxLogger := slog.New(slog.NewTextHandler(&ctxBuf, nil))
	baseLogger := slog.New(slog.NewTextHandler(&baseBuf, nil))

	ctx := ContextWithLogger(context.Background(), ctxLogger)
	Component(ctx, baseLogger, "applier", "apply", "target", 3).Info("hello")

	if baseBuf.Len() != 0 {
		t.Fatalf("expected base logger to stay unused, got %q", baseBuf.String())
	}
	out := ctxBuf.String()
	for _, want := range []string{"component=applier", "operation=apply", "target=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestComponentFallsBackToBase(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	Component(context.Background(), base, "cursor", "").Info("hello")

	if !strings.Contains(buf.String(), "component=cursor") {
		t.Fatalf("unexpected output %q", buf.String())
	}
	if strings.Contains(buf.String(), "operation=") {
		t.Fatalf("empty operation should be omitted: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil {
			t.Fatalf("ParseLevel(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, slog.LevelInfo, "json")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("ready")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}

	if _, err := New(&buf, slog.LevelInfo, "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
