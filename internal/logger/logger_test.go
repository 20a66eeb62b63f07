package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatEntry(t *testing.T) {
	line, err := formatEntry(zerolog.InfoLevel, []byte(`{"level":"info","time":"2024-05-01 10:00:00.000","caller":"batch:42","message":"snapshot uploaded","preset":"2","component":"batch"}`))
	if err != nil {
		t.Fatalf("formatEntry: %v", err)
	}
	for _, want := range []string{"2024-05-01 10:00:00.000", "info", "batch:42", "snapshot uploaded", "component=batch preset=2"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if _, err := formatEntry(zerolog.InfoLevel, []byte("not json")); err == nil {
		t.Error("expected error for non-JSON entry")
	}
}

func TestStripCallerPath(t *testing.T) {
	if got := stripCallerPath("/src/cam-snap/internal/onvif/client.go"); got != "client" {
		t.Errorf("got %q", got)
	}
	if got := stripCallerPath("main.go"); got != "main" {
		t.Errorf("got %q", got)
	}
}

func TestDeleteOldLogFiles(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"a.log", "b.log", "c.log", "keep.txt"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		mt := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(p, mt, mt); err != nil {
			t.Fatal(err)
		}
	}

	if err := deleteOldLogFiles(dir, 2); err != nil {
		t.Fatalf("deleteOldLogFiles: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if got := strings.Join(names, ","); got != "b.log,c.log,keep.txt" {
		t.Errorf("remaining = %s", got)
	}
}

func TestNew_WritesFormattedFile(t *testing.T) {
	dir := t.TempDir()
	log, closer := New(Config{Level: "debug", ToFile: true, Dir: dir, FileName: "test", Formatted: true, MaxSizeMB: 1})
	log.Debug().Str("preset", "1").Msg("hello file")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "test_*.log"))
	if len(matches) != 1 {
		t.Fatalf("log files = %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello file") || !strings.Contains(string(data), "preset=1") {
		t.Errorf("file content = %q", data)
	}
}
