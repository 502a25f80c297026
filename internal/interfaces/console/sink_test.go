package console

import (
	"bytes"
	"testing"
	"time"
)

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)
	ts := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	if err := s.WriteSnapshot(ts, "quotes=3"); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := s.NewLine(); err != nil {
		t.Fatalf("NewLine: %v", err)
	}
	if got, want := buf.String(), "2024-03-01 08:30:00 quotes=3\n\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}
