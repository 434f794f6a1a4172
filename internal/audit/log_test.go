package audit

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndRecent(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	events := []string{EventConnected, EventDisconnected, EventConnected}
	for _, event := range events {
		if err := l.Record(ctx, "rover_1", "rover", "s1", event); err != nil {
			t.Fatalf("Record(%s) failed: %v", event, err)
		}
	}

	entries, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	// Newest first.
	if entries[0].Event != EventConnected || entries[1].Event != EventDisconnected {
		t.Errorf("order wrong: %s, %s", entries[0].Event, entries[1].Event)
	}
	if entries[0].DeviceID != "rover_1" || entries[0].DeviceType != "rover" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestRecentLimit(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.Record(ctx, "garage_1", "garage", "s1", EventConnected); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	entries, err := l.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestRecordRequiresDeviceID(t *testing.T) {
	l := openTestLog(t)

	if err := l.Record(context.Background(), "", "rover", "s1", EventConnected); err == nil {
		t.Error("Record accepted an empty device id")
	}
}

func TestRecentEmptyLog(t *testing.T) {
	l := openTestLog(t)

	entries, err := l.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries from empty log", len(entries))
	}
}
