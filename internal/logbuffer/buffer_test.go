/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"fmt"
	"testing"
)

func TestRingOverwritesOldest(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Add(LogEntry{Message: fmt.Sprintf("m%d", i)})
	}

	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3", b.Len())
	}

	got := b.Entries(Query{})
	// Newest first, oldest two evicted.
	want := []string{"m4", "m3", "m2"}
	for i, entry := range got {
		if entry.Message != want[i] {
			t.Errorf("entries[%d] = %q, want %q", i, entry.Message, want[i])
		}
	}
}

func TestEntriesFilters(t *testing.T) {
	b := New(10)
	b.Add(LogEntry{Level: "info", Component: "manifest_builder", Message: "built"})
	b.Add(LogEntry{Level: "warn", Component: "edge_cache", Message: "miss"})
	b.Add(LogEntry{Level: "warn", Component: "manifest_builder", Message: "fallback"})

	warns := b.Entries(Query{Level: "warn"})
	if len(warns) != 2 {
		t.Errorf("warn entries = %d, want 2", len(warns))
	}

	builder := b.Entries(Query{Component: "manifest_builder"})
	if len(builder) != 2 {
		t.Errorf("component entries = %d, want 2", len(builder))
	}

	limited := b.Entries(Query{Limit: 1})
	if len(limited) != 1 || limited[0].Message != "fallback" {
		t.Errorf("limited = %+v, want newest entry only", limited)
	}
}

func TestWriteParsesZerologLines(t *testing.T) {
	b := New(10)

	line := `{"level":"warn","component":"manifest_builder","channel_id":"c1","time":"2026-03-04T14:00:00Z","message":"using safety fallback pool"}`
	if _, err := b.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries := b.Entries(Query{})
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Level != "warn" || entry.Component != "manifest_builder" {
		t.Errorf("parsed entry = %+v", entry)
	}
	if entry.Message != "using safety fallback pool" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Fields["channel_id"] != "c1" {
		t.Errorf("fields = %+v, want channel_id preserved", entry.Fields)
	}

	// Non-JSON lines are stored raw rather than dropped.
	if _, err := b.Write([]byte("plain text line\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries = b.Entries(Query{})
	if entries[0].Message != "plain text line" {
		t.Errorf("raw line = %q", entries[0].Message)
	}
}
