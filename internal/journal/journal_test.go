// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/make0x0/enex2md/pkg/types"
)

func TestAppendAndLoad(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "failures.json"))

	err := j.Append(types.FailureEntry{Source: "a.enex", Title: "One", Reason: "boom"})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := j.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Reason != "boom" {
		t.Errorf("Reason = %q", entries[0].Reason)
	}
	if entries[0].RecordedAt.IsZero() {
		t.Error("RecordedAt not stamped")
	}
}

func TestAppendReplacesByKey(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "failures.json"))

	seed := []types.FailureEntry{
		{Source: "a.enex", Title: "One", Reason: "first"},
		{Source: "a.enex", Title: "Two", Reason: "second"},
		{Source: "b.enex", Title: "One", Reason: "third"},
	}
	if err := j.Append(seed...); err != nil {
		t.Fatal(err)
	}
	// Same key again: the entry is replaced in place, not duplicated.
	if err := j.Append(types.FailureEntry{Source: "a.enex", Title: "Two", Reason: "retried, still failing"}); err != nil {
		t.Fatal(err)
	}

	entries, err := j.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[1].Title != "Two" || entries[1].Reason != "retried, still failing" {
		t.Errorf("entry 1 = %+v, want replaced in place", entries[1])
	}
	if entries[2].Source != "b.enex" {
		t.Errorf("entry order disturbed: %+v", entries)
	}
}

func TestAppendKeepsExplicitTimestamp(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "failures.json"))
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	err := j.Append(types.FailureEntry{Source: "a.enex", Title: "One", Reason: "x", RecordedAt: at})
	if err != nil {
		t.Fatal(err)
	}
	entries, _ := j.Load()
	if !entries[0].RecordedAt.Equal(at) {
		t.Errorf("RecordedAt = %v, want %v", entries[0].RecordedAt, at)
	}
}

func TestLoadMissingFile(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "absent.json"))
	entries, err := j.Load()
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Errorf("got %v, want nil", entries)
	}
}

func TestLoadRetrySetFromJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.json")
	j := New(path)
	err := j.Append(
		types.FailureEntry{Source: "a.enex", Title: "One", Reason: "x"},
		types.FailureEntry{Source: "b.enex", Title: "Two", Reason: "y"},
	)
	if err != nil {
		t.Fatal(err)
	}

	set, err := LoadRetrySet(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 2 {
		t.Fatalf("got %d keys, want 2", len(set))
	}
	if _, ok := set[Key{"a.enex", "One"}]; !ok {
		t.Error("missing key a.enex/One")
	}
}

func TestLoadRetrySetFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retry.yaml")
	content := "- source: a.enex\n  title: One\n- source: b.enex\n  title: Two\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := LoadRetrySet(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := set[Key{"b.enex", "Two"}]; !ok {
		t.Errorf("missing key b.enex/Two in %v", set)
	}
}

func TestLoadRetrySetMissingFile(t *testing.T) {
	if _, err := LoadRetrySet(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing retry set")
	}
}
