package textutil

import (
	"strings"
	"testing"
)

func TestPathSegment(t *testing.T) {
	tests := map[string]string{
		"  Holiday: Day 1/2  ": "Holiday- Day 1-2",
		"what?<now>":           "whatnow",
		"..hidden.":            "hidden",
		"tab\there":            "tabhere",
		"":                     "",
	}
	for in, want := range tests {
		if got := PathSegment(in); got != want {
			t.Fatalf("PathSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPathSegmentLimitsLength(t *testing.T) {
	got := PathSegment(strings.Repeat("é", 200))
	if len(got) > maxSegmentBytes {
		t.Fatalf("expected at most %d bytes, got %d", maxSegmentBytes, len(got))
	}
	if !strings.HasPrefix(got, "é") || strings.ContainsRune(got, '�') {
		t.Fatalf("segment cut mid-rune: %q", got)
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Home NAS":      "home_nas",
		"Off  Site!":    "off_site",
		"archive-01":    "archive-01",
		"  ":            "unknown",
		"***":           "unknown",
		"Grandma's Box": "grandma_s_box",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("sunset", 10); got != "sunset" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("sunset over the bay", 7); got != "sunset…" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("sunset", 1); got != "s" {
		t.Fatalf("unexpected %q", got)
	}
}
