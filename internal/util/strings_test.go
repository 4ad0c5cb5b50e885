package util

import "testing"

func TestTruncateRunes_ShorterThanLimitUnchanged(t *testing.T) {
	if got := TruncateRunes("hello", 10); got != "hello" {
		t.Fatalf("expected unchanged string, got %q", got)
	}
}

func TestTruncateRunes_LongerThanLimitAppendsEllipsis(t *testing.T) {
	if got := TruncateRunes("hello world", 5); got != "hello..." {
		t.Fatalf("expected truncation with ellipsis, got %q", got)
	}
}

func TestTruncateRunes_CountsRunesNotBytes(t *testing.T) {
	s := "日本語のテスト"
	if got := TruncateRunes(s, 3); got != "日本語..." {
		t.Fatalf("expected a rune-aware truncation, got %q", got)
	}
}

func TestTruncateRunes_NonPositiveLimitReturnsUnchanged(t *testing.T) {
	if got := TruncateRunes("anything", 0); got != "anything" {
		t.Fatalf("expected unchanged string for maxRunes<=0, got %q", got)
	}
	if got := TruncateRunes("anything", -1); got != "anything" {
		t.Fatalf("expected unchanged string for negative maxRunes, got %q", got)
	}
}
