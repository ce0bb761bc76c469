package model

import "testing"

func TestNormalizeRef(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"h.r. 1234", "H.R.1234"},
		{"H.R.1234", "H.R.1234"},
		{"  S.  987 ", "S.987"},
		{"gao-25-106789", "GAO-25-106789"},
		{"No. 23-1234", "NO.23-1234"},
	}
	for _, tt := range tests {
		if got := NormalizeRef(tt.in); got != tt.want {
			t.Errorf("NormalizeRef(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeCaseNumber(t *testing.T) {
	if got := NormalizeCaseNumber("No. 24-1187"); got != "24-1187" {
		t.Errorf("got %q", got)
	}
	if got := NormalizeCaseNumber("cv 2024 11"); got != "CV 2024 11" {
		t.Errorf("got %q", got)
	}
}

func TestCanonicalID(t *testing.T) {
	a := CanonicalID("GAO", "https://www.gao.gov/products/gao-25-106789")
	b := CanonicalID("gao", " https://www.gao.gov/products/gao-25-106789 ")
	if a != b || len(a) != 32 {
		t.Errorf("expected stable 32 char id, got %q and %q", a, b)
	}
	if a == CanonicalID("news", "https://www.gao.gov/products/gao-25-106789") {
		t.Error("source type must be part of the identity")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo", 2); got != "h" {
		t.Errorf("Truncate split a rune: %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
}
