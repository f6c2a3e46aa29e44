package textutil

import "testing"

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"  indirim10 ": "İNDİRİM10",
		"kis2026":      "KIS2026",
		"":             "",
		"ORD-123":      "ORD-123",
	}
	for input, expected := range cases {
		if got := NormalizeCode(input); got != expected {
			t.Fatalf("NormalizeCode(%q) = %q, expected %q", input, got, expected)
		}
	}
}
