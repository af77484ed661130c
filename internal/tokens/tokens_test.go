package tokens

import "testing"

func TestEstimateEmpty(t *testing.T) {
	if got := Estimate(""); got != 0 {
		t.Fatalf("Estimate(\"\") = %d, want 0", got)
	}
}

func TestEstimateRoundsUp(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"abcdefgh", 2},
		{"abcdefghi", 3},
	}
	for _, c := range cases {
		if got := Estimate(c.text); got != c.want {
			t.Errorf("Estimate(%q) = %d, want %d", c.text, got, c.want)
		}
	}
}

func TestEstimateCountsRunesNotBytes(t *testing.T) {
	// "日本語" is 3 runes but 9 bytes in UTF-8; estimator must use rune count.
	got := Estimate("日本語")
	if got != 1 {
		t.Fatalf("Estimate(multi-byte) = %d, want 1 (ceil(3/4))", got)
	}
}

func TestEstimateWithRatioCustom(t *testing.T) {
	got := EstimateWithRatio("abcdefgh", 2)
	if got != 4 {
		t.Fatalf("EstimateWithRatio = %d, want 4", got)
	}
}

func TestEstimateWithRatioNonPositiveFallsBackToDefault(t *testing.T) {
	got := EstimateWithRatio("abcd", 0)
	if got != 1 {
		t.Fatalf("EstimateWithRatio with ratio=0 = %d, want 1 (default ratio)", got)
	}
	got = EstimateWithRatio("abcd", -3)
	if got != 1 {
		t.Fatalf("EstimateWithRatio with negative ratio = %d, want 1 (default ratio)", got)
	}
}
