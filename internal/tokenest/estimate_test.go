package tokenest

import "testing"

func TestEstimateEmpty(t *testing.T) {
	if got := Estimate("   "); got != 0 {
		t.Fatalf("expected 0 for blank input, got %d", got)
	}
}

func TestEstimateTrimsBeforeCounting(t *testing.T) {
	a := Estimate("hello world")
	b := Estimate("  hello world  ")
	if a != b {
		t.Fatalf("expected leading/trailing whitespace to be trimmed, got %d vs %d", a, b)
	}
}

func TestEstimateCountsBaseCharacters(t *testing.T) {
	// 7 non-whitespace chars, no punctuation, no long words -> B = ceil(7/3.5) = 2.
	got := Estimate("abcdefg")
	if got < 2 {
		t.Fatalf("expected at least base estimate of 2, got %d", got)
	}
}

func TestEstimatePunctuationContribution(t *testing.T) {
	plain := Estimate("hello")
	punctuated := Estimate("hello!!!")
	if punctuated <= plain {
		t.Fatalf("expected punctuation to raise the estimate: plain=%d punctuated=%d", plain, punctuated)
	}
}

func TestEstimateSubwordContribution(t *testing.T) {
	short := Estimate("a b c d")
	long := Estimate("extraordinary remarkable")
	if long <= short {
		t.Fatalf("expected long words to raise the estimate relative to short words: short=%d long=%d", short, long)
	}
}

func TestEstimateNeverUndercutsFloor(t *testing.T) {
	// A long run of one letter with no spaces or punctuation-set members still
	// hits the len/4 floor even if B+P+S underestimates.
	s := "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"
	got := Estimate(s)
	floor := (8 * ceilDiv(len([]rune(s)), 4)) / 10
	if got < floor {
		t.Fatalf("estimate %d fell below floor %d", got, floor)
	}
}

func TestEstimateIsDeterministic(t *testing.T) {
	text := "The quick, brown fox jumps over the lazy dog!"
	a := Estimate(text)
	b := Estimate(text)
	if a != b {
		t.Fatalf("expected stable output for identical input, got %d vs %d", a, b)
	}
}

func TestEstimateAllSumsEachText(t *testing.T) {
	sum := EstimateAll("hello", "world")
	expected := Estimate("hello") + Estimate("world")
	if sum != expected {
		t.Fatalf("expected EstimateAll to sum per-text estimates, got %d want %d", sum, expected)
	}
}

func TestEstimateAllIgnoresBlankEntries(t *testing.T) {
	sum := EstimateAll("hello", "   ", "world")
	expected := Estimate("hello") + Estimate("world")
	if sum != expected {
		t.Fatalf("expected blank entries to contribute 0, got %d want %d", sum, expected)
	}
}
