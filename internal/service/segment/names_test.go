package segment

import (
	"sync"
	"testing"
)

func TestGenerator_Next(t *testing.T) {
	gen := NewGenerator()

	tests := []struct {
		input    string
		expected string
	}{
		{"results/r-1/answer.flac", "results/r-1/answer-seg-1.flac"},
		{"results/r-1/answer.flac", "results/r-1/answer-seg-2.flac"},
		{"results/r-2/answer-seg-2.flac", "results/r-2/answer-seg-2-seg-3.flac"},
		{"noext", "noext-seg-4"},
	}
	for _, tt := range tests {
		if got := gen.Next(tt.input); got != tt.expected {
			t.Errorf("Next(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestGenerator_ThreadSafety(t *testing.T) {
	gen := NewGenerator()
	numGoroutines := 100
	resultsPerGoroutine := 10

	var wg sync.WaitGroup
	results := make(chan string, numGoroutines*resultsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < resultsPerGoroutine; j++ {
				results <- gen.Next("answer.flac")
			}
		}()
	}

	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for name := range results {
		if seen[name] {
			t.Errorf("duplicate clip name generated: %s", name)
		}
		seen[name] = true
	}

	expectedCount := numGoroutines * resultsPerGoroutine
	if len(seen) != expectedCount {
		t.Errorf("expected %d unique clip names, got %d", expectedCount, len(seen))
	}
}
