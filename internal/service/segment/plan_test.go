package segment

import (
	"testing"
	"time"

	"speech-scoring-service/internal/models"
)

func span(word string, start, end time.Duration) models.WordSpan {
	return models.WordSpan{Word: word, Start: start, End: end}
}

func kinds(steps []Step) []StepKind {
	out := make([]StepKind, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Kind)
	}
	return out
}

func equalKinds(a, b []StepKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPlan_GapThresholdIsInclusive(t *testing.T) {
	tests := []struct {
		name   string
		length time.Duration
		want   StepKind
	}{
		{"exactly five seconds", 5 * time.Second, RerunWord},
		{"just under five seconds", 4999 * time.Millisecond, Keep},
		{"long span", 12 * time.Second, RerunWord},
		{"short word", 300 * time.Millisecond, Keep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := span("x", time.Second, time.Second+tt.length)
			steps := Plan([]models.WordSpan{w}, w.End.Seconds(), 0)
			if len(steps) != 1 {
				t.Fatalf("expected 1 step, got %v", kinds(steps))
			}
			if steps[0].Kind != tt.want {
				t.Errorf("got %s, want %s", steps[0].Kind, tt.want)
			}
			if tt.want == RerunWord && (steps[0].Range.Start != 1 || steps[0].Range.End != w.End.Seconds()) {
				t.Errorf("unexpected range %+v", steps[0].Range)
			}
		})
	}
}

func TestPlan_TrailingRange(t *testing.T) {
	words := []models.WordSpan{span("a", 0, 500*time.Millisecond), span("b", time.Second, 5*time.Second)}

	tests := []struct {
		name  string
		total float64
		want  []StepKind
	}{
		{"tail of exactly five seconds", 10.0, []StepKind{Keep, Keep, RerunTrailing}},
		{"tail just under five seconds", 9.999, []StepKind{Keep, Keep}},
		{"no tail", 5.0, []StepKind{Keep, Keep}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := Plan(words, tt.total, 0)
			if !equalKinds(kinds(steps), tt.want) {
				t.Fatalf("got %v, want %v", kinds(steps), tt.want)
			}
			if last := steps[len(steps)-1]; last.Kind == RerunTrailing {
				if last.Range.Start != 5.0 || last.Range.End != tt.total {
					t.Errorf("unexpected trailing range %+v", last.Range)
				}
			}
		})
	}
}

func TestPlan_EmptyTranscriptRerunsWholeClip(t *testing.T) {
	steps := Plan(nil, 7.5, 1)
	if len(steps) != 1 || steps[0].Kind != RerunTrailing {
		t.Fatalf("expected one trailing rerun, got %v", kinds(steps))
	}
	if steps[0].Range != (Range{Start: 0, End: 7.5}) {
		t.Errorf("unexpected range %+v", steps[0].Range)
	}
}

func TestPlan_NothingRerunAtMaxDepth(t *testing.T) {
	words := []models.WordSpan{span("long", 0, 30*time.Second)}
	steps := Plan(words, 120, MaxDepth)
	if !equalKinds(kinds(steps), []StepKind{Keep}) {
		t.Errorf("expected only keeps at max depth, got %v", kinds(steps))
	}
	steps = Plan(words, 120, MaxDepth-1)
	if !equalKinds(kinds(steps), []StepKind{RerunWord, RerunTrailing}) {
		t.Errorf("expected reruns below max depth, got %v", kinds(steps))
	}
}

func TestPlan_PreservesOrder(t *testing.T) {
	words := []models.WordSpan{
		span("one", 0, time.Second),
		span("noise", time.Second, 8*time.Second),
		span("two", 8*time.Second, 9*time.Second),
	}
	steps := Plan(words, 9, 0)
	want := []StepKind{Keep, RerunWord, Keep}
	if !equalKinds(kinds(steps), want) {
		t.Fatalf("got %v, want %v", kinds(steps), want)
	}
	if steps[2].Word.Word != "two" {
		t.Errorf("expected last kept word 'two', got %q", steps[2].Word.Word)
	}
}

func TestRange(t *testing.T) {
	r := Range{Start: 6.25, End: 14}
	if r.Length() != 7.75 {
		t.Errorf("Length = %v", r.Length())
	}
	if r.Offset() != 6250*time.Millisecond {
		t.Errorf("Offset = %v", r.Offset())
	}
}
