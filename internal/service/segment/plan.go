// Package segment improves recognition of long clips by re-submitting the
// audio behind suspiciously long spans for a second, narrower recognition.
package segment

import (
	"time"

	"speech-scoring-service/internal/models"
)

const (
	// GapThreshold is the span length in seconds, inclusive, from which a
	// range is recognized again.
	GapThreshold = 5.0
	// MaxDepth bounds the re-submission. Results at MaxDepth are kept as is.
	MaxDepth = 2
)

// Range is a sub-range of a clip, in seconds from the clip start.
type Range struct {
	Start float64
	End   float64
}

// Length returns the range length in seconds.
func (r Range) Length() float64 {
	return r.End - r.Start
}

// Offset returns the range start as a duration.
func (r Range) Offset() time.Duration {
	return time.Duration(r.Start * float64(time.Second))
}

// StepKind tells the executor what to do with a planned step.
type StepKind int

const (
	// Keep appends the recognized word unchanged.
	Keep StepKind = iota
	// RerunWord replaces a long word span with the recognition of its range.
	RerunWord
	// RerunTrailing appends the recognition of the unexamined tail.
	RerunTrailing
)

func (k StepKind) String() string {
	switch k {
	case RerunWord:
		return "word"
	case RerunTrailing:
		return "trailing"
	default:
		return "keep"
	}
}

// Step is one planned action, in transcript order.
type Step struct {
	Kind  StepKind
	Word  models.WordSpan // set for Keep and RerunWord
	Range Range           // set for RerunWord and RerunTrailing
}

// Plan decides, without side effects, which parts of a recognition result at
// the given depth are kept and which ranges are recognized again. total is
// the clip duration in seconds.
func Plan(words []models.WordSpan, total float64, depth int) []Step {
	steps := make([]Step, 0, len(words)+1)
	recurse := depth < MaxDepth

	lastTime := 0.0
	for _, w := range words {
		if recurse && w.Length() >= GapThreshold {
			steps = append(steps, Step{
				Kind:  RerunWord,
				Word:  w,
				Range: Range{Start: w.Start.Seconds(), End: w.End.Seconds()},
			})
		} else {
			steps = append(steps, Step{Kind: Keep, Word: w})
		}
		lastTime = w.End.Seconds()
	}

	if recurse && total-lastTime >= GapThreshold {
		steps = append(steps, Step{Kind: RerunTrailing, Range: Range{Start: lastTime, End: total}})
	}
	return steps
}
