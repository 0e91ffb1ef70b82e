// Package models defines the data structures exchanged between pipeline stages
// and persisted by the scoring service.
package models

// Event types carried in the eventType field and Kafka header.
const (
	EventConversionRequested  = "answer.audio.conversion.requested"
	EventRecognitionRequested = "answer.audio.reprocessed"
	EventAnswerScored         = "answer.scored"
)

// ConversionRequest asks the convert stage to canonicalize an uploaded answer recording.
type ConversionRequest struct {
	EventType     string   `json:"eventType"`
	MessageID     string   `json:"messageId"`
	ResultID      string   `json:"resultId"`
	PhraseSetID   string   `json:"phraseSetId"`
	AudioRef      string   `json:"audioRef"`
	ExpectedWords []string `json:"expectedWords"`
	Timestamp     int64    `json:"timestamp"`
}

// RecognitionRequest is emitted once the audio is canonical ("reprocessed").
type RecognitionRequest struct {
	EventType       string   `json:"eventType"`
	MessageID       string   `json:"messageId"`
	ResultID        string   `json:"resultId"`
	PhraseSetID     string   `json:"phraseSetId"`
	AudioRef        string   `json:"audioRef"`
	ExpectedWords   []string `json:"expectedWords"`
	DurationSeconds float64  `json:"durationSeconds"`
	SampleRate      *int     `json:"sampleRate,omitempty"`
	Channels        *int     `json:"channels,omitempty"`
	Timestamp       int64    `json:"timestamp"`
}

// Segment returns the canonical audio described by the request.
func (r RecognitionRequest) Segment() AudioSegment {
	seg := AudioSegment{URI: r.AudioRef, Duration: r.DurationSeconds}
	if r.SampleRate != nil {
		seg.SampleRate = *r.SampleRate
	}
	if r.Channels != nil {
		seg.Channels = *r.Channels
	}
	return seg
}

// AnalyticRecord is the denormalized row submitted to the analytics sink
// after an answer has been scored.
type AnalyticRecord struct {
	EventType       string   `json:"eventType"`
	RecordID        string   `json:"recordId"`
	ResultID        string   `json:"resultId"`
	SchoolID        string   `json:"schoolId"`
	SchoolName      string   `json:"schoolName"`
	ClassID         string   `json:"classId"`
	ClassName       string   `json:"className"`
	ExamID          string   `json:"examId"`
	ExamName        string   `json:"examName"`
	QuestionID      string   `json:"questionId"`
	QuestionTitle   string   `json:"questionTitle"`
	StudentID       string   `json:"studentId"`
	StudentName     string   `json:"studentName"`
	ExpectedWords   []string `json:"expectedWords"`
	RecognizedWords []string `json:"recognizedWords"`
	RightCount      int      `json:"rightCount"`
	Timestamp       int64    `json:"timestamp"`
}
