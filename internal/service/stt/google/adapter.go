// Package google provides a Google Cloud Speech-to-Text recognizer.
package google

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"speech-scoring-service/internal/models"
	"speech-scoring-service/internal/service/stt"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode    string
	SampleRateHz    int
	AudioEncoding   string
	Model           string
	ProjectID       string
	Location        string
	HintBoost       float32
	CredentialsFile string
}

// DefaultConfig returns the settings matching the canonical audio produced
// by the convert stage.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  16000,
		AudioEncoding: "FLAC",
		Model:         "default",
		Location:      "global",
		HintBoost:     10,
	}
}

// Adapter implements stt.Recognizer using Google Cloud Speech-to-Text.
type Adapter struct {
	cfg        Config
	client     *speech.Client
	adaptation *speech.AdaptationClient
}

// New creates the speech and adaptation clients. Without a credentials file
// application default credentials are used.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	ac, err := speech.NewAdaptationClient(ctx, opts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("adaptation client: %w", err)
	}
	return &Adapter{cfg: cfg, client: c, adaptation: ac}, nil
}

// Name returns the provider name.
func (a *Adapter) Name() string { return "google" }

// Recognize runs a long-running recognition over a gs:// URI and waits for it.
func (a *Adapter) Recognize(ctx context.Context, req stt.Request) ([]models.WordSpan, error) {
	if !strings.HasPrefix(req.AudioURI, "gs://") {
		return nil, fmt.Errorf("google recognizer needs a gs:// uri, got %q", req.AudioURI)
	}
	op, err := a.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: a.recognitionConfig(req),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: req.AudioURI},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("long running recognize: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for recognition: %w", err)
	}
	return wordsFromResponse(resp), nil
}

func (a *Adapter) recognitionConfig(req stt.Request) *speechpb.RecognitionConfig {
	rate := a.cfg.SampleRateHz
	if req.SampleRate > 0 {
		rate = req.SampleRate
	}
	lang := a.cfg.LanguageCode
	if req.LanguageCode != "" {
		lang = req.LanguageCode
	}
	cfg := &speechpb.RecognitionConfig{
		Encoding:              parseAudioEncoding(a.cfg.AudioEncoding),
		SampleRateHertz:       int32(rate),
		LanguageCode:          lang,
		Model:                 a.cfg.Model,
		EnableWordTimeOffsets: true,
	}
	if req.Channels > 0 {
		cfg.AudioChannelCount = int32(req.Channels)
	}
	switch {
	case req.PhraseSetID != "":
		cfg.Adaptation = &speechpb.SpeechAdaptation{PhraseSetReferences: []string{req.PhraseSetID}}
	case len(req.Hints) > 0:
		cfg.SpeechContexts = []*speechpb.SpeechContext{{Phrases: req.Hints, Boost: a.cfg.HintBoost}}
	}
	return cfg
}

// wordsFromResponse flattens the first alternative of every result.
func wordsFromResponse(resp *speechpb.LongRunningRecognizeResponse) []models.WordSpan {
	var words []models.WordSpan
	for _, r := range resp.GetResults() {
		if len(r.Alternatives) == 0 {
			continue
		}
		for _, w := range r.Alternatives[0].GetWords() {
			words = append(words, models.WordSpan{
				Word:  w.GetWord(),
				Start: w.GetStartTime().AsDuration(),
				End:   w.GetEndTime().AsDuration(),
			})
		}
	}
	return words
}

func (a *Adapter) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", a.cfg.ProjectID, a.cfg.Location)
}

// CreatePhraseSet creates a phrase set and returns its resource name.
func (a *Adapter) CreatePhraseSet(ctx context.Context, phrases []stt.WeightedPhrase) (string, error) {
	ps, err := a.adaptation.CreatePhraseSet(ctx, phraseSetRequest(a.parent(), "ps-"+uuid.NewString(), phrases))
	if err != nil {
		return "", fmt.Errorf("create phrase set: %w", err)
	}
	return ps.GetName(), nil
}

func phraseSetRequest(parent, id string, phrases []stt.WeightedPhrase) *speechpb.CreatePhraseSetRequest {
	set := &speechpb.PhraseSet{}
	for _, p := range phrases {
		set.Phrases = append(set.Phrases, &speechpb.PhraseSet_Phrase{Value: p.Value, Boost: p.Boost})
	}
	return &speechpb.CreatePhraseSetRequest{Parent: parent, PhraseSetId: id, PhraseSet: set}
}

// DeletePhraseSet deletes a phrase set by resource name.
func (a *Adapter) DeletePhraseSet(ctx context.Context, id string) error {
	if err := a.adaptation.DeletePhraseSet(ctx, &speechpb.DeletePhraseSetRequest{Name: id}); err != nil {
		return fmt.Errorf("delete phrase set %s: %w", id, err)
	}
	return nil
}

// Close releases both clients.
func (a *Adapter) Close() error {
	err := a.client.Close()
	if aerr := a.adaptation.Close(); err == nil {
		err = aerr
	}
	return err
}

// parseAudioEncoding converts string encoding to Google's enum.
func parseAudioEncoding(enc string) speechpb.RecognitionConfig_AudioEncoding {
	switch enc {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_FLAC
	}
}
