// Package audio inspects uploaded answer recordings and converts them to the
// canonical format the recognizer expects: mono 16 kHz FLAC.
package audio

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/vansante/go-ffprobe.v2"

	"speech-scoring-service/internal/command"
)

// Canonical format.
const (
	CanonicalContentType = "audio/flac"
	CanonicalSampleRate  = 16000
	CanonicalChannels    = 1
	canonicalCodec       = "flac"
)

var (
	// ErrUnsupportedEncoding is returned for recordings that cannot be converted.
	ErrUnsupportedEncoding = errors.New("unsupported audio encoding")
	// ErrLimitExceeded is returned for recordings over the size or duration limits.
	ErrLimitExceeded = errors.New("audio limit exceeded")
)

// Limits defines safety guardrails for accepted recordings.
type Limits struct {
	MaxBytes    int64         // Max recording size
	MaxDuration time.Duration // Max recording length
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:    50 * 1024 * 1024, // 50MB
		MaxDuration: 10 * time.Minute,
	}
}

// MediaError is a stage-aware error with optional command context.
type MediaError struct {
	Stage      string      `json:"stage"`
	Message    string      `json:"message"`
	CommandLog command.Log `json:"commandLog"`
	Err        error       `json:"-"`
}

// Error formats media failures for logs and dead letters.
func (e *MediaError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Message)
	if e.CommandLog.Command != "" {
		msg = fmt.Sprintf("%s (cmd=%s exit=%d)", msg, e.CommandLog.Command, e.CommandLog.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *MediaError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var supportedTypes = map[string]bool{
	"audio/flac":      true,
	"audio/x-flac":    true,
	"audio/wav":       true,
	"audio/wave":      true,
	"audio/x-wav":     true,
	"audio/webm":      true,
	"video/webm":      true,
	"audio/ogg":       true,
	"audio/opus":      true,
	"audio/mpeg":      true,
	"audio/mp3":       true,
	"audio/mp4":       true,
	"audio/x-m4a":     true,
	"video/mp4":       true,
	"audio/aac":       true,
	"audio/3gpp":      true,
	"audio/amr":       true,
	"application/ogg": true,
}

var supportedCodecs = map[string]bool{
	"flac":      true,
	"pcm_s16le": true,
	"pcm_s24le": true,
	"pcm_s32le": true,
	"pcm_f32le": true,
	"pcm_mulaw": true,
	"pcm_alaw":  true,
	"opus":      true,
	"vorbis":    true,
	"mp3":       true,
	"aac":       true,
	"amr_nb":    true,
	"amr_wb":    true,
}

// MediaType strips parameters from a content type and lowercases it.
// "audio/webm;codecs=opus" becomes "audio/webm".
func MediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// Probe is the media metadata of the first audio stream.
type Probe struct {
	Codec      string
	SampleRate int
	Channels   int
	Duration   float64 // seconds
}

// Canonical describes audio ready for recognition.
type Canonical struct {
	Path       string // local file
	Transcoded bool
	SampleRate int
	Channels   int
	Duration   float64 // seconds
}

// Prober reads the container and stream metadata of a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffprobe.ProbeData, error)
}

// FFProbe probes files with the ffprobe binary.
type FFProbe struct{}

// NewFFProbe points the ffprobe client at binPath. Empty keeps the binary on PATH.
func NewFFProbe(binPath string) FFProbe {
	if binPath != "" {
		ffprobe.SetFFProbeBinPath(binPath)
	}
	return FFProbe{}
}

// Probe implements Prober.
func (FFProbe) Probe(ctx context.Context, path string) (*ffprobe.ProbeData, error) {
	return ffprobe.ProbeURL(ctx, path)
}

// Converter probes recordings and runs ffmpeg.
type Converter struct {
	runner     command.Runner
	prober     Prober
	ffmpegPath string
	limits     Limits
}

// NewConverter creates a converter. An empty ffmpegPath defaults to the binary on PATH.
func NewConverter(runner command.Runner, prober Prober, ffmpegPath string, limits Limits) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Converter{runner: runner, prober: prober, ffmpegPath: ffmpegPath, limits: limits}
}

// Canonicalize checks the recording at localPath against the limits and, if
// it is not already FLAC, transcodes it next to the input. contentType is the
// stored MIME type; when empty or generic the probed codec decides.
func (c *Converter) Canonicalize(ctx context.Context, localPath, contentType string) (Canonical, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return Canonical{}, &MediaError{Stage: "input", Message: "recording is not readable", Err: err}
	}
	if c.limits.MaxBytes > 0 && info.Size() > c.limits.MaxBytes {
		return Canonical{}, &MediaError{
			Stage:   "input",
			Message: fmt.Sprintf("%d bytes > %d", info.Size(), c.limits.MaxBytes),
			Err:     ErrLimitExceeded,
		}
	}

	mediaType := MediaType(contentType)
	generic := mediaType == "" || mediaType == "application/octet-stream"
	if !generic && !supportedTypes[mediaType] {
		return Canonical{}, &MediaError{Stage: "input", Message: "content type " + mediaType, Err: ErrUnsupportedEncoding}
	}

	p, err := c.Probe(ctx, localPath)
	if err != nil {
		return Canonical{}, err
	}
	if !supportedCodecs[p.Codec] {
		return Canonical{}, &MediaError{Stage: "probe", Message: "codec " + p.Codec, Err: ErrUnsupportedEncoding}
	}
	if c.limits.MaxDuration > 0 && p.Duration > c.limits.MaxDuration.Seconds() {
		return Canonical{}, &MediaError{
			Stage:   "probe",
			Message: fmt.Sprintf("duration %.1fs > %s", p.Duration, c.limits.MaxDuration),
			Err:     ErrLimitExceeded,
		}
	}

	if p.Codec == canonicalCodec && (generic || mediaType == "audio/flac" || mediaType == "audio/x-flac") {
		return Canonical{Path: localPath, SampleRate: p.SampleRate, Channels: p.Channels, Duration: p.Duration}, nil
	}

	out := strings.TrimSuffix(localPath, filepath.Ext(localPath)) + ".canonical.flac"
	if err := c.Transcode(ctx, localPath, out); err != nil {
		return Canonical{}, err
	}
	return Canonical{
		Path:       out,
		Transcoded: true,
		SampleRate: CanonicalSampleRate,
		Channels:   CanonicalChannels,
		Duration:   p.Duration,
	}, nil
}

// Probe reads codec, sample rate, channels and duration of the first audio
// stream.
func (c *Converter) Probe(ctx context.Context, path string) (Probe, error) {
	data, err := c.prober.Probe(ctx, path)
	if err != nil {
		return Probe{}, &MediaError{Stage: "probe", Message: "ffprobe failed", Err: err}
	}
	return probeFromData(data)
}

func probeFromData(data *ffprobe.ProbeData) (Probe, error) {
	s := data.FirstAudioStream()
	if s == nil {
		return Probe{}, &MediaError{Stage: "probe", Message: "no audio stream", Err: ErrUnsupportedEncoding}
	}
	p := Probe{Codec: s.CodecName, Channels: s.Channels}
	if s.SampleRate != "" {
		rate, err := strconv.Atoi(s.SampleRate)
		if err != nil {
			return Probe{}, &MediaError{Stage: "probe", Message: "sample rate " + s.SampleRate, Err: err}
		}
		p.SampleRate = rate
	}

	// WebM and Ogg often carry the duration on the container only.
	if data.Format != nil {
		p.Duration = data.Format.DurationSeconds
	}
	if p.Duration == 0 && s.Duration != "" && s.Duration != "N/A" {
		d, err := strconv.ParseFloat(s.Duration, 64)
		if err != nil {
			return Probe{}, &MediaError{Stage: "probe", Message: "duration " + s.Duration, Err: err}
		}
		p.Duration = d
	}
	return p, nil
}

// Transcode converts in to mono 16 kHz FLAC at out.
func (c *Converter) Transcode(ctx context.Context, in, out string) error {
	return c.ffmpeg(ctx, "transcode", buildTranscodeArgs(in, out), out)
}

// Trim writes the [start, end] seconds of in to out as FLAC, keeping the
// sample rate and channel layout of in.
func (c *Converter) Trim(ctx context.Context, in, out string, start, end float64) error {
	if end <= start {
		return &MediaError{Stage: "trim", Message: fmt.Sprintf("empty range %.3f-%.3f", start, end)}
	}
	return c.ffmpeg(ctx, "trim", buildTrimArgs(in, out, start, end), out)
}

func (c *Converter) ffmpeg(ctx context.Context, stage string, args []string, out string) error {
	res, err := c.runner.Run(ctx, nil, c.ffmpegPath, args...)
	log := command.NewLog(c.ffmpegPath, args, res)
	if err != nil {
		return &MediaError{Stage: stage, Message: "ffmpeg failed", CommandLog: log, Err: err}
	}
	if _, err := os.Stat(out); err != nil {
		return &MediaError{Stage: stage, Message: "ffmpeg completed but output file is missing", CommandLog: log, Err: err}
	}
	return nil
}

// buildTranscodeArgs builds CLI args for mono 16k FLAC output.
func buildTranscodeArgs(in, out string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", in,
		"-vn",
		"-ac", strconv.Itoa(CanonicalChannels),
		"-ar", strconv.Itoa(CanonicalSampleRate),
		"-c:a", "flac",
		"-f", "flac",
		out,
	}
}

func buildTrimArgs(in, out string, start, end float64) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", formatSeconds(start),
		"-i", in,
		"-t", formatSeconds(end - start),
		"-vn",
		"-c:a", "flac",
		"-f", "flac",
		out,
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
