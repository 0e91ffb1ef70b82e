// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the full service configuration.
type Config struct {
	Service       ServiceConfig
	STT           STTConfig
	Storage       StorageConfig
	Kafka         KafkaConfig
	Database      DatabaseConfig
	Audio         AudioConfig
	Matcher       MatcherConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal string
	GRPCPort  string
	HTTPAddr  string
	WorkDir   string
	// CredentialsFile is an optional Google service account key shared by
	// the speech and storage clients.
	CredentialsFile string
}

// STTConfig holds speech recognizer settings.
type STTConfig struct {
	Provider      string // mock, google
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string
	Model         string
	ProjectID     string
	Location      string
	PhraseBoost   float64
}

// StorageConfig holds audio store settings.
type StorageConfig struct {
	Provider     string // local, gcs
	Bucket       string
	LocalDir     string
	SignedURLTTL time.Duration
}

// KafkaConfig holds message bus settings.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	GroupID          string
	TopicConversion  string
	TopicRecognition string
	TopicAnalytics   string
	TopicDeadLetter  string
	Principal        string
	MaxAttempts      int
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	Path string
}

// AudioConfig holds media tooling paths and input limits.
type AudioConfig struct {
	FFmpegPath  string
	FFprobePath string
	MaxDuration time.Duration
	MaxBytes    int64
}

// MatcherConfig selects the phonemizer used for word questions.
type MatcherConfig struct {
	Phonemizer string // espeak, fold
	EspeakPath string
	Language   string
	CacheSize  int // transcriptions kept by the espeak phonemizer
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file (path in ENV_FILE, default ./.env) and
// then the process environment. Invalid values fall back to defaults.
func Load() *Config {
	envFile := envOrDefault("ENV_FILE", ".env")
	if err := loadEnvFile(envFile); err != nil {
		log.Warn().Err(err).Str("file", envFile).Msg("Ignoring unreadable env file")
	}

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-speech-scoring")
	language := envOrDefault("STT_LANGUAGE_CODE", "en-US")

	return &Config{
		Service: ServiceConfig{
			Principal:       principal,
			GRPCPort:        envOrDefault("GRPC_PORT", "50051"),
			HTTPAddr:        envOrDefault("HTTP_ADDR", ":9090"),
			WorkDir:         envOrDefault("WORK_DIR", os.TempDir()),
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		},
		STT: STTConfig{
			Provider:      envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:  language,
			SampleRateHz:  envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			AudioEncoding: envOrDefault("STT_AUDIO_ENCODING", "FLAC"),
			Model:         envOrDefault("STT_MODEL", "default"),
			ProjectID:     os.Getenv("STT_PROJECT_ID"),
			Location:      envOrDefault("STT_LOCATION", "global"),
			PhraseBoost:   envOrDefaultFloat("STT_PHRASE_BOOST", 10),
		},
		Storage: StorageConfig{
			Provider:     envOrDefault("STORAGE_PROVIDER", "local"),
			Bucket:       os.Getenv("STORAGE_BUCKET"),
			LocalDir:     envOrDefault("STORAGE_LOCAL_DIR", "./data/audio"),
			SignedURLTTL: envOrDefaultDuration("STORAGE_SIGNED_URL_TTL", 168*time.Hour),
		},
		Kafka: KafkaConfig{
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:          envList("KAFKA_BROKERS"),
			GroupID:          envOrDefault("KAFKA_GROUP_ID", "speech-scoring"),
			TopicConversion:  envOrDefault("KAFKA_TOPIC_CONVERSION", "answer.audio.conversion"),
			TopicRecognition: envOrDefault("KAFKA_TOPIC_RECOGNITION", "answer.audio.reprocessed"),
			TopicAnalytics:   envOrDefault("KAFKA_TOPIC_ANALYTICS", "answer.analytics"),
			TopicDeadLetter:  envOrDefault("KAFKA_TOPIC_DEADLETTER", "answer.deadletter"),
			Principal:        envOrDefault("KAFKA_PRINCIPAL", principal),
			MaxAttempts:      envOrDefaultInt("KAFKA_MAX_ATTEMPTS", 3),
		},
		Database: DatabaseConfig{
			Path: envOrDefault("DATABASE_PATH", "./data/scoring.sqlite"),
		},
		Audio: AudioConfig{
			FFmpegPath:  envOrDefault("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: envOrDefault("FFPROBE_PATH", "ffprobe"),
			MaxDuration: envOrDefaultDuration("AUDIO_MAX_DURATION", 10*time.Minute),
			MaxBytes:    envOrDefaultInt64("AUDIO_MAX_BYTES", 50*1024*1024),
		},
		Matcher: MatcherConfig{
			Phonemizer: envOrDefault("PHONEMIZER", "espeak"),
			EspeakPath: envOrDefault("ESPEAK_PATH", "espeak-ng"),
			Language:   envOrDefault("MATCHER_LANGUAGE", language),
			CacheSize:  envOrDefaultInt("PHONEMIZER_CACHE_SIZE", 10000),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadEnvFile applies path to the process environment without overriding it.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}
