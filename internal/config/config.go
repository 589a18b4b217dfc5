package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// SourceConfig describes one chat connection the daemon opens at startup.
// Additional sources can be added at runtime over the control subjects.
type SourceConfig struct {
	Kind     string `yaml:"kind"` // youtube, twitch
	APIKey   string `yaml:"api_key"`
	VideoID  string `yaml:"video_id"`
	Channel  string `yaml:"channel"`
	Username string `yaml:"username"`
	OAuth    string `yaml:"oauth"`
}

type FilterConfig struct {
	DedupeWindowMS  int      `yaml:"dedupe_window_ms"`
	DedupeSize      int      `yaml:"dedupe_size"`
	StopWords       []string `yaml:"stop_words"`
	StopPatterns    []string `yaml:"stop_patterns"`
	RepeatThreshold int      `yaml:"repeat_threshold"`
	RepeatWindowMS  int      `yaml:"repeat_window_ms"`
	MinLength       int      `yaml:"min_length"`
	MaxLength       int      `yaml:"max_length"`
	StripLinks      bool     `yaml:"strip_links"`
	StripEmotes     bool     `yaml:"strip_emotes"`
	ReadAuthorNames bool     `yaml:"read_author_names"`
	MembersOnly     bool     `yaml:"members_only"`
	ExpandNumbers   bool     `yaml:"expand_numbers"`
	TargetLanguage  string   `yaml:"target_language"`
}

type ToxicityConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Mode      string  `yaml:"mode"` // mock, http
	Endpoint  string  `yaml:"endpoint"`
	Threshold float64 `yaml:"threshold"`
	FailOpen  bool    `yaml:"fail_open"`
}

type TranslationConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Mode     string `yaml:"mode"` // mock, http
	Endpoint string `yaml:"endpoint"`
}

type VoiceConfig struct {
	Profile  string  `yaml:"profile"`
	Language string  `yaml:"language"`
	Volume   float64 `yaml:"volume"`
	Speed    float64 `yaml:"speed"`
}

type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

type SynthConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type PlaybackConfig struct {
	Sink    string `yaml:"sink"` // mock, wav, exec
	Dir     string `yaml:"dir"`
	Command string `yaml:"command"`
}

type TranscriptConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxMessages   int    `yaml:"max_messages"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Sources     []SourceConfig    `yaml:"sources"`
	Filters     FilterConfig      `yaml:"filters"`
	Toxicity    ToxicityConfig    `yaml:"toxicity"`
	Translation TranslationConfig `yaml:"translation"`
	Voice       VoiceConfig       `yaml:"voice"`
	Queue       QueueConfig       `yaml:"queue"`
	Synth       SynthConfig       `yaml:"synth"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Transcript  TranscriptConfig  `yaml:"transcript"`
}

func Default() Config {
	return Config{
		RuntimeName: "fjchat-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Filters: FilterConfig{
			DedupeWindowMS:  30000,
			DedupeSize:      512,
			RepeatThreshold: 3,
			RepeatWindowMS:  15000,
			MinLength:       2,
			MaxLength:       200,
			StripLinks:      true,
			StripEmotes:     true,
			ExpandNumbers:   true,
		},
		Toxicity: ToxicityConfig{
			Enabled:   false,
			Mode:      "mock",
			Threshold: 0.8,
			FailOpen:  false,
		},
		Translation: TranslationConfig{
			Enabled: false,
			Mode:    "mock",
		},
		Voice: VoiceConfig{
			Profile:  "en_0",
			Language: "en",
			Volume:   1.0,
			Speed:    1.0,
		},
		Queue: QueueConfig{
			Capacity: 15,
		},
		Synth: SynthConfig{
			Mode:       "mock",
			SampleRate: 48000,
			Channels:   1,
		},
		Playback: PlaybackConfig{
			Sink: "mock",
			Dir:  "./data/audio",
		},
		Transcript: TranscriptConfig{
			Path:          "./data/fjchat-transcript.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxMessages:   100000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "FJCHAT_RUNTIME_NAME")
	overrideString(&cfg.Environment, "FJCHAT_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "FJCHAT_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "FJCHAT_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "FJCHAT_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "FJCHAT_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "FJCHAT_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "FJCHAT_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "FJCHAT_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "FJCHAT_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "FJCHAT_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "FJCHAT_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "FJCHAT_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "FJCHAT_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "FJCHAT_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "FJCHAT_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Filters.DedupeWindowMS, "FJCHAT_FILTERS_DEDUPE_WINDOW_MS")
	overrideInt(&cfg.Filters.MinLength, "FJCHAT_FILTERS_MIN_LENGTH")
	overrideInt(&cfg.Filters.MaxLength, "FJCHAT_FILTERS_MAX_LENGTH")
	overrideBool(&cfg.Filters.ReadAuthorNames, "FJCHAT_FILTERS_READ_AUTHOR_NAMES")
	overrideBool(&cfg.Filters.ExpandNumbers, "FJCHAT_FILTERS_EXPAND_NUMBERS")
	overrideString(&cfg.Filters.TargetLanguage, "FJCHAT_FILTERS_TARGET_LANGUAGE")
	overrideBool(&cfg.Toxicity.Enabled, "FJCHAT_TOXICITY_ENABLED")
	overrideString(&cfg.Toxicity.Mode, "FJCHAT_TOXICITY_MODE")
	overrideString(&cfg.Toxicity.Endpoint, "FJCHAT_TOXICITY_ENDPOINT")
	overrideFloat(&cfg.Toxicity.Threshold, "FJCHAT_TOXICITY_THRESHOLD")
	overrideBool(&cfg.Toxicity.FailOpen, "FJCHAT_TOXICITY_FAIL_OPEN")
	overrideBool(&cfg.Translation.Enabled, "FJCHAT_TRANSLATION_ENABLED")
	overrideString(&cfg.Translation.Mode, "FJCHAT_TRANSLATION_MODE")
	overrideString(&cfg.Translation.Endpoint, "FJCHAT_TRANSLATION_ENDPOINT")
	overrideString(&cfg.Voice.Profile, "FJCHAT_VOICE_PROFILE")
	overrideString(&cfg.Voice.Language, "FJCHAT_VOICE_LANGUAGE")
	overrideFloat(&cfg.Voice.Volume, "FJCHAT_VOICE_VOLUME")
	overrideFloat(&cfg.Voice.Speed, "FJCHAT_VOICE_SPEED")
	overrideInt(&cfg.Queue.Capacity, "FJCHAT_QUEUE_CAPACITY")
	overrideString(&cfg.Synth.Mode, "FJCHAT_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "FJCHAT_SYNTH_COMMAND")
	overrideInt(&cfg.Synth.SampleRate, "FJCHAT_SYNTH_SAMPLE_RATE")
	overrideInt(&cfg.Synth.Channels, "FJCHAT_SYNTH_CHANNELS")
	overrideString(&cfg.Playback.Sink, "FJCHAT_PLAYBACK_SINK")
	overrideString(&cfg.Playback.Dir, "FJCHAT_PLAYBACK_DIR")
	overrideString(&cfg.Playback.Command, "FJCHAT_PLAYBACK_COMMAND")
	overrideString(&cfg.Transcript.Path, "FJCHAT_TRANSCRIPT_PATH")
	overrideString(&cfg.Transcript.RetentionMode, "FJCHAT_TRANSCRIPT_RETENTION_MODE")
	overrideInt(&cfg.Transcript.RetentionDays, "FJCHAT_TRANSCRIPT_RETENTION_DAYS")
	overrideInt(&cfg.Transcript.MaxMessages, "FJCHAT_TRANSCRIPT_MAX_MESSAGES")
	overrideBool(&cfg.Transcript.VacuumOnStart, "FJCHAT_TRANSCRIPT_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	for i, src := range cfg.Sources {
		switch src.Kind {
		case "youtube":
			if src.APIKey == "" {
				return fmt.Errorf("sources[%d]: api_key must be set for youtube", i)
			}
			if src.VideoID == "" {
				return fmt.Errorf("sources[%d]: video_id must be set for youtube", i)
			}
		case "twitch":
			if src.Channel == "" {
				return fmt.Errorf("sources[%d]: channel must be set for twitch", i)
			}
		default:
			return fmt.Errorf("sources[%d]: kind must be one of youtube|twitch", i)
		}
	}
	if cfg.Filters.DedupeWindowMS < 0 {
		return errors.New("filters.dedupe_window_ms must be >= 0")
	}
	if cfg.Filters.DedupeSize <= 0 {
		return errors.New("filters.dedupe_size must be positive")
	}
	if cfg.Filters.MinLength < 0 {
		return errors.New("filters.min_length must be >= 0")
	}
	if cfg.Filters.MaxLength > 0 && cfg.Filters.MaxLength < cfg.Filters.MinLength {
		return errors.New("filters.max_length must be >= filters.min_length")
	}
	for _, pattern := range cfg.Filters.StopPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("filters.stop_patterns: invalid pattern %q: %w", pattern, err)
		}
	}
	if cfg.Toxicity.Enabled {
		switch cfg.Toxicity.Mode {
		case "mock", "http":
		default:
			return errors.New("toxicity.mode must be one of mock|http")
		}
		if cfg.Toxicity.Mode == "http" && cfg.Toxicity.Endpoint == "" {
			return errors.New("toxicity.endpoint must be set when mode=http")
		}
		if cfg.Toxicity.Threshold < 0 || cfg.Toxicity.Threshold > 1 {
			return errors.New("toxicity.threshold must be within [0, 1]")
		}
	}
	if cfg.Translation.Enabled {
		switch cfg.Translation.Mode {
		case "mock", "http":
		default:
			return errors.New("translation.mode must be one of mock|http")
		}
		if cfg.Translation.Mode == "http" && cfg.Translation.Endpoint == "" {
			return errors.New("translation.endpoint must be set when mode=http")
		}
		if cfg.Filters.TargetLanguage == "" {
			return errors.New("filters.target_language must be set when translation is enabled")
		}
	}
	if cfg.Voice.Volume < 0 || cfg.Voice.Volume > 1 {
		return errors.New("voice.volume must be within [0, 1]")
	}
	if cfg.Voice.Speed < 0.5 || cfg.Voice.Speed > 2.0 {
		return errors.New("voice.speed must be within [0.5, 2.0]")
	}
	if cfg.Queue.Capacity <= 0 {
		return errors.New("queue.capacity must be positive")
	}
	switch cfg.Synth.Mode {
	case "mock", "exec":
	default:
		return errors.New("synth.mode must be one of mock|exec")
	}
	if cfg.Synth.Mode == "exec" && cfg.Synth.Command == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.SampleRate <= 0 {
		return errors.New("synth.sample_rate must be positive")
	}
	if cfg.Synth.Channels <= 0 {
		return errors.New("synth.channels must be positive")
	}
	switch cfg.Playback.Sink {
	case "mock", "wav", "exec":
	default:
		return errors.New("playback.sink must be one of mock|wav|exec")
	}
	if cfg.Playback.Sink == "wav" && cfg.Playback.Dir == "" {
		return errors.New("playback.dir must be set when sink=wav")
	}
	if cfg.Playback.Sink == "exec" && cfg.Playback.Command == "" {
		return errors.New("playback.command must be set when sink=exec")
	}
	if cfg.Transcript.Path == "" {
		return errors.New("transcript.path must not be empty")
	}
	switch cfg.Transcript.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("transcript.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Transcript.RetentionDays < 0 {
		return errors.New("transcript.retention_days must be >= 0")
	}
	return nil
}
