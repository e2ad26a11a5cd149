// Package config provides configuration management for the kiosk guide.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Greeting GreetingConfig `mapstructure:"greeting"`
	TTS      TTSConfig      `mapstructure:"tts"`
	STT      STTConfig      `mapstructure:"stt"`
	Presence PresenceConfig `mapstructure:"presence"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Document DocumentConfig `mapstructure:"document"`
	Frontend FrontendConfig `mapstructure:"frontend"`
}

// EngineConfig configures conversation behavior
type EngineConfig struct {
	Language            string        `mapstructure:"language"`
	MaxHistoryLength    int           `mapstructure:"max_history_length"`
	ConversationTimeout time.Duration `mapstructure:"conversation_timeout"`
	ChatCountThreshold  int           `mapstructure:"chat_count_threshold"`
	VisibleTurns        int           `mapstructure:"visible_turns"`
	// BlockedWords overrides the built-in transcript profanity blocklist
	BlockedWords []string `mapstructure:"blocked_words"`
	// LipSync selects the mouth signal: "cadence" (default) or "timeline"
	LipSync string `mapstructure:"lip_sync"`
}

// LLMConfig configures the response generator
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// GreetingConfig configures the presence-triggered greeting generator
type GreetingConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// TTSConfig configures speech synthesis
type TTSConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	VoiceID         string  `mapstructure:"voice_id"`
	ModelID         string  `mapstructure:"model_id"`
	Stability       float64 `mapstructure:"stability"`
	SimilarityBoost float64 `mapstructure:"similarity_boost"`
	// On-device fallback synthesizer
	FallbackRate   float64 `mapstructure:"fallback_rate"`
	FallbackPitch  float64 `mapstructure:"fallback_pitch"`
	FallbackVolume float64 `mapstructure:"fallback_volume"`
}

// STTConfig configures speech recognition
type STTConfig struct {
	ServerURL string        `mapstructure:"server_url"` // WebSocket recognizer endpoint; empty means text-only input
	Language  string        `mapstructure:"language"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// PresenceConfig configures the camera presence feed
type PresenceConfig struct {
	ServerURL      string        `mapstructure:"server_url"` // WebSocket detection feed; empty disables greetings
	ScoreThreshold float64       `mapstructure:"score_threshold"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// BackendConfig configures the session/feedback service
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DocumentConfig configures the knowledge document source
type DocumentConfig struct {
	Source string `mapstructure:"source"` // HTTP(S) URL or local file path
	Watch  bool   `mapstructure:"watch"`  // Reload on change (file sources only)
}

// FrontendConfig configures the display feed server
type FrontendConfig struct {
	Addr string `mapstructure:"addr"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Language:            "en-US",
			MaxHistoryLength:    20,
			ConversationTimeout: 5 * time.Minute,
			ChatCountThreshold:  3,
			VisibleTurns:        3,
			LipSync:             "cadence",
		},
		LLM: LLMConfig{
			Model:       "gemini-2.0-flash",
			MaxTokens:   350,
			Temperature: 0.6,
			Timeout:     30 * time.Second,
		},
		Greeting: GreetingConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   150,
			Temperature: 0.8,
			Timeout:     15 * time.Second,
		},
		TTS: TTSConfig{
			ModelID:         "eleven_monolingual_v1",
			Stability:       0.5,
			SimilarityBoost: 0.75,
			FallbackRate:    0.9,
			FallbackPitch:   1.0,
			FallbackVolume:  0.8,
		},
		STT: STTConfig{
			Language: "en-US",
			Timeout:  30 * time.Second,
		},
		Presence: PresenceConfig{
			ScoreThreshold: 0.5,
			Cooldown:       750 * time.Second,
			ReconnectDelay: 5 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:3000",
			Timeout: 15 * time.Second,
		},
		Document: DocumentConfig{
			Source: "sciencecenter.txt",
			Watch:  true,
		},
		Frontend: FrontendConfig{
			Addr: "127.0.0.1:8765",
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := Dir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("KIOSKGUIDE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	// API keys come from the environment when not in the file
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Greeting.APIKey == "" {
		cfg.Greeting.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.TTS.APIKey == "" {
		cfg.TTS.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("engine", cfg.Engine)
	viper.Set("llm", cfg.LLM)
	viper.Set("greeting", cfg.Greeting)
	viper.Set("tts", cfg.TTS)
	viper.Set("stt", cfg.STT)
	viper.Set("presence", cfg.Presence)
	viper.Set("backend", cfg.Backend)
	viper.Set("document", cfg.Document)
	viper.Set("frontend", cfg.Frontend)

	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}

// Dir returns the configuration directory path
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".kioskguide"), nil
}
