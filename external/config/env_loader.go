package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/mcumixer/internal/config"
)

type envConfig struct {
	Env                        string `env:"ENV" envDefault:"production"`
	MetricsAddr                string `env:"METRICS_ADDR" envDefault:":9090"`
	DatabaseURL                string `env:"DATABASE_URL,required"`
	DiscordToken               string `env:"DISCORD_TOKEN,required"`
	DiscordGuildID             string `env:"DISCORD_GUILD_ID,required"`
	DiscordVCID                string `env:"DISCORD_VC_ID,required"`
	TranscribeEnabled          bool   `env:"TRANSCRIBE_ENABLED" envDefault:"false"`
	DefaultTranscribeLanguage  string `env:"DEFAULT_TRANSCRIBE_LANGUAGE" envDefault:"ja-JP"`
	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"asia-northeast1"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"chirp_3"`
	TranscriptTimezone         string `env:"TRANSCRIPT_TIMEZONE" envDefault:"Asia/Tokyo"`
	TranscriptWebhookURL       string `env:"TRANSCRIPT_WEBHOOK_URL"`
	SRTPMasterKey              string `env:"SRTP_MASTER_KEY"`
	AudioSSRC                  uint32 `env:"AUDIO_SSRC" envDefault:"1001"`
	VideoSSRC                  uint32 `env:"VIDEO_SSRC" envDefault:"2002"`
	VideoFocusHoldMs           int    `env:"VIDEO_FOCUS_HOLD_MS" envDefault:"2000"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		MetricsAddr:                raw.MetricsAddr,
		DatabaseURL:                raw.DatabaseURL,
		DiscordToken:               raw.DiscordToken,
		DiscordGuildID:             raw.DiscordGuildID,
		DiscordVCID:                raw.DiscordVCID,
		TranscribeEnabled:          raw.TranscribeEnabled,
		DefaultTranscribeLanguage:  raw.DefaultTranscribeLanguage,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		TranscriptTimezone:         raw.TranscriptTimezone,
		TranscriptWebhookURL:       raw.TranscriptWebhookURL,
		SRTPMasterKey:              raw.SRTPMasterKey,
		AudioSSRC:                  raw.AudioSSRC,
		VideoSSRC:                  raw.VideoSSRC,
		VideoFocusHoldMs:           raw.VideoFocusHoldMs,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
