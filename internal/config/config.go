package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

// SRTPMasterKeyLen is an AES-128 master key followed by its 14 byte salt.
const SRTPMasterKeyLen = 16 + 14

type Config struct {
	Env                        string
	MetricsAddr                string
	DatabaseURL                string
	DiscordToken               string
	DiscordGuildID             string
	DiscordVCID                string
	TranscribeEnabled          bool
	DefaultTranscribeLanguage  string
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	TranscriptTimezone         string
	TranscriptWebhookURL       string
	SRTPMasterKey              string
	AudioSSRC                  uint32
	VideoSSRC                  uint32
	VideoFocusHoldMs           int
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.TranscribeEnabled {
		for _, req := range c.transcriptionFieldChecks() {
			if req.value == "" {
				return fmt.Errorf("%s is required when TRANSCRIBE_ENABLED=true", req.name)
			}
		}
	}
	if c.AudioSSRC == 0 || c.VideoSSRC == 0 {
		return fmt.Errorf("AUDIO_SSRC and VIDEO_SSRC must be non-zero")
	}
	if c.AudioSSRC == c.VideoSSRC {
		return fmt.Errorf("AUDIO_SSRC and VIDEO_SSRC must differ, both are %d", c.AudioSSRC)
	}
	if c.VideoFocusHoldMs < 0 {
		return fmt.Errorf("VIDEO_FOCUS_HOLD_MS must not be negative, got %d", c.VideoFocusHoldMs)
	}
	if c.SRTPMasterKey != "" {
		if _, err := c.SRTPKeyMaterial(); err != nil {
			return err
		}
	}
	if c.TranscriptTimezone == "" {
		return fmt.Errorf("TRANSCRIPT_TIMEZONE is required")
	}
	if _, err := time.LoadLocation(c.TranscriptTimezone); err != nil {
		return fmt.Errorf("TRANSCRIPT_TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "DISCORD_VC_ID", value: c.DiscordVCID},
	}
}

func (c *Config) transcriptionFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DEFAULT_TRANSCRIBE_LANGUAGE", value: c.DefaultTranscribeLanguage},
		{name: "GOOGLE_CLOUD_PROJECT_ID", value: c.GoogleCloudProjectID},
		{name: "GOOGLE_CLOUD_CREDENTIALS_JSON", value: c.GoogleCloudCredentialsJSON},
	}
}

// SRTPKeyMaterial decodes SRTP_MASTER_KEY. It returns nil when no key is set.
func (c *Config) SRTPKeyMaterial() ([]byte, error) {
	if c.SRTPMasterKey == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(c.SRTPMasterKey)
	if err != nil {
		return nil, fmt.Errorf("SRTP_MASTER_KEY is not valid base64: %w", err)
	}
	if len(raw) != SRTPMasterKeyLen {
		return nil, fmt.Errorf("SRTP_MASTER_KEY must decode to %d bytes, got %d", SRTPMasterKeyLen, len(raw))
	}
	return raw, nil
}

func (c *Config) VideoFocusHold() time.Duration {
	return time.Duration(c.VideoFocusHoldMs) * time.Millisecond
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
