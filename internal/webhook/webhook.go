package webhook

import "context"

const ConferenceSummarySchemaVersion = "2026-10-01"

type ConferenceSummaryParticipant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsBot       bool   `json:"is_bot"`
}

type ConferenceSummaryMembershipEvent struct {
	UserID     string `json:"user_id"`
	Kind       string `json:"kind"`
	Slot       int    `json:"slot"`
	OccurredAt string `json:"occurred_at"`
}

type ConferenceSummarySegment struct {
	Index      int    `json:"index"`
	StartAt    string `json:"start_at"`
	EndAt      string `json:"end_at"`
	Transcript string `json:"transcript"`
}

type ConferenceSummaryPayload struct {
	SchemaVersion           string                             `json:"schema_version"`
	ConferenceID            string                             `json:"conference_id"`
	DiscordServerID         string                             `json:"discord_server_id"`
	DiscordServerName       string                             `json:"discord_server_name"`
	DiscordVoiceChannelID   string                             `json:"discord_voice_channel_id"`
	DiscordVoiceChannelName string                             `json:"discord_voice_channel_name"`
	StartAt                 string                             `json:"start_at"`
	EndAt                   string                             `json:"end_at"`
	Timezone                string                             `json:"timezone"`
	DurationSeconds         int64                              `json:"duration_seconds"`
	StopReason              string                             `json:"stop_reason"`
	PeakPublishers          int                                `json:"peak_publishers"`
	Participants            []ConferenceSummaryParticipant     `json:"participants"`
	MembershipEvents        []ConferenceSummaryMembershipEvent `json:"membership_events"`
	SegmentCount            int                                `json:"segment_count"`
	TranscriptSegments      []ConferenceSummarySegment         `json:"transcript_segments"`
	Transcript              string                             `json:"transcript"`
}

type Sender interface {
	SendConferenceSummary(ctx context.Context, payload ConferenceSummaryPayload) error
}
