package conference

import (
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/mcumixer/internal/discord"
	"github.com/foxseedlab/mcumixer/internal/repository"
)

func TestBuildConferenceText(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	startedAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	endedAt := startedAt.Add(2 * time.Minute)
	events := []repository.MembershipEvent{
		{UserID: "u1", Kind: repository.MembershipJoined, Slot: 0, OccurredAt: startedAt},
		{UserID: "u2", Kind: repository.MembershipJoined, Slot: 1, OccurredAt: startedAt.Add(5 * time.Second)},
		{UserID: "u3", Kind: repository.MembershipLeft, Slot: 2, OccurredAt: startedAt.Add(90 * time.Second)},
	}
	segments := []repository.TranscriptSegment{
		{SegmentIndex: 0, SpokenAt: startedAt.Add(15 * time.Second), Content: "こんにちは"},
	}

	body := string(buildConferenceText(discord.ConferenceMetadata{
		GuildName:   "Kemo Server",
		ChannelName: "General VC",
		Members: []discord.Member{
			{UserID: "u2", DisplayName: "Bob"},
			{UserID: "u1", DisplayName: "Alice"},
		},
	}, startedAt, endedAt, "Asia/Tokyo", loc, events, segments))

	for _, want := range []string{
		"サーバー名：Kemo Server",
		"会議期間：2026-10-01 21:00:00 ~ 2026-10-01 21:02:00（Asia/Tokyo）",
		"参加者：Alice、Bob",
		"00:00:00 Alice 入室（スロット 0）",
		"00:00:05 Bob 入室（スロット 1）",
		"00:01:30 u3 退室（スロット 2）",
		"00:00:15 こんにちは",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("%q not found in body: %s", want, body)
		}
	}
}

func TestBuildConferenceText_OmitsEmptyTranscriptSection(t *testing.T) {
	startedAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	body := string(buildConferenceText(discord.ConferenceMetadata{}, startedAt, startedAt, "UTC", nil, nil, nil))

	if strings.Contains(body, "[文字起こし]") {
		t.Fatalf("expected no transcript section: %s", body)
	}
}

func TestBuildConferenceSummaryPayload(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	startedAt := time.Date(2026, 10, 1, 19, 0, 0, 0, loc)
	segments := []repository.TranscriptSegment{
		{SegmentIndex: 0, SpokenAt: startedAt.Add(10 * time.Second), Content: "first"},
		{SegmentIndex: 1, SpokenAt: startedAt.Add(30 * time.Second), Content: "second"},
	}
	events := []repository.MembershipEvent{
		{UserID: "u1", Kind: repository.MembershipJoined, Slot: 0, OccurredAt: startedAt},
	}
	endedAt := startedAt.Add(45 * time.Second)

	payload := buildConferenceSummaryPayload("conference-1", discord.ConferenceMetadata{
		GuildID:   "guild-1",
		ChannelID: "vc-1",
		Members: []discord.Member{
			{UserID: "u2", DisplayName: "bob"},
			{UserID: "u1", DisplayName: "alice"},
			{UserID: "u1", DisplayName: "", IsBot: true},
		},
	}, startedAt, endedAt, "Asia/Tokyo", loc, stopReasonServerClosed, 3, events, segments)

	if payload.SchemaVersion != "2026-10-01" || payload.ConferenceID != "conference-1" {
		t.Fatalf("unexpected identity fields: %+v", payload)
	}
	if payload.DurationSeconds != 45 || payload.PeakPublishers != 3 || payload.StopReason != stopReasonServerClosed {
		t.Fatalf("unexpected totals: %+v", payload)
	}
	if len(payload.Participants) != 2 || payload.Participants[0].DisplayName != "alice" || !payload.Participants[0].IsBot {
		t.Fatalf("participants are not merged and sorted: %+v", payload.Participants)
	}
	if len(payload.MembershipEvents) != 1 || payload.MembershipEvents[0].Kind != "joined" {
		t.Fatalf("unexpected membership events: %+v", payload.MembershipEvents)
	}
	if payload.TranscriptSegments[0].EndAt != segments[1].SpokenAt.Format(time.RFC3339) {
		t.Fatalf("unexpected first segment end_at: %s", payload.TranscriptSegments[0].EndAt)
	}
	if payload.TranscriptSegments[1].EndAt != endedAt.Format(time.RFC3339) {
		t.Fatalf("unexpected second segment end_at: %s", payload.TranscriptSegments[1].EndAt)
	}
	if payload.Transcript != "first\nsecond" {
		t.Fatalf("unexpected transcript: %q", payload.Transcript)
	}
}

func TestFormatElapsedHMS(t *testing.T) {
	if got := formatElapsedHMS(3*time.Hour + 4*time.Minute + 5*time.Second); got != "03:04:05" {
		t.Fatalf("unexpected format: %s", got)
	}
}
