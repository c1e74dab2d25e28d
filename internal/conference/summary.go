package conference

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/foxseedlab/mcumixer/internal/discord"
	"github.com/foxseedlab/mcumixer/internal/repository"
	"github.com/foxseedlab/mcumixer/internal/webhook"
)

const conferenceTimeLayout = "2006-01-02 15:04:05"

func buildConferenceText(meta discord.ConferenceMetadata, startedAt, endedAt time.Time, timezone string, loc *time.Location, events []repository.MembershipEvent, segments []repository.TranscriptSegment) []byte {
	loc = safeLocation(loc)
	participants := canonicalMembers(meta.Members)
	names := make([]string, 0, len(participants))
	byUserID := make(map[string]string, len(participants))
	for _, p := range participants {
		names = append(names, p.DisplayName)
		byUserID[p.UserID] = p.DisplayName
	}

	lines := []string{
		fmt.Sprintf("サーバー名：%s", meta.GuildName),
		fmt.Sprintf("ボイスチャンネル名：%s", meta.ChannelName),
		fmt.Sprintf("会議期間：%s ~ %s（%s）", startedAt.In(loc).Format(conferenceTimeLayout), endedAt.In(loc).Format(conferenceTimeLayout), timezone),
		fmt.Sprintf("参加者：%s", strings.Join(names, "、")),
		"",
		"[入退室]",
	}
	for _, ev := range events {
		name := byUserID[ev.UserID]
		if name == "" {
			name = ev.UserID
		}
		verb := "入室"
		if ev.Kind == repository.MembershipLeft {
			verb = "退室"
		}
		lines = append(lines, fmt.Sprintf("%s %s %s（スロット %d）", formatElapsedHMS(nonNegative(ev.OccurredAt.Sub(startedAt))), name, verb, ev.Slot))
	}
	if len(segments) > 0 {
		lines = append(lines, "", "[文字起こし]")
		for _, seg := range segments {
			lines = append(lines, fmt.Sprintf("%s %s", formatElapsedHMS(nonNegative(seg.SpokenAt.Sub(startedAt))), seg.Content))
		}
	}
	return []byte(strings.Join(lines, "\n"))
}

func buildConferenceSummaryPayload(conferenceID string, meta discord.ConferenceMetadata, startedAt, endedAt time.Time, timezone string, loc *time.Location, stopReason string, peak int, events []repository.MembershipEvent, segments []repository.TranscriptSegment) webhook.ConferenceSummaryPayload {
	loc = safeLocation(loc)
	participants := canonicalMembers(meta.Members)
	details := make([]webhook.ConferenceSummaryParticipant, 0, len(participants))
	for _, p := range participants {
		details = append(details, webhook.ConferenceSummaryParticipant{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			IsBot:       p.IsBot,
		})
	}
	membership := make([]webhook.ConferenceSummaryMembershipEvent, 0, len(events))
	for _, ev := range events {
		membership = append(membership, webhook.ConferenceSummaryMembershipEvent{
			UserID:     ev.UserID,
			Kind:       string(ev.Kind),
			Slot:       ev.Slot,
			OccurredAt: ev.OccurredAt.In(loc).Format(time.RFC3339),
		})
	}
	transcript := make([]string, 0, len(segments))
	for _, seg := range segments {
		transcript = append(transcript, seg.Content)
	}

	return webhook.ConferenceSummaryPayload{
		SchemaVersion:           webhook.ConferenceSummarySchemaVersion,
		ConferenceID:            conferenceID,
		DiscordServerID:         meta.GuildID,
		DiscordServerName:       meta.GuildName,
		DiscordVoiceChannelID:   meta.ChannelID,
		DiscordVoiceChannelName: meta.ChannelName,
		StartAt:                 startedAt.In(loc).Format(time.RFC3339),
		EndAt:                   endedAt.In(loc).Format(time.RFC3339),
		Timezone:                timezone,
		DurationSeconds:         int64(nonNegative(endedAt.Sub(startedAt)).Seconds()),
		StopReason:              stopReason,
		PeakPublishers:          peak,
		Participants:            details,
		MembershipEvents:        membership,
		SegmentCount:            len(segments),
		TranscriptSegments:      buildSummarySegments(segments, endedAt, loc),
		Transcript:              strings.Join(transcript, "\n"),
	}
}

// buildSummarySegments closes each segment at the start of the next one,
// or at the end of the conference for the last.
func buildSummarySegments(segments []repository.TranscriptSegment, endedAt time.Time, loc *time.Location) []webhook.ConferenceSummarySegment {
	out := make([]webhook.ConferenceSummarySegment, 0, len(segments))
	for i, seg := range segments {
		end := endedAt
		if i+1 < len(segments) {
			end = segments[i+1].SpokenAt
		}
		if end.Before(seg.SpokenAt) {
			end = seg.SpokenAt
		}
		out = append(out, webhook.ConferenceSummarySegment{
			Index:      seg.SegmentIndex,
			StartAt:    seg.SpokenAt.In(loc).Format(time.RFC3339),
			EndAt:      end.In(loc).Format(time.RFC3339),
			Transcript: seg.Content,
		})
	}
	return out
}

func canonicalMembers(members []discord.Member) []discord.Member {
	byUserID := make(map[string]discord.Member, len(members))
	for _, p := range members {
		if strings.TrimSpace(p.UserID) == "" {
			continue
		}
		byUserID[p.UserID] = mergeMember(byUserID[p.UserID], p)
	}
	list := make([]discord.Member, 0, len(byUserID))
	for _, p := range byUserID {
		if p.DisplayName == "" {
			p.DisplayName = p.UserID
		}
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		in, jn := strings.ToLower(list[i].DisplayName), strings.ToLower(list[j].DisplayName)
		if in != jn {
			return in < jn
		}
		return list[i].UserID < list[j].UserID
	})
	return list
}

func mergeMember(existing, incoming discord.Member) discord.Member {
	if existing.UserID == "" {
		if incoming.DisplayName == "" {
			incoming.DisplayName = incoming.UserID
		}
		return incoming
	}
	if existing.DisplayName == existing.UserID && incoming.DisplayName != "" {
		existing.DisplayName = incoming.DisplayName
	}
	existing.IsBot = existing.IsBot || incoming.IsBot
	return existing
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func nonNegative(d time.Duration) time.Duration {
	return max(d, 0)
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
