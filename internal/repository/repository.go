package repository

import (
	"context"
	"time"
)

type CreateConferenceInput struct {
	GuildID   string
	ChannelID string
	StartedAt time.Time
}

type CompleteConferenceInput struct {
	ConferenceID    string
	EndedAt         time.Time
	StopReason      string
	DurationSeconds int64
	PeakPublishers  int
	SegmentCount    int
}

type InsertSegmentInput struct {
	ConferenceID string
	Content      string
	SegmentIndex int
	SpokenAt     time.Time
}

type ConferenceRepository interface {
	CreateConference(ctx context.Context, input CreateConferenceInput) (*Conference, error)
	CompleteConference(ctx context.Context, input CompleteConferenceInput) error
	GetRunningConferenceByChannel(ctx context.Context, guildID, channelID string) (*Conference, error)
}

type MembershipRepository interface {
	InsertMembershipEvent(ctx context.Context, event MembershipEvent) error
	ListMembershipEvents(ctx context.Context, conferenceID string) ([]MembershipEvent, error)
}

type TranscriptRepository interface {
	InsertSegment(ctx context.Context, input InsertSegmentInput) error
	ListSegmentsByConferenceID(ctx context.Context, conferenceID string) ([]TranscriptSegment, error)
}

type Repository interface {
	ConferenceRepository
	MembershipRepository
	TranscriptRepository
}
