package repository

import "time"

type ConferenceStatus string

const (
	ConferenceStatusRunning   ConferenceStatus = "running"
	ConferenceStatusCompleted ConferenceStatus = "completed"
)

type Conference struct {
	ID              string
	GuildID         string
	ChannelID       string
	StartedAt       time.Time
	EndedAt         *time.Time
	Status          ConferenceStatus
	StopReason      string
	DurationSeconds int64
	PeakPublishers  int
	SegmentCount    int
}

type MembershipEventKind string

const (
	MembershipJoined MembershipEventKind = "joined"
	MembershipLeft   MembershipEventKind = "left"
)

// MembershipEvent records a publisher entering or leaving the mix and the
// composition slot it held.
type MembershipEvent struct {
	ConferenceID string
	UserID       string
	Kind         MembershipEventKind
	Slot         int
	OccurredAt   time.Time
}

type TranscriptSegment struct {
	ID           string
	ConferenceID string
	Content      string
	SegmentIndex int
	SpokenAt     time.Time
	CreatedAt    time.Time
}
