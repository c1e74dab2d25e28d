package repository

import (
	"context"
	"errors"
	"time"

	"github.com/foxseedlab/mcumixer/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

const conferenceColumns = `id, guild_id, channel_id, started_at, ended_at, status, stop_reason, duration_seconds, peak_publishers, segment_count`

func scanConference(row pgx.Row) (*repository.Conference, error) {
	var c repository.Conference
	var endedAt *time.Time
	err := row.Scan(&c.ID, &c.GuildID, &c.ChannelID, &c.StartedAt, &endedAt, &c.Status,
		&c.StopReason, &c.DurationSeconds, &c.PeakPublishers, &c.SegmentCount)
	if err != nil {
		return nil, err
	}
	c.EndedAt = endedAt
	return &c, nil
}

func (r *PostgresRepository) CreateConference(ctx context.Context, input repository.CreateConferenceInput) (*repository.Conference, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO conferences (guild_id, channel_id, started_at, status)
		 VALUES ($1, $2, $3, 'running')
		 RETURNING `+conferenceColumns,
		input.GuildID, input.ChannelID, input.StartedAt)
	return scanConference(row)
}

func (r *PostgresRepository) CompleteConference(ctx context.Context, input repository.CompleteConferenceInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE conferences
		 SET status = 'completed', ended_at = $2, stop_reason = $3,
		     duration_seconds = $4, peak_publishers = $5, segment_count = $6
		 WHERE id = $1`,
		input.ConferenceID, input.EndedAt, input.StopReason,
		input.DurationSeconds, input.PeakPublishers, input.SegmentCount)
	return err
}

func (r *PostgresRepository) GetRunningConferenceByChannel(ctx context.Context, guildID, channelID string) (*repository.Conference, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+conferenceColumns+`
		 FROM conferences WHERE guild_id = $1 AND channel_id = $2 AND status = 'running'
		 LIMIT 1`,
		guildID, channelID)
	c, err := scanConference(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) InsertMembershipEvent(ctx context.Context, event repository.MembershipEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO membership_events (conference_id, user_id, kind, slot, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ConferenceID, event.UserID, string(event.Kind), event.Slot, event.OccurredAt)
	return err
}

func (r *PostgresRepository) ListMembershipEvents(ctx context.Context, conferenceID string) ([]repository.MembershipEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT conference_id, user_id, kind, slot, occurred_at
		 FROM membership_events WHERE conference_id = $1 ORDER BY occurred_at ASC, id ASC`,
		conferenceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.MembershipEvent, error) {
		var ev repository.MembershipEvent
		var kind string
		err := row.Scan(&ev.ConferenceID, &ev.UserID, &kind, &ev.Slot, &ev.OccurredAt)
		ev.Kind = repository.MembershipEventKind(kind)
		return ev, err
	})
}

func (r *PostgresRepository) InsertSegment(ctx context.Context, input repository.InsertSegmentInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcript_segments (conference_id, content, segment_index, spoken_at)
		 VALUES ($1, $2, $3, $4)`,
		input.ConferenceID, input.Content, input.SegmentIndex, input.SpokenAt)
	return err
}

func (r *PostgresRepository) ListSegmentsByConferenceID(ctx context.Context, conferenceID string) ([]repository.TranscriptSegment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, conference_id, content, segment_index, spoken_at, created_at
		 FROM transcript_segments WHERE conference_id = $1 ORDER BY segment_index ASC`,
		conferenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.TranscriptSegment
	for rows.Next() {
		var seg repository.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.ConferenceID, &seg.Content, &seg.SegmentIndex, &seg.SpokenAt, &seg.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, seg)
	}
	return list, rows.Err()
}
