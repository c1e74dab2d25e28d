package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE conference_status AS ENUM ('running', 'completed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN CREATE TYPE membership_event_kind AS ENUM ('joined', 'left'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS conferences (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		guild_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status conference_status NOT NULL DEFAULT 'running',
		stop_reason TEXT NOT NULL DEFAULT '',
		duration_seconds BIGINT NOT NULL DEFAULT 0,
		peak_publishers INTEGER NOT NULL DEFAULT 0,
		segment_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conferences_running ON conferences (guild_id, channel_id) WHERE status = 'running'`,
	`CREATE TABLE IF NOT EXISTS membership_events (
		id BIGSERIAL PRIMARY KEY,
		conference_id UUID NOT NULL REFERENCES conferences(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		kind membership_event_kind NOT NULL,
		slot INTEGER NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_membership_events_conference ON membership_events (conference_id, occurred_at)`,
	`CREATE TABLE IF NOT EXISTS transcript_segments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		conference_id UUID NOT NULL REFERENCES conferences(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		segment_index INTEGER NOT NULL,
		spoken_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(conference_id, segment_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcript_segments_conference ON transcript_segments (conference_id, segment_index)`,
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func RunMigration(ctx context.Context, db execer) error {
	for i, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}
	return nil
}
