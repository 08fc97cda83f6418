package postgres

import (
	"context"
	"fmt"
)

// schema creates the progress table. identity_key is "user:<id>" or
// "anon:<uuid>"; user_id/anonymous_token are kept for ad-hoc queries.
const schema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id                 UUID PRIMARY KEY,
	identity_key       TEXT NOT NULL,
	user_id            TEXT,
	anonymous_token    UUID,
	content_id         TEXT NOT NULL,
	content_type       TEXT NOT NULL CHECK (content_type IN ('leaf', 'grouping', 'container')),
	content_title      TEXT NOT NULL DEFAULT '',
	total_time_spent_s BIGINT NOT NULL DEFAULT 0 CHECK (total_time_spent_s >= 0),
	completed_at       TIMESTAMPTZ,
	time_to_complete_s BIGINT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT %[1]s_identity_content_key UNIQUE (identity_key, content_id),
	CONSTRAINT %[1]s_one_identity CHECK ((user_id IS NULL) <> (anonymous_token IS NULL)),
	CONSTRAINT %[1]s_snapshot_pair CHECK ((completed_at IS NULL) = (time_to_complete_s IS NULL))
);
CREATE INDEX IF NOT EXISTS %[1]s_user_idx ON %[1]s (user_id) WHERE user_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS %[1]s_anon_idx ON %[1]s (anonymous_token) WHERE anonymous_token IS NOT NULL;
`

// Migrate creates the progress table and indexes if they are missing.
func (s *ProgressStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(schema, s.table)); err != nil {
		return fmt.Errorf("apply progress schema: %w", err)
	}
	return nil
}
