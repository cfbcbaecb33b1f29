package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/novapulse/pwa-bridge/internal/bridge"
	"github.com/novapulse/pwa-bridge/internal/identity"
)

// Transcript implements bridge.Transcript on Postgres.
//
// Schema:
//
//	CREATE TABLE messages (
//	    id          BIGSERIAL PRIMARY KEY,
//	    email       TEXT NOT NULL,
//	    seller_slug TEXT NOT NULL,
//	    topic_id    TEXT NOT NULL DEFAULT '',
//	    sender      TEXT NOT NULL,
//	    text        TEXT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type Transcript struct {
	db *sql.DB
}

func NewTranscript(db *sql.DB) *Transcript {
	return &Transcript{db: db}
}

func (t *Transcript) Append(ctx context.Context, entry *bridge.TranscriptEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO messages (email, seller_slug, topic_id, sender, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		entry.Identity.Email,
		entry.Identity.SellerSlug,
		entry.ThreadID,
		string(entry.Sender),
		entry.Text,
		createdAt,
	)
	return err
}

func (t *Transcript) RecentFor(ctx context.Context, id identity.Identity, threadID string, limit int) ([]bridge.TranscriptEntry, error) {
	// Newest-first inner query bounds the page at limit; the outer ORDER BY
	// restores chronological order for callers.
	query := `
		SELECT email, seller_slug, topic_id, sender, text, created_at FROM (
			SELECT email, seller_slug, topic_id, sender, text, created_at
			FROM messages
			WHERE email = $1 AND seller_slug = $2 AND ($3 = '' OR topic_id = $3)
			ORDER BY created_at DESC
			LIMIT $4
		) recent
		ORDER BY created_at ASC
	`
	rows, err := t.db.QueryContext(ctx, query, id.Email, id.SellerSlug, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bridge.TranscriptEntry
	for rows.Next() {
		var e bridge.TranscriptEntry
		var email, slug, sender string
		if err := rows.Scan(&email, &slug, &e.ThreadID, &sender, &e.Text, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Identity = identity.Normalize(email, slug)
		e.Sender = bridge.Sender(sender)
		out = append(out, e)
	}
	return out, rows.Err()
}
