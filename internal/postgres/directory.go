package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/novapulse/pwa-bridge/internal/bridge"
	"github.com/novapulse/pwa-bridge/internal/identity"
)

// Directory implements bridge.Directory on Postgres for deployments that
// keep the durable record locally instead of the hosted record store.
//
// Schema:
//
//	CREATE TABLE conversations (
//	    id                 BIGSERIAL PRIMARY KEY,
//	    email              TEXT NOT NULL,
//	    seller_slug        TEXT NOT NULL,
//	    topic_id           TEXT NOT NULL DEFAULT '',
//	    note               TEXT NOT NULL DEFAULT '',
//	    control_message_id TEXT NOT NULL DEFAULT ''
//	);
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) FindByIdentity(ctx context.Context, id identity.Identity) (*bridge.ConversationRecord, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, email, seller_slug, topic_id, note, control_message_id
		FROM conversations
		WHERE email = $1 AND seller_slug = $2
		ORDER BY id ASC
		LIMIT 1
	`, id.Email, id.SellerSlug)
	return scanRecord(row)
}

func (d *Directory) FindByThreadID(ctx context.Context, threadID string) (*bridge.ConversationRecord, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, email, seller_slug, topic_id, note, control_message_id
		FROM conversations
		WHERE topic_id = $1
		ORDER BY id ASC
		LIMIT 1
	`, threadID)
	return scanRecord(row)
}

func (d *Directory) Create(ctx context.Context, id identity.Identity) (*bridge.ConversationRecord, error) {
	var recordID string
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO conversations (email, seller_slug)
		VALUES ($1, $2)
		RETURNING id::text
	`, id.Email, id.SellerSlug).Scan(&recordID)
	if err != nil {
		return nil, err
	}
	return &bridge.ConversationRecord{RecordID: recordID, Identity: id}, nil
}

func (d *Directory) SetThreadID(ctx context.Context, rec *bridge.ConversationRecord, threadID string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE conversations SET topic_id = $1 WHERE id = $2::bigint
	`, threadID, rec.RecordID)
	if err != nil {
		return err
	}
	rec.ThreadID = threadID
	return nil
}

func (d *Directory) AppendNote(ctx context.Context, rec *bridge.ConversationRecord, text string) (string, error) {
	merged := bridge.AppendNoteText(rec.Note, text)
	if merged == rec.Note {
		return rec.Note, nil
	}
	_, err := d.db.ExecContext(ctx, `
		UPDATE conversations SET note = $1 WHERE id = $2::bigint
	`, merged, rec.RecordID)
	if err != nil {
		return "", err
	}
	rec.Note = merged
	return merged, nil
}

func (d *Directory) SetControlMessageID(ctx context.Context, rec *bridge.ConversationRecord, messageID string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE conversations SET control_message_id = $1 WHERE id = $2::bigint
	`, messageID, rec.RecordID)
	if err != nil {
		return err
	}
	rec.ControlMessageID = messageID
	return nil
}

func scanRecord(row *sql.Row) (*bridge.ConversationRecord, error) {
	var rec bridge.ConversationRecord
	var email, slug string
	err := row.Scan(&rec.RecordID, &email, &slug, &rec.ThreadID, &rec.Note, &rec.ControlMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bridge.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Identity = identity.Normalize(email, slug)
	return &rec, nil
}
