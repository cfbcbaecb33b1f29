package airtable

import (
	"context"

	"github.com/novapulse/pwa-bridge/internal/bridge"
	"github.com/novapulse/pwa-bridge/internal/identity"
)

// Field names in the client directory table.
const (
	fieldEmail            = "email"
	fieldSellerSlug       = "seller_slug"
	fieldTopicID          = "topic_id"
	fieldNote             = "note"
	fieldControlMessageID = "control_message_id"
)

// Directory implements bridge.Directory over the PWA clients table.
type Directory struct {
	client *Client
	table  string
}

func NewDirectory(client *Client, table string) *Directory {
	return &Directory{client: client, table: table}
}

func (d *Directory) FindByIdentity(ctx context.Context, id identity.Identity) (*bridge.ConversationRecord, error) {
	formula := formulaAnd(
		formulaEq(fieldEmail, id.Email),
		formulaEq(fieldSellerSlug, id.SellerSlug),
	)
	return d.findOne(ctx, formula)
}

func (d *Directory) FindByThreadID(ctx context.Context, threadID string) (*bridge.ConversationRecord, error) {
	return d.findOne(ctx, formulaEq(fieldTopicID, threadID))
}

func (d *Directory) findOne(ctx context.Context, formula string) (*bridge.ConversationRecord, error) {
	records, err := d.client.selectRecords(ctx, d.table, selectQuery{
		formula:    formula,
		maxRecords: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, bridge.ErrNotFound
	}
	return toConversationRecord(records[0]), nil
}

func (d *Directory) Create(ctx context.Context, id identity.Identity) (*bridge.ConversationRecord, error) {
	rec, err := d.client.createRecord(ctx, d.table, map[string]any{
		fieldEmail:      id.Email,
		fieldSellerSlug: id.SellerSlug,
	})
	if err != nil {
		return nil, err
	}
	return toConversationRecord(rec), nil
}

func (d *Directory) SetThreadID(ctx context.Context, rec *bridge.ConversationRecord, threadID string) error {
	if err := d.client.updateRecord(ctx, d.table, rec.RecordID, map[string]any{
		fieldTopicID: threadID,
	}); err != nil {
		return err
	}
	rec.ThreadID = threadID
	return nil
}

// AppendNote concatenates "• text" as a new line. Never overwrites.
func (d *Directory) AppendNote(ctx context.Context, rec *bridge.ConversationRecord, text string) (string, error) {
	merged := bridge.AppendNoteText(rec.Note, text)
	if merged == rec.Note {
		return rec.Note, nil
	}
	if err := d.client.updateRecord(ctx, d.table, rec.RecordID, map[string]any{
		fieldNote: merged,
	}); err != nil {
		return "", err
	}
	rec.Note = merged
	return merged, nil
}

func (d *Directory) SetControlMessageID(ctx context.Context, rec *bridge.ConversationRecord, messageID string) error {
	if err := d.client.updateRecord(ctx, d.table, rec.RecordID, map[string]any{
		fieldControlMessageID: messageID,
	}); err != nil {
		return err
	}
	rec.ControlMessageID = messageID
	return nil
}

func toConversationRecord(rec Record) *bridge.ConversationRecord {
	return &bridge.ConversationRecord{
		RecordID:         rec.ID,
		Identity:         identity.Normalize(rec.Str(fieldEmail), rec.Str(fieldSellerSlug)),
		ThreadID:         rec.Str(fieldTopicID),
		Note:             rec.Str(fieldNote),
		ControlMessageID: rec.Str(fieldControlMessageID),
	}
}
