package airtable

import (
	"context"
	"time"

	"github.com/novapulse/pwa-bridge/internal/bridge"
	"github.com/novapulse/pwa-bridge/internal/identity"
)

const (
	fieldSender    = "sender"
	fieldText      = "text"
	fieldCreatedAt = "created_at"
)

// Transcript implements bridge.Transcript over the PWA messages table.
// Entries are append-only; created_at is written explicitly so reads can
// sort on it.
type Transcript struct {
	client *Client
	table  string
}

func NewTranscript(client *Client, table string) *Transcript {
	return &Transcript{client: client, table: table}
}

func (t *Transcript) Append(ctx context.Context, entry *bridge.TranscriptEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := t.client.createRecord(ctx, t.table, map[string]any{
		fieldEmail:      entry.Identity.Email,
		fieldSellerSlug: entry.Identity.SellerSlug,
		fieldTopicID:    entry.ThreadID,
		fieldSender:     string(entry.Sender),
		fieldText:       entry.Text,
		fieldCreatedAt:  createdAt.UTC().Format(time.RFC3339),
	})
	return err
}

// RecentFor queries newest-first to bound the page at limit, then reverses:
// callers always see oldest→newest.
func (t *Transcript) RecentFor(ctx context.Context, id identity.Identity, threadID string, limit int) ([]bridge.TranscriptEntry, error) {
	preds := []string{
		formulaEq(fieldEmail, id.Email),
		formulaEq(fieldSellerSlug, id.SellerSlug),
	}
	if threadID != "" {
		preds = append(preds, formulaEq(fieldTopicID, threadID))
	}

	records, err := t.client.selectRecords(ctx, t.table, selectQuery{
		formula:    formulaAnd(preds...),
		maxRecords: limit,
		sortField:  fieldCreatedAt,
		sortDesc:   true,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]bridge.TranscriptEntry, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		createdAt, perr := time.Parse(time.RFC3339, rec.Str(fieldCreatedAt))
		if perr != nil {
			createdAt = rec.CreatedTime
		}
		entries = append(entries, bridge.TranscriptEntry{
			Identity:  identity.Normalize(rec.Str(fieldEmail), rec.Str(fieldSellerSlug)),
			ThreadID:  rec.Str(fieldTopicID),
			Sender:    bridge.Sender(rec.Str(fieldSender)),
			Text:      rec.Str(fieldText),
			CreatedAt: createdAt,
		})
	}
	return entries, nil
}
