package airtable

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/novapulse/pwa-bridge/internal/bridge"
	"github.com/novapulse/pwa-bridge/internal/identity"
)

type storeCall struct {
	Method string
	Path   string
	Query  map[string]string
	Body   map[string]any
}

func newStoreServer(t *testing.T, status int, response string) (*httptest.Server, *[]storeCall) {
	t.Helper()
	var calls []storeCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := storeCall{Method: r.Method, Path: r.URL.Path, Query: map[string]string{}}
		for k := range r.URL.Query() {
			call.Query[k] = r.URL.Query().Get(k)
		}
		if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPatch) {
			_ = json.NewDecoder(r.Body).Decode(&call.Body)
		}
		calls = append(calls, call)

		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newDirectory(t *testing.T, status int, response string) (*Directory, *[]storeCall) {
	srv, calls := newStoreServer(t, status, response)
	client := NewClient("key", "base", WithBaseURL(srv.URL))
	return NewDirectory(client, "pwa_clients"), calls
}

func TestDirectory_FindByIdentity(t *testing.T) {
	d, calls := newDirectory(t, http.StatusOK, `{"records":[
		{"id":"recA","fields":{"email":"bob@example.com","seller_slug":"shopx","topic_id":"77","note":"• VIP","control_message_id":"42"}}
	]}`)

	rec, err := d.FindByIdentity(context.Background(), identity.Normalize("bob@example.com", "shopx"))
	require.NoError(t, err)
	require.Equal(t, "recA", rec.RecordID)
	require.Equal(t, "77", rec.ThreadID)
	require.Equal(t, "• VIP", rec.Note)
	require.Equal(t, "42", rec.ControlMessageID)

	call := (*calls)[0]
	require.Equal(t, "/v0/base/pwa_clients", call.Path)
	require.Equal(t, "AND({email}='bob@example.com', {seller_slug}='shopx')", call.Query["filterByFormula"])
	require.Equal(t, "1", call.Query["maxRecords"])
}

func TestDirectory_FindByThreadID(t *testing.T) {
	d, calls := newDirectory(t, http.StatusOK, `{"records":[
		{"id":"recA","fields":{"email":"bob@example.com","seller_slug":"shopx","topic_id":"77"}}
	]}`)

	rec, err := d.FindByThreadID(context.Background(), "77")
	require.NoError(t, err)
	require.Equal(t, identity.Normalize("bob@example.com", "shopx"), rec.Identity)
	require.Equal(t, "{topic_id}='77'", (*calls)[0].Query["filterByFormula"])
}

func TestDirectory_NotFound(t *testing.T) {
	d, _ := newDirectory(t, http.StatusOK, `{"records":[]}`)

	_, err := d.FindByIdentity(context.Background(), identity.Normalize("nobody@x.com", "shopx"))
	require.ErrorIs(t, err, bridge.ErrNotFound)
}

func TestDirectory_FormulaEscapesQuotes(t *testing.T) {
	d, calls := newDirectory(t, http.StatusOK, `{"records":[]}`)

	_, _ = d.FindByIdentity(context.Background(), identity.Normalize("o'brien@x.com", "shopx"))
	require.Contains(t, (*calls)[0].Query["filterByFormula"], `o\'brien@x.com`)
}

func TestDirectory_Create(t *testing.T) {
	d, calls := newDirectory(t, http.StatusOK, `{"id":"recNew","fields":{"email":"bob@example.com","seller_slug":"shopx"}}`)

	rec, err := d.Create(context.Background(), identity.Normalize("bob@example.com", "shopx"))
	require.NoError(t, err)
	require.Equal(t, "recNew", rec.RecordID)

	call := (*calls)[0]
	require.Equal(t, http.MethodPost, call.Method)
	fields := call.Body["fields"].(map[string]any)
	require.Equal(t, "bob@example.com", fields["email"])
	require.Equal(t, "shopx", fields["seller_slug"])
}

func TestDirectory_AppendNote(t *testing.T) {
	d, calls := newDirectory(t, http.StatusOK, `{"id":"recA","fields":{}}`)
	rec := &bridge.ConversationRecord{RecordID: "recA", Note: "• A"}

	merged, err := d.AppendNote(context.Background(), rec, "B")
	require.NoError(t, err)
	require.Equal(t, "• A\n• B", merged)
	require.Equal(t, "• A\n• B", rec.Note)

	call := (*calls)[0]
	require.Equal(t, http.MethodPatch, call.Method)
	require.Equal(t, "/v0/base/pwa_clients/recA", call.Path)
	fields := call.Body["fields"].(map[string]any)
	require.Equal(t, "• A\n• B", fields["note"])
}

func TestDirectory_AppendNote_EmptyNoOp(t *testing.T) {
	d, calls := newDirectory(t, http.StatusOK, `{}`)
	rec := &bridge.ConversationRecord{RecordID: "recA", Note: "• A"}

	merged, err := d.AppendNote(context.Background(), rec, "  ")
	require.NoError(t, err)
	require.Equal(t, "• A", merged)
	require.Empty(t, *calls)
}

func TestDirectory_StoreError(t *testing.T) {
	d, _ := newDirectory(t, http.StatusUnprocessableEntity, `{"error":"INVALID_FILTER"}`)

	_, err := d.FindByIdentity(context.Background(), identity.Normalize("a@x.com", "s"))
	var de *bridge.DeliveryError
	require.ErrorAs(t, err, &de)
	require.Equal(t, http.StatusUnprocessableEntity, de.Status)
	require.Equal(t, "airtable", de.System)
}

func TestTranscript_Append(t *testing.T) {
	srv, calls := newStoreServer(t, http.StatusOK, `{"id":"recM","fields":{}}`)
	tr := NewTranscript(NewClient("key", "base", WithBaseURL(srv.URL)), "pwa_messages")

	createdAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	err := tr.Append(context.Background(), &bridge.TranscriptEntry{
		Identity:  identity.Normalize("bob@example.com", "shopx"),
		ThreadID:  "77",
		Sender:    bridge.SenderClient,
		Text:      "hello",
		CreatedAt: createdAt,
	})
	require.NoError(t, err)

	fields := (*calls)[0].Body["fields"].(map[string]any)
	require.Equal(t, "bob@example.com", fields["email"])
	require.Equal(t, "client", fields["sender"])
	require.Equal(t, "hello", fields["text"])
	require.Equal(t, "2026-08-01T12:00:00Z", fields["created_at"])
}

func TestTranscript_RecentForReversesAndBounds(t *testing.T) {
	// The store returns newest-first; callers must see oldest-first.
	srv, calls := newStoreServer(t, http.StatusOK, `{"records":[
		{"id":"r3","fields":{"email":"a@x.com","seller_slug":"sellera","sender":"admin","text":"third","created_at":"2026-08-01T12:02:00Z"}},
		{"id":"r2","fields":{"email":"a@x.com","seller_slug":"sellera","sender":"client","text":"second","created_at":"2026-08-01T12:01:00Z"}},
		{"id":"r1","fields":{"email":"a@x.com","seller_slug":"sellera","sender":"client","text":"first","created_at":"2026-08-01T12:00:00Z"}}
	]}`)
	tr := NewTranscript(NewClient("key", "base", WithBaseURL(srv.URL)), "pwa_messages")

	entries, err := tr.RecentFor(context.Background(), identity.Normalize("a@x.com", "sellera"), "", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "first", entries[0].Text)
	require.Equal(t, "third", entries[2].Text)
	require.True(t, entries[0].CreatedAt.Before(entries[2].CreatedAt))

	call := (*calls)[0]
	require.Equal(t, "3", call.Query["maxRecords"])
	require.Equal(t, "created_at", call.Query["sort[0][field]"])
	require.Equal(t, "desc", call.Query["sort[0][direction]"])
}

func TestTranscript_RecentForFiltersThread(t *testing.T) {
	srv, calls := newStoreServer(t, http.StatusOK, `{"records":[]}`)
	tr := NewTranscript(NewClient("key", "base", WithBaseURL(srv.URL)), "pwa_messages")

	_, err := tr.RecentFor(context.Background(), identity.Normalize("a@x.com", "sellera"), "77", 10)
	require.NoError(t, err)
	require.Equal(t,
		"AND({email}='a@x.com', {seller_slug}='sellera', {topic_id}='77')",
		(*calls)[0].Query["filterByFormula"])
}
