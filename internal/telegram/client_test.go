package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/novapulse/pwa-bridge/internal/bridge"
)

type apiCall struct {
	Path string
	Body map[string]any
}

func newTestServer(t *testing.T, status int, result string) (*httptest.Server, *[]apiCall) {
	t.Helper()
	var calls []apiCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, apiCall{Path: r.URL.Path, Body: body})

		w.WriteHeader(status)
		if status < 300 {
			w.Write([]byte(`{"ok":true,"result":` + result + `}`))
		} else {
			w.Write([]byte(`{"ok":false,"description":"boom"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSendToThread(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"message_id":42}`)
	c := NewClient("TOKEN", -100123, WithBaseURL(srv.URL))

	msgID, err := c.SendToThread(context.Background(), "77", "hello", []bridge.Button{
		{Label: "➕ Add note", Action: "add_note"},
	})
	require.NoError(t, err)
	require.Equal(t, "42", msgID)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, "/botTOKEN/sendMessage", call.Path)
	require.Equal(t, float64(-100123), call.Body["chat_id"])
	require.Equal(t, float64(77), call.Body["message_thread_id"])
	require.Equal(t, "hello", call.Body["text"])
	require.Contains(t, call.Body, "reply_markup")
}

func TestSendToThread_NoButtonsNoMarkup(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"message_id":1}`)
	c := NewClient("TOKEN", -100123, WithBaseURL(srv.URL))

	_, err := c.SendToThread(context.Background(), "77", "plain", nil)
	require.NoError(t, err)
	require.NotContains(t, (*calls)[0].Body, "reply_markup")
}

func TestSendToThread_BadThreadID(t *testing.T) {
	c := NewClient("TOKEN", -100123)
	_, err := c.SendToThread(context.Background(), "not-a-number", "hello", nil)

	var de *bridge.DeliveryError
	require.ErrorAs(t, err, &de)
}

func TestSendToThread_TransportFailure(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusBadGateway, "")
	c := NewClient("TOKEN", -100123, WithBaseURL(srv.URL))

	_, err := c.SendToThread(context.Background(), "77", "hello", nil)

	var de *bridge.DeliveryError
	require.ErrorAs(t, err, &de)
	require.Equal(t, http.StatusBadGateway, de.Status)
	require.Equal(t, "telegram", de.System)
}

func TestEditMessage(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `true`)
	c := NewClient("TOKEN", -100123, WithBaseURL(srv.URL))

	err := c.EditMessage(context.Background(), "42", "updated panel", nil)
	require.NoError(t, err)

	call := (*calls)[0]
	require.Equal(t, "/botTOKEN/editMessageText", call.Path)
	require.Equal(t, float64(42), call.Body["message_id"])
	require.Equal(t, "updated panel", call.Body["text"])
}

func TestCreateThread(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"message_thread_id":9000,"name":"bob"}`)
	c := NewClient("TOKEN", -100123, WithBaseURL(srv.URL))

	threadID, err := c.CreateThread(context.Background(), "bob@example.com (shopx)")
	require.NoError(t, err)
	require.Equal(t, "9000", threadID)

	call := (*calls)[0]
	require.Equal(t, "/botTOKEN/createForumTopic", call.Path)
	require.Equal(t, "bob@example.com (shopx)", call.Body["name"])
}

func TestAnswerInteraction(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `true`)
	c := NewClient("TOKEN", -100123, WithBaseURL(srv.URL))

	require.NoError(t, c.AnswerInteraction(context.Background(), "cb9"))
	call := (*calls)[0]
	require.Equal(t, "/botTOKEN/answerCallbackQuery", call.Path)
	require.Equal(t, "cb9", call.Body["callback_query_id"])
}

func TestCall_OKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ok":false}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClient("TOKEN", -100123, WithBaseURL(srv.URL))

	_, err := c.SendToThread(context.Background(), "77", "hello", nil)
	var de *bridge.DeliveryError
	require.ErrorAs(t, err, &de)
}
