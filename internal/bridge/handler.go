package bridge

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/novapulse/pwa-bridge/internal/identity"
)

const maxUploadBytes = 20 << 20

type Handler struct {
	svc      Service
	uploader Uploader
	log      *slog.Logger
}

func NewHandler(svc Service, uploader Uploader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, uploader: uploader, log: log}
}

// webhookMessage mirrors the slice of a Telegram message the bridge routes on.
type webhookMessage struct {
	MessageID       int64  `json:"message_id"`
	MessageThreadID int64  `json:"message_thread_id"`
	Text            string `json:"text"`
	Chat            struct {
		Type string `json:"type"`
	} `json:"chat"`
	From *struct {
		IsBot bool `json:"is_bot"`
	} `json:"from"`
}

// HandleWebhook takes an inbound Telegram update (message or callback query).
// Telegram redelivers on non-200, so this always ACKs; failures are logged.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var update struct {
		Message       *webhookMessage `json:"message"`
		CallbackQuery *struct {
			ID      string          `json:"id"`
			Data    string          `json:"data"`
			Message *webhookMessage `json:"message"`
		} `json:"callback_query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		// Malformed update: ACK anyway, there is nothing to retry into.
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	switch {
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		in := StaffInteraction{
			InteractionID: cq.ID,
			Action:        cq.Data,
		}
		if cq.Message != nil {
			in.ThreadID = threadIDString(cq.Message.MessageThreadID)
		}
		if err := h.svc.HandleStaffInteraction(ctx, in); err != nil {
			h.log.Error("webhook interaction failed", "err", err)
		}

	// Only staff supergroup topic messages are routed.
	case update.Message != nil && update.Message.Chat.Type == "supergroup" && update.Message.MessageThreadID != 0:
		m := update.Message
		msg := StaffMessage{
			ThreadID:  threadIDString(m.MessageThreadID),
			MessageID: strconv.FormatInt(m.MessageID, 10),
			FromBot:   m.From != nil && m.From.IsBot,
			Text:      m.Text,
		}
		if err := h.svc.HandleStaffMessage(ctx, msg); err != nil {
			h.log.Error("webhook message failed", "err", err)
		}
	}

	w.WriteHeader(http.StatusOK)
}

func threadIDString(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func (h *Handler) HandleRegisterClient(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email      string `json:"email"`
		SellerSlug string `json:"sellerSlug"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	rec, isNew, err := h.svc.RegisterClient(r.Context(), identity.Normalize(payload.Email, payload.SellerSlug))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"topicId": rec.ThreadID, "isNew": isNew})
}

func (h *Handler) HandleGetTopic(w http.ResponseWriter, r *http.Request) {
	id := identityFromQuery(r)
	topicID, err := h.svc.Topic(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"topicId": topicID})
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id := identityFromQuery(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.svc.History(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	type message struct {
		Sender    string    `json:"sender"`
		Text      string    `json:"text"`
		CreatedAt time.Time `json:"createdAt"`
	}
	out := make([]message, 0, len(entries))
	for _, e := range entries {
		out = append(out, message{
			Sender:    string(e.Sender),
			Text:      e.Text,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, map[string]any{"messages": out})
}

func (h *Handler) HandleGetNote(w http.ResponseWriter, r *http.Request) {
	id := identityFromQuery(r)
	note, err := h.svc.Note(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"note": note})
}

func (h *Handler) HandleAddNote(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email      string `json:"email"`
		SellerSlug string `json:"sellerSlug"`
		Text       string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	merged, err := h.svc.AddNote(r.Context(), identity.Normalize(payload.Email, payload.SellerSlug), payload.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"note": merged})
}

func (h *Handler) HandleSendAdminMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email      string `json:"email"`
		SellerSlug string `json:"sellerSlug"`
		Text       string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if err := h.svc.SendAdminMessage(r.Context(), identity.Normalize(payload.Email, payload.SellerSlug), payload.Text); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (h *Handler) HandleSendPaidContent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email       string `json:"email"`
		SellerSlug  string `json:"sellerSlug"`
		MediaURL    string `json:"mediaUrl"`
		Amount      int64  `json:"amount"`
		Text        string `json:"text"`
		CheckoutRef string `json:"checkoutRef"`
		IsMedia     *bool  `json:"isMedia"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	isMedia := payload.IsMedia == nil || *payload.IsMedia
	err := h.svc.SendPaidContent(r.Context(), identity.Normalize(payload.Email, payload.SellerSlug), PaidContent{
		MediaRef:    payload.MediaURL,
		Amount:      payload.Amount,
		Text:        payload.Text,
		CheckoutRef: payload.CheckoutRef,
		IsMedia:     isMedia,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (h *Handler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email      string `json:"email"`
		SellerSlug string `json:"sellerSlug"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	content, unlocked, err := h.svc.UnlockPaidContent(r.Context(), identity.Normalize(payload.Email, payload.SellerSlug))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !unlocked {
		writeJSON(w, map[string]any{"unlocked": false})
		return
	}
	writeJSON(w, map[string]any{
		"unlocked": true,
		"mediaUrl": content.MediaRef,
		"amount":   content.Amount,
	})
}

func (h *Handler) HandleUploadMedia(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "media uploads not configured"})
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid multipart body"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]any{"success": false, "error": "no file uploaded"})
		return
	}
	defer file.Close()

	url, err := h.uploader.Upload(r.Context(), header.Filename, file)
	if err != nil {
		h.log.Error("media upload failed", "file", header.Filename, "err", err)
		writeJSONStatus(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "upload failed"})
		return
	}
	writeJSON(w, map[string]any{"success": true, "mediaUrl": url})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var de *DeliveryError
	switch {
	case errors.Is(err, ErrValidation):
		http.Error(w, "missing or invalid fields", http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.As(err, &de):
		h.log.Error("delivery failed", "system", de.System, "endpoint", de.Endpoint, "err", err)
		http.Error(w, "upstream delivery failed", http.StatusBadGateway)
	default:
		h.log.Error("request failed", "err", err)
		http.Error(w, "processing error", http.StatusInternalServerError)
	}
}

func identityFromQuery(r *http.Request) identity.Identity {
	q := r.URL.Query()
	return identity.Normalize(q.Get("email"), q.Get("sellerSlug"))
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
