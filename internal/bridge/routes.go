package bridge

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/webhook", h.HandleWebhook)
	r.Post("/register-client", h.HandleRegisterClient)
	r.Get("/get-topic", h.HandleGetTopic)
	r.Get("/history", h.HandleHistory)
	r.Get("/note", h.HandleGetNote)
	r.Post("/note", h.HandleAddNote)
	r.Post("/send-admin-message", h.HandleSendAdminMessage)
	r.Post("/send-paid-content", h.HandleSendPaidContent)
	r.Post("/unlock", h.HandleUnlock)
	r.Post("/upload-media", h.HandleUploadMedia)
}
