package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/novapulse/pwa-bridge/internal/ai"
	"github.com/novapulse/pwa-bridge/internal/airtable"
	"github.com/novapulse/pwa-bridge/internal/bridge"
	"github.com/novapulse/pwa-bridge/internal/config"
	"github.com/novapulse/pwa-bridge/internal/identity"
	"github.com/novapulse/pwa-bridge/internal/media"
	"github.com/novapulse/pwa-bridge/internal/postgres"
	"github.com/novapulse/pwa-bridge/internal/telegram"
	"github.com/novapulse/pwa-bridge/internal/ws"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("startup misconfiguration", "err", err)
		os.Exit(1)
	}

	// --- Record store ---
	var (
		directory  bridge.Directory
		transcript bridge.Transcript
	)
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("db open failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			log.Error("db ping failed", "err", err)
			os.Exit(1)
		}
		directory = postgres.NewDirectory(db)
		transcript = postgres.NewTranscript(db)

	default:
		client := airtable.NewClient(cfg.AirtableKey, cfg.AirtableBase)
		directory = airtable.NewDirectory(client, cfg.TableClients)
		transcript = airtable.NewTranscript(client, cfg.TableMessages)
	}

	// --- Outbound + live connections ---
	relay := telegram.NewClient(cfg.BotToken, cfg.StaffGroupID)
	hub := ws.NewHub(log.With("component", "ws"))

	var suggester ai.Suggester
	if cfg.OpenAIKey != "" {
		suggester = ai.NewOpenAISuggester(cfg.OpenAIKey, cfg.OpenAIModel)
		log.Info("reply suggestions enabled", "model", cfg.OpenAIModel)
	}

	svc := bridge.NewService(bridge.Deps{
		Directory:     directory,
		Transcript:    transcript,
		Relay:         relay,
		Broadcaster:   hub,
		Notes:         bridge.NewNoteCaptures(cfg.NoteTTL),
		Escrow:        bridge.NewEscrow(),
		Suggester:     suggester,
		Log:           log.With("component", "router"),
		CommandPrefix: cfg.CommandPrefix,
	})
	hub.SetClientMessageHandler(func(ctx context.Context, id identity.Identity, text string) {
		if err := svc.HandleClientMessage(ctx, id, text); err != nil {
			log.Error("client message failed", "email", id.Email, "err", err)
		}
	})

	var uploader bridge.Uploader
	if cfg.MediaConfigured() {
		uploader = media.NewClient(cfg.CloudinaryCloud, cfg.CloudinaryKey, cfg.CloudinarySecret, cfg.CloudinaryFolder)
	} else {
		log.Warn("cloudinary not configured, media uploads disabled")
	}

	handler := bridge.NewHandler(svc, uploader, log.With("component", "http"))

	// --- Router ---
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	bridge.RegisterRoutes(r, handler)
	r.Get("/ws", hub.HandleUpgrade)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("NovaPulse Bridge running"))
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	log.Info("bridge listening", "port", cfg.Port, "store", cfg.StoreDriver)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}
