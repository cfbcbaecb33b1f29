package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverAirtable = "airtable"
	DriverPostgres = "postgres"
)

type Config struct {
	Port string

	BotToken     string
	StaffGroupID int64

	StoreDriver   string
	AirtableKey   string
	AirtableBase  string
	TableClients  string
	TableMessages string
	DatabaseURL   string

	CloudinaryCloud  string
	CloudinaryKey    string
	CloudinarySecret string
	CloudinaryFolder string

	OpenAIKey   string
	OpenAIModel string

	NoteTTL       time.Duration
	CommandPrefix string
}

// Load reads the environment into a Config. All missing required variables
// are reported together in one error so a misconfigured deploy fails once,
// with the full list.
func Load() (Config, error) {
	cfg := Config{
		Port:             getenv("PORT", "8080"),
		BotToken:         firstenv("BOT_TOKEN", "BRIDGE_BOT_TOKEN", "BRIDGE_TELEGRAM_TOKEN"),
		StoreDriver:      getenv("STORE_DRIVER", DriverAirtable),
		AirtableKey:      os.Getenv("AIRTABLE_API_KEY"),
		AirtableBase:     os.Getenv("AIRTABLE_BASE_ID"),
		TableClients:     os.Getenv("AIRTABLE_TABLE_PWA"),
		TableMessages:    os.Getenv("AIRTABLE_TABLE_PWA_MESSAGES"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		CloudinaryCloud:  os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinarySecret: os.Getenv("CLOUDINARY_API_SECRET"),
		CloudinaryFolder: getenv("CLOUDINARY_FOLDER", "novapulse_media"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		CommandPrefix:    getenv("COMMAND_PREFIX", "/env"),
	}

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}

	groupID := os.Getenv("STAFF_GROUP_ID")
	if groupID == "" {
		missing = append(missing, "STAFF_GROUP_ID")
	} else {
		id, err := strconv.ParseInt(groupID, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("STAFF_GROUP_ID is not an integer: %q", groupID)
		}
		cfg.StaffGroupID = id
	}

	switch cfg.StoreDriver {
	case DriverAirtable:
		if cfg.AirtableKey == "" {
			missing = append(missing, "AIRTABLE_API_KEY")
		}
		if cfg.AirtableBase == "" {
			missing = append(missing, "AIRTABLE_BASE_ID")
		}
		if cfg.TableClients == "" {
			missing = append(missing, "AIRTABLE_TABLE_PWA")
		}
		if cfg.TableMessages == "" {
			missing = append(missing, "AIRTABLE_TABLE_PWA_MESSAGES")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return cfg, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q",
			DriverAirtable, DriverPostgres, cfg.StoreDriver)
	}

	if len(missing) > 0 {
		return cfg, fmt.Errorf("missing env: %s", strings.Join(missing, ", "))
	}

	if raw := os.Getenv("NOTE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return cfg, fmt.Errorf("NOTE_TTL is not a duration: %q", raw)
		}
		cfg.NoteTTL = ttl
	}

	return cfg, nil
}

// MediaConfigured reports whether the blob-storage credentials are present;
// uploads stay disabled without them.
func (c Config) MediaConfigured() bool {
	return c.CloudinaryCloud != "" && c.CloudinaryKey != "" && c.CloudinarySecret != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstenv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
