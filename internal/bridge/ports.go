package bridge

import (
	"context"
	"io"
	"time"

	"github.com/novapulse/pwa-bridge/internal/identity"
)

type Sender string

const (
	SenderClient Sender = "client"
	SenderAdmin  Sender = "admin"
	SenderSystem Sender = "system"
)

// ConversationRecord is the durable mapping between one client identity and
// its staff-side topic, plus the accumulated admin note. RecordID is the
// store's own row id and is required for updates.
type ConversationRecord struct {
	RecordID         string
	Identity         identity.Identity
	ThreadID         string
	Note             string
	ControlMessageID string
}

type TranscriptEntry struct {
	Identity  identity.Identity
	ThreadID  string
	Sender    Sender
	Text      string
	CreatedAt time.Time
}

// PaidContent is one locked item awaiting an external payment confirmation.
type PaidContent struct {
	MediaRef    string
	Amount      int64
	Text        string
	CheckoutRef string
	IsMedia     bool
	CreatedAt   time.Time
}

// Button is one inline control attached to a staff-platform message.
type Button struct {
	Label  string
	Action string
}

// Directory is the client directory in the external record store.
type Directory interface {
	FindByIdentity(ctx context.Context, id identity.Identity) (*ConversationRecord, error)
	FindByThreadID(ctx context.Context, threadID string) (*ConversationRecord, error)
	Create(ctx context.Context, id identity.Identity) (*ConversationRecord, error)
	SetThreadID(ctx context.Context, rec *ConversationRecord, threadID string) error
	// AppendNote adds "• text" as a new line to the stored note and returns
	// the merged text. Empty text is a no-op returning the current note.
	AppendNote(ctx context.Context, rec *ConversationRecord, text string) (string, error)
	SetControlMessageID(ctx context.Context, rec *ConversationRecord, messageID string) error
}

// Transcript is the append-only message history.
type Transcript interface {
	Append(ctx context.Context, entry *TranscriptEntry) error
	// RecentFor returns the most recent limit entries, oldest first.
	RecentFor(ctx context.Context, id identity.Identity, threadID string, limit int) ([]TranscriptEntry, error)
}

// Relay makes outbound calls to the staff platform.
type Relay interface {
	SendToThread(ctx context.Context, threadID, text string, buttons []Button) (messageID string, err error)
	EditMessage(ctx context.Context, messageID, text string, buttons []Button) error
	CreateThread(ctx context.Context, title string) (threadID string, err error)
	AnswerInteraction(ctx context.Context, interactionID string) error
}

// Broadcaster delivers an event to every live connection joined to a room.
// Empty rooms are a no-op.
type Broadcaster interface {
	Broadcast(room, event string, payload any)
}

// Uploader stores a blob and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}
