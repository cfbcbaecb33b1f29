package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/novapulse/pwa-bridge/internal/ai"
	"github.com/novapulse/pwa-bridge/internal/identity"
)

const (
	// ActionAddNote is the inline-button callback data arming note capture.
	ActionAddNote = "add_note"

	defaultHistoryLimit = 30
	seenCapacity        = 512
	suggestionTurns     = 10
)

// StaffMessage is an inbound text message observed in a staff-side topic.
type StaffMessage struct {
	ThreadID  string
	MessageID string
	FromBot   bool
	Text      string
}

// StaffInteraction is an inline-button press in a staff-side topic.
type StaffInteraction struct {
	ThreadID      string
	InteractionID string
	Action        string
}

// Service is the event router. Every inbound event (client socket message,
// staff webhook message, staff button press, HTTP command) enters here and
// drives all side effects. At-most-once semantics: an external call either
// succeeds and advances state, or fails and the event is dropped with a log
// entry.
type Service interface {
	HandleClientMessage(ctx context.Context, id identity.Identity, text string) error
	HandleStaffMessage(ctx context.Context, msg StaffMessage) error
	HandleStaffInteraction(ctx context.Context, in StaffInteraction) error

	RegisterClient(ctx context.Context, id identity.Identity) (*ConversationRecord, bool, error)
	Topic(ctx context.Context, id identity.Identity) (string, error)
	History(ctx context.Context, id identity.Identity, limit int) ([]TranscriptEntry, error)
	Note(ctx context.Context, id identity.Identity) (string, error)
	AddNote(ctx context.Context, id identity.Identity, text string) (string, error)
	SendAdminMessage(ctx context.Context, id identity.Identity, text string) error
	SendPaidContent(ctx context.Context, id identity.Identity, content PaidContent) error
	UnlockPaidContent(ctx context.Context, id identity.Identity) (PaidContent, bool, error)
}

type Deps struct {
	Directory   Directory
	Transcript  Transcript
	Relay       Relay
	Broadcaster Broadcaster
	Notes       *NoteCaptures
	Escrow      *Escrow
	Suggester   ai.Suggester // optional
	Log         *slog.Logger

	// CommandPrefix marks staff messages that are environment commands, not
	// replies ("/env ..."). Compared case-insensitively.
	CommandPrefix string
}

type service struct {
	dir        Directory
	transcript Transcript
	relay      Relay
	bcast      Broadcaster
	notes      *NoteCaptures
	escrow     *Escrow
	suggester  ai.Suggester
	log        *slog.Logger
	cmdPrefix  string
	seen       *seenSet
	now        func() time.Time
}

func NewService(d Deps) Service {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	prefix := d.CommandPrefix
	if prefix == "" {
		prefix = "/env"
	}
	return &service{
		dir:        d.Directory,
		transcript: d.Transcript,
		relay:      d.Relay,
		bcast:      d.Broadcaster,
		notes:      d.Notes,
		escrow:     d.Escrow,
		suggester:  d.Suggester,
		log:        log,
		cmdPrefix:  strings.ToLower(prefix),
		seen:       newSeenSet(seenCapacity),
		now:        time.Now,
	}
}

// ---------------------------------------------------------------------------
// Client → staff

func (s *service) HandleClientMessage(ctx context.Context, id identity.Identity, text string) error {
	text = strings.TrimSpace(text)
	if !id.Valid() || text == "" {
		// Unidentified connection or empty payload: defined no-op.
		return nil
	}

	rec, _, err := s.ensureConversation(ctx, id)
	if err != nil {
		s.log.Error("client message dropped: conversation setup failed",
			"email", id.Email, "slug", id.SellerSlug, "err", err)
		return err
	}

	relayText := fmt.Sprintf("💬 Client (%s)\n%s", id.Email, text)
	if _, err := s.relay.SendToThread(ctx, rec.ThreadID, relayText, nil); err != nil {
		s.log.Error("client message dropped: relay failed",
			"thread", rec.ThreadID, "err", err)
		return err
	}

	if err := s.transcript.Append(ctx, &TranscriptEntry{
		Identity:  id,
		ThreadID:  rec.ThreadID,
		Sender:    SenderClient,
		Text:      text,
		CreatedAt: s.now(),
	}); err != nil {
		s.log.Error("transcript append failed", "thread", rec.ThreadID, "err", err)
		return err
	}

	s.maybeSuggestReply(ctx, id, rec.ThreadID)
	return nil
}

// maybeSuggestReply posts an AI draft into the staff topic. Best effort: a
// failed or empty suggestion never affects the relay that triggered it.
func (s *service) maybeSuggestReply(ctx context.Context, id identity.Identity, threadID string) {
	if s.suggester == nil {
		return
	}
	entries, err := s.transcript.RecentFor(ctx, id, threadID, suggestionTurns)
	if err != nil {
		s.log.Warn("suggestion skipped: history read failed", "thread", threadID, "err", err)
		return
	}
	turns := make([]ai.Turn, 0, len(entries))
	for _, e := range entries {
		role := "user"
		if e.Sender != SenderClient {
			role = "assistant"
		}
		turns = append(turns, ai.Turn{Role: role, Text: e.Text})
	}
	draft, err := s.suggester.Suggest(ctx, turns)
	if err != nil {
		s.log.Warn("suggestion failed", "thread", threadID, "err", err)
		return
	}
	if draft == "" {
		return
	}
	if _, err := s.relay.SendToThread(ctx, threadID, "🤖 Suggested reply:\n"+draft, nil); err != nil {
		s.log.Warn("suggestion send failed", "thread", threadID, "err", err)
	}
}

// ensureConversation implements createIfAbsent: look up the record, create
// it when missing, and provision the staff topic when the record has none
// yet (covers both the fresh-client path and recovery from an earlier failed
// provisioning). The create race for the same identity is tolerated: the
// store is the source of truth and duplicates are rare enough to just warn.
func (s *service) ensureConversation(ctx context.Context, id identity.Identity) (*ConversationRecord, bool, error) {
	isNew := false
	rec, err := s.dir.FindByIdentity(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		rec, err = s.dir.Create(ctx, id)
		if err != nil {
			return nil, false, err
		}
		isNew = true
	case err != nil:
		return nil, false, err
	}

	if rec.ThreadID == "" {
		threadID, err := s.relay.CreateThread(ctx, fmt.Sprintf("%s (%s)", id.Email, id.SellerSlug))
		if err != nil {
			// Registration failed: a record without a topic is unreachable
			// by staff, so surface this instead of proceeding.
			return nil, false, err
		}
		if err := s.dir.SetThreadID(ctx, rec, threadID); err != nil {
			return nil, false, err
		}
		if !isNew {
			s.log.Warn("re-provisioned topic for existing record",
				"email", id.Email, "slug", id.SellerSlug, "thread", threadID)
		}
		s.sendControlPanel(ctx, rec)
	}
	return rec, isNew, nil
}

// sendControlPanel posts the one-time "new client" panel and records its
// message id for later in-place edits. The topic binding is the load-bearing
// invariant; a failed panel send is only logged.
func (s *service) sendControlPanel(ctx context.Context, rec *ConversationRecord) {
	msgID, err := s.relay.SendToThread(ctx, rec.ThreadID, controlPanelText(rec), controlPanelButtons())
	if err != nil {
		s.log.Warn("control panel send failed", "thread", rec.ThreadID, "err", err)
		return
	}
	if err := s.dir.SetControlMessageID(ctx, rec, msgID); err != nil {
		s.log.Warn("control message id not persisted", "thread", rec.ThreadID, "err", err)
	}
}

func controlPanelText(rec *ConversationRecord) string {
	note := rec.Note
	if note == "" {
		note = "—"
	}
	return fmt.Sprintf("🆕 Client: %s / %s\n\n📝 Notes:\n%s",
		rec.Identity.Email, rec.Identity.SellerSlug, note)
}

func controlPanelButtons() []Button {
	return []Button{{Label: "➕ Add note", Action: ActionAddNote}}
}

// ---------------------------------------------------------------------------
// Staff → client / note capture

func (s *service) HandleStaffMessage(ctx context.Context, msg StaffMessage) error {
	if msg.FromBot {
		// Our own relayed messages come back through the webhook.
		return nil
	}
	if msg.ThreadID == "" {
		return nil
	}
	if msg.MessageID != "" && !s.seen.observe(msg.ThreadID+":"+msg.MessageID) {
		s.log.Debug("duplicate staff message dropped", "thread", msg.ThreadID, "message", msg.MessageID)
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		// Non-text content while a capture is armed: reject and keep the
		// capture so the staff member can resend as text.
		if s.notes.Armed(msg.ThreadID) {
			if _, err := s.relay.SendToThread(ctx, msg.ThreadID,
				"⚠️ Please send the note as plain text.", nil); err != nil {
				s.log.Warn("note rejection send failed", "thread", msg.ThreadID, "err", err)
			}
		}
		return nil
	}

	if noteFor, ok := s.notes.Consume(msg.ThreadID); ok {
		return s.completeNoteCapture(ctx, msg.ThreadID, noteFor, text)
	}

	if strings.HasPrefix(strings.ToLower(text), s.cmdPrefix) {
		return nil
	}

	return s.relayToRoom(ctx, msg.ThreadID, text)
}

func (s *service) completeNoteCapture(ctx context.Context, threadID string, noteFor identity.Identity, text string) error {
	// Resolve by the (identity, thread) pair, not the thread alone: the
	// thread id is an external opaque value and the armed identity is the
	// binding we trust.
	rec, err := s.dir.FindByIdentity(ctx, noteFor)
	if err != nil || rec.ThreadID != threadID {
		s.log.Warn("note capture orphaned", "thread", threadID, "email", noteFor.Email, "err", err)
		if _, serr := s.relay.SendToThread(ctx, threadID,
			"⚠️ Could not save the note: client record not found.", nil); serr != nil {
			s.log.Warn("note failure notice failed", "thread", threadID, "err", serr)
		}
		return nil
	}

	merged, err := s.dir.AppendNote(ctx, rec, text)
	if err != nil {
		s.log.Error("note append failed", "thread", threadID, "err", err)
		return err
	}
	rec.Note = merged

	if rec.ControlMessageID != "" {
		if err := s.relay.EditMessage(ctx, rec.ControlMessageID, controlPanelText(rec), controlPanelButtons()); err != nil {
			s.log.Warn("control panel edit failed", "thread", threadID, "err", err)
		}
	}
	if _, err := s.relay.SendToThread(ctx, threadID, "✅ Note saved.", nil); err != nil {
		s.log.Warn("note confirmation failed", "thread", threadID, "err", err)
	}
	return nil
}

func (s *service) relayToRoom(ctx context.Context, threadID, text string) error {
	rec, err := s.dir.FindByThreadID(ctx, threadID)
	if errors.Is(err, ErrNotFound) {
		// Orphaned topic, nothing to route to.
		return nil
	}
	if err != nil {
		s.log.Error("staff message dropped: directory lookup failed", "thread", threadID, "err", err)
		return err
	}

	if err := s.transcript.Append(ctx, &TranscriptEntry{
		Identity:  rec.Identity,
		ThreadID:  threadID,
		Sender:    SenderAdmin,
		Text:      text,
		CreatedAt: s.now(),
	}); err != nil {
		s.log.Error("transcript append failed", "thread", threadID, "err", err)
		return err
	}

	s.bcast.Broadcast(rec.Identity.RoomKey(), "admin_message", map[string]any{
		"text": text,
		"from": "admin",
	})
	return nil
}

// ---------------------------------------------------------------------------
// Staff button press

func (s *service) HandleStaffInteraction(ctx context.Context, in StaffInteraction) error {
	// Ack first so the staff UI stops spinning; failures are non-critical.
	if in.InteractionID != "" {
		if err := s.relay.AnswerInteraction(ctx, in.InteractionID); err != nil {
			s.log.Warn("interaction ack failed", "interaction", in.InteractionID, "err", err)
		}
	}

	if in.Action != ActionAddNote {
		return nil
	}

	rec, err := s.dir.FindByThreadID(ctx, in.ThreadID)
	if err != nil {
		s.log.Warn("add-note pressed on unmapped topic", "thread", in.ThreadID, "err", err)
		if _, serr := s.relay.SendToThread(ctx, in.ThreadID,
			"⚠️ No client is linked to this topic.", nil); serr != nil {
			s.log.Warn("add-note failure notice failed", "thread", in.ThreadID, "err", serr)
		}
		return nil
	}

	s.notes.Arm(in.ThreadID, rec.Identity)
	if _, err := s.relay.SendToThread(ctx, in.ThreadID,
		"📝 Send the note text as your next message.", nil); err != nil {
		s.log.Warn("note prompt failed", "thread", in.ThreadID, "err", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// HTTP commands

func (s *service) RegisterClient(ctx context.Context, id identity.Identity) (*ConversationRecord, bool, error) {
	if !id.Valid() {
		return nil, false, ErrValidation
	}
	return s.ensureConversation(ctx, id)
}

func (s *service) Topic(ctx context.Context, id identity.Identity) (string, error) {
	if !id.Valid() {
		return "", ErrValidation
	}
	rec, err := s.dir.FindByIdentity(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.ThreadID == "" {
		return "", ErrNotFound
	}
	return rec.ThreadID, nil
}

func (s *service) History(ctx context.Context, id identity.Identity, limit int) ([]TranscriptEntry, error) {
	if !id.Valid() {
		return nil, ErrValidation
	}
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	return s.transcript.RecentFor(ctx, id, "", limit)
}

func (s *service) Note(ctx context.Context, id identity.Identity) (string, error) {
	if !id.Valid() {
		return "", ErrValidation
	}
	rec, err := s.dir.FindByIdentity(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.Note, nil
}

func (s *service) AddNote(ctx context.Context, id identity.Identity, text string) (string, error) {
	text = strings.TrimSpace(text)
	if !id.Valid() || text == "" {
		return "", ErrValidation
	}
	rec, err := s.dir.FindByIdentity(ctx, id)
	if err != nil {
		return "", err
	}
	merged, err := s.dir.AppendNote(ctx, rec, text)
	if err != nil {
		return "", err
	}
	rec.Note = merged
	if rec.ControlMessageID != "" {
		if err := s.relay.EditMessage(ctx, rec.ControlMessageID, controlPanelText(rec), controlPanelButtons()); err != nil {
			s.log.Warn("control panel edit failed", "thread", rec.ThreadID, "err", err)
		}
	}
	return merged, nil
}

func (s *service) SendAdminMessage(ctx context.Context, id identity.Identity, text string) error {
	text = strings.TrimSpace(text)
	if !id.Valid() || text == "" {
		return ErrValidation
	}
	rec, err := s.dir.FindByIdentity(ctx, id)
	if err != nil {
		return err
	}
	if err := s.transcript.Append(ctx, &TranscriptEntry{
		Identity:  id,
		ThreadID:  rec.ThreadID,
		Sender:    SenderAdmin,
		Text:      text,
		CreatedAt: s.now(),
	}); err != nil {
		return err
	}
	s.bcast.Broadcast(id.RoomKey(), "admin_message", map[string]any{
		"text": text,
		"from": "admin",
	})
	return nil
}

// ---------------------------------------------------------------------------
// Paid content escrow

func (s *service) SendPaidContent(ctx context.Context, id identity.Identity, content PaidContent) error {
	if !id.Valid() || content.MediaRef == "" {
		return ErrValidation
	}
	content.CreatedAt = s.now()
	room := id.RoomKey()
	s.escrow.Lock(room, content)

	s.bcast.Broadcast(room, "paid_content_locked", map[string]any{
		"text":        content.Text,
		"checkoutRef": content.CheckoutRef,
		"isMedia":     content.IsMedia,
		"amount":      content.Amount,
	})
	s.appendSystemEntry(ctx, id, fmt.Sprintf("🔒 Paid content locked (%d)", content.Amount))
	return nil
}

func (s *service) UnlockPaidContent(ctx context.Context, id identity.Identity) (PaidContent, bool, error) {
	if !id.Valid() {
		return PaidContent{}, false, ErrValidation
	}
	room := id.RoomKey()
	content, ok := s.escrow.Unlock(room)
	if !ok {
		// Nothing pending is a reported outcome, not an error.
		return PaidContent{}, false, nil
	}

	s.bcast.Broadcast(room, "paid_content_unlocked", map[string]any{
		"mediaUrl": content.MediaRef,
		"amount":   content.Amount,
	})
	s.appendSystemEntry(ctx, id, fmt.Sprintf("🔓 Paid content unlocked (%d)", content.Amount))
	return content, true, nil
}

// appendSystemEntry records an escrow event in the transcript when the
// conversation is known. Best effort.
func (s *service) appendSystemEntry(ctx context.Context, id identity.Identity, text string) {
	rec, err := s.dir.FindByIdentity(ctx, id)
	if err != nil {
		return
	}
	if err := s.transcript.Append(ctx, &TranscriptEntry{
		Identity:  id,
		ThreadID:  rec.ThreadID,
		Sender:    SenderSystem,
		Text:      text,
		CreatedAt: s.now(),
	}); err != nil {
		s.log.Warn("system transcript entry failed", "email", id.Email, "err", err)
	}
}
