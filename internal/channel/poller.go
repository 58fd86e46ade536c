package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haasonsaas/sentineld/internal/session"
	"github.com/haasonsaas/sentineld/pkg/model"
)

// Inbound is one message received from an external channel.
type Inbound struct {
	ChannelType    string
	ConversationID string
	SenderID       string
	SenderName     string
	Text           string
}

// Sender is the outbound half of a channel transport: typing indicators,
// streaming edits, and final delivery with a plain-text fallback (spec
// §4.9 steps 4-5).
type Sender interface {
	SendTyping(ctx context.Context, conversationID string) error
	SendText(ctx context.Context, conversationID, text string) (messageID string, err error)
	EditText(ctx context.Context, conversationID, messageID, text string) error
	SendPlain(ctx context.Context, conversationID, text string) (messageID string, err error)
}

// Poller is the lifecycle contract every channel transport implements.
type Poller interface {
	Type() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Allowlist gates inbound senders per channel (spec §4.9 step 1).
type Allowlist struct {
	mu      sync.RWMutex
	allowed map[string]bool
}

// NewAllowlist builds an allowlist from a slice of sender IDs. An empty or
// nil list allows every sender (no allowlist configured).
func NewAllowlist(ids []string) *Allowlist {
	a := &Allowlist{allowed: map[string]bool{}}
	for _, id := range ids {
		a.allowed[id] = true
	}
	return a
}

// Allows reports whether senderID may use the channel.
func (a *Allowlist) Allows(senderID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.allowed) == 0 {
		return true
	}
	return a.allowed[senderID]
}

// conversationRecord is the persisted conversationId -> sessionId mapping
// entry, carrying the last system-prompt compile time (spec §4.9: "promptBuiltAt").
type conversationRecord struct {
	SessionID     string    `json:"session_id"`
	PromptBuiltAt time.Time `json:"prompt_built_at"`
}

// ConversationStore persists the conversationId -> sessionId map per
// channel, atomically, the same way internal/session.Store persists
// sessions (temp file + rename).
type ConversationStore struct {
	mu   sync.Mutex
	path string
	recs map[string]conversationRecord
}

// NewConversationStore returns a store backed by dataDir/channel-<type>-conversations.json.
func NewConversationStore(dataDir, channelType string) (*ConversationStore, error) {
	s := &ConversationStore{path: filepath.Join(dataDir, fmt.Sprintf("channel-%s-conversations.json", channelType))}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.recs = map[string]conversationRecord{}
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &s.recs); err != nil {
		return nil, err
	}
	return s, nil
}

// Resolve returns the session ID for a conversation and whether the
// system prompt built for it is stale (spec §4.9 step 3: rebuild after 5
// minutes), creating and persisting a fresh mapping if none existed.
func (s *ConversationStore) Resolve(conversationID string, now time.Time, newSessionID func() string) (sessionID string, promptStale bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[conversationID]
	if !ok {
		rec = conversationRecord{SessionID: newSessionID(), PromptBuiltAt: time.Time{}}
		s.recs[conversationID] = rec
		if err := s.saveLocked(); err != nil {
			return "", false, err
		}
	}
	stale := now.Sub(rec.PromptBuiltAt) > 5*time.Minute
	return rec.SessionID, stale, nil
}

// MarkPromptBuilt records that conversationID's system prompt was just rebuilt.
func (s *ConversationStore) MarkPromptBuilt(conversationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recs[conversationID]
	rec.PromptBuiltAt = at
	s.recs[conversationID] = rec
	return s.saveLocked()
}

func (s *ConversationStore) saveLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.recs, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// RateLimiter is a token-bucket limiter for outbound edit throttling (spec
// §4.9 step 4: "rate-limit outbound edits to once per ~1.2s").
//
// Grounded on internal/channels/ratelimit.go of the teacher repo.
type RateLimiter struct {
	mu         sync.Mutex
	interval   time.Duration
	lastFireAt time.Time
}

// NewRateLimiter returns a limiter that allows one event per interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Wait blocks until interval has elapsed since the previous fire, or ctx
// is canceled.
func (r *RateLimiter) Wait(ctx context.Context, now func() time.Time) error {
	r.mu.Lock()
	wait := r.interval - now().Sub(r.lastFireAt)
	r.mu.Unlock()
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	r.lastFireAt = now()
	r.mu.Unlock()
	return nil
}

// Handler implements spec §4.9's per-message processing, shared by every
// channel transport so conversations stay ordered sequentially within a
// channel instance (the transport calls Handle once per inbound message,
// never concurrently).
type Handler struct {
	Sessions      *session.Engine
	Conversations *ConversationStore
	Allowlist     *Allowlist
	Role          model.Role
	EditInterval  time.Duration
	Clock         func() time.Time
}

// Handle processes one inbound message end to end: allowlist, session
// resolution, streaming reply with rate-limited edits, and chunked
// fallback delivery.
func (h *Handler) Handle(ctx context.Context, sender Sender, in Inbound) error {
	if !h.Allowlist.Allows(in.SenderID) {
		return nil
	}

	now := h.Clock
	if now == nil {
		now = time.Now
	}

	sessionID, stale, err := h.Conversations.Resolve(in.ConversationID, now(), func() string {
		return fmt.Sprintf("%s-%s", in.ChannelType, in.ConversationID)
	})
	if err != nil {
		return err
	}

	sess, err := h.Sessions.Load(sessionID, h.Role, model.SessionLimits{}, false)
	if err != nil {
		return err
	}
	if stale {
		if err := h.Conversations.MarkPromptBuilt(in.ConversationID, now()); err != nil {
			return err
		}
	}

	_ = sender.SendTyping(ctx, in.ConversationID)

	limiter := NewRateLimiter(h.EditInterval)
	if limiter.interval <= 0 {
		limiter = NewRateLimiter(1200 * time.Millisecond)
	}

	var (
		placeholderID string
		pending       string
		final         string
	)

	for ev := range h.Sessions.SendStream(ctx, sess, in.Text) {
		switch ev.Kind {
		case session.EventText:
			pending += ev.Text
			final += ev.Text
			if placeholderID == "" {
				id, err := sender.SendText(ctx, in.ConversationID, pending)
				if err != nil {
					continue
				}
				placeholderID = id
				pending = ""
				continue
			}
			if err := limiter.Wait(ctx, now); err != nil {
				return err
			}
			if err := sender.EditText(ctx, in.ConversationID, placeholderID, final); err == nil {
				pending = ""
			}
		case session.EventError:
			return ev.Err
		case session.EventDone:
		}
	}

	if placeholderID == "" {
		_, err := h.deliverFinal(ctx, sender, in.ChannelType, in.ConversationID, final)
		return err
	}

	limit := LimitFor(in.ChannelType)
	if len(final) <= limit {
		if err := sender.EditText(ctx, in.ConversationID, placeholderID, final); err != nil {
			_, err = h.deliverFinal(ctx, sender, in.ChannelType, in.ConversationID, final)
			return err
		}
		return nil
	}

	// Final text exceeds the channel's length limit: drop the placeholder
	// edit and resend as chunks (spec §4.9 step 5).
	_, err = h.deliverFinal(ctx, sender, in.ChannelType, in.ConversationID, final)
	return err
}

func (h *Handler) deliverFinal(ctx context.Context, sender Sender, channelType, conversationID, text string) (string, error) {
	var lastID string
	for _, chunk := range Chunk(text, LimitFor(channelType)) {
		id, err := sender.SendText(ctx, conversationID, chunk)
		if err != nil {
			id, err = sender.SendPlain(ctx, conversationID, chunk)
		}
		if err != nil {
			return lastID, err
		}
		lastID = id
	}
	return lastID, nil
}
