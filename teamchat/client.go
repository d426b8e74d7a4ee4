// Package teamchat keeps a local view of conversations and messages
// consistent with the team-hub server: a realtime websocket channel for
// pushes, REST snapshots for authoritative state, and optimistic local
// mutation with compensating rollback.
package teamchat

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bapcai02/team-hub-sub001/teamchat/rest"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// transport is the surface the client drives. *Transport satisfies it;
// tests substitute a double.
type transport interface {
	Connect(ctx context.Context, token string) error
	Disconnect()
	JoinRoom(conversationID int64)
	LeaveRoom(conversationID int64)
	EmitMessage(conversationID int64, content string, kind ContentKind)
	EmitTyping(conversationID int64, isTyping bool)
	EmitRead(conversationID, messageID int64)
	EmitReactionAdd(messageID int64, emoji string)
	EmitReactionRemove(messageID int64, emoji string)
	EmitDeleteMessage(messageID int64)
	EmitDeleteConversation(conversationID int64)
	OnNewMessage(fn func(MessageEvent)) Subscription
	OnTypingChanged(fn func(TypingEvent)) Subscription
	OnUserStatusChanged(fn func(UserStatusEvent)) Subscription
	OnReadReceipt(fn func(ReadReceiptEvent)) Subscription
	OnMessageDeleted(fn func(MessageDeletedEvent)) Subscription
	OnConversationDeleted(fn func(ConversationDeletedEvent)) Subscription
	OnConnectionChanged(fn func(StateEvent)) Subscription
	Off(s Subscription)
}

var _ transport = (*Transport)(nil)

// Client is the command facade: the only entry point application code
// uses. Every command pairs REST durability with best-effort transport
// fan-out; application code never talks to the transport directly.
type Client struct {
	cfg           Config
	logger        Logger
	api           *rest.Client
	tr            transport
	store         *Store
	currentUserID int64

	typingMu    sync.Mutex
	typingTimer *time.Timer
}

// NewClient constructs a client with the provided config. The current
// user id is read from the token's claims; the token itself is consumed
// as-is, never issued or refreshed here.
func NewClient(cfg Config) (*Client, error) {
	api := rest.NewClient(cfg.APIBaseURL)
	api.SetToken(cfg.Token)
	return newClient(cfg, NewTransport(cfg), api)
}

func newClient(cfg Config, tr transport, api *rest.Client) (*Client, error) {
	userID, err := userIDFromToken(cfg.Token)
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:           cfg,
		logger:        noopLogger{},
		api:           api,
		tr:            tr,
		store:         NewStore(userID, cfg.TypingWindow, noopLogger{}),
		currentUserID: userID,
	}
	c.wireEvents()
	return c, nil
}

// SetLogger overrides the logger (optional). It propagates to the store
// and, when the client owns a concrete Transport, to the transport too.
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		return
	}
	c.logger = l
	c.store.SetLogger(l)
	if t, ok := c.tr.(*Transport); ok {
		t.SetLogger(l)
	}
}

// Store exposes the synchronization store for read access and change
// notification. Application code must not mutate through it directly.
func (c *Client) Store() *Store { return c.store }

// CurrentUserID returns the session's user id as read from the token.
func (c *Client) CurrentUserID() int64 { return c.currentUserID }

// wireEvents funnels every inbound push into the store. The transport
// never mutates application state itself.
func (c *Client) wireEvents() {
	c.tr.OnNewMessage(func(ev MessageEvent) {
		c.store.ApplyMessage(SourcePush, messageFromEvent(ev))
	})
	c.tr.OnTypingChanged(func(ev TypingEvent) {
		if ev.UserID == c.currentUserID {
			return
		}
		c.store.SetTyping(ev.ConversationID, ev.UserID, ev.IsTyping)
	})
	c.tr.OnUserStatusChanged(func(ev UserStatusEvent) {
		c.store.SetUserStatus(ev.UserID, ev.IsOnline, ev.LastSeen)
	})
	c.tr.OnReadReceipt(func(ev ReadReceiptEvent) {
		if ev.UserID == c.currentUserID {
			// Another device of ours read the conversation.
			c.store.ClearUnread(ev.ConversationID)
			return
		}
		c.store.MarkMessagesRead(ev.ConversationID, ev.MessageID)
	})
	c.tr.OnMessageDeleted(func(ev MessageDeletedEvent) {
		c.store.RemoveMessage(ev.MessageID)
	})
	c.tr.OnConversationDeleted(func(ev ConversationDeletedEvent) {
		c.store.RemoveConversation(ev.ConversationID)
	})
	c.tr.OnConnectionChanged(func(ev StateEvent) {
		c.store.SetConnectionState(ev.NewState)
	})
}

// Connect opens the realtime channel with the configured token.
func (c *Client) Connect(ctx context.Context) error {
	return c.tr.Connect(ctx, c.cfg.Token)
}

// Close stops the typing timer and closes the realtime channel.
func (c *Client) Close() {
	c.typingMu.Lock()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.typingMu.Unlock()
	c.tr.Disconnect()
}

// LoadConversations fetches the conversation snapshot and replaces the
// store's list wholesale. On failure prior state is left untouched and
// the error surfaces both on the store and to the caller.
func (c *Client) LoadConversations(ctx context.Context) error {
	infos, err := c.api.ListConversations(ctx)
	if err != nil {
		c.store.SetError(err.Error())
		return WrapError(ErrorCommand, "load conversations", err)
	}
	convs := make([]Conversation, len(infos))
	for i, in := range infos {
		convs[i] = conversationFromInfo(in)
	}
	c.store.SetConversations(convs)
	c.store.ClearError()
	return nil
}

// SearchConversations queries conversations without touching the store.
func (c *Client) SearchConversations(ctx context.Context, query string) ([]Conversation, error) {
	infos, err := c.api.SearchConversations(ctx, query)
	if err != nil {
		return nil, WrapError(ErrorCommand, "search conversations", err)
	}
	convs := make([]Conversation, len(infos))
	for i, in := range infos {
		convs[i] = conversationFromInfo(in)
	}
	return convs, nil
}

// OpenConversation makes a conversation active: leave the previous room,
// join the new one, then fetch the message snapshot. Joining before
// fetching bounds the snapshot-vs-push race: a push that lands while the
// fetch is in flight is re-delivered by the snapshot and collapses in the
// idempotent merge.
func (c *Client) OpenConversation(ctx context.Context, conversationID int64) error {
	prev := c.store.Active()
	c.store.SetActive(conversationID)
	if prev != conversationID {
		if prev != 0 {
			c.tr.LeaveRoom(prev)
		}
		c.tr.JoinRoom(conversationID)
	}

	infos, err := c.api.ListMessages(ctx, conversationID)
	if err != nil {
		c.store.SetError(err.Error())
		return WrapError(ErrorCommand, "load messages", err)
	}
	msgs := make([]Message, len(infos))
	for i, in := range infos {
		msgs[i] = messageFromInfo(in)
	}
	c.store.SetMessages(conversationID, msgs)
	c.store.ClearError()
	return nil
}

// CreateConversation creates a conversation and records it locally.
func (c *Client) CreateConversation(ctx context.Context, typ ConversationType, name string, memberIDs []int64) (Conversation, error) {
	info, err := c.api.CreateConversation(ctx, rest.CreateConversationRequest{
		Type:      string(typ),
		Name:      name,
		MemberIDs: memberIDs,
	})
	if err != nil {
		c.store.SetError(err.Error())
		return Conversation{}, WrapError(ErrorCommand, "create conversation", err)
	}
	conv := conversationFromInfo(*info)
	c.store.UpsertConversation(conv)
	return conv, nil
}

// DeleteConversation removes a conversation via REST, updates the store,
// and fans the deletion out over the transport.
func (c *Client) DeleteConversation(ctx context.Context, conversationID int64) error {
	if err := c.api.DeleteConversation(ctx, conversationID); err != nil {
		c.store.SetError(err.Error())
		return WrapError(ErrorCommand, "delete conversation", err)
	}
	c.store.RemoveConversation(conversationID)
	c.tr.EmitDeleteConversation(conversationID)
	return nil
}

// SendMessage persists a message via REST and, when the conversation is
// on screen, also publishes it over the transport. The message shows up
// immediately as a pending local record; the authoritative record merges
// over it through the same idempotent path a push uses, so a concurrent
// push of the same message never duplicates. A REST failure keeps the
// message, marked failed.
func (c *Client) SendMessage(ctx context.Context, conversationID int64, content string, kind ContentKind) error {
	if kind == "" {
		kind = ContentText
	}
	localKey := uuid.NewString()
	c.store.ApplyMessage(SourceLocal, Message{
		LocalKey:       localKey,
		ConversationID: conversationID,
		SenderID:       c.currentUserID,
		Content:        content,
		Kind:           kind,
		CreatedAt:      time.Now(),
		Pending:        true,
	})

	info, err := c.api.CreateMessage(ctx, conversationID, rest.CreateMessageRequest{
		Content: content,
		Type:    string(kind),
	})
	if err != nil {
		c.store.MarkFailed(localKey)
		c.store.SetError(err.Error())
		return WrapError(ErrorCommand, "send message", err)
	}
	c.store.ResolveLocal(localKey, messageFromInfo(*info))

	if c.store.Active() == conversationID {
		c.tr.EmitMessage(conversationID, content, kind)
	}
	return nil
}

// DeleteMessage removes a message via REST, updates the store, and fans
// the deletion out over the transport.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	if err := c.api.DeleteMessage(ctx, messageID); err != nil {
		c.store.SetError(err.Error())
		return WrapError(ErrorCommand, "delete message", err)
	}
	c.store.RemoveMessage(messageID)
	c.tr.EmitDeleteMessage(messageID)
	return nil
}

// SetTyping emits a typing event immediately. A true value arms a
// single-shot timer that auto-emits the stop event after the typing
// window; another keystroke replaces the timer, it never stacks.
func (c *Client) SetTyping(conversationID int64, isTyping bool) {
	c.tr.EmitTyping(conversationID, isTyping)

	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	if !isTyping {
		return
	}
	c.typingTimer = time.AfterFunc(c.cfg.TypingWindow, func() {
		c.typingMu.Lock()
		c.typingTimer = nil
		c.typingMu.Unlock()
		c.tr.EmitTyping(conversationID, false)
	})
}

// MarkAsRead marks a conversation read via REST, clears the local unread
// counter, and emits a read receipt referencing the newest message id in
// the conversation at call time.
func (c *Client) MarkAsRead(ctx context.Context, conversationID int64) error {
	newest := c.store.NewestMessageID(conversationID)
	if err := c.api.MarkRead(ctx, conversationID); err != nil {
		c.store.SetError(err.Error())
		return WrapError(ErrorCommand, "mark read", err)
	}
	c.store.ClearUnread(conversationID)
	c.tr.EmitRead(conversationID, newest)
	return nil
}

// AddReaction applies the reaction optimistically, then persists it. A
// REST rejection rolls the exact triple back; it never refetches.
func (c *Client) AddReaction(ctx context.Context, messageID int64, emoji string) error {
	r := Reaction{MessageID: messageID, UserID: c.currentUserID, Emoji: emoji}
	applied := c.store.AddReactionLocal(messageID, r)

	if err := c.api.AddReaction(ctx, messageID, rest.AddReactionRequest{Emoji: emoji}); err != nil {
		if applied {
			c.store.RemoveReactionLocal(messageID, r)
		}
		c.store.SetError(err.Error())
		return WrapError(ErrorCommand, "add reaction", err)
	}
	c.tr.EmitReactionAdd(messageID, emoji)
	return nil
}

// RemoveReaction is the mirror of AddReaction: optimistic removal,
// compensating re-add on REST rejection.
func (c *Client) RemoveReaction(ctx context.Context, messageID int64, emoji string) error {
	r := Reaction{MessageID: messageID, UserID: c.currentUserID, Emoji: emoji}
	applied := c.store.RemoveReactionLocal(messageID, r)

	if err := c.api.RemoveReaction(ctx, messageID, emoji); err != nil {
		if applied {
			c.store.AddReactionLocal(messageID, r)
		}
		c.store.SetError(err.Error())
		return WrapError(ErrorCommand, "remove reaction", err)
	}
	c.tr.EmitReactionRemove(messageID, emoji)
	return nil
}

// RenameConversation updates the conversation name via settings.
func (c *Client) RenameConversation(ctx context.Context, conversationID int64, name string) error {
	_, err := c.api.UpdateSettings(ctx, conversationID, rest.UpdateSettingsRequest{Name: &name})
	if err != nil {
		c.store.SetError(err.Error())
		return WrapError(ErrorCommand, "rename conversation", err)
	}
	c.store.RenameConversation(conversationID, name)
	return nil
}

// AddMember adds a user to a group conversation.
func (c *Client) AddMember(ctx context.Context, conversationID, userID int64, name string) error {
	if err := c.api.AddMember(ctx, conversationID, rest.AddMemberRequest{UserID: userID}); err != nil {
		c.store.SetError(err.Error())
		return WrapError(ErrorCommand, "add member", err)
	}
	c.store.AddParticipant(conversationID, Participant{ID: userID, Name: name})
	return nil
}

// RemoveMember removes a user from a group conversation.
func (c *Client) RemoveMember(ctx context.Context, conversationID, userID int64) error {
	if err := c.api.RemoveMember(ctx, conversationID, userID); err != nil {
		c.store.SetError(err.Error())
		return WrapError(ErrorCommand, "remove member", err)
	}
	c.store.RemoveParticipant(conversationID, userID)
	return nil
}

// LeaveConversation removes the current user and drops the conversation
// locally, clearing the active selection when it was on screen.
func (c *Client) LeaveConversation(ctx context.Context, conversationID int64) error {
	if err := c.api.RemoveMember(ctx, conversationID, c.currentUserID); err != nil {
		c.store.SetError(err.Error())
		return WrapError(ErrorCommand, "leave conversation", err)
	}
	c.tr.LeaveRoom(conversationID)
	c.store.RemoveConversation(conversationID)
	return nil
}

// View accessors: derived projections, recomputed per call.

// ConversationViews returns the conversation list ready for rendering.
func (c *Client) ConversationViews() []ConversationView {
	convs := c.store.Conversations()
	views := make([]ConversationView, len(convs))
	for i, conv := range convs {
		views[i] = ConversationViewModel(conv, c.currentUserID)
	}
	return views
}

// MessageViews returns the active conversation's messages ready for
// rendering.
func (c *Client) MessageViews() []MessageView {
	names := c.activeNames()
	now := time.Now()
	msgs := c.store.Messages()
	views := make([]MessageView, len(msgs))
	for i, m := range msgs {
		views[i] = MessageViewModel(m, c.currentUserID, names, now)
	}
	return views
}

// TypingUserNames resolves the active typing set to display names.
func (c *Client) TypingUserNames() []string {
	names := c.activeNames()
	ids := c.store.TypingUsers()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = userName(id, names)
	}
	return out
}

func (c *Client) activeNames() map[int64]string {
	if conv, ok := c.store.ConversationByID(c.store.Active()); ok {
		return ParticipantNames(conv)
	}
	return nil
}

// Conversions between wire DTOs and store records.

func conversationFromInfo(in rest.ConversationInfo) Conversation {
	ps := make([]Participant, len(in.Participants))
	online := 0
	for i, p := range in.Participants {
		ps[i] = Participant{ID: p.ID, Name: p.Username, Online: p.Online, LastSeen: p.LastSeen}
		if p.Online {
			online++
		}
	}
	return Conversation{
		ID:           in.ID,
		Type:         ConversationType(in.Type),
		Name:         in.Name,
		Participants: ps,
		CreatedAt:    in.CreatedAt,
		UpdatedAt:    in.UpdatedAt,
		LastMessage:  in.LastMessage,
		Unread:       in.Unread,
		OnlineCount:  online,
	}
}

func messageFromInfo(in rest.MessageInfo) Message {
	rs := make([]Reaction, len(in.Reactions))
	for i, r := range in.Reactions {
		rs[i] = Reaction{MessageID: r.MessageID, UserID: r.UserID, Emoji: r.Emoji}
	}
	return Message{
		ID:             in.ID,
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Kind:           ContentKind(in.Type),
		CreatedAt:      in.CreatedAt,
		Read:           in.Read,
		Reactions:      rs,
	}
}

func messageFromEvent(ev MessageEvent) Message {
	return Message{
		ID:             ev.ID,
		ConversationID: ev.ConversationID,
		SenderID:       ev.SenderID,
		Content:        ev.Content,
		Kind:           ev.Kind,
		CreatedAt:      ev.CreatedAt,
	}
}

// userIDFromToken reads the user id out of the bearer token's claims
// without validating the signature; validation is the server's concern.
func userIDFromToken(token string) (int64, error) {
	if token == "" {
		return 0, NewError(ErrorUnauthorized, "empty token")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, WrapError(ErrorUnauthorized, "parse token", err)
	}
	for _, key := range []string{"user_id", "sub"} {
		v, ok := claims[key]
		if !ok {
			continue
		}
		switch id := v.(type) {
		case float64:
			return int64(id), nil
		case string:
			n, err := strconv.ParseInt(id, 10, 64)
			if err == nil {
				return n, nil
			}
		}
	}
	return 0, NewError(ErrorUnauthorized, "token carries no user id claim")
}
