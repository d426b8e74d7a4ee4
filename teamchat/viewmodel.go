package teamchat

import (
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"
)

// View-models are derived, disposable projections. Every function here is
// pure: the current user id comes from the caller, inputs are never
// mutated, and output is deterministic for a given reference time.

// ConversationView is the UI-ready projection of a conversation.
type ConversationView struct {
	ID          int64
	Type        ConversationType
	DisplayName string
	AvatarGlyph string
	LastMessage string
	Unread      int
	OnlineCount int
	UpdatedAt   time.Time
}

// ReactionGroup is the aggregate of one emoji on one message: how many and
// who, with user names in encounter order of the raw reactions.
type ReactionGroup struct {
	Emoji string
	Count int
	Users []string
}

// MessageView is the UI-ready projection of a message.
type MessageView struct {
	ID             int64
	LocalKey       string
	ConversationID int64
	SenderID       int64
	SenderName     string
	Content        string
	Kind           ContentKind
	IsOwn          bool
	Pending        bool
	Failed         bool
	Read           bool
	Timestamp      string
	CreatedAt      time.Time
	Reactions      []ReactionGroup
}

// ConversationViewModel maps a raw conversation to its view.
func ConversationViewModel(c Conversation, currentUserID int64) ConversationView {
	name := resolveDisplayName(c, currentUserID)
	return ConversationView{
		ID:          c.ID,
		Type:        c.Type,
		DisplayName: name,
		AvatarGlyph: avatarGlyph(name),
		LastMessage: c.LastMessage,
		Unread:      c.Unread,
		OnlineCount: c.OnlineCount,
		UpdatedAt:   c.UpdatedAt,
	}
}

// MessageViewModel maps a raw message to its view. names resolves user ids
// to display names for the sender and reaction aggregates; now is the
// reference time for relative timestamp rendering.
func MessageViewModel(m Message, currentUserID int64, names map[int64]string, now time.Time) MessageView {
	return MessageView{
		ID:             m.ID,
		LocalKey:       m.LocalKey,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     userName(m.SenderID, names),
		Content:        m.Content,
		Kind:           m.Kind,
		IsOwn:          m.SenderID == currentUserID,
		Pending:        m.Pending,
		Failed:         m.Failed,
		Read:           m.Read,
		Timestamp:      formatTimestamp(m.CreatedAt, now),
		CreatedAt:      m.CreatedAt,
		Reactions:      AggregateReactions(m.Reactions, names),
	}
}

// AggregateReactions groups raw reactions by emoji. Groups appear in the
// order their emoji was first encountered, with one name per reaction.
func AggregateReactions(reactions []Reaction, names map[int64]string) []ReactionGroup {
	if len(reactions) == 0 {
		return nil
	}
	order := make([]string, 0, len(reactions))
	byEmoji := make(map[string]*ReactionGroup, len(reactions))
	for _, r := range reactions {
		g, ok := byEmoji[r.Emoji]
		if !ok {
			g = &ReactionGroup{Emoji: r.Emoji}
			byEmoji[r.Emoji] = g
			order = append(order, r.Emoji)
		}
		g.Count++
		g.Users = append(g.Users, userName(r.UserID, names))
	}
	out := make([]ReactionGroup, len(order))
	for i, e := range order {
		out[i] = *byEmoji[e]
	}
	return out
}

// ParticipantNames builds the id-to-name map MessageViewModel consumes.
func ParticipantNames(c Conversation) map[int64]string {
	names := make(map[int64]string, len(c.Participants))
	for _, p := range c.Participants {
		if p.Name != "" {
			names[p.ID] = p.Name
		}
	}
	return names
}

// resolveDisplayName picks, in order: the explicit name; a synthesized
// group name; the first participant other than the current user; a
// synthesized user name.
func resolveDisplayName(c Conversation, currentUserID int64) string {
	if c.Name != "" {
		return c.Name
	}
	if c.Type == ConversationGroup {
		return fmt.Sprintf("Group %d", c.ID)
	}
	for _, p := range c.Participants {
		if p.ID == currentUserID {
			continue
		}
		if p.Name != "" {
			return p.Name
		}
		return fmt.Sprintf("User %d", p.ID)
	}
	return fmt.Sprintf("User %d", c.ID)
}

// avatarGlyph is the uppercased first rune of the resolved name.
func avatarGlyph(name string) string {
	r, _ := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}

// formatTimestamp renders short time for same-day messages and a dated
// form otherwise.
func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	y1, m1, d1 := t.Local().Date()
	y2, m2, d2 := now.Local().Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return t.Local().Format("15:04")
	}
	return t.Local().Format("Jan 2, 15:04")
}

func userName(id int64, names map[int64]string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("User %d", id)
}
