package teamchat

import "time"

// ConversationType distinguishes one-to-one chats from groups.
type ConversationType string

const (
	ConversationPersonal ConversationType = "personal"
	ConversationGroup    ConversationType = "group"
)

// ContentKind is the payload type of a message.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
	ContentFile  ContentKind = "file"
	ContentAudio ContentKind = "audio"
	ContentVideo ContentKind = "video"
)

// Participant is a member of a conversation.
type Participant struct {
	ID       int64
	Name     string
	Online   bool
	LastSeen time.Time
}

// Conversation is the store's raw conversation record. View-level fields
// (display name, avatar glyph) are derived, see viewmodel.go.
type Conversation struct {
	ID            int64
	Type          ConversationType
	Name          string
	Participants  []Participant
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastMessage   string
	LastMessageAt time.Time
	Unread        int
	OnlineCount   int
}

// Reaction is a single (message, user, emoji) triple. Aggregated views are
// always recomputed from the raw list, never stored alongside it.
type Reaction struct {
	MessageID int64
	UserID    int64
	Emoji     string
}

// Message is the store's raw message record.
//
// A message created by a local send starts out with ID 0 and a non-empty
// LocalKey; the authoritative record from the server replaces it through
// the same merge path push events use. Display order is by CreatedAt with
// ID as the tie-break.
type Message struct {
	ID             int64
	LocalKey       string
	ConversationID int64
	SenderID       int64
	Content        string
	Kind           ContentKind
	CreatedAt      time.Time
	Read           bool
	Pending        bool
	Failed         bool
	Reactions      []Reaction
}
