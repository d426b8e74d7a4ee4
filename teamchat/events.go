package teamchat

import "time"

// MessageEvent is pushed when a message lands in a joined room.
type MessageEvent struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversation_id"`
	SenderID       int64       `json:"sender_id"`
	Content        string      `json:"content"`
	Kind           ContentKind `json:"type"`
	CreatedAt      time.Time   `json:"created_at"`
}

// TypingEvent is pushed when a user starts or stops typing.
type TypingEvent struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
	IsTyping       bool  `json:"is_typing"`
}

// UserStatusEvent is pushed when a user goes online or offline.
type UserStatusEvent struct {
	UserID   int64     `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// ReadReceiptEvent is pushed when a user reads a conversation.
type ReadReceiptEvent struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
	MessageID      int64 `json:"message_id"`
}

// MessageDeletedEvent is pushed when a message is removed.
type MessageDeletedEvent struct {
	MessageID int64 `json:"message_id"`
}

// ConversationDeletedEvent is pushed when a conversation is removed.
type ConversationDeletedEvent struct {
	ConversationID int64 `json:"conversation_id"`
}
