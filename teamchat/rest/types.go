package rest

import "time"

// Conversation types

// ParticipantInfo is a conversation member as returned by the API.
type ParticipantInfo struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// ConversationInfo represents conversation metadata.
type ConversationInfo struct {
	ID           int64             `json:"id"`
	Type         string            `json:"type"` // "personal" or "group"
	Name         string            `json:"name,omitempty"`
	Participants []ParticipantInfo `json:"participants"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	LastMessage  string            `json:"last_message,omitempty"`
	Unread       int               `json:"unread"`
}

// CreateConversationRequest is the request body for creating a conversation.
type CreateConversationRequest struct {
	Type      string  `json:"type"`
	Name      string  `json:"name,omitempty"`
	MemberIDs []int64 `json:"member_ids"`
}

// SettingsInfo holds the mutable conversation settings.
type SettingsInfo struct {
	Name          string `json:"name"`
	Muted         bool   `json:"muted"`
	Notifications bool   `json:"notifications"`
}

// UpdateSettingsRequest is the request body for updating settings.
type UpdateSettingsRequest struct {
	Name          *string `json:"name,omitempty"`
	Muted         *bool   `json:"muted,omitempty"`
	Notifications *bool   `json:"notifications,omitempty"`
}

// AddMemberRequest is the request body for adding a member.
type AddMemberRequest struct {
	UserID int64 `json:"user_id"`
}

// Message types

// ReactionInfo is one (message, user, emoji) reaction.
type ReactionInfo struct {
	MessageID int64  `json:"message_id"`
	UserID    int64  `json:"user_id"`
	Emoji     string `json:"emoji"`
}

// MessageInfo represents a single persisted message.
type MessageInfo struct {
	ID             int64          `json:"id"`
	ConversationID int64          `json:"conversation_id"`
	SenderID       int64          `json:"sender_id"`
	Content        string         `json:"content"`
	Type           string         `json:"type"` // text, image, file, audio, video
	CreatedAt      time.Time      `json:"created_at"`
	Read           bool           `json:"read"`
	Reactions      []ReactionInfo `json:"reactions,omitempty"`
}

// CreateMessageRequest is the request body for persisting a message.
type CreateMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

// AddReactionRequest is the request body for adding a reaction.
type AddReactionRequest struct {
	Emoji string `json:"emoji"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
