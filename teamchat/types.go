package teamchat

import "encoding/json"

const (
	ProtocolVersion = 1

	// client -> server frame types
	frameHello              = "hello"
	frameJoin               = "join_conversation"
	frameLeave              = "leave_conversation"
	frameSendMessage        = "send_message"
	frameTyping             = "typing"
	frameReadMessages       = "read_messages"
	frameAddReaction        = "add_reaction"
	frameRemoveReaction     = "remove_reaction"
	frameDeleteMessage      = "delete_message"
	frameDeleteConversation = "delete_conversation"

	// server -> client envelope types
	frameAck   = "ack"
	frameEvent = "event"
	frameError = "error"

	// event names carried in the server envelope
	eventNewMessage          = "new_message"
	eventUserTyping          = "user_typing"
	eventUserStatus          = "user_status"
	eventMessagesRead        = "messages_read"
	eventMessageDeleted      = "message_deleted"
	eventConversationDeleted = "conversation_deleted"
)

// Inbound is the envelope from client to server.
type Inbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Outbound is the envelope from server to client.
type Outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// HelloPayload initiates the session. The server answers with an ack
// frame or an error frame before any events flow.
type HelloPayload struct {
	Protocol int    `json:"protocol"`
	Token    string `json:"token"`
}

// RoomPayload declares room membership for a conversation.
type RoomPayload struct {
	ConversationID int64 `json:"conversation_id"`
}

// SendMessagePayload fans a sent message out to the room. Durability is
// the REST call's job; this is best-effort.
type SendMessagePayload struct {
	ConversationID int64       `json:"conversation_id"`
	Content        string      `json:"content"`
	Kind           ContentKind `json:"type"`
}

// TypingPayload announces the local user started or stopped typing.
type TypingPayload struct {
	ConversationID int64 `json:"conversation_id"`
	IsTyping       bool  `json:"is_typing"`
}

// ReadPayload is a read receipt for everything up to MessageID.
type ReadPayload struct {
	ConversationID int64 `json:"conversation_id"`
	MessageID      int64 `json:"message_id"`
}

// ReactionPayload adds or removes an emoji reaction.
type ReactionPayload struct {
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// DeleteMessagePayload asks the room to drop a message.
type DeleteMessagePayload struct {
	MessageID int64 `json:"message_id"`
}

// DeleteConversationPayload asks the room to drop a conversation.
type DeleteConversationPayload struct {
	ConversationID int64 `json:"conversation_id"`
}

// Error describes a protocol error.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Msg
}

// UnmarshalData decodes a RawMessage payload into target.
func UnmarshalData(data json.RawMessage, v any) error {
	return json.Unmarshal(data, v)
}
