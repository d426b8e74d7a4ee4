package teamchat

import (
	"sort"
	"sync"
	"time"
)

// MessageSource tags where an incoming message came from. Every source
// flows through the same id-keyed merge, so a REST result, a push event,
// and a local optimistic send cannot diverge into separate code paths.
type MessageSource int

const (
	SourceRest MessageSource = iota
	SourcePush
	SourceLocal
)

// Store is the single source of truth for the conversation list, the
// active conversation, its message list, the typing set, and the
// connection status. All mutation goes through it; view-models are
// recomputed projections of what it holds.
type Store struct {
	logger        Logger
	currentUserID int64
	typingWindow  time.Duration

	mu            sync.RWMutex
	conversations []Conversation
	active        int64
	messages      []Message
	typing        map[int64]*time.Timer
	connState     ConnectionState
	lastErr       string
	onChange      func()
}

// NewStore constructs a store for one session. currentUserID drives unread
// accounting only; rendering decisions stay in the transformer.
func NewStore(currentUserID int64, typingWindow time.Duration, logger Logger) *Store {
	if logger == nil {
		logger = noopLogger{}
	}
	if typingWindow <= 0 {
		typingWindow = 3 * time.Second
	}
	return &Store{
		logger:        logger,
		currentUserID: currentUserID,
		typingWindow:  typingWindow,
		typing:        make(map[int64]*time.Timer),
	}
}

// SetLogger overrides the store's logger (optional).
func (s *Store) SetLogger(l Logger) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.logger = l
	s.mu.Unlock()
}

// SetOnChange registers a single change hook for the host UI to schedule
// re-renders. It runs after the mutation completes, outside the lock.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SetConversations replaces the conversation list wholesale (REST snapshot).
func (s *Store) SetConversations(convs []Conversation) {
	cp := make([]Conversation, len(convs))
	copy(cp, convs)
	s.mu.Lock()
	s.conversations = cp
	s.mu.Unlock()
	s.notify()
}

// Conversations returns a copy of the conversation list.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]Conversation, len(s.conversations))
	copy(cp, s.conversations)
	return cp
}

// ConversationByID returns the conversation and whether it exists.
func (s *Store) ConversationByID(id int64) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return Conversation{}, false
}

// UpsertConversation inserts or replaces one conversation record.
func (s *Store) UpsertConversation(c Conversation) {
	s.mu.Lock()
	replaced := false
	for i := range s.conversations {
		if s.conversations[i].ID == c.ID {
			s.conversations[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		s.conversations = append(s.conversations, c)
	}
	s.mu.Unlock()
	s.notify()
}

// SetActive switches the active conversation, dropping the previous
// message list and typing set. Snapshot loads for any other conversation
// are discarded from this point on.
func (s *Store) SetActive(id int64) {
	s.mu.Lock()
	s.active = id
	s.messages = nil
	s.clearTypingLocked()
	s.mu.Unlock()
	s.notify()
}

// Active returns the active conversation id, zero when none.
func (s *Store) Active() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetMessages applies a REST message snapshot, replacing the list
// wholesale. A snapshot for a conversation that is no longer active is a
// stale response: discarded and logged, never applied.
func (s *Store) SetMessages(conversationID int64, msgs []Message) {
	s.mu.Lock()
	if conversationID != s.active {
		logger := s.logger
		s.mu.Unlock()
		logger.Debug("stale snapshot discarded", map[string]any{
			"conversation_id": conversationID,
			"code":            ErrorStaleResponse.String(),
		})
		return
	}
	cp := make([]Message, len(msgs))
	copy(cp, msgs)
	sortMessages(cp)
	s.messages = cp
	s.mu.Unlock()
	s.notify()
}

// Messages returns a copy of the active conversation's message list in
// display order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]Message, len(s.messages))
	copy(cp, s.messages)
	return cp
}

// ApplyMessage merges one incoming message regardless of source. Appends
// are id-keyed and idempotent: a message whose id is already present is a
// no-op for the list. Messages for inactive conversations only touch the
// conversation summary and unread counter.
func (s *Store) ApplyMessage(src MessageSource, m Message) {
	s.mu.Lock()
	if m.ConversationID == s.active && s.active != 0 {
		if m.ID != 0 && s.indexByID(m.ID) >= 0 {
			s.mu.Unlock()
			return
		}
		s.messages = append(s.messages, m)
		sortMessages(s.messages)
	}
	s.touchConversationLocked(m)
	s.mu.Unlock()
	s.notify()
}

// ResolveLocal replaces the provisional message identified by localKey
// with the authoritative record returned by the server. If a push event
// already delivered the same id during the round-trip, the provisional
// entry is dropped instead of duplicated.
func (s *Store) ResolveLocal(localKey string, m Message) {
	s.mu.Lock()
	li := s.indexByLocal(localKey)
	di := -1
	if m.ID != 0 {
		di = s.indexByID(m.ID)
	}
	switch {
	case li < 0 && di < 0:
		if m.ConversationID == s.active && s.active != 0 {
			s.messages = append(s.messages, m)
			sortMessages(s.messages)
		}
	case li < 0:
		// Push beat the REST response; nothing left to resolve.
	case di >= 0 && di != li:
		s.messages = append(s.messages[:li], s.messages[li+1:]...)
	default:
		m.LocalKey = localKey
		m.Pending = false
		m.Failed = false
		s.messages[li] = m
		sortMessages(s.messages)
	}
	s.touchConversationLocked(m)
	s.mu.Unlock()
	s.notify()
}

// MarkFailed flags a provisional message whose REST create was rejected.
// The content is retained so the user can retry; it is never discarded.
func (s *Store) MarkFailed(localKey string) {
	s.mu.Lock()
	if i := s.indexByLocal(localKey); i >= 0 {
		s.messages[i].Pending = false
		s.messages[i].Failed = true
	}
	s.mu.Unlock()
	s.notify()
}

// AddReactionLocal applies an optimistic reaction and reports whether it
// changed anything. Duplicate (message, user, emoji) triples are no-ops,
// and a no-op must not be rolled back later.
func (s *Store) AddReactionLocal(messageID int64, r Reaction) bool {
	s.mu.Lock()
	i := s.indexByID(messageID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	for _, ex := range s.messages[i].Reactions {
		if ex == r {
			s.mu.Unlock()
			return false
		}
	}
	s.messages[i].Reactions = append(s.messages[i].Reactions, r)
	s.mu.Unlock()
	s.notify()
	return true
}

// RemoveReactionLocal removes one matching reaction triple and reports
// whether it changed anything. It is the exact inverse of AddReactionLocal,
// which is what makes compensating rollback compose under rapid mutations.
func (s *Store) RemoveReactionLocal(messageID int64, r Reaction) bool {
	s.mu.Lock()
	i := s.indexByID(messageID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	rs := s.messages[i].Reactions
	for j, ex := range rs {
		if ex == r {
			s.messages[i].Reactions = append(rs[:j], rs[j+1:]...)
			s.mu.Unlock()
			s.notify()
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// SetTyping updates the typing set for the active conversation. A typing
// user clears automatically after the silence window unless renewed.
// Events for other conversations are ignored.
func (s *Store) SetTyping(conversationID, userID int64, isTyping bool) {
	s.mu.Lock()
	if conversationID != s.active || s.active == 0 {
		s.mu.Unlock()
		return
	}
	if tm, ok := s.typing[userID]; ok {
		tm.Stop()
		delete(s.typing, userID)
	}
	if isTyping {
		var tm *time.Timer
		tm = time.AfterFunc(s.typingWindow, func() {
			s.expireTyping(conversationID, userID, tm)
		})
		s.typing[userID] = tm
	}
	s.mu.Unlock()
	s.notify()
}

// expireTyping clears a typing entry when its window elapses. The timer
// identity check drops expirations that lost a race with a renewal: a
// stopped timer may already have fired and be waiting on the lock.
func (s *Store) expireTyping(conversationID, userID int64, tm *time.Timer) {
	s.mu.Lock()
	if conversationID != s.active || s.typing[userID] != tm {
		s.mu.Unlock()
		return
	}
	delete(s.typing, userID)
	s.mu.Unlock()
	s.notify()
}

// TypingUsers returns the ids currently typing in the active conversation.
func (s *Store) TypingUsers() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.typing))
	for id := range s.typing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RemoveMessage drops a message from the active list.
func (s *Store) RemoveMessage(messageID int64) {
	s.mu.Lock()
	if i := s.indexByID(messageID); i >= 0 {
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
	}
	s.mu.Unlock()
	s.notify()
}

// RemoveConversation drops a conversation. If it was active, the active
// pointer, message list, and typing set are cleared with it.
func (s *Store) RemoveConversation(conversationID int64) {
	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			break
		}
	}
	if s.active == conversationID {
		s.active = 0
		s.messages = nil
		s.clearTypingLocked()
	}
	s.mu.Unlock()
	s.notify()
}

// MarkMessagesRead flags messages up to messageID as read. Applies only
// when the conversation is active; receipts for background conversations
// carry no list to update.
func (s *Store) MarkMessagesRead(conversationID, messageID int64) {
	s.mu.Lock()
	if conversationID == s.active {
		for i := range s.messages {
			if s.messages[i].ID != 0 && s.messages[i].ID <= messageID {
				s.messages[i].Read = true
			}
		}
	}
	s.mu.Unlock()
	s.notify()
}

// ClearUnread zeroes a conversation's unread counter.
func (s *Store) ClearUnread(conversationID int64) {
	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations[i].Unread = 0
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// NewestMessageID returns the highest message id in the active list, or
// zero when the conversation is not active or empty.
func (s *Store) NewestMessageID(conversationID int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conversationID != s.active {
		return 0
	}
	var newest int64
	for _, m := range s.messages {
		if m.ID > newest {
			newest = m.ID
		}
	}
	return newest
}

// SetUserStatus updates a user's online flag across all conversations and
// recomputes per-conversation online counters.
func (s *Store) SetUserStatus(userID int64, online bool, lastSeen time.Time) {
	s.mu.Lock()
	for i := range s.conversations {
		c := &s.conversations[i]
		changed := false
		count := 0
		for j := range c.Participants {
			if c.Participants[j].ID == userID {
				c.Participants[j].Online = online
				c.Participants[j].LastSeen = lastSeen
				changed = true
			}
			if c.Participants[j].Online {
				count++
			}
		}
		if changed {
			c.OnlineCount = count
		}
	}
	s.mu.Unlock()
	s.notify()
}

// RenameConversation updates a conversation's explicit name.
func (s *Store) RenameConversation(conversationID int64, name string) {
	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations[i].Name = name
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// AddParticipant adds a member to a conversation record.
func (s *Store) AddParticipant(conversationID int64, p Participant) {
	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].ID != conversationID {
			continue
		}
		exists := false
		for _, ex := range s.conversations[i].Participants {
			if ex.ID == p.ID {
				exists = true
				break
			}
		}
		if !exists {
			s.conversations[i].Participants = append(s.conversations[i].Participants, p)
			if p.Online {
				s.conversations[i].OnlineCount++
			}
		}
		break
	}
	s.mu.Unlock()
	s.notify()
}

// RemoveParticipant removes a member from a conversation record.
func (s *Store) RemoveParticipant(conversationID, userID int64) {
	s.mu.Lock()
	for i := range s.conversations {
		if s.conversations[i].ID != conversationID {
			continue
		}
		ps := s.conversations[i].Participants
		for j := range ps {
			if ps[j].ID == userID {
				if ps[j].Online && s.conversations[i].OnlineCount > 0 {
					s.conversations[i].OnlineCount--
				}
				s.conversations[i].Participants = append(ps[:j], ps[j+1:]...)
				break
			}
		}
		break
	}
	s.mu.Unlock()
	s.notify()
}

// SetConnectionState records the transport's state projection.
func (s *Store) SetConnectionState(state ConnectionState) {
	s.mu.Lock()
	s.connState = state
	s.mu.Unlock()
	s.notify()
}

// ConnectionState returns the last recorded connection state.
func (s *Store) ConnectionState() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connState
}

// SetError records a store-level error string for UI display.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
	s.notify()
}

// ClearError resets the store-level error string.
func (s *Store) ClearError() { s.SetError("") }

// Err returns the current store-level error string, empty when none.
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// touchConversationLocked refreshes a conversation's last-message summary
// and bumps its unread counter for messages that arrive while it is not on
// screen (own messages never count as unread).
func (s *Store) touchConversationLocked(m Message) {
	for i := range s.conversations {
		if s.conversations[i].ID != m.ConversationID {
			continue
		}
		s.conversations[i].LastMessage = m.Content
		s.conversations[i].LastMessageAt = m.CreatedAt
		if m.CreatedAt.After(s.conversations[i].UpdatedAt) {
			s.conversations[i].UpdatedAt = m.CreatedAt
		}
		if m.ConversationID != s.active && m.SenderID != s.currentUserID {
			s.conversations[i].Unread++
		}
		return
	}
}

func (s *Store) clearTypingLocked() {
	for id, tm := range s.typing {
		tm.Stop()
		delete(s.typing, id)
	}
}

func (s *Store) indexByID(id int64) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexByLocal(localKey string) int {
	if localKey == "" {
		return -1
	}
	for i := range s.messages {
		if s.messages[i].LocalKey == localKey {
			return i
		}
	}
	return -1
}

// sortMessages orders by creation timestamp, stable with id tie-break.
func sortMessages(ms []Message) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].ID < ms[j].ID
		}
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}
