package teamchat

import (
	"sync"
	"testing"
	"time"
)

func newTestStore() *Store {
	return NewStore(1, 40*time.Millisecond, nil)
}

// recordLogger captures log messages for assertions.
type recordLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordLogger) record(msg string) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

func (l *recordLogger) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

func (l *recordLogger) Debug(msg string, _ map[string]any) { l.record(msg) }
func (l *recordLogger) Info(msg string, _ map[string]any)  { l.record(msg) }
func (l *recordLogger) Warn(msg string, _ map[string]any)  { l.record(msg) }
func (l *recordLogger) Error(msg string, _ map[string]any) { l.record(msg) }

func msgAt(id, conv int64, ts time.Time) Message {
	return Message{ID: id, ConversationID: conv, SenderID: 2, Content: "m", Kind: ContentText, CreatedAt: ts}
}

func TestApplyMessageIdempotent(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)

	m := msgAt(5, 10, time.Now())
	s.ApplyMessage(SourcePush, m)
	s.ApplyMessage(SourcePush, m)
	s.ApplyMessage(SourceRest, m)

	if got := len(s.Messages()); got != 1 {
		t.Fatalf("expected 1 message after duplicate appends, got %d", got)
	}
}

func TestSnapshotOrderingStable(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)

	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	t1 := base
	t2 := base.Add(time.Minute)
	t3 := base.Add(2 * time.Minute)

	// Arrival order T2, T1, T3.
	s.SetMessages(10, []Message{msgAt(2, 10, t2), msgAt(1, 10, t1), msgAt(3, 10, t3)})

	got := s.Messages()
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, want := range []int64{1, 2, 3} {
		if got[i].ID != want {
			t.Fatalf("position %d: expected id %d, got %d", i, want, got[i].ID)
		}
	}
}

func TestOrderingTieBreakByID(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)

	ts := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s.SetMessages(10, []Message{msgAt(7, 10, ts), msgAt(4, 10, ts), msgAt(6, 10, ts)})

	got := s.Messages()
	for i, want := range []int64{4, 6, 7} {
		if got[i].ID != want {
			t.Fatalf("position %d: expected id %d, got %d", i, want, got[i].ID)
		}
	}
}

func TestStaleSnapshotDiscarded(t *testing.T) {
	s := newTestStore()
	s.SetActive(2)
	s.SetMessages(2, []Message{msgAt(20, 2, time.Now())})

	// Conversation 1's snapshot resolves after the switch to 2.
	s.SetMessages(1, []Message{msgAt(11, 1, time.Now()), msgAt(12, 1, time.Now())})

	got := s.Messages()
	if len(got) != 1 || got[0].ID != 20 {
		t.Fatalf("stale snapshot altered the active list: %+v", got)
	}
}

func TestSetLoggerAfterTraffic(t *testing.T) {
	s := newTestStore()
	s.SetActive(2)
	s.ApplyMessage(SourcePush, msgAt(20, 2, time.Now()))

	// Swap the logger in after mutations have started; the stale
	// discard must log through the new one.
	lg := &recordLogger{}
	s.SetLogger(lg)
	s.SetMessages(1, []Message{msgAt(11, 1, time.Now())})

	if !lg.has("stale snapshot discarded") {
		t.Fatalf("swapped-in logger saw no discard, got %v", lg.msgs)
	}
}

func TestReactionRollbackExactInverse(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)
	s.ApplyMessage(SourcePush, msgAt(5, 10, time.Now()))

	r1 := Reaction{MessageID: 5, UserID: 1, Emoji: "🔥"}
	r2 := Reaction{MessageID: 5, UserID: 2, Emoji: "🔥"}

	if !s.AddReactionLocal(5, r1) {
		t.Fatal("first add should apply")
	}
	if !s.AddReactionLocal(5, r2) {
		t.Fatal("second add should apply")
	}

	// The second operation fails: compensate it, and only it.
	if !s.RemoveReactionLocal(5, r2) {
		t.Fatal("rollback should remove the failed triple")
	}

	rs := s.Messages()[0].Reactions
	if len(rs) != 1 || rs[0] != r1 {
		t.Fatalf("expected only the first reaction to survive, got %+v", rs)
	}
}

func TestDuplicateReactionIsNoOpAndNotRolledBack(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)
	s.ApplyMessage(SourcePush, msgAt(5, 10, time.Now()))

	r := Reaction{MessageID: 5, UserID: 1, Emoji: "👍"}
	if !s.AddReactionLocal(5, r) {
		t.Fatal("first add should apply")
	}
	if s.AddReactionLocal(5, r) {
		t.Fatal("duplicate add should be a no-op")
	}
	// The duplicate's failure must not undo the original.
	if got := len(s.Messages()[0].Reactions); got != 1 {
		t.Fatalf("expected 1 reaction, got %d", got)
	}
}

func TestTypingExpiry(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)

	s.SetTyping(10, 7, true)
	if got := s.TypingUsers(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("expected user 7 typing, got %v", got)
	}

	time.Sleep(120 * time.Millisecond)
	if got := s.TypingUsers(); len(got) != 0 {
		t.Fatalf("typing state should expire, got %v", got)
	}
}

func TestTypingRenewalExtendsWindow(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)

	s.SetTyping(10, 7, true)
	time.Sleep(25 * time.Millisecond)
	// Renew near the first deadline; a stale expiry from the replaced
	// timer must not clear the fresh entry.
	s.SetTyping(10, 7, true)
	time.Sleep(25 * time.Millisecond)
	if got := s.TypingUsers(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("renewed typing entry cleared early, got %v", got)
	}

	time.Sleep(60 * time.Millisecond)
	if got := s.TypingUsers(); len(got) != 0 {
		t.Fatalf("typing state should expire after renewal window, got %v", got)
	}
}

func TestTypingExplicitStop(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)

	s.SetTyping(10, 7, true)
	s.SetTyping(10, 7, false)
	if got := s.TypingUsers(); len(got) != 0 {
		t.Fatalf("explicit stop should clear typing, got %v", got)
	}
}

func TestTypingIgnoredForInactiveConversation(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)

	s.SetTyping(99, 7, true)
	if got := s.TypingUsers(); len(got) != 0 {
		t.Fatalf("typing for inactive conversation should be ignored, got %v", got)
	}
}

func TestInactiveConversationOnlyTouchesSummary(t *testing.T) {
	s := newTestStore()
	s.SetConversations([]Conversation{{ID: 20, Type: ConversationPersonal}})
	s.SetActive(10)

	ts := time.Now()
	s.ApplyMessage(SourcePush, Message{ID: 8, ConversationID: 20, SenderID: 2, Content: "psst", CreatedAt: ts})

	if got := len(s.Messages()); got != 0 {
		t.Fatalf("inactive conversation's message must not enter the active list, got %d", got)
	}
	conv, ok := s.ConversationByID(20)
	if !ok {
		t.Fatal("conversation missing")
	}
	if conv.Unread != 1 || conv.LastMessage != "psst" {
		t.Fatalf("summary not updated: %+v", conv)
	}
}

func TestOwnMessageNeverCountsUnread(t *testing.T) {
	s := newTestStore()
	s.SetConversations([]Conversation{{ID: 20}})
	s.SetActive(10)

	s.ApplyMessage(SourcePush, Message{ID: 8, ConversationID: 20, SenderID: 1, Content: "me", CreatedAt: time.Now()})
	conv, _ := s.ConversationByID(20)
	if conv.Unread != 0 {
		t.Fatalf("own message counted as unread: %+v", conv)
	}
}

func TestResolveLocalReplacesProvisional(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)

	s.ApplyMessage(SourceLocal, Message{LocalKey: "k1", ConversationID: 10, SenderID: 1, Content: "hi", CreatedAt: time.Now(), Pending: true})
	s.ResolveLocal("k1", msgAt(42, 10, time.Now()))

	got := s.Messages()
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got[0].ID != 42 || got[0].Pending {
		t.Fatalf("provisional not resolved: %+v", got[0])
	}
}

func TestResolveLocalAfterPushDropsProvisional(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)

	s.ApplyMessage(SourceLocal, Message{LocalKey: "k1", ConversationID: 10, SenderID: 1, Content: "hi", CreatedAt: time.Now(), Pending: true})
	// The push wins the race and lands the authoritative record first.
	s.ApplyMessage(SourcePush, msgAt(42, 10, time.Now()))
	s.ResolveLocal("k1", msgAt(42, 10, time.Now()))

	if got := len(s.Messages()); got != 1 {
		t.Fatalf("expected 1 message after race, got %d", got)
	}
}

func TestMarkFailedRetainsMessage(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)

	s.ApplyMessage(SourceLocal, Message{LocalKey: "k1", ConversationID: 10, SenderID: 1, Content: "keep me", CreatedAt: time.Now(), Pending: true})
	s.MarkFailed("k1")

	got := s.Messages()
	if len(got) != 1 {
		t.Fatalf("failed send must be retained, got %d messages", len(got))
	}
	if !got[0].Failed || got[0].Pending || got[0].Content != "keep me" {
		t.Fatalf("unexpected failed message state: %+v", got[0])
	}
}

func TestRemoveConversationClearsActive(t *testing.T) {
	s := newTestStore()
	s.SetConversations([]Conversation{{ID: 10}, {ID: 20}})
	s.SetActive(10)
	s.ApplyMessage(SourcePush, msgAt(5, 10, time.Now()))
	s.SetTyping(10, 7, true)

	s.RemoveConversation(10)

	if s.Active() != 0 {
		t.Fatalf("active pointer not cleared: %d", s.Active())
	}
	if len(s.Messages()) != 0 || len(s.TypingUsers()) != 0 {
		t.Fatal("message list and typing set should be cleared with the conversation")
	}
	if len(s.Conversations()) != 1 {
		t.Fatalf("conversation not removed: %+v", s.Conversations())
	}
}

func TestMarkMessagesRead(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)
	base := time.Now()
	s.SetMessages(10, []Message{msgAt(3, 10, base), msgAt(9, 10, base.Add(time.Second))})

	s.MarkMessagesRead(10, 3)

	got := s.Messages()
	if !got[0].Read || got[1].Read {
		t.Fatalf("read flags wrong: %+v", got)
	}
}

func TestNewestMessageID(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)
	base := time.Now()
	s.SetMessages(10, []Message{msgAt(9, 10, base), msgAt(3, 10, base.Add(time.Second))})

	if got := s.NewestMessageID(10); got != 9 {
		t.Fatalf("expected newest id 9, got %d", got)
	}
	if got := s.NewestMessageID(99); got != 0 {
		t.Fatalf("inactive conversation should report 0, got %d", got)
	}
}

func TestSnapshotFailurePathLeavesStateUntouched(t *testing.T) {
	s := newTestStore()
	s.SetActive(10)
	s.SetMessages(10, []Message{msgAt(1, 10, time.Now())})
	before := s.Messages()

	s.SetError("api error (status 500): boom")

	if s.Err() == "" {
		t.Fatal("error string not surfaced")
	}
	after := s.Messages()
	if len(after) != len(before) || after[0].ID != before[0].ID {
		t.Fatal("error must not disturb prior state")
	}
}

func TestUserStatusUpdatesOnlineCount(t *testing.T) {
	s := newTestStore()
	s.SetConversations([]Conversation{{
		ID:           10,
		Participants: []Participant{{ID: 1, Online: true}, {ID: 2}},
		OnlineCount:  1,
	}})

	s.SetUserStatus(2, true, time.Now())
	conv, _ := s.ConversationByID(10)
	if conv.OnlineCount != 2 {
		t.Fatalf("expected online count 2, got %d", conv.OnlineCount)
	}

	s.SetUserStatus(1, false, time.Now())
	conv, _ = s.ConversationByID(10)
	if conv.OnlineCount != 1 {
		t.Fatalf("expected online count 1, got %d", conv.OnlineCount)
	}
}
