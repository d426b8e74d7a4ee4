package teamchat

import (
	"encoding/json"
	"testing"
	"time"
)

func eventEnvelope(t *testing.T, event string, payload any) Outbound {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Outbound{Type: frameEvent, Event: event, Data: raw}
}

func TestDispatcherMultipleSubscribers(t *testing.T) {
	var d Dispatcher
	var first, second int
	d.OnNewMessage(func(MessageEvent) { first++ })
	d.OnNewMessage(func(MessageEvent) { second++ })

	d.Dispatch(eventEnvelope(t, eventNewMessage, MessageEvent{ID: 1, ConversationID: 2, SenderID: 3, Content: "hi", CreatedAt: time.Now()}))

	if first != 1 || second != 1 {
		t.Fatalf("both subscribers should fire once, got %d and %d", first, second)
	}
}

func TestDispatcherOff(t *testing.T) {
	var d Dispatcher
	var kept, removed int
	d.OnTypingChanged(func(TypingEvent) { kept++ })
	sub := d.OnTypingChanged(func(TypingEvent) { removed++ })
	d.Off(sub)

	d.Dispatch(eventEnvelope(t, eventUserTyping, TypingEvent{ConversationID: 2, UserID: 3, IsTyping: true}))

	if kept != 1 || removed != 0 {
		t.Fatalf("expected only the remaining subscriber to fire, got kept=%d removed=%d", kept, removed)
	}
}

func TestDispatcherProtocolError(t *testing.T) {
	var d Dispatcher
	var got error
	d.OnError(func(err error) { got = err })

	d.Dispatch(Outbound{Type: frameError, Error: &Error{Code: "unauthorized", Msg: "no token"}})

	if got == nil {
		t.Fatal("expected error callback")
	}
	var ce *ChatError
	if !asChatError(got, &ce) || ce.Code != ErrorUnauthorized {
		t.Fatalf("expected unauthorized chat error, got %v", got)
	}
}

func TestDispatcherUnmarshalErrorFiresOnError(t *testing.T) {
	var d Dispatcher
	var msgCalled bool
	var got error
	d.OnNewMessage(func(MessageEvent) { msgCalled = true })
	d.OnError(func(err error) { got = err })

	d.Dispatch(Outbound{Type: frameEvent, Event: eventNewMessage, Data: json.RawMessage(`{"id":"not a number"}`)})

	if msgCalled {
		t.Fatal("handler must not fire on a malformed payload")
	}
	var ce *ChatError
	if !asChatError(got, &ce) || ce.Code != ErrorSerialization {
		t.Fatalf("expected serialization error, got %v", got)
	}
}

func TestDispatcherStateEvents(t *testing.T) {
	var d Dispatcher
	var transitions []StateEvent
	d.OnConnectionChanged(func(ev StateEvent) { transitions = append(transitions, ev) })

	d.DispatchState(StateEvent{OldState: StateDisconnected, NewState: StateConnecting})
	d.DispatchState(StateEvent{OldState: StateConnecting, NewState: StateConnected})

	if len(transitions) != 2 || transitions[1].NewState != StateConnected {
		t.Fatalf("unexpected transitions: %+v", transitions)
	}
}

func asChatError(err error, target **ChatError) bool {
	ce, ok := err.(*ChatError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
