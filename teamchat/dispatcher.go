package teamchat

import "sync"

// Subscription identifies a registered handler so it can be removed.
type Subscription int

// Dispatcher routes server envelopes to registered callbacks. Every event
// supports multiple subscribers; Off removes one by its Subscription.
type Dispatcher struct {
	mu   sync.Mutex
	next Subscription

	onMessage             map[Subscription]func(MessageEvent)
	onTyping              map[Subscription]func(TypingEvent)
	onUserStatus          map[Subscription]func(UserStatusEvent)
	onReadReceipt         map[Subscription]func(ReadReceiptEvent)
	onMessageDeleted      map[Subscription]func(MessageDeletedEvent)
	onConversationDeleted map[Subscription]func(ConversationDeletedEvent)
	onState               map[Subscription]func(StateEvent)
	onError               map[Subscription]func(error)
}

func (d *Dispatcher) sub() Subscription {
	d.next++
	return d.next
}

// OnNewMessage registers a callback for new-message events.
func (d *Dispatcher) OnNewMessage(fn func(MessageEvent)) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onMessage == nil {
		d.onMessage = map[Subscription]func(MessageEvent){}
	}
	s := d.sub()
	d.onMessage[s] = fn
	return s
}

// OnTypingChanged registers a callback for typing events.
func (d *Dispatcher) OnTypingChanged(fn func(TypingEvent)) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onTyping == nil {
		d.onTyping = map[Subscription]func(TypingEvent){}
	}
	s := d.sub()
	d.onTyping[s] = fn
	return s
}

// OnUserStatusChanged registers a callback for online/offline events.
func (d *Dispatcher) OnUserStatusChanged(fn func(UserStatusEvent)) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onUserStatus == nil {
		d.onUserStatus = map[Subscription]func(UserStatusEvent){}
	}
	s := d.sub()
	d.onUserStatus[s] = fn
	return s
}

// OnReadReceipt registers a callback for read-receipt events.
func (d *Dispatcher) OnReadReceipt(fn func(ReadReceiptEvent)) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onReadReceipt == nil {
		d.onReadReceipt = map[Subscription]func(ReadReceiptEvent){}
	}
	s := d.sub()
	d.onReadReceipt[s] = fn
	return s
}

// OnMessageDeleted registers a callback for message-deleted events.
func (d *Dispatcher) OnMessageDeleted(fn func(MessageDeletedEvent)) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onMessageDeleted == nil {
		d.onMessageDeleted = map[Subscription]func(MessageDeletedEvent){}
	}
	s := d.sub()
	d.onMessageDeleted[s] = fn
	return s
}

// OnConversationDeleted registers a callback for conversation-deleted events.
func (d *Dispatcher) OnConversationDeleted(fn func(ConversationDeletedEvent)) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onConversationDeleted == nil {
		d.onConversationDeleted = map[Subscription]func(ConversationDeletedEvent){}
	}
	s := d.sub()
	d.onConversationDeleted[s] = fn
	return s
}

// OnConnectionChanged registers a callback for connection-state transitions.
func (d *Dispatcher) OnConnectionChanged(fn func(StateEvent)) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onState == nil {
		d.onState = map[Subscription]func(StateEvent){}
	}
	s := d.sub()
	d.onState[s] = fn
	return s
}

// OnError registers a callback for protocol-level errors.
func (d *Dispatcher) OnError(fn func(error)) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onError == nil {
		d.onError = map[Subscription]func(error){}
	}
	s := d.sub()
	d.onError[s] = fn
	return s
}

// Off removes a handler registered by any On* call.
func (d *Dispatcher) Off(s Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.onMessage, s)
	delete(d.onTyping, s)
	delete(d.onUserStatus, s)
	delete(d.onReadReceipt, s)
	delete(d.onMessageDeleted, s)
	delete(d.onConversationDeleted, s)
	delete(d.onState, s)
	delete(d.onError, s)
}

// Dispatch fans a server envelope out to subscribers. Handlers run outside
// the registry lock so they may subscribe or unsubscribe freely.
func (d *Dispatcher) Dispatch(out Outbound) {
	if out.Type == frameError && out.Error != nil {
		d.fireError(FromProtocolError(out.Error))
		return
	}
	if out.Type != frameEvent {
		return
	}
	switch out.Event {
	case eventNewMessage:
		dispatchEvent(d, out, snapshot(d, &d.onMessage))
	case eventUserTyping:
		dispatchEvent(d, out, snapshot(d, &d.onTyping))
	case eventUserStatus:
		dispatchEvent(d, out, snapshot(d, &d.onUserStatus))
	case eventMessagesRead:
		dispatchEvent(d, out, snapshot(d, &d.onReadReceipt))
	case eventMessageDeleted:
		dispatchEvent(d, out, snapshot(d, &d.onMessageDeleted))
	case eventConversationDeleted:
		dispatchEvent(d, out, snapshot(d, &d.onConversationDeleted))
	}
}

// DispatchState pushes a connection-state transition to subscribers.
func (d *Dispatcher) DispatchState(ev StateEvent) {
	for _, fn := range snapshot(d, &d.onState) {
		fn(ev)
	}
}

func (d *Dispatcher) fireError(err error) {
	if err == nil {
		return
	}
	for _, fn := range snapshot(d, &d.onError) {
		fn(err)
	}
}

func snapshot[E any](d *Dispatcher, m *map[Subscription]func(E)) []func(E) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fns := make([]func(E), 0, len(*m))
	for _, fn := range *m {
		fns = append(fns, fn)
	}
	return fns
}

func dispatchEvent[E any](d *Dispatcher, out Outbound, fns []func(E)) {
	if len(fns) == 0 {
		return
	}
	var ev E
	if err := UnmarshalData(out.Data, &ev); err != nil {
		d.fireError(WrapError(ErrorSerialization, "failed to unmarshal "+out.Event+" event", err))
		return
	}
	for _, fn := range fns {
		fn(ev)
	}
}
