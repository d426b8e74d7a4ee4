package teamchat

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/bapcai02/team-hub-sub001/teamchat/internal"

	"github.com/coder/websocket"
)

// Transport owns the single realtime connection for a session. It never
// mutates application state; inbound frames only fan out through the
// dispatcher. Emissions are best-effort: REST is the source of truth.
type Transport struct {
	cfg        Config
	logger     Logger
	dispatcher Dispatcher
	writeCh    chan Inbound

	mu      sync.Mutex
	conn    *internal.Conn
	state   ConnectionState
	token   string
	rooms   map[int64]int
	cancel  context.CancelFunc
	closing bool
	gen     int
}

// NewTransport constructs a transport with the provided config.
func NewTransport(cfg Config) *Transport {
	return &Transport{
		cfg:     cfg,
		logger:  noopLogger{},
		writeCh: make(chan Inbound, 16),
		rooms:   make(map[int64]int),
	}
}

// SetLogger overrides the logger (optional).
func (t *Transport) SetLogger(l Logger) {
	if l == nil {
		return
	}
	t.logger = l
}

// Subscription proxies.

func (t *Transport) OnNewMessage(fn func(MessageEvent)) Subscription {
	return t.dispatcher.OnNewMessage(fn)
}
func (t *Transport) OnTypingChanged(fn func(TypingEvent)) Subscription {
	return t.dispatcher.OnTypingChanged(fn)
}
func (t *Transport) OnUserStatusChanged(fn func(UserStatusEvent)) Subscription {
	return t.dispatcher.OnUserStatusChanged(fn)
}
func (t *Transport) OnReadReceipt(fn func(ReadReceiptEvent)) Subscription {
	return t.dispatcher.OnReadReceipt(fn)
}
func (t *Transport) OnMessageDeleted(fn func(MessageDeletedEvent)) Subscription {
	return t.dispatcher.OnMessageDeleted(fn)
}
func (t *Transport) OnConversationDeleted(fn func(ConversationDeletedEvent)) Subscription {
	return t.dispatcher.OnConversationDeleted(fn)
}
func (t *Transport) OnConnectionChanged(fn func(StateEvent)) Subscription {
	return t.dispatcher.OnConnectionChanged(fn)
}
func (t *Transport) OnError(fn func(error)) Subscription {
	return t.dispatcher.OnError(fn)
}
func (t *Transport) Off(s Subscription) { t.dispatcher.Off(s) }

// State returns the current connection state.
func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect dials the server, performs the hello/ack handshake, and starts
// the read/write loops. It fails when the handshake times out or the
// token is rejected. The token is kept for automatic reconnects.
// Bumping the generation supersedes any reconnect loop still waiting out
// its backoff, so an explicit Connect can never race it into a second
// live socket.
func (t *Transport) Connect(ctx context.Context, token string) error {
	t.mu.Lock()
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return NewError(ErrorConnection, "already connected")
	}
	t.token = token
	t.closing = false
	t.gen++
	gen := t.gen
	t.mu.Unlock()
	return t.establish(ctx, gen)
}

// establish performs one dial + handshake for connection generation gen.
// Shared by Connect and the reconnect loop; an attempt whose generation
// has been superseded backs out without touching shared state.
func (t *Transport) establish(ctx context.Context, gen int) error {
	if t.cfg.ServerURL == "" {
		return NewError(ErrorConnection, "empty server URL")
	}
	t.mu.Lock()
	if t.gen != gen || t.closing {
		t.mu.Unlock()
		return NewError(ErrorConnection, "connection superseded")
	}
	t.mu.Unlock()
	t.setStateIf(gen, StateConnecting)

	hctx := ctx
	if t.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, t.cfg.HandshakeTimeout)
		defer cancel()
	}

	ws, _, err := websocket.Dial(hctx, t.cfg.ServerURL, nil)
	if err != nil {
		t.setStateIf(gen, StateDisconnected)
		return dialError(err)
	}
	conn := internal.NewConn(ws, t.cfg.ReadTimeout, t.cfg.WriteTimeout)

	t.mu.Lock()
	token := t.token
	t.mu.Unlock()
	hello := Inbound{Type: frameHello, Data: HelloPayload{Protocol: ProtocolVersion, Token: token}}
	if err := conn.Write(hctx, hello); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "handshake error")
		t.setStateIf(gen, StateDisconnected)
		return dialError(err)
	}

	var ack Outbound
	if err := conn.Read(hctx, &ack); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "handshake error")
		t.setStateIf(gen, StateDisconnected)
		return dialError(err)
	}
	switch ack.Type {
	case frameAck:
	case frameError:
		_ = conn.Close(websocket.StatusPolicyViolation, "handshake rejected")
		t.setStateIf(gen, StateDisconnected)
		if ce := FromProtocolError(ack.Error); ce != nil {
			return ce
		}
		return NewError(ErrorUnauthorized, "handshake rejected")
	default:
		_ = conn.Close(websocket.StatusProtocolError, "unexpected handshake reply")
		t.setStateIf(gen, StateDisconnected)
		return NewError(ErrorConnection, "unexpected handshake reply: "+ack.Type)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	if t.gen != gen || t.closing {
		t.mu.Unlock()
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "superseded")
		return NewError(ErrorConnection, "connection superseded")
	}
	t.conn = conn
	t.cancel = cancel
	rooms := make([]int64, 0, len(t.rooms))
	for id := range t.rooms {
		rooms = append(rooms, id)
	}
	t.mu.Unlock()
	t.setStateIf(gen, StateConnected)

	go t.readLoop(runCtx, conn)
	go t.writeLoop(runCtx, conn)

	// Re-declare membership so pushes resume before any snapshot fetch.
	for _, id := range rooms {
		t.enqueue(Inbound{Type: frameJoin, Data: RoomPayload{ConversationID: id}})
	}
	return nil
}

// Disconnect closes the connection and stops the loops. Idempotent; it
// also suppresses any in-flight reconnect.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.closing = true
	cancel := t.cancel
	conn := t.conn
	t.cancel = nil
	t.conn = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client close")
	}
	t.setState(StateDisconnected)
}

// JoinRoom declares membership in a conversation room. Membership is
// refcounted so multiple UI surfaces referencing the same conversation
// produce a single join frame. Best-effort when disconnected: the set is
// kept and re-declared on (re)connect.
func (t *Transport) JoinRoom(conversationID int64) {
	t.mu.Lock()
	t.rooms[conversationID]++
	first := t.rooms[conversationID] == 1
	connected := t.state == StateConnected
	t.mu.Unlock()
	if !first {
		return
	}
	if !connected {
		t.logger.Debug("join deferred, not connected", map[string]any{"conversation_id": conversationID})
		return
	}
	t.enqueue(Inbound{Type: frameJoin, Data: RoomPayload{ConversationID: conversationID}})
}

// LeaveRoom drops one reference to a conversation room; the leave frame
// goes out when the last reference is released.
func (t *Transport) LeaveRoom(conversationID int64) {
	t.mu.Lock()
	n, ok := t.rooms[conversationID]
	if !ok {
		t.mu.Unlock()
		return
	}
	n--
	last := n <= 0
	if last {
		delete(t.rooms, conversationID)
	} else {
		t.rooms[conversationID] = n
	}
	connected := t.state == StateConnected
	t.mu.Unlock()
	if !last {
		return
	}
	if !connected {
		t.logger.Debug("leave skipped, not connected", map[string]any{"conversation_id": conversationID})
		return
	}
	t.enqueue(Inbound{Type: frameLeave, Data: RoomPayload{ConversationID: conversationID}})
}

// Fire-and-forget emissions. Dropped with a warning when disconnected;
// the caller owns REST-level durability.

func (t *Transport) EmitMessage(conversationID int64, content string, kind ContentKind) {
	t.emit(Inbound{Type: frameSendMessage, Data: SendMessagePayload{ConversationID: conversationID, Content: content, Kind: kind}})
}

func (t *Transport) EmitTyping(conversationID int64, isTyping bool) {
	t.emit(Inbound{Type: frameTyping, Data: TypingPayload{ConversationID: conversationID, IsTyping: isTyping}})
}

func (t *Transport) EmitRead(conversationID, messageID int64) {
	t.emit(Inbound{Type: frameReadMessages, Data: ReadPayload{ConversationID: conversationID, MessageID: messageID}})
}

func (t *Transport) EmitReactionAdd(messageID int64, emoji string) {
	t.emit(Inbound{Type: frameAddReaction, Data: ReactionPayload{MessageID: messageID, Emoji: emoji}})
}

func (t *Transport) EmitReactionRemove(messageID int64, emoji string) {
	t.emit(Inbound{Type: frameRemoveReaction, Data: ReactionPayload{MessageID: messageID, Emoji: emoji}})
}

func (t *Transport) EmitDeleteMessage(messageID int64) {
	t.emit(Inbound{Type: frameDeleteMessage, Data: DeleteMessagePayload{MessageID: messageID}})
}

func (t *Transport) EmitDeleteConversation(conversationID int64) {
	t.emit(Inbound{Type: frameDeleteConversation, Data: DeleteConversationPayload{ConversationID: conversationID}})
}

func (t *Transport) emit(in Inbound) {
	t.mu.Lock()
	connected := t.state == StateConnected
	t.mu.Unlock()
	if !connected {
		t.logger.Warn("emit dropped, not connected", map[string]any{"type": in.Type})
		return
	}
	t.enqueue(in)
}

func (t *Transport) enqueue(in Inbound) {
	select {
	case t.writeCh <- in:
	default:
		t.logger.Warn("write buffer full, frame dropped", map[string]any{"type": in.Type})
	}
}

func (t *Transport) setState(s ConnectionState) {
	t.mu.Lock()
	old := t.state
	if old == s {
		t.mu.Unlock()
		return
	}
	t.state = s
	t.mu.Unlock()
	t.dispatcher.DispatchState(StateEvent{OldState: old, NewState: s})
}

// setStateIf transitions only while gen is still the live connection
// generation; a superseded attempt must not clobber the live state.
func (t *Transport) setStateIf(gen int, s ConnectionState) {
	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	old := t.state
	if old == s {
		t.mu.Unlock()
		return
	}
	t.state = s
	t.mu.Unlock()
	t.dispatcher.DispatchState(StateEvent{OldState: old, NewState: s})
}

func (t *Transport) readLoop(ctx context.Context, conn *internal.Conn) {
	for {
		var out Outbound
		if err := conn.Read(ctx, &out); err != nil {
			if isExpectedDisconnect(ctx, err) {
				return
			}
			t.logger.Warn("read loop exit", map[string]any{"error": err.Error()})
			go t.reconnect(conn)
			return
		}
		t.dispatcher.Dispatch(out)
	}
}

func (t *Transport) writeLoop(ctx context.Context, conn *internal.Conn) {
	for {
		select {
		case in := <-t.writeCh:
			if err := conn.Write(ctx, in); err != nil {
				if !isExpectedDisconnect(ctx, err) {
					t.logger.Warn("write loop exit", map[string]any{"error": err.Error()})
				}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// reconnect retries with linearly increasing delay, reusing the last
// token, up to the configured ceiling. Exhausting the ceiling leaves the
// transport disconnected for good; only an explicit Connect recovers.
// The loop is pinned to the generation of the connection that died: an
// explicit Connect bumps the generation and the loop stands down, so the
// transport never holds two live sockets.
func (t *Transport) reconnect(dead *internal.Conn) {
	t.mu.Lock()
	if t.closing || t.conn != dead {
		t.mu.Unlock()
		return
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.conn = nil
	gen := t.gen
	t.mu.Unlock()
	t.setState(StateDisconnected)

	for attempt := 1; attempt <= t.cfg.MaxReconnectTries; attempt++ {
		time.Sleep(time.Duration(attempt) * t.cfg.ReconnectDelay)

		t.mu.Lock()
		stale := t.closing || t.gen != gen
		t.mu.Unlock()
		if stale {
			return
		}

		t.logger.Info("reconnect attempt", map[string]any{"attempt": attempt})
		if err := t.establish(context.Background(), gen); err != nil {
			t.logger.Warn("reconnect failed", map[string]any{"attempt": attempt, "error": err.Error()})
			continue
		}
		return
	}
	t.logger.Error("reconnect attempts exhausted", map[string]any{"attempts": t.cfg.MaxReconnectTries})
}

func dialError(err error) *ChatError {
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(ErrorHandshakeTimeout, "handshake timed out", err)
	}
	return WrapError(ErrorConnection, "connect failed", err)
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
