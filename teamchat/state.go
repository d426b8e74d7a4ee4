package teamchat

// ConnectionState represents the current state of the realtime connection.
type ConnectionState int

const (
	// StateDisconnected means there is no connection. After the reconnect
	// ceiling is exhausted this is terminal until an explicit Connect.
	StateDisconnected ConnectionState = iota

	// StateConnecting means a connection or reconnect attempt is in progress.
	StateConnecting

	// StateConnected means the handshake completed and the connection is live.
	StateConnected
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StateEvent is pushed to connection-changed subscribers on every
// transition. Raw socket errors are never part of it.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
}
