package connection

// ClientState is the lifecycle state of a ClientManager.
type ClientState uint8

const (
	// StateUninitialized is the state of a new or released client.
	StateUninitialized ClientState = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateConnected means the connection is established and writable.
	StateConnected

	// StateDisconnecting means a manual disconnect is closing the
	// connection.
	StateDisconnecting

	// StateDisconnected means the connection ended without error, either
	// manually or by a graceful remote close.
	StateDisconnected

	// StateReleasing means Release is tearing the client down.
	StateReleasing

	// StateFailed means the last attempt or connection failed. A retry may
	// be pending; Connect recovers from it.
	StateFailed
)

// String returns the state name.
func (s ClientState) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateReleasing:
		return "RELEASING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ServerState is the lifecycle state of a ServerManager.
type ServerState uint8

const (
	ServerUninitialized ServerState = iota
	ServerStarted
	ServerClientConnected
	ServerClientDisconnected
	ServerStopped
	ServerFailed
)

// String returns the state name.
func (s ServerState) String() string {
	switch s {
	case ServerUninitialized:
		return "UNINITIALIZED"
	case ServerStarted:
		return "STARTED"
	case ServerClientConnected:
		return "CLIENT_CONNECTED"
	case ServerClientDisconnected:
		return "CLIENT_DISCONNECTED"
	case ServerStopped:
		return "STOPPED"
	case ServerFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Running reports whether the server is listening. ClientConnected and
// ClientDisconnected are sub-states of Started.
func (s ServerState) Running() bool {
	return s == ServerStarted || s == ServerClientConnected || s == ServerClientDisconnected
}
