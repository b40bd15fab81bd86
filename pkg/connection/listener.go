package connection

// ClientListener receives the lifecycle notifications of a ClientManager.
// Callbacks run outside the manager lock, on the goroutine that caused
// the transition.
type ClientListener interface {
	OnConnecting()
	OnConnected()

	// OnFailed is called exactly once per failure: a failed dial, a lost
	// connection, an exhausted retry budget or a connect on a released
	// client.
	OnFailed(code ErrorCode, message string, cause error)

	// OnDisconnected reports a manual disconnect (byRemote false) or a
	// graceful close by the peer (byRemote true).
	OnDisconnected(byRemote bool)

	// OnReceivedData runs on the connection's read goroutine. Calling
	// DisconnectManually or Release from it would wait on that same
	// goroutine; hand such calls off instead.
	OnReceivedData(cmd Command)
}

// ClientListenerFuncs adapts optional functions to a ClientListener.
type ClientListenerFuncs struct {
	Connecting   func()
	Connected    func()
	Failed       func(code ErrorCode, message string, cause error)
	Disconnected func(byRemote bool)
	ReceivedData func(cmd Command)
}

func (f ClientListenerFuncs) OnConnecting() {
	if f.Connecting != nil {
		f.Connecting()
	}
}

func (f ClientListenerFuncs) OnConnected() {
	if f.Connected != nil {
		f.Connected()
	}
}

func (f ClientListenerFuncs) OnFailed(code ErrorCode, message string, cause error) {
	if f.Failed != nil {
		f.Failed(code, message, cause)
	}
}

func (f ClientListenerFuncs) OnDisconnected(byRemote bool) {
	if f.Disconnected != nil {
		f.Disconnected(byRemote)
	}
}

func (f ClientListenerFuncs) OnReceivedData(cmd Command) {
	if f.ReceivedData != nil {
		f.ReceivedData(cmd)
	}
}

// ServerListener receives the lifecycle notifications of a ServerManager.
// Peer callbacks run on the peer's connection goroutines; Stop must not
// be called from them.
type ServerListener interface {
	OnStarted()
	OnStopped()
	OnStartFailed(code ErrorCode, message string)
	OnClientConnected(peer PeerInfo)
	OnClientDisconnected(peer PeerInfo)

	// OnReceivedData delivers a command from peer. action is the
	// WebSocket request path, or "" for plain sockets.
	OnReceivedData(peer PeerInfo, cmd Command, action string)

	// OnPeerFailed reports a peer that was force-closed. The server keeps
	// listening. OnClientDisconnected follows for the same peer.
	OnPeerFailed(peer PeerInfo, code ErrorCode, message string, cause error)
}

// ServerListenerFuncs adapts optional functions to a ServerListener.
type ServerListenerFuncs struct {
	Started            func()
	Stopped            func()
	StartFailed        func(code ErrorCode, message string)
	ClientConnected    func(peer PeerInfo)
	ClientDisconnected func(peer PeerInfo)
	ReceivedData       func(peer PeerInfo, cmd Command, action string)
	PeerFailed         func(peer PeerInfo, code ErrorCode, message string, cause error)
}

func (f ServerListenerFuncs) OnStarted() {
	if f.Started != nil {
		f.Started()
	}
}

func (f ServerListenerFuncs) OnStopped() {
	if f.Stopped != nil {
		f.Stopped()
	}
}

func (f ServerListenerFuncs) OnStartFailed(code ErrorCode, message string) {
	if f.StartFailed != nil {
		f.StartFailed(code, message)
	}
}

func (f ServerListenerFuncs) OnClientConnected(peer PeerInfo) {
	if f.ClientConnected != nil {
		f.ClientConnected(peer)
	}
}

func (f ServerListenerFuncs) OnClientDisconnected(peer PeerInfo) {
	if f.ClientDisconnected != nil {
		f.ClientDisconnected(peer)
	}
}

func (f ServerListenerFuncs) OnReceivedData(peer PeerInfo, cmd Command, action string) {
	if f.ReceivedData != nil {
		f.ReceivedData(peer, cmd, action)
	}
}

func (f ServerListenerFuncs) OnPeerFailed(peer PeerInfo, code ErrorCode, message string, cause error) {
	if f.PeerFailed != nil {
		f.PeerFailed(peer, code, message, cause)
	}
}
