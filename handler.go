package netkit

// Handler receives a Server's connection and message events.
//
// OnClientConnect runs on the accept goroutine and OnClientValidated on
// the connection's reader goroutine. OnClientDisconnect runs on the
// goroutine whose send found the connection dead, and OnMessage on the
// goroutine calling Server.Update.
// No server lock is held during any call, so handlers may call back into
// the server.
type Handler[T MessageType] interface {
	// OnClientConnect decides whether a freshly accepted socket may proceed
	// to the handshake. Peer.ID is not assigned yet.
	OnClientConnect(peer Peer) bool
	// OnClientValidated is called once the peer answered the handshake.
	OnClientValidated(peer Peer)
	// OnClientDisconnect is called once for every connection found dead.
	OnClientDisconnect(peer Peer)
	// OnMessage is called for every inbound message.
	OnMessage(peer Peer, msg *Message[T])
}

// NopHandler is an embeddable Handler that refuses every connection and
// ignores every event.
type NopHandler[T MessageType] struct{}

// OnClientConnect refuses the connection.
func (NopHandler[T]) OnClientConnect(Peer) bool { return false }

// OnClientValidated does nothing.
func (NopHandler[T]) OnClientValidated(Peer) {}

// OnClientDisconnect does nothing.
func (NopHandler[T]) OnClientDisconnect(Peer) {}

// OnMessage does nothing.
func (NopHandler[T]) OnMessage(Peer, *Message[T]) {}
