/*
Package transport provides the unicomm transport layer.

A Network dials and listens for Conns, plain byte streams with a peer
address. TCP, WebSocket and an in-memory Pipe are provided. A Link
runs a Conn on behalf of a session: a reader goroutine delivers
received bytes, a writer goroutine drains a queue of outbound frames,
so callers never block on the network.
*/
package transport
