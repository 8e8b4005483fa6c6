/*
Package unicomm is a session oriented, asynchronous client/server
communication framework.

A communicator (see package comm) accepts or opens byte stream
connections and wraps each in a session. Sessions frame and decode
the inbound stream into messages with a pluggable codec, run a
handshake and then exchange application messages, subject to a per
state reply policy. A single dispatcher goroutine drives every
session and delivers lifecycle and message events to registered
handlers.

The sub-packages are:

	buffer     lockable byte buffers shared by transport and session
	framing    byte stream framings (escaped, delimited, chunked)
	message    messages, codec interfaces and decode helpers
	bincodec   the binary codec
	xmlcodec   the XML codec
	session    the session state machine and reply policies
	registry   the sharded session registry
	dispatch   the event dispatcher and run loop
	transport  TCP, WebSocket and in-memory connections
	config     communicator configuration
	comm       the client and server communicators
	ucerr      typed errors shared by all of the above

cmd/uniecho is a small echo server and client built on package comm.
*/
package unicomm
