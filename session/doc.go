/*
Package session offers the unicomm Session state machine.

A Session is one logical conversation over one transport connection.
It moves through

	Connecting -> Handshaking -> Ready -> Closing -> Closed

and never backwards. Any state before Closing may jump to Closing, on
a close request, transport loss, handshake failure or timeout, or a
protocol violation such as undecodable input.

Behaviour is injected with a Policy rather than by subclassing: the
Policy supplies the Handshaker run while Handshaking and the message
ids Send may emit in each state. Greeting is a stock Handshaker that
exchanges a fixed sequence of message ids.

Session execution

Sessions do no I/O of their own. Received bytes are appended to the
Inbound buffer (usually by a transport reader goroutine) and decoded by
Process. Send encodes and queues messages; Flush hands queued frames to
the attached Transport. The owning communicator calls Connect, Process,
Expire, Timeouts, Flush and Finish from its dispatcher goroutine, so
application handlers observe each session's events in order.

Requests and replies

Message ids listed in Policy.Requests expect a reply. Send numbers them
with the session's next Seq, Flush starts their wait and a received
message whose ReplyTo names a waiting request ends it. Timeouts reports
the requests whose reply did not arrive in time.
*/
package session
