/*
Package dispatch offers the unicomm event dispatcher.

A Dispatcher holds ordered handler lists, one per event Kind, and runs
the loop that drives a communicator. Every handler runs on the Run
goroutine, so handlers never run concurrently with one another.

The run loop has four states:

	Idle -> Running -> Stopping -> Stopped

Run is valid from Idle or Stopped. Stop moves a running dispatcher to
Stopping; the loop keeps cycling until the Processor reports that no
session is mid-close, then moves to Stopped and Run returns.
*/
package dispatch
