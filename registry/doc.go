// Package registry holds the sessions owned by a communicator, keyed by id.
//
// Everything outside the registry refers to a session by id and looks it
// up at use time, so a session removed by one goroutine is simply not
// found by the next.
package registry
