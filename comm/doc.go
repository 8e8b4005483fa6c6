/*
Package comm offers the unicomm client and server communicators.

A communicator owns a dispatcher, a session registry and a session
factory built from a config.Config. Client.Connect and Server.Listen
create sessions for new connections; Run drives them:

	srv, err := comm.NewServer(cfg, comm.WithLogger(log))
	...
	srv.Dispatcher().OnMessage(func(ev dispatch.Event) error {
		return srv.Send(ev.SessionID, reply)
	})
	addr, err := srv.Listen(ctx, "7000")
	...
	err = srv.Run(ctx)

Every handler runs on the Run goroutine. Handlers refer to sessions by
id; Send, Disconnect and friends look the id up each time and fail with
a not-found error once the session has gone.
*/
package comm
