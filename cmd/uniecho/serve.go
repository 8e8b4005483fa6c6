package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andaru/unicomm/comm"
	"github.com/andaru/unicomm/dispatch"
	"github.com/andaru/unicomm/message"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an echo server",
	Long:  "Accept sessions and send every received message back to its sender, with reply_to set to the message's sequence number.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts, err := commOptions()
		if err != nil {
			return err
		}
		srv, err := comm.NewServer(cfg, opts...)
		if err != nil {
			return errors.Wrap(err, "create server")
		}
		registerEcho(srv)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		addr, err := srv.ListenAddr(ctx, listenAddr)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, color.GreenString("listening on %s", addr))

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(ctx) })
		g.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":7830", "address to listen on")
}

// registerEcho installs handlers that echo messages and log session
// activity.
func registerEcho(srv *comm.Server) {
	d := srv.Dispatcher()
	d.OnConnected(func(ev dispatch.Event) error {
		log.Info().Uint64("session", ev.SessionID).Str("remote", ev.Remote).Msg("connected")
		return nil
	})
	d.OnDisconnected(func(ev dispatch.Event) error {
		log.Info().Uint64("session", ev.SessionID).Err(ev.Err).Msg("disconnected")
		return nil
	})
	d.OnMessage(func(ev dispatch.Event) error {
		return srv.Send(ev.SessionID, message.Message{
			ID:      ev.Message.ID,
			ReplyTo: ev.Message.Seq,
			Payload: ev.Message.Payload,
		})
	})
	d.OnError(func(ev dispatch.Event) error {
		log.Warn().Uint64("session", ev.SessionID).Str("remote", ev.Remote).Err(ev.Err).Msg("session error")
		return nil
	})
}

func errUnknownNetwork(name string) error {
	return errors.Errorf("unknown network %q", name)
}

