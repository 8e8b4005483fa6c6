package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/andaru/unicomm/comm"
	"github.com/andaru/unicomm/dispatch"
	"github.com/andaru/unicomm/message"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	sendID      uint32
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send host:port payload",
	Short: "Send one message and print the reply",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, port, err := net.SplitHostPort(args[0])
		if err != nil {
			return errors.Wrapf(err, "address %q", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts, err := commOptions()
		if err != nil {
			return err
		}
		cli, err := comm.NewClient(cfg, opts...)
		if err != nil {
			return errors.Wrap(err, "create client")
		}

		ready := make(chan uint64, 1)
		replies := make(chan message.Message, 1)
		failed := make(chan error, 1)
		d := cli.Dispatcher()
		d.OnConnected(func(ev dispatch.Event) error {
			ready <- ev.SessionID
			return nil
		})
		d.OnMessage(func(ev dispatch.Event) error {
			select {
			case replies <- ev.Message:
			default:
			}
			return nil
		})
		d.OnMessageTimeout(func(ev dispatch.Event) error {
			select {
			case failed <- errors.Errorf("no reply to %s", ev.Message):
			default:
			}
			return nil
		})
		d.OnDisconnected(func(ev dispatch.Event) error {
			err := ev.Err
			if err == nil {
				err = errors.New("session closed")
			}
			select {
			case failed <- errors.Wrap(err, "disconnected"):
			default:
			}
			return nil
		})

		ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
		defer cancel()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return cli.Run(gctx) })
		g.Go(func() error {
			defer cli.Close()
			return exchange(gctx, cli, host, port, []byte(args[1]), ready, replies, failed)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Uint32Var(&sendID, "id", 1, "message id")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 10*time.Second, "overall timeout")
}

func exchange(ctx context.Context, cli *comm.Client, host, port string, payload []byte, ready <-chan uint64, replies <-chan message.Message, failed <-chan error) error {
	if _, err := cli.Connect(ctx, host, port); err != nil {
		return err
	}
	var id uint64
	select {
	case id = <-ready:
	case err := <-failed:
		return err
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for handshake")
	}

	sent := message.Message{ID: sendID, Seq: 1, Payload: payload}
	if err := cli.Send(id, sent); err != nil {
		return err
	}
	fmt.Println(color.CyanString("-> %s", sent))
	select {
	case m := <-replies:
		fmt.Println(color.GreenString("<- %s", m))
		fmt.Printf("%s\n", m.Payload)
		return nil
	case err := <-failed:
		fmt.Println(color.RedString("session closed"))
		return err
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for reply")
	}
}
