// Command uniecho runs a unicomm echo server and sends test messages to
// it.
package main

import (
	"os"
	"time"

	"github.com/andaru/unicomm/comm"
	"github.com/andaru/unicomm/config"
	"github.com/andaru/unicomm/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile string
	network    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "uniecho",
	Short: "unicomm echo server and client",
	Long: `uniecho exercises the unicomm communicators.

'uniecho serve' accepts sessions and echoes every message it receives.
'uniecho send' connects to a server, sends one message and prints the reply.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(verbose)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&network, "network", "tcp", "transport: tcp or websocket")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func initLogger(debug bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(output).Level(level).With().Timestamp().Str("app", "uniecho").Logger()
	return log.Logger
}

func loadConfig() (config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}

// commOptions returns the communicator options selected by the flags.
func commOptions() ([]comm.Option, error) {
	opts := []comm.Option{comm.WithLogger(log.Logger)}
	switch network {
	case "tcp":
		opts = append(opts, comm.WithNetwork(transport.TCP{NoDelay: true, ReuseAddr: true}))
	case "websocket", "ws":
		opts = append(opts, comm.WithNetwork(transport.WebSocket{}))
	default:
		return nil, errUnknownNetwork(network)
	}
	return opts, nil
}
