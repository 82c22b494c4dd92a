package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/vici/cmd/gen"
	"github.com/luma/vici/internal/env"
	"github.com/luma/vici/transport"
)

var (
	configPath  string
	socket      string
	logLevel    string
	logEncoding string
	maxPending  int
	waitFor     time.Duration
	trace       bool
)

var RootCmd = &cobra.Command{
	Use:   "vici",
	Short: "Talk to a strongSwan daemon over its VICI socket",
	Long: `Talk to a strongSwan daemon over its VICI socket

Usage
	vici list-policies
	vici call version
	vici monitor ike-updown child-updown
	vici serve
`,
	SilenceUsage: true,
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVarP(&configPath, "config", "c", "", "TOML config file")
	flags.StringVarP(&socket, "socket", "s", "", "The VICI socket to connect to (default from config, then "+env.Default().Socket+")")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&logEncoding, "log-encoding", "", "Log encoding: json or console")
	flags.IntVar(&maxPending, "max-pending", -1, "Maximum queued commands, 0 for no limit, 1 for strictly one at a time")
	flags.DurationVar(&waitFor, "wait", 0, "Wait up to this long for the socket to appear")
	flags.BoolVar(&trace, "trace", false, "Dump every response and event to stdout")

	addOutputFlags(flags)

	RootCmd.AddCommand(
		ListPoliciesCmd,
		CallCmd,
		MonitorCmd,
		ServeCmd,
		VersionCmd,
		gen.RootCmd,
	)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the config, lets command line flags override it and builds the logger.
func setup(ctx context.Context, cmd *cobra.Command) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(ctx, configPath)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("socket") {
		conf.Socket = socket
	}
	if flags.Changed("log-level") {
		conf.LogLevel = logLevel
	}
	if flags.Changed("log-encoding") {
		conf.LogEncoding = logEncoding
	}
	if flags.Changed("max-pending") {
		conf.MaxPending = maxPending
	}

	if err := conf.Validate(); err != nil {
		return nil, nil, err
	}

	log, err := env.MakeLogger(conf.LogLevel, conf.LogEncoding)
	if err != nil {
		return nil, nil, err
	}

	return conf, log, nil
}

func transportOptions(conf *env.Config, log *zap.Logger) transport.Options {
	return transport.Options{
		MaxPending: conf.MaxPending,
		Trace:      trace,
		Log:        log.Named("transport"),
	}
}

// dial connects to the configured socket, first waiting for it to appear if
// --wait was given.
func dial(ctx context.Context, conf *env.Config, options transport.Options) (*transport.Loop, error) {
	if waitFor > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, waitFor)
		defer cancel()

		if err := transport.WaitForSocket(waitCtx, conf.Socket); err != nil {
			return nil, fmt.Errorf("socket %s did not appear: %w", conf.Socket, err)
		}
	}

	return transport.Dial(conf.Socket, options)
}
