package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/vici/storage"
	"github.com/luma/vici/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort int

	numListeners int
)

func init() {
	flags := ServeCmd.Flags()

	flags.IntVarP(&httpPort, "http-port", "p", 0, "The port to listen to HTTP requests on (default from config)")
	flags.StringVarP(&host, "host", "a", "", "The host to listen on (default from config)")
	flags.IntVar(&numListeners, "listeners", 0, "Number of SO_REUSEPORT listeners, defaults to the number of CPUs")
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a HTTP gateway to the daemon",
	Long: `Serve a HTTP gateway to the daemon

Commands are run with POST /commands/<name>, the JSON body being the message.
Events are collected after PUT /events/<name> and read back with
GET /events/<name>, or followed with GET /events/<name>/stream.

Usage
	vici serve --http-port 7364

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, log, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		flags := cmd.Flags()
		if flags.Changed("host") {
			conf.HTTPHost = host
		}
		if flags.Changed("http-port") {
			conf.HTTPPort = httpPort
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		store := storage.NewInmemoryStore(conf.MaxEvents)
		defer store.Close()

		options := transportOptions(conf, log)
		options.Store = store

		loop, err := dial(ctx, conf, options)
		if err != nil {
			return err
		}

		session := transport.NewSession(loop, options)
		session.Start(ctx)

		router := transport.NewRouter(session, conf.DebugHTTP, log.Named("http"))

		server := transport.NewHTTP(router, transport.HTTPOptions{
			Host:         conf.HTTPHost,
			Port:         conf.HTTPPort,
			Reuseport:    true,
			NumListeners: numListeners,
			Log:          log.Named("http"),
		})

		if err := server.Start(); err != nil {
			return multierr.Append(err, session.Close())
		}

		log.Info("Listening",
			zap.String("socket", conf.Socket),
			zap.Stringer("addr", server.Addr()),
			zap.String("conn", loop.Conn().ID()))

		// Wait for the interrupt signal, or for the daemon to go away
		select {
		case <-ctx.Done():
		case <-session.Done():
			log.Error("Lost the daemon connection", zap.Error(session.Err()))
		}

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The server has 5 seconds to finish the requests it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := session.Close(); err != nil {
			log.Error("Session did not close cleanly", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
