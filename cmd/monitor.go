package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/vici/protocol"
	"github.com/luma/vici/storage"
	"github.com/luma/vici/transport"
)

var monitorSave string

func init() {
	MonitorCmd.Flags().StringVar(&monitorSave, "save", "", "On exit, write every event received as JSON to this file")
}

var MonitorCmd = &cobra.Command{
	Use:   "monitor <event> [event ...]",
	Short: "Print events as the daemon sends them",
	Long: `Print events as the daemon sends them

Runs until interrupted.

Usage
	vici monitor ike-updown child-updown
	vici monitor log --format json --save log.json
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		conf, log, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		printer, err := newPrinter(cmd)
		if err != nil {
			return err
		}

		store := storage.NewInmemoryStore(conf.MaxEvents)
		defer store.Close()

		// Events are printed as decoded, the store only feeds --save
		watchCtx, stopWatching := context.WithCancel(ctx)
		defer stopWatching()

		arrived := make(chan named, storage.UpdateBufferSize)

		options := transportOptions(conf, log)
		options.Store = store
		options.OnEvent = func(event string, msg *protocol.Message) {
			select {
			case arrived <- named{Name: event, Message: msg}:
			case <-watchCtx.Done():
			}
		}

		loop, err := dial(ctx, conf, options)
		if err != nil {
			return err
		}

		session := transport.NewSession(loop, options)
		session.Start(ctx)

		for _, event := range args {
			if err := session.Subscribe(ctx, event); err != nil {
				stopWatching()
				return multierr.Append(err, session.Close())
			}
		}

		log.Info("Monitoring events", zap.Strings("events", args))

		err = printEvents(ctx, session, arrived, printer)

		// Unblocks the loop should it be waiting to hand over an event
		stopWatching()

		if monitorSave != "" {
			if serr := saveEvents(store, monitorSave); serr != nil {
				err = multierr.Append(err, serr)
			}
		}

		// A failed session already reported why through printEvents
		if cerr := session.Close(); err == nil && ctx.Err() == nil {
			err = cerr
		}

		return err
	},
}

func printEvents(
	ctx context.Context,
	session *transport.Session,
	arrived <-chan named,
	printer *printer,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-session.Done():
			return session.Err()

		case event := <-arrived:
			if err := printer.Stream(event); err != nil {
				return err
			}
		}
	}
}

func saveEvents(store storage.Store, path string) error {
	doc, err := store.Backup()
	if err != nil {
		return err
	}

	return renameio.WriteFile(path, doc, 0o644)
}
