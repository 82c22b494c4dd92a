package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/vici/protocol"
	"github.com/luma/vici/transport"
)

var (
	callJSON   string
	callStream string
)

func init() {
	flags := CallCmd.Flags()

	flags.StringVar(&callJSON, "json", "", "The message as a JSON object, or @file to read it from a file")
	flags.StringVar(&callStream, "stream", "", "Collect this event while the command runs, e.g. list-sa for list-sas")
}

var CallCmd = &cobra.Command{
	Use:   "call <command> [key=value ...]",
	Short: "Run a VICI command and print the response",
	Long: `Run a VICI command and print the response

Attributes are given as key=value. Dots nest keys into sections and a trailing
[] appends to a list:

	vici call initiate child=net ike=gw timeout=5000
	vici call load-shared type=IKE data=secret owners[]=moon owners[]=sun
	vici call list-sas --stream list-sa noblock=yes

Alternatively the whole message can be given as JSON with --json.
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

		name := args[0]

		msg, err := buildMessage(args[1:], callJSON)
		if err != nil {
			return err
		}

		loop, err := dial(ctx, conf, transportOptions(conf, log))
		if err != nil {
			return err
		}
		defer closeLoop(loop, log)

		results, err := runCommand(ctx, loop, name, msg, callStream)
		if err != nil {
			return err
		}

		return printer.Print(results...)
	},
}

// runCommand queues a command, streaming event while it runs when event is not
// empty, and runs the loop until everything it queued has been answered. The
// streamed events come first in the result, the response last.
func runCommand(
	ctx context.Context,
	loop *transport.Loop,
	name string,
	msg *protocol.Message,
	event string,
) ([]named, error) {
	var (
		results  []named
		response error
		finished bool
	)

	conn := loop.Conn()

	done := func(err error, name string, resp *protocol.Message, _ interface{}) {
		finished = true
		response = err
		results = append(results, named{Name: name, Message: resp})
	}

	var err error
	if event == "" {
		err = conn.Queue(name, msg, done, nil)
	} else {
		err = conn.QueueStreamed(name, msg, done, event,
			func(err error, event string, msg *protocol.Message, _ interface{}) {
				if err == nil {
					results = append(results, named{Name: event, Message: msg})
				}
			}, nil)
	}
	if err != nil {
		return nil, err
	}

	if err := loop.Run(ctx, func() bool { return finished && conn.Pending() == 0 }); err != nil {
		return nil, err
	}

	if response != nil {
		return nil, fmt.Errorf("%s: %w", name, response)
	}

	return results, nil
}

func closeLoop(loop *transport.Loop, log *zap.Logger) {
	if err := loop.Close(); err != nil {
		log.Warn("Connection did not close cleanly", zap.Error(err))
	}
}

// buildMessage turns key=value arguments, or a JSON document, into a message.
func buildMessage(args []string, jsonArg string) (*protocol.Message, error) {
	if jsonArg != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("use either --json or key=value arguments, not both")
		}

		doc := []byte(jsonArg)
		if strings.HasPrefix(jsonArg, "@") {
			var err error
			if doc, err = os.ReadFile(jsonArg[1:]); err != nil {
				return nil, err
			}
		}

		return protocol.ParseJSON(doc)
	}

	if len(args) == 0 {
		return nil, nil
	}

	doc := []byte(`{}`)
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}

		path := key
		if strings.HasSuffix(key, "[]") {
			path = strings.TrimSuffix(key, "[]") + ".-1"
		}

		var err error
		if doc, err = sjson.SetBytes(doc, path, value); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", key, err)
		}
	}

	return protocol.ParseJSON(doc)
}
