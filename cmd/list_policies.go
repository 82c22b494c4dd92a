package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/luma/vici/protocol"
)

var (
	listTrap  bool
	listDrop  bool
	listPass  bool
	listChild string
	listIKE   string
)

func init() {
	flags := ListPoliciesCmd.Flags()

	flags.BoolVar(&listTrap, "trap", true, "List trap policies")
	flags.BoolVar(&listDrop, "drop", false, "List drop policies")
	flags.BoolVar(&listPass, "pass", false, "List bypass policies")
	flags.StringVar(&listChild, "child", "", "Only list policies of this CHILD_SA config")
	flags.StringVar(&listIKE, "ike", "", "Only list policies of this IKE_SA config")
}

var ListPoliciesCmd = &cobra.Command{
	Use:   "list-policies",
	Short: "List the installed trap, drop and bypass policies",
	Long: `List the installed trap, drop and bypass policies

The daemon streams one list-policy event per policy while the command runs.

Usage
	vici list-policies
	vici list-policies --drop --pass --format table
`,
	Args: cobra.NoArgs,
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

		loop, err := dial(ctx, conf, transportOptions(conf, log))
		if err != nil {
			return err
		}
		defer closeLoop(loop, log)

		results, err := runCommand(ctx, loop, "list-policies", policyFilter(), "list-policy")
		if err != nil {
			return err
		}

		// The final response carries nothing
		policies := results[:len(results)-1]

		if printer.format == formatTable {
			return printer.write(policyTable(policies))
		}

		return printer.Print(policies...)
	},
}

func policyFilter() *protocol.Message {
	msg := protocol.NewMessage()

	flags := []struct {
		key string
		on  bool
	}{
		{"trap", listTrap},
		{"drop", listDrop},
		{"pass", listPass},
	}

	for _, f := range flags {
		if f.on {
			msg.Set(f.key, "yes")
		}
	}

	if listChild != "" {
		msg.Set("child", listChild)
	}
	if listIKE != "" {
		msg.Set("ike", listIKE)
	}

	return msg
}

// policyTable renders list-policy events, each holding one section per policy.
func policyTable(events []named) []byte {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Policy", "Mode", "Local TS", "Remote TS"})

	for _, ev := range events {
		for _, e := range ev.Message.Entries() {
			if e.Kind != protocol.KindSection {
				continue
			}

			mode, _ := e.Section.Get("mode")
			tw.AppendRow(table.Row{
				e.Key,
				mode,
				strings.Join(e.Section.List("local-ts"), ", "),
				strings.Join(e.Section.List("remote-ts"), ", "),
			})
		}
	}

	return []byte(tw.Render() + "\n")
}
