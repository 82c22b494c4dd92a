package cmd

import (
	"bytes"
	"net"
	"os"
	"path/filepath"

	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/luma/vici/protocol"
)

// daemon listens on a unix socket and answers like charon would
type daemon struct {
	path     string
	listener net.Listener
}

func startDaemon() *daemon {
	dir, err := os.MkdirTemp("", "vici-cmd")
	Expect(err).To(Succeed())

	path := filepath.Join(dir, "charon.vici")
	listener, err := net.Listen("unix", path)
	Expect(err).To(Succeed())

	d := &daemon{path: path, listener: listener}
	go d.accept()
	return d
}

func (d *daemon) accept() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		go d.serve(conn)
	}
}

func (d *daemon) serve(conn net.Conn) {
	defer conn.Close()

	for {
		pkt, err := protocol.ReadPacketFrom(conn, 0)
		if err != nil {
			return
		}

		switch pkt.Type {
		case protocol.EventRegister, protocol.EventUnregister:
			protocol.WritePacket(conn, protocol.EventConfirm, "", nil)

		case protocol.CmdRequest:
			switch pkt.Name {
			case "version":
				protocol.WritePacket(conn, protocol.CmdResponse, "", protocol.NewMessage().
					Set("daemon", "charon").
					Set("version", "5.9.14"))

			case "list-policies":
				for _, name := range []string{"net-a", "net-b"} {
					msg := protocol.NewMessage()
					msg.NewSection(name).
						Set("mode", "TUNNEL").
						AddList("local-ts", "10.1.0.0/16").
						AddList("remote-ts", "10.2.0.0/16")
					protocol.WritePacket(conn, protocol.Event, "list-policy", msg)
				}
				protocol.WritePacket(conn, protocol.CmdResponse, "", nil)

			case "echo":
				protocol.WritePacket(conn, protocol.CmdResponse, "", pkt.Message)

			default:
				protocol.WritePacket(conn, protocol.CmdUnknown, "", nil)
			}
		}
	}
}

func (d *daemon) close() {
	d.listener.Close()
	os.RemoveAll(filepath.Dir(d.path))
}

// run executes the root command with args and returns what it printed.
func run(args ...string) (string, error) {
	resetFlags()

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(args)

	err := RootCmd.Execute()
	return out.String(), err
}

// resetFlags puts every flag back to its default, cobra keeps values between runs.
func resetFlags() {
	resetCommand(RootCmd)
}

func resetCommand(c *cobra.Command) {
	c.Flags().VisitAll(resetFlag)
	c.PersistentFlags().VisitAll(resetFlag)

	for _, sub := range c.Commands() {
		resetCommand(sub)
	}
}

func resetFlag(f *pflag.Flag) {
	f.Value.Set(f.DefValue)
	f.Changed = false
}
