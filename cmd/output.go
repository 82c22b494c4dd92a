package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/vici/protocol"
)

const (
	formatText  = "text"
	formatJSON  = "json"
	formatTable = "table"
)

var (
	outputFormat string
	outputPath   string
)

func addOutputFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&outputFormat, "format", "f", "", "Output format: text, json or table (default text on a terminal, json otherwise)")
	flags.StringVarP(&outputPath, "output", "o", "", "Write the output to this file instead of stdout")
}

// named is a message together with the command or event it belongs to
type named struct {
	Name    string
	Message *protocol.Message
}

type printer struct {
	format string
	path   string
	out    io.Writer
}

func newPrinter(cmd *cobra.Command) (*printer, error) {
	format := outputFormat
	if format == "" {
		format = formatJSON
		if outputPath == "" && isTerminal(cmd.OutOrStdout()) {
			format = formatText
		}
	}

	switch format {
	case formatText, formatJSON, formatTable:
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}

	return &printer{format: format, path: outputPath, out: cmd.OutOrStdout()}, nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}

	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Print renders the messages. A single message is rendered as JSON on its own,
// several become a JSON array.
func (p *printer) Print(messages ...named) error {
	var (
		out []byte
		err error
	)

	switch p.format {
	case formatJSON:
		out, err = renderJSON(messages)
	case formatTable:
		out = renderTable(messages)
	default:
		out, err = renderText(messages)
	}

	if err != nil {
		return err
	}

	return p.write(out)
}

// Stream renders one message as it arrives. JSON is written one document per line.
func (p *printer) Stream(m named) error {
	if p.format != formatJSON {
		return p.Print(m)
	}

	raw, err := m.Message.MarshalJSON()
	if err != nil {
		return err
	}

	line, err := sjson.SetRawBytes([]byte(`{}`), "message", raw)
	if err == nil {
		line, err = sjson.SetBytes(line, "event", m.Name)
	}
	if err != nil {
		return err
	}

	_, err = p.out.Write(append(line, '\n'))
	return err
}

func (p *printer) write(out []byte) error {
	if p.path != "" {
		return renameio.WriteFile(p.path, out, 0o644)
	}

	_, err := p.out.Write(out)
	return err
}

func renderJSON(messages []named) ([]byte, error) {
	if len(messages) == 1 {
		raw, err := messages[0].Message.MarshalJSON()
		if err != nil {
			return nil, err
		}
		return pretty(raw), nil
	}

	doc := []byte(`[]`)
	for _, m := range messages {
		raw, err := m.Message.MarshalJSON()
		if err != nil {
			return nil, err
		}

		if doc, err = sjson.SetRawBytes(doc, "-1", raw); err != nil {
			return nil, err
		}
	}

	return pretty(doc), nil
}

func pretty(raw []byte) []byte {
	return append([]byte(gjson.GetBytes(raw, "@pretty").Raw), '\n')
}

func renderText(messages []named) ([]byte, error) {
	var buf bytes.Buffer

	for _, m := range messages {
		if err := m.Message.Dump(&buf, m.Name, 2); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func renderTable(messages []named) []byte {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Name", "Key", "Value"})

	for _, m := range messages {
		for _, row := range flatten(m.Message, "") {
			tw.AppendRow(table.Row{m.Name, row[0], row[1]})
		}
	}

	return []byte(tw.Render() + "\n")
}

// flatten turns a message into key/value rows, nested keys joined with dots.
func flatten(msg *protocol.Message, prefix string) [][2]string {
	var rows [][2]string

	for _, e := range msg.Entries() {
		key := prefix + e.Key

		switch e.Kind {
		case protocol.KindValue:
			rows = append(rows, [2]string{key, string(e.Value)})

		case protocol.KindSection:
			rows = append(rows, flatten(e.Section, key+".")...)

		case protocol.KindList:
			items := make([]string, 0, len(e.List))
			for _, item := range e.List {
				items = append(items, string(item))
			}
			rows = append(rows, [2]string{key, strings.Join(items, ", ")})
		}
	}

	return rows
}
