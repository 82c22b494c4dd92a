package protocol_test

import (
	"bytes"
	"errors"
	"io"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/vici/protocol"
)

func frame(payload string) []byte {
	n := len(payload)
	return append([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}, payload...)
}

func mustEncode(t protocol.PacketType, name string, msg *protocol.Message) []byte {
	b, err := protocol.Encode(t, name, msg)
	Expect(err).To(Succeed())
	return b
}

// decodeAll feeds stream to the decoder in chunks of the given size, the way a
// non-blocking reader would see it, and collects every packet.
func decodeAll(stream []byte, chunk int) []*protocol.Packet {
	var (
		inbound []byte
		packets []*protocol.Packet
	)

	for off := 0; off < len(stream); off += chunk {
		end := off + chunk
		if end > len(stream) {
			end = len(stream)
		}
		inbound = append(inbound, stream[off:end]...)

		for {
			pkt, n, err := protocol.ReadPacket(inbound, 0)
			if errors.Is(err, protocol.ErrNeedMoreData) {
				Expect(n).To(BeZero())
				break
			}
			Expect(err).To(Succeed())

			packets = append(packets, pkt)
			inbound = inbound[n:]
		}
	}

	Expect(inbound).To(BeEmpty())
	return packets
}

var _ = Describe("Parser", func() {
	Describe("ReadPacket()", func() {
		It("needs more data when the length prefix is incomplete", func() {
			_, n, err := protocol.ReadPacket([]byte{0, 0, 0}, 0)
			Expect(err).To(MatchError(protocol.ErrNeedMoreData))
			Expect(n).To(BeZero())
		})

		It("needs more data when the payload is incomplete", func() {
			b := mustEncode(protocol.CmdRequest, "version", nil)

			_, n, err := protocol.ReadPacket(b[:len(b)-1], 0)
			Expect(err).To(MatchError(protocol.ErrNeedMoreData))
			Expect(n).To(BeZero())
		})

		It("decodes a response and reports the bytes consumed", func() {
			b := mustEncode(protocol.CmdResponse, "", protocol.NewMessage().Set("daemon", "charon"))

			pkt, n, err := protocol.ReadPacket(b, 0)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(len(b)))
			Expect(pkt.Type).To(Equal(protocol.CmdResponse))
			Expect(pkt.Name).To(BeEmpty())

			v, ok := pkt.Message.Get("daemon")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal("charon"))
		})

		It("only consumes the first of several frames", func() {
			first := mustEncode(protocol.Event, "list-policy", protocol.NewMessage().Set("mode", "TUNNEL"))
			second := mustEncode(protocol.CmdResponse, "", nil)

			pkt, n, err := protocol.ReadPacket(append(append([]byte{}, first...), second...), 0)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(len(first)))
			Expect(pkt.Name).To(Equal("list-policy"))
		})

		It("yields the same packets regardless of how the stream is chunked", func() {
			var stream []byte

			event := protocol.NewMessage()
			event.NewSection("ike-1/child-1").Set("mode", "TUNNEL").AddList("local-ts", "10.1.0.0/16")
			stream = append(stream, mustEncode(protocol.Event, "list-policy", event)...)
			stream = append(stream, mustEncode(protocol.Event, "list-policy", protocol.NewMessage().Set("k", "v"))...)
			stream = append(stream, mustEncode(protocol.CmdResponse, "", nil)...)
			stream = append(stream, mustEncode(protocol.EventConfirm, "", nil)...)

			whole := decodeAll(stream, len(stream))
			Expect(whole).To(HaveLen(4))

			for chunk := 1; chunk < len(stream); chunk++ {
				Expect(decodeAll(stream, chunk)).To(Equal(whole), "chunk size %d", chunk)
			}
		})

		Describe("malformed frames", func() {
			DescribeTable("rejects",
				func(payload string) {
					_, n, err := protocol.ReadPacket(frame(payload), 0)
					Expect(errors.Is(err, protocol.ErrMalformedFrame)).To(BeTrue(), "got %v", err)
					Expect(n).To(BeZero())
				},
				Entry("an unknown packet type", "\x08"),
				Entry("an unknown element type", "\x01\x07"),
				Entry("a section end without a start", "\x01\x02"),
				Entry("an unterminated section", "\x01\x01\x01s"),
				Entry("a list item outside a list", "\x01\x05\x00\x01x"),
				Entry("a key/value inside a list", "\x01\x04\x01l\x03\x01k\x00\x01v\x06"),
				Entry("an unterminated list", "\x01\x04\x01l\x05\x00\x01x"),
				Entry("a truncated name", "\x00\x09short"),
				Entry("a truncated value", "\x01\x03\x01k\x00\x09v"),
			)

			It("rejects an empty frame", func() {
				_, _, err := protocol.ReadPacket([]byte{0, 0, 0, 0}, 0)
				Expect(errors.Is(err, protocol.ErrMalformedFrame)).To(BeTrue())
			})

			It("rejects an oversized frame before it arrives in full", func() {
				_, _, err := protocol.ReadPacket([]byte{0, 0, 1, 0}, 128)
				Expect(errors.Is(err, protocol.ErrMalformedFrame)).To(BeTrue())
			})
		})
	})

	Describe("ReadPacketFrom()", func() {
		It("reads one frame from a stream", func() {
			b := mustEncode(protocol.CmdRequest, "list-policies", protocol.NewMessage().Set("trap", "yes"))
			r := bytes.NewReader(append(b, b...))

			pkt, err := protocol.ReadPacketFrom(r, 0)
			Expect(err).To(Succeed())
			Expect(pkt.Type).To(Equal(protocol.CmdRequest))
			Expect(pkt.Name).To(Equal("list-policies"))
			Expect(r.Len()).To(Equal(len(b)))
		})

		It("returns EOF on a closed stream", func() {
			_, err := protocol.ReadPacketFrom(bytes.NewReader(nil), 0)
			Expect(err).To(MatchError(io.EOF))
		})

		It("reports a truncated frame", func() {
			b := mustEncode(protocol.CmdRequest, "version", nil)

			_, err := protocol.ReadPacketFrom(bytes.NewReader(b[:len(b)-2]), 0)
			Expect(err).To(MatchError(io.ErrUnexpectedEOF))
		})
	})
})
