package protocol_test

import (
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/vici/protocol"
)

var _ = Describe("JSON", func() {
	Describe("MarshalJSON()", func() {
		It("renders values, sections and lists", func() {
			msg := protocol.NewMessage().Set("trap", "yes")
			msg.NewSection("child").Set("mode", "TUNNEL")
			msg.AddList("ts", "10.0.0.0/8")

			b, err := json.Marshal(msg)
			Expect(err).To(Succeed())
			Expect(b).To(MatchJSON(`{"trap":"yes","child":{"mode":"TUNNEL"},"ts":["10.0.0.0/8"]}`))
		})

		It("keeps keys containing path characters literal", func() {
			msg := protocol.NewMessage().Set("ike.1", "a").Set("what?", "b")

			b, err := msg.MarshalJSON()
			Expect(err).To(Succeed())
			Expect(b).To(MatchJSON(`{"ike.1":"a","what?":"b"}`))
		})

		It("renders an empty message as an empty object", func() {
			b, err := protocol.NewMessage().MarshalJSON()
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal(`{}`))
		})
	})

	Describe("ParseJSON()", func() {
		It("keeps the key order of the document", func() {
			msg, err := protocol.ParseJSON([]byte(`{"b":"1","a":{"y":"2","x":"3"},"l":["p","q"]}`))
			Expect(err).To(Succeed())

			keys := []string{}
			for _, e := range msg.Entries() {
				keys = append(keys, e.Key)
			}
			Expect(keys).To(Equal([]string{"b", "a", "l"}))
			Expect(msg.Section("a").Entries()[0].Key).To(Equal("y"))
			Expect(msg.List("l")).To(Equal([]string{"p", "q"}))
		})

		It("maps booleans and numbers onto their VICI spelling", func() {
			msg, err := protocol.ParseJSON([]byte(`{"trap":true,"drop":false,"timeout":30}`))
			Expect(err).To(Succeed())

			trap, _ := msg.Get("trap")
			drop, _ := msg.Get("drop")
			timeout, _ := msg.Get("timeout")
			Expect([]string{trap, drop, timeout}).To(Equal([]string{"yes", "no", "30"}))
		})

		It("rejects documents that are not objects", func() {
			_, err := protocol.ParseJSON([]byte(`["a"]`))
			Expect(errors.Is(err, protocol.ErrInvalidJSON)).To(BeTrue())

			_, err = protocol.ParseJSON([]byte(`{"a":`))
			Expect(errors.Is(err, protocol.ErrInvalidJSON)).To(BeTrue())
		})

		It("rejects attributes VICI cannot carry", func() {
			_, err := protocol.ParseJSON([]byte(`{"a":null}`))
			Expect(errors.Is(err, protocol.ErrInvalidAttribute)).To(BeTrue())

			_, err = protocol.ParseJSON([]byte(`{"l":[{"x":"y"}]}`))
			Expect(errors.Is(err, protocol.ErrInvalidAttribute)).To(BeTrue())
		})

		It("round trips through MarshalJSON", func() {
			in := `{"trap":"yes","child":{"mode":"TUNNEL","ts":["a","b"]}}`

			var msg protocol.Message
			Expect(json.Unmarshal([]byte(in), &msg)).To(Succeed())

			out, err := msg.MarshalJSON()
			Expect(err).To(Succeed())
			Expect(out).To(MatchJSON(in))
		})
	})
})
