package client

import "bytes"

// buffers absorbs the difference between whole frames and what the socket
// accepts or returns in one call. outbound holds encoded frames not yet written,
// inbound holds bytes read but not yet decoded into a complete frame.
type buffers struct {
	outbound bytes.Buffer
	inbound  bytes.Buffer
}

func (b *buffers) queueFrame(frame []byte) {
	b.outbound.Write(frame)
}

// unwritten returns the bytes waiting to be written. The slice is only valid
// until the next call that modifies the buffers.
func (b *buffers) unwritten() []byte {
	return b.outbound.Bytes()
}

func (b *buffers) wrote(n int) {
	b.outbound.Next(n)
}

func (b *buffers) wantsWrite() bool {
	return b.outbound.Len() > 0
}

func (b *buffers) received(p []byte) {
	b.inbound.Write(p)
}

func (b *buffers) undecoded() []byte {
	return b.inbound.Bytes()
}

func (b *buffers) decoded(n int) {
	b.inbound.Next(n)
}

func (b *buffers) reset() {
	b.outbound.Reset()
	b.inbound.Reset()
}
