package client

// Interest is the set of readiness notifications a connection needs from the
// caller's polling loop.
type Interest uint8

const (
	InterestNone  Interest = 0
	InterestRead  Interest = 1 << 0
	InterestWrite Interest = 1 << 1

	InterestReadWrite = InterestRead | InterestWrite
)

func (i Interest) Readable() bool {
	return i&InterestRead != 0
}

func (i Interest) Writable() bool {
	return i&InterestWrite != 0
}

func (i Interest) String() string {
	switch i {
	case InterestNone:
		return "none"
	case InterestRead:
		return "read"
	case InterestWrite:
		return "write"
	case InterestReadWrite:
		return "read|write"
	default:
		return "invalid"
	}
}

// InterestFunc is told about every change of the interest set of a connection.
// The caller registers fd with its poller accordingly and later calls OnReadable
// and OnWritable when the descriptor is ready. InterestNone means the descriptor
// should be removed from the poller.
type InterestFunc func(fd int, interest Interest)
