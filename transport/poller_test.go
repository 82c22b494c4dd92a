package transport_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/luma/vici/client"
	"github.com/luma/vici/transport"
)

var _ = Describe("Poller", func() {
	var (
		poller *transport.Poller
		fds    [2]int
	)

	BeforeEach(func() {
		var err error

		poller, err = transport.MakePoller()
		Expect(err).To(Succeed())

		fds, err = unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		for _, fd := range fds {
			if fd >= 0 {
				unix.Close(fd)
			}
		}
		Expect(poller.Close()).To(Succeed())
	})

	It("times out when nothing is ready", func() {
		Expect(poller.Watch(fds[0], client.InterestRead)).To(Succeed())

		events, err := poller.Wait(10 * time.Millisecond)
		Expect(err).To(Succeed())
		Expect(events).To(BeEmpty())
	})

	It("reports a readable descriptor", func() {
		Expect(poller.Watch(fds[0], client.InterestRead)).To(Succeed())

		_, err := unix.Write(fds[1], []byte("x"))
		Expect(err).To(Succeed())

		events, err := poller.Wait(time.Second)
		Expect(err).To(Succeed())
		Expect(events).To(ConsistOf(transport.Event{Fd: fds[0], Readable: true}))
	})

	It("reports a writable descriptor once write interest is added", func() {
		Expect(poller.Watch(fds[0], client.InterestRead)).To(Succeed())
		Expect(poller.Watch(fds[0], client.InterestReadWrite)).To(Succeed())

		events, err := poller.Wait(time.Second)
		Expect(err).To(Succeed())
		Expect(events).To(ConsistOf(transport.Event{Fd: fds[0], Writable: true}))
	})

	It("reports a hangup as readable", func() {
		Expect(poller.Watch(fds[0], client.InterestRead)).To(Succeed())
		Expect(unix.Close(fds[1])).To(Succeed())
		fds[1] = -1

		events, err := poller.Wait(time.Second)
		Expect(err).To(Succeed())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Readable).To(BeTrue())
		Expect(events[0].Hangup).To(BeTrue())
	})

	It("stops watching when interest drops to none", func() {
		Expect(poller.Watch(fds[0], client.InterestRead)).To(Succeed())
		Expect(poller.Watch(fds[0], client.InterestNone)).To(Succeed())
		Expect(poller.Watch(fds[0], client.InterestNone)).To(Succeed())

		_, err := unix.Write(fds[1], []byte("x"))
		Expect(err).To(Succeed())

		events, err := poller.Wait(10 * time.Millisecond)
		Expect(err).To(Succeed())
		Expect(events).To(BeEmpty())
	})

	It("is woken from another goroutine", func() {
		go func() {
			time.Sleep(20 * time.Millisecond)
			poller.Wake()
		}()

		start := time.Now()
		events, err := poller.Wait(-1)
		Expect(err).To(Succeed())
		Expect(events).To(BeEmpty())
		Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
	})

	It("does not stay awake after the wake-up was consumed", func() {
		Expect(poller.Wake()).To(Succeed())
		Expect(poller.Wake()).To(Succeed())

		_, err := poller.Wait(time.Second)
		Expect(err).To(Succeed())

		start := time.Now()
		_, err = poller.Wait(30 * time.Millisecond)
		Expect(err).To(Succeed())
		Expect(time.Since(start)).To(BeNumerically(">=", 20*time.Millisecond))
	})
})
