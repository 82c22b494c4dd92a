package transport_test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/vici/transport"
)

var _ = Describe("WaitForSocket", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "vici")
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("returns at once when the socket exists", func() {
		path := filepath.Join(dir, "charon.vici")
		listener, err := net.Listen("unix", path)
		Expect(err).To(Succeed())
		defer listener.Close()

		Expect(transport.WaitForSocket(context.Background(), "unix://"+path)).To(Succeed())
	})

	It("waits for the socket to be created", func() {
		path := filepath.Join(dir, "charon.vici")
		listeners := make(chan net.Listener, 1)

		go func() {
			defer GinkgoRecover()

			time.Sleep(50 * time.Millisecond)
			listener, err := net.Listen("unix", path)
			Expect(err).To(Succeed())
			listeners <- listener
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		Expect(transport.WaitForSocket(ctx, path)).To(Succeed())

		var listener net.Listener
		Eventually(listeners).Should(Receive(&listener))
		listener.Close()
	})

	It("gives up when the context is done", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		err := transport.WaitForSocket(ctx, filepath.Join(dir, "charon.vici"))
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})
})
