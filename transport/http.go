package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type HTTPOptions struct {
	// Host to listen on
	Host string

	// Port to listen on
	Port int

	// Reuseport opens NumListeners listeners sharing the port with SO_REUSEPORT.
	// Without it a single plain listener is used.
	Reuseport bool

	NumListeners int

	Log *zap.Logger
}

// HTTP serves a handler on one or more listeners bound to the same address.
type HTTP struct {
	stopWaiter sync.WaitGroup

	addr      string
	reuseport bool

	numListeners int

	mu        sync.Mutex
	listeners []net.Listener

	server *http.Server

	log *zap.Logger
}

func NewHTTP(handler http.Handler, options HTTPOptions) *HTTP {
	numListeners := options.NumListeners

	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	if !options.Reuseport {
		numListeners = 1
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &HTTP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport:    options.Reuseport,
		numListeners: numListeners,
		listeners:    make([]net.Listener, 0, numListeners),
		server:       &http.Server{Handler: handler},
		log:          log,
	}
}

// Start binds every listener and serves on them in the background. Nothing is
// served if any of them fails to bind.
func (h *HTTP) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.log.Info("Starting http listeners", zap.Int("count", h.numListeners))

	addr := h.addr
	for i := 0; i < h.numListeners; i++ {
		listener, err := h.listen(addr)
		if err != nil {
			return multierr.Append(err, h.closeListeners())
		}

		// A zero port picks a free one, the rest have to share it
		addr = listener.Addr().String()
		h.listeners = append(h.listeners, listener)
	}

	for i, listener := range h.listeners {
		h.stopWaiter.Add(1)

		go func(i int, listener net.Listener) {
			defer h.stopWaiter.Done()

			if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				h.log.Error("Failed to serve", zap.Int("listener", i), zap.Error(err))
			}
		}(i, listener)
	}

	return nil
}

func (h *HTTP) listen(addr string) (net.Listener, error) {
	if h.reuseport {
		return reuseport.Listen("tcp", addr)
	}

	return net.Listen("tcp", addr)
}

// Addr returns the bound address, or nil before Start.
func (h *HTTP) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.listeners) == 0 {
		return nil
	}

	return h.listeners[0].Addr()
}

// Shutdown stops accepting, waits for active requests until ctx is done and
// then for every listener to stop.
func (h *HTTP) Shutdown(ctx context.Context) error {
	h.log.Info("Stopping HTTP server")

	h.server.SetKeepAlivesEnabled(false)
	err := h.server.Shutdown(ctx)

	h.stopWaiter.Wait()
	h.log.Info("HTTP listeners stopped")

	return err
}

// Close immediately closes all listeners and connections.
//
// For a graceful shutdown, use Shutdown()
func (h *HTTP) Close() error {
	err := h.server.Close()
	h.stopWaiter.Wait()
	return err
}

func (h *HTTP) closeListeners() (err error) {
	for _, listener := range h.listeners {
		err = multierr.Append(err, listener.Close())
	}

	h.listeners = h.listeners[:0]
	return err
}
