package transport

import (
	"go.uber.org/zap"

	"github.com/luma/vici/client"
	"github.com/luma/vici/protocol"
	"github.com/luma/vici/storage"
)

type Options struct {
	// MaxPending is handed to the connection, see client.Options
	MaxPending int

	// ReadSize is handed to the connection, see client.Options
	ReadSize int

	// Trace will dump responses and events to stdout. This is only useful in local debugging
	Trace bool

	// Store collects the events a Session subscribes to
	Store storage.Store

	// OnEvent receives every event a Session subscribed to, as decoded. It runs on
	// the loop goroutine and must not block for long.
	OnEvent func(event string, msg *protocol.Message)

	Log *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}

	return o.Log
}

func (o Options) client(log *zap.Logger, onDiagnostic func(error)) client.Options {
	return client.Options{
		MaxPending:   o.MaxPending,
		ReadSize:     o.ReadSize,
		OnDiagnostic: onDiagnostic,
		Log:          log,
	}
}
