package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/vici/client"
	"github.com/luma/vici/protocol"
	"github.com/luma/vici/storage"
)

const CallTimeout = 30 * time.Second

// NewRouter exposes a Session over HTTP:
//
//   GET    /ping                  liveness
//   POST   /commands/:name        run a command, the JSON body is the message
//   POST   /streams/:name?event=  run a streamed command, collecting event
//   PUT    /events/:name          start collecting an event
//   DELETE /events/:name          stop collecting it
//   GET    /events/:name          everything collected so far
//   GET    /events/:name/stream   server sent events as they arrive
func NewRouter(session *Session, debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	r.Use(ginzap.RecoveryWithZap(log, true))

	h := handlers{session: session, log: log}

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.POST("/commands/:name", h.command)
	r.POST("/streams/:name", h.stream)
	r.PUT("/events/:name", h.subscribe)
	r.DELETE("/events/:name", h.unsubscribe)
	r.GET("/events/:name", h.events)
	r.GET("/events/:name/stream", h.streamEvents)

	return r
}

type handlers struct {
	session *Session
	log     *zap.Logger
}

func (h handlers) command(c *gin.Context) {
	msg, ok := h.bindMessage(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), CallTimeout)
	defer cancel()

	resp, err := h.session.Call(ctx, c.Param("name"), msg)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.respond(c, resp)
}

func (h handlers) stream(c *gin.Context) {
	event := c.Query("event")
	if event == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "event query parameter is required"})
		return
	}

	msg, ok := h.bindMessage(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), CallTimeout)
	defer cancel()

	resp, events, err := h.session.Stream(ctx, c.Param("name"), msg, event)
	if err != nil {
		h.fail(c, err)
		return
	}

	doc := []byte(`{"events":[]}`)
	for _, ev := range events {
		raw, err := ev.MarshalJSON()
		if err == nil {
			doc, err = sjson.SetRawBytes(doc, "events.-1", raw)
		}
		if err != nil {
			h.fail(c, err)
			return
		}
	}

	raw, err := resp.MarshalJSON()
	if err == nil {
		doc, err = sjson.SetRawBytes(doc, "response", raw)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", doc)
}

func (h handlers) subscribe(c *gin.Context) {
	if err := h.session.Subscribe(c.Request.Context(), c.Param("name")); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h handlers) unsubscribe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), CallTimeout)
	defer cancel()

	if err := h.session.Unsubscribe(ctx, c.Param("name")); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h handlers) events(c *gin.Context) {
	value, err := h.session.Store().Get(c.Request.Context(), protocol.EscapePath(c.Param("name")))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", value)
}

func (h handlers) streamEvents(c *gin.Context) {
	name := c.Param("name")
	key := protocol.EscapePath(name)
	updates := h.session.Store().ListenToUpdates(c.Request.Context())

	c.Stream(func(w io.Writer) bool {
		update, ok := <-updates
		if !ok {
			return false
		}

		if update.Key != key {
			return true
		}

		items := gjson.ParseBytes(update.Value).Array()
		if len(items) > 0 {
			c.SSEvent(name, items[len(items)-1].Raw)
		}

		return true
	})
}

// bindMessage parses the optional JSON body into a message
func (h handlers) bindMessage(c *gin.Context) (*protocol.Message, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	if len(body) == 0 {
		return nil, true
	}

	msg, err := protocol.ParseJSON(body)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}

	return msg, true
}

func (h handlers) respond(c *gin.Context, msg *protocol.Message) {
	raw, err := msg.MarshalJSON()
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

func (h handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrInvalidJSON),
		errors.Is(err, protocol.ErrInvalidAttribute):
		return http.StatusBadRequest

	case errors.Is(err, client.ErrUnknownCommand),
		errors.Is(err, client.ErrUnknownEvent),
		errors.Is(err, client.ErrNotRegistered),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, client.ErrRequestInFlight):
		return http.StatusTooManyRequests

	case errors.Is(err, client.ErrConnectionClosed):
		return http.StatusServiceUnavailable

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusBadGateway
	}
}
