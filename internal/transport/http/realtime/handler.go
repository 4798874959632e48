// Package realtime serves the websocket endpoint that streams hub channels to
// dashboards and table screens.
package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Additional-Code/cafe/internal/config"
	"github.com/Additional-Code/cafe/internal/realtime"
	"github.com/Additional-Code/cafe/pkg/errorbank"
)

const maxFrameSize = 4096

// Client actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ClientFrame is what a connected client may send.
type ClientFrame struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// ControlFrame answers a ClientFrame.
type ControlFrame struct {
	Type    string `json:"type"`
	Action  string `json:"action,omitempty"`
	Channel string `json:"channel,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handler upgrades requests and pumps hub messages to the socket.
type Handler struct {
	hub          *realtime.Hub
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHandler builds a websocket Handler.
func NewHandler(hub *realtime.Hub, cfg config.Config, logger *zap.Logger) *Handler {
	rc := cfg.Realtime
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(rc.AllowedOrigins),
		},
		writeTimeout: rc.WriteTimeout,
		pingInterval: rc.PingInterval,
		logger:       logger.Named("websocket"),
	}
}

// Register mounts the websocket endpoint.
func Register(e *echo.Echo, h *Handler, cfg config.Config) {
	e.GET(cfg.Realtime.Path, h.serve)
}

// serve subscribes to ?channels=a,b then blocks until the connection ends.
func (h *Handler) serve(c echo.Context) error {
	sub, err := h.hub.Subscribe(parseChannels(c.QueryParam("channels"))...)
	if err != nil {
		if errors.Is(err, realtime.ErrHubClosed) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return errorbank.BadRequest("invalid channels", errorbank.WithCause(err))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		sub.Close()
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}

	logger := h.logger.With(zap.Uint64("subscriber", sub.ID()), zap.String("remote", c.RealIP()))
	logger.Info("websocket connected", zap.Strings("channels", sub.Patterns()))

	control := make(chan ControlFrame, 8)
	writerDone := make(chan struct{})
	go h.write(conn, sub, control, writerDone, logger)

	h.read(conn, sub, control, writerDone)
	sub.Close()
	<-writerDone

	logger.Info("websocket disconnected", zap.Uint64("dropped", sub.Dropped()))
	return nil
}

func (h *Handler) read(conn *websocket.Conn, sub *realtime.Subscriber, control chan<- ControlFrame, writerDone <-chan struct{}) {
	pongWait := h.pingInterval + h.writeTimeout
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		reply := h.apply(sub, data)
		select {
		case control <- reply:
		case <-writerDone:
			return
		}
	}
}

func (h *Handler) apply(sub *realtime.Subscriber, data []byte) ControlFrame {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ControlFrame{Type: "error", Error: "malformed frame"}
	}

	reply := ControlFrame{Type: "ack", Action: frame.Action, Channel: frame.Channel}
	switch frame.Action {
	case ActionSubscribe:
		if err := sub.Add(frame.Channel); err != nil {
			reply.Type, reply.Error = "error", err.Error()
		}
	case ActionUnsubscribe:
		sub.Remove(frame.Channel)
	default:
		reply.Type, reply.Error = "error", "unknown action"
	}
	return reply
}

func (h *Handler) write(conn *websocket.Conn, sub *realtime.Subscriber, control <-chan ControlFrame, done chan<- struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		close(done)
	}()

	for {
		select {
		case frame, ok := <-sub.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case reply := <-control:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseChannels(raw string) []string {
	var out []string
	for _, ch := range strings.Split(raw, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
