package wsrelay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"rzr-relay/go-backend/internal/relay"
)

const componentName = "wsrelay"

type Options struct {
	Logger *slog.Logger
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades requests and runs one relay session per connection.
type Handler struct {
	relay    *relay.Relay
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(r *relay.Relay, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	check := opts.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	return &Handler{
		relay: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			EnableCompression: true,
			CheckOrigin:       check,
		},
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed",
			"component", componentName,
			"variant", h.relay.Variant().String(),
			"error", err)
		return
	}
	h.serve(ws)
}

// serve owns the connection until the peer goes away. Frames are applied
// on this goroutine only, so session state needs no lock.
func (h *Handler) serve(ws *websocket.Conn) {
	c := newConn(ws, func() {
		h.logger.Warn("outbound queue full, dropping connection",
			"component", componentName,
			"variant", h.relay.Variant().String())
	})
	ws.SetReadLimit(h.relay.MaxFrame())
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writeLoop()
	s := h.relay.Open(c)
	defer func() {
		h.relay.Close(s)
		_ = c.Close()
	}()

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read ended",
					"component", componentName,
					"variant", h.relay.Variant().String(),
					"session_id", s.ID(),
					"error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		h.relay.HandleFrame(s, frame)
	}
}
