package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/contextify/internal/api/http"
	"github.com/GriffinCanCode/contextify/internal/domain/registry"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/contextify/internal/shared/id"
)

const (
	maxMessageSize = 1 << 20
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	runTimeout     = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced by the HTTP middleware
	},
}

// Message is a client frame.
type Message struct {
	Type     string `json:"type"` // run, globals, ping
	ID       string `json:"id,omitempty"`
	Source   string `json:"source,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Reply is a server frame.
type Reply struct {
	Type    string              `json:"type"` // welcome, result, globals, error, pong
	ID      string              `json:"id,omitempty"`
	Session string              `json:"session,omitempty"`
	Context string              `json:"context,omitempty"`
	Result  *registry.RunResult `json:"result,omitempty"`
	Globals map[string]any      `json:"globals,omitempty"`
	Error   *apihttp.ErrorBody  `json:"error,omitempty"`
}

// Handler serves REPL sessions against registered contexts.
type Handler struct {
	registry *registry.Manager
	metrics  *monitoring.Metrics
	log      *logging.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(reg *registry.Manager, metrics *monitoring.Metrics, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{registry: reg, metrics: metrics, log: log.Named("ws")}
}

// Register mounts the REPL route.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/v1/contexts/:id/repl", h.HandleConnection)
}

// HandleConnection upgrades the request and runs a REPL session until the
// client disconnects. Frames for one session are handled in order.
func (h *Handler) HandleConnection(c *gin.Context) {
	cid := c.Param("id")
	if _, err := h.registry.Get(cid); err != nil {
		c.JSON(apihttp.StatusOf(err), apihttp.NewErrorBody(err))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s := &session{
		h:    h,
		conn: conn,
		id:   id.NewSessionID().String(),
		cid:  cid,
		log:  h.log.With(zap.String("context", cid)),
	}
	if h.metrics != nil {
		h.metrics.IncWSSessions()
		defer h.metrics.DecWSSessions()
	}
	s.serve(c.Request.Context())
}

type session struct {
	h    *Handler
	conn *websocket.Conn
	id   string
	cid  string
	log  *logging.Logger
}

func (s *session) serve(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.keepAlive(ctx)

	s.log.Info("repl session started", zap.String("session", s.id))
	defer s.log.Info("repl session closed", zap.String("session", s.id))

	if err := s.send(Reply{Type: "welcome", Session: s.id, Context: s.cid}); err != nil {
		return
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		s.record("in")

		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			if s.sendError("", errors.New("invalid message")) != nil {
				return
			}
			continue
		}
		if err := s.handle(ctx, msg); err != nil {
			return
		}
	}
}

func (s *session) handle(ctx context.Context, msg Message) error {
	switch msg.Type {
	case "run":
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()
		filename := msg.Filename
		if filename == "" {
			filename = "repl"
		}
		res, err := s.h.registry.Run(runCtx, s.cid, msg.Source, filename)
		if err != nil {
			return s.sendError(msg.ID, err)
		}
		return s.send(Reply{Type: "result", ID: msg.ID, Result: res})

	case "globals":
		globals, err := s.h.registry.Globals(s.cid)
		if err != nil {
			return s.sendError(msg.ID, err)
		}
		return s.send(Reply{Type: "globals", ID: msg.ID, Globals: globals})

	case "ping":
		return s.send(Reply{Type: "pong", ID: msg.ID})
	}
	return s.sendError(msg.ID, errors.New("unknown message type"))
}

// keepAlive pings the client so dead peers trip the read deadline.
func (s *session) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *session) send(r Reply) error {
	data, err := sonic.Marshal(r)
	if err != nil {
		s.log.Error("failed to encode reply", zap.Error(err))
		data, _ = sonic.Marshal(Reply{Type: "error", ID: r.ID, Error: &apihttp.ErrorBody{Error: "unencodable result"}})
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	s.record("out")
	return nil
}

func (s *session) sendError(msgID string, err error) error {
	body := apihttp.NewErrorBody(err)
	return s.send(Reply{Type: "error", ID: msgID, Error: &body})
}

func (s *session) record(direction string) {
	if s.h.metrics != nil {
		s.h.metrics.RecordWSMessage(direction)
	}
}
