package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/woshiliyana/video-keyframe-extractor/internal/domain/entity"
	"github.com/woshiliyana/video-keyframe-extractor/internal/infra/metrics"
)

const (
	writeWait  = 5 * time.Second
	readWait   = 60 * time.Second
	bufferSize = 256
)

// pingPeriod must stay below readWait so that a viewer's pong arrives before
// its read deadline.
func pingPeriod(wait time.Duration) time.Duration {
	return wait * 9 / 10
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is the JSON frame sent to viewers.
type Envelope struct {
	Type  string          `json:"type"`
	JobID string          `json:"job_id,omitempty"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	conn  *websocket.Conn
	jobID string
}

type registration struct {
	conn  *websocket.Conn
	jobID string
}

// Hub fans progress and status events out to connected viewers. Viewers may
// subscribe to a single job; events are dropped rather than blocking the
// publisher when the hub falls behind.
type Hub struct {
	clients    map[*websocket.Conn]*client
	broadcast  chan Envelope
	register   chan registration
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *zap.Logger

	readWait time.Duration
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*client),
		broadcast:  make(chan Envelope, bufferSize),
		register:   make(chan registration),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
		readWait:   readWait,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mutex.Unlock()
			metrics.ProgressViewers.Set(0)
			return

		case reg := <-h.register:
			h.mutex.Lock()
			h.clients[reg.conn] = &client{conn: reg.conn, jobID: reg.jobID}
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.ProgressViewers.Set(float64(count))
			h.logger.Debug("viewer connected", zap.Int("clients", count), zap.String("job_id", reg.jobID))

		case conn := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			metrics.ProgressViewers.Set(float64(count))
			h.logger.Debug("viewer disconnected", zap.Int("clients", count))

		case env := <-h.broadcast:
			h.send(env)
		}
	}
}

func (h *Hub) send(env Envelope) {
	message, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("encode progress event", zap.Error(err))
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn, c := range h.clients {
		if c.jobID != "" && env.JobID != "" && c.jobID != env.JobID {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Debug("drop viewer after write error", zap.Error(err))
			delete(h.clients, conn)
			conn.Close()
		}
	}
	metrics.ProgressViewers.Set(float64(len(h.clients)))
}

func (h *Hub) publish(env Envelope) {
	select {
	case h.broadcast <- env:
	default:
		h.logger.Warn("progress hub saturated, dropping event", zap.String("type", env.Type))
	}
}

// Report implements port.ProgressReporter.
func (h *Hub) Report(_ context.Context, ev entity.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.publish(Envelope{Type: "progress", JobID: ev.JobID, Data: data})
}

// PublishStatus implements port.StatusPublisher for job status messages.
func (h *Hub) PublishStatus(_ context.Context, msg []byte) error {
	var head struct {
		JobID string `json:"job_id"`
	}
	_ = json.Unmarshal(msg, &head)
	h.publish(Envelope{Type: "status", JobID: head.JobID, Data: json.RawMessage(msg)})
	return nil
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams events until the viewer goes away.
// The optional job_id query parameter limits the stream to one job.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(h.readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readWait))
		return nil
	})

	select {
	case h.register <- registration{conn: conn, jobID: r.URL.Query().Get("job_id")}:
	case <-h.done:
		conn.Close()
		return
	}

	stop := make(chan struct{})
	go h.ping(conn, stop)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(h.readWait))
	}
	close(stop)

	select {
	case h.unregister <- conn:
	case <-h.done:
		conn.Close()
	}
}

// ping keeps idle viewers alive. WriteControl may run concurrently with the
// hub's WriteMessage calls.
func (h *Hub) ping(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod(h.readWait))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.logger.Debug("ping viewer", zap.Error(err))
				return
			}
		}
	}
}
