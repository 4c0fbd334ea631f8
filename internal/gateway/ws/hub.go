package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/tbaudier/overseer/internal/events"
)

// TaskSubmitter enqueues a task on behalf of a websocket client.
type TaskSubmitter interface {
	SubmitTask(prompt, threadID, threadTitle, modelID string) (string, error)
}

// Client is one connected websocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub manages websocket clients and bridges them to the event bus.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	bus         *events.Bus
	queue       TaskSubmitter
	unsubscribe func()
}

// NewHub creates a hub that broadcasts every bus event to its clients.
func NewHub(bus *events.Bus, queue TaskSubmitter) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		bus:     bus,
		queue:   queue,
	}

	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		data, err := MarshalFrame(NewEventFrame(string(e.Type), e))
		if err != nil {
			slog.Error("marshal event frame", "error", err)
			return
		}
		h.broadcast(data)
	})

	return h
}

// Close unsubscribes from the bus and drops all clients.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "clients", len(h.clients))
	}
}

// ServeWS handles a websocket upgrade and manages the client lifecycle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for dev
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}

		if frame.Type == FrameTypeRequest {
			c.handleRequest(ctx, frame)
		} else {
			slog.Debug("ws unexpected frame type", "type", frame.Type)
		}
	}
}

func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	switch frame.Method {
	case "submit_task":
		var params struct {
			Prompt      string `json:"prompt"`
			ThreadID    string `json:"thread_id"`
			ThreadTitle string `json:"thread_title"`
			Model       string `json:"model"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.respond(ctx, NewResponseFrame(frame.ID, false, nil, "invalid params"))
			return
		}
		if c.hub.queue == nil {
			c.respond(ctx, NewResponseFrame(frame.ID, false, nil, "task system not available"))
			return
		}

		taskID, err := c.hub.queue.SubmitTask(params.Prompt, params.ThreadID, params.ThreadTitle, params.Model)
		if err != nil {
			c.respond(ctx, NewResponseFrame(frame.ID, false, nil, err.Error()))
			return
		}
		c.respond(ctx, NewResponseFrame(frame.ID, true, map[string]string{"task_id": taskID}, ""))

	default:
		c.respond(ctx, NewResponseFrame(frame.ID, false, nil, "unknown method: "+frame.Method))
	}
}

func (c *Client) respond(ctx context.Context, f Frame) {
	data, err := MarshalFrame(f)
	if err != nil {
		slog.Error("marshal response frame", "error", err)
		return
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("ws write error", "error", err)
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
