package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Srjnnnn/blendgate/pkg/bus"
	"github.com/Srjnnnn/blendgate/pkg/config"
	"github.com/Srjnnnn/blendgate/pkg/gateway"
	"github.com/Srjnnnn/blendgate/pkg/logger"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 4 << 20
	wsSendBuffer   = 32
)

// WSChannel serves the WebSocket surface: request/response frames plus
// scene_update and batch_update broadcasts for subscribed connections.
type WSChannel struct {
	*BaseChannel
	gw      *gateway.Gateway
	cfg     config.WebSocketConfig
	version string
	server  *http.Server
	stop    context.CancelFunc
}

// NewWSChannel builds the WebSocket front over gw.
func NewWSChannel(cfg config.WebSocketConfig, gw *gateway.Gateway, version string) *WSChannel {
	return &WSChannel{
		BaseChannel: NewBaseChannel("websocket", nil),
		gw:          gw,
		cfg:         cfg,
		version:     version,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers talking to a local tool; origin checks match the HTTP
	// channel's open CORS policy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Start binds the listener and accepts connections until ctx is cancelled
// or Stop is called.
func (c *WSChannel) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("websocket listen on %s: %w", addr, err)
	}

	ctx, c.stop = context.WithCancel(ctx)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		c.serveConn(ctx, w, r)
	})
	c.server = &http.Server{Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- c.server.Serve(ln)
	}()

	c.setRunning(true)
	logger.InfoCF("websocket", "listening", map[string]interface{}{
		"addr": addr,
	})

	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			_ = c.server.Shutdown(shutdownCtx)
			cancel()
		case err := <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.ErrorCF("websocket", "serve_error", map[string]interface{}{
					"error": err,
				})
			}
		}
		c.setRunning(false)
	}()
	return nil
}

// Stop closes the listener and all connections.
func (c *WSChannel) Stop() error {
	if c.stop != nil {
		c.stop()
	}
	c.setRunning(false)
	return nil
}

// ServeHTTP upgrades one connection. Exposed for httptest-driven tests.
func (c *WSChannel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.serveConn(r.Context(), w, r)
}

func (c *WSChannel) serveConn(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("websocket", "upgrade_failed", map[string]interface{}{
			"remote": r.RemoteAddr,
			"error":  err,
		})
		return
	}

	client := &wsClient{
		channel: c,
		conn:    conn,
		send:    make(chan map[string]interface{}, wsSendBuffer),
		done:    make(chan struct{}),
	}
	logger.InfoCF("websocket", "connected", map[string]interface{}{
		"remote": r.RemoteAddr,
	})

	client.enqueue(map[string]interface{}{
		"type":    "connection",
		"status":  "connected",
		"server":  "blendgate",
		"version": c.version,
	})

	go client.writeLoop()
	client.readLoop(ctx)
}

// wsClient is one connection: a read loop dispatching inbound frames and
// a single writer goroutine draining the send queue.
type wsClient struct {
	channel *WSChannel
	conn    *websocket.Conn
	send    chan map[string]interface{}
	done    chan struct{}

	mu          sync.Mutex
	unsubscribe func()
}

// enqueue queues a frame for the writer, dropping it if the client is too
// far behind. Broadcast consumers must never block the dispatch path.
func (cl *wsClient) enqueue(frame map[string]interface{}) {
	select {
	case cl.send <- frame:
	case <-cl.done:
	default:
		logger.DebugC("websocket", "client send queue full, dropping frame")
	}
}

func (cl *wsClient) writeLoop() {
	for {
		select {
		case frame := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := cl.conn.WriteJSON(frame); err != nil {
				cl.close()
				return
			}
		case <-cl.done:
			return
		}
	}
}

func (cl *wsClient) readLoop(ctx context.Context) {
	defer cl.close()
	cl.conn.SetReadLimit(wsReadLimit)

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		cl.handleFrame(ctx, raw)
	}
}

func (cl *wsClient) handleFrame(ctx context.Context, raw []byte) {
	var frame map[string]interface{}
	if err := json.Unmarshal(raw, &frame); err != nil {
		cl.enqueue(errorFrame("", "malformed JSON frame"))
		return
	}
	msgType, _ := frame["type"].(string)
	id, _ := frame["id"].(string)

	switch msgType {
	case "command":
		resp, err := dispatchEnvelope(ctx, cl.channel.gw, raw)
		if err != nil {
			cl.enqueue(errorFrame(id, err.Error()))
			return
		}
		cl.enqueue(responseFrame(id, resp))

	case "batch":
		resp, err := dispatchEnvelope(ctx, cl.channel.gw, raw)
		if err != nil {
			cl.enqueue(errorFrame(id, err.Error()))
			return
		}
		cl.enqueue(responseFrame(id, resp))

	case "subscribe":
		events := stringSlice(frame["events"])
		cl.subscribe(events)
		cl.enqueue(map[string]interface{}{
			"type":   "subscribed",
			"events": events,
		})

	case "ping":
		cl.enqueue(map[string]interface{}{
			"type":      "pong",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})

	default:
		cl.enqueue(errorFrame(id, fmt.Sprintf("unknown message type %q", msgType)))
	}
}

// subscribe attaches the client to the event bus for the named event
// types. An empty list subscribes to everything. A second subscribe
// replaces the first.
func (cl *wsClient) subscribe(events []string) {
	wanted := make(map[string]bool, len(events))
	for _, ev := range events {
		wanted[ev] = true
	}

	ch, cancel := cl.channel.gw.Events().Subscribe("websocket", wsSendBuffer)

	cl.mu.Lock()
	if cl.unsubscribe != nil {
		cl.unsubscribe()
	}
	cl.unsubscribe = cancel
	cl.mu.Unlock()

	go func() {
		for ev := range ch {
			if len(wanted) > 0 && !wanted[ev.Type] {
				continue
			}
			cl.enqueue(broadcastFrame(ev))
		}
	}()
}

func (cl *wsClient) close() {
	cl.mu.Lock()
	if cl.unsubscribe != nil {
		cl.unsubscribe()
		cl.unsubscribe = nil
	}
	cl.mu.Unlock()

	select {
	case <-cl.done:
	default:
		close(cl.done)
		cl.conn.Close()
	}
}

func responseFrame(id string, data map[string]interface{}) map[string]interface{} {
	frame := map[string]interface{}{
		"type": "response",
		"data": data,
	}
	if id != "" {
		frame["id"] = id
	}
	return frame
}

func errorFrame(id, message string) map[string]interface{} {
	frame := map[string]interface{}{
		"type":    "error",
		"message": message,
	}
	if id != "" {
		frame["id"] = id
	}
	return frame
}

func broadcastFrame(ev bus.Event) map[string]interface{} {
	return map[string]interface{}{
		"type":      ev.Type,
		"data":      ev.Payload,
		"timestamp": ev.Timestamp.UTC().Format(time.RFC3339),
	}
}

func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
