package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mini-ide/internal/workerutil"
)

// writeDeadline bounds a single WebSocket write. A WebView frozen longer
// than this is treated as gone.
const writeDeadline = 5 * time.Second

// readDeadline allows ~3 missed pings before the connection is dropped.
const readDeadline = 90 * time.Second

const pingInterval = 30 * time.Second

// maxReadMessageSize bounds incoming subscribe/unsubscribe JSON.
const maxReadMessageSize = 32 * 1024

var wsUpgrader = websocket.Upgrader{
	// The server binds to 127.0.0.1 only, and WebView origins vary by platform.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 32 * 1024,
}

// HubOptions configures the WebSocket server.
type HubOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for OS-assigned port.
	Addr string
	// Topics lists the topics a client may subscribe to. Empty means
	// TopicTree and TopicTabs.
	Topics []string
}

// Hub serves a single WebSocket client (the app's WebView) and pushes the
// latest projection frame of every subscribed topic to it.
//
// New connections replace existing ones to handle page reloads. The hub
// remembers the last frame published per topic and replays it on subscribe,
// so a reloaded page gets current state without a round trip.
//
// Lock ordering (never acquire in reverse):
//
//	writeMu -> mu
//
// Write failure policy: any failed write disconnects the client via
// clearIfCurrent+closeConn. The client must reconnect.
type Hub struct {
	opts   HubOptions
	topics map[string]struct{}

	// mu protects conn, subscribed and latest.
	mu         sync.RWMutex
	conn       *websocket.Conn
	subscribed map[string]bool
	latest     map[string][]byte

	// writeMu serializes WriteMessage calls; gorilla/websocket allows one
	// concurrent writer.
	writeMu sync.Mutex

	listener net.Listener
	server   *http.Server
	url      string // "ws://127.0.0.1:<port>/ws", set after Start

	closeOnce sync.Once
}

const (
	subscribeAction   = "subscribe"
	unsubscribeAction = "unsubscribe"
)

// subscribeMsg is the JSON a client sends to change its topic set.
type subscribeMsg struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// errorMsg is the JSON payload for server error notifications sent to the client.
type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewHub creates a Hub with the given options.
// The hub is not started until Start is called.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if len(opts.Topics) == 0 {
		opts.Topics = []string{TopicTree, TopicTabs}
	}
	topics := make(map[string]struct{}, len(opts.Topics))
	for _, topic := range opts.Topics {
		topics[topic] = struct{}{}
	}
	return &Hub{
		opts:       opts,
		topics:     topics,
		subscribed: make(map[string]bool),
		latest:     make(map[string][]byte),
	}
}

// Start listens on the configured address and serves WebSocket connections.
// ctx becomes the base context of request handlers; the server itself stops
// only through Stop. Start must be called once, before concurrent use.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return errors.New("wsserver: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen: %w", err)
	}
	h.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	h.url = fmt.Sprintf("ws://127.0.0.1:%d/ws", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)

	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		defer workerutil.Recover("ws-serve", nil)
		if serveErr := h.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("[DEBUG-WS] server error", "error", serveErr)
		}
	}()

	slog.Info("[DEBUG-WS] server started", "url", h.url)
	return nil
}

// Stop shuts down the HTTP server and closes the active connection.
// It is idempotent; a stopped Hub cannot be restarted.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.subscribed = make(map[string]bool)
		h.mu.Unlock()

		if conn != nil {
			h.closeConn(conn, "hub stop")
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("wsserver: shutdown: %w", err)
			}
		}

		slog.Info("[DEBUG-WS] server stopped")
	})
	return stopErr
}

// URL returns the WebSocket URL for the page, or "" before Start.
func (h *Hub) URL() string {
	return h.url
}

// HasActiveConnection reports whether a WebSocket client is currently connected.
func (h *Hub) HasActiveConnection() bool {
	h.mu.RLock()
	active := h.conn != nil
	h.mu.RUnlock()
	return active
}

// Subscribed reports whether the current client subscribed to topic.
func (h *Hub) Subscribed(topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.subscribed[topic]
}

// Publish encodes payload as the latest frame of topic and sends it to the
// client when subscribed. With no client the frame is only remembered.
func (h *Hub) Publish(topic string, payload any) error {
	if _, ok := h.topics[topic]; !ok {
		return fmt.Errorf("wsserver: unknown topic %q", topic)
	}
	frame, err := EncodeTopicFrame(topic, payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.latest[topic] = frame
	conn := h.conn
	subscribed := h.subscribed[topic]
	h.mu.Unlock()

	// The connection may be replaced between unlock and write; a write to a
	// stale conn fails and clearIfCurrent leaves the newer one alone.
	if conn == nil || !subscribed {
		return nil
	}
	h.writeFrame(conn, websocket.BinaryMessage, frame, "publish "+topic)
	return nil
}

// Forget drops the remembered frames, e.g. when a workspace closes.
func (h *Hub) Forget() {
	h.mu.Lock()
	clear(h.latest)
	h.mu.Unlock()
}

// clearIfCurrent clears connection state only when conn is still current.
// Caller must NOT hold h.mu.
func (h *Hub) clearIfCurrent(conn *websocket.Conn) bool {
	h.mu.Lock()
	isCurrent := h.conn == conn
	if isCurrent {
		h.conn = nil
		h.subscribed = make(map[string]bool)
	}
	h.mu.Unlock()
	return isCurrent
}

// closeConn closes conn; closing an already-closed conn is logged at Debug.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if closeErr := conn.Close(); closeErr != nil {
		slog.Debug("[DEBUG-WS] connection close", "reason", reason, "error", closeErr)
	}
}

// writeFrame performs one deadline-bounded write and applies the write
// failure policy. It reports whether the write succeeded.
func (h *Hub) writeFrame(conn *websocket.Conn, msgType int, data []byte, reason string) bool {
	h.writeMu.Lock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		h.writeMu.Unlock()
		slog.Warn("[DEBUG-WS] SetWriteDeadline failed, closing connection", "reason", reason, "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "SetWriteDeadline failure")
		return false
	}
	err := conn.WriteMessage(msgType, data)
	if clearErr := conn.SetWriteDeadline(time.Time{}); clearErr != nil {
		slog.Debug("[DEBUG-WS] clear write deadline failed (non-fatal)", "error", clearErr)
	}
	h.writeMu.Unlock()

	if err != nil {
		slog.Warn("[DEBUG-WS] write failed, closing connection", "reason", reason, "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "write error: "+reason)
		return false
	}
	return true
}

// handleWS upgrades the request and runs the read pump. The newest
// connection replaces any existing one.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[DEBUG-WS] upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[DEBUG-WS] SetReadDeadline failed on new connection", "error", err)
		h.closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	h.mu.Lock()
	oldConn := h.conn
	h.conn = conn
	h.subscribed = make(map[string]bool)
	h.mu.Unlock()

	if oldConn != nil {
		h.closeConn(oldConn, "replaced by new connection")
	}

	slog.Info("[DEBUG-WS] client connected", "remoteAddr", conn.RemoteAddr())

	pingDone := make(chan struct{})
	go h.pingLoop(conn, pingDone)

	defer func() {
		close(pingDone)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "read pump exit")
		slog.Info("[DEBUG-WS] client disconnected")
	}()
	defer workerutil.Recover("ws-read", nil)

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[DEBUG-WS] read error", "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var subMsg subscribeMsg
		if jsonErr := json.Unmarshal(msg, &subMsg); jsonErr != nil {
			slog.Debug("[DEBUG-WS] invalid JSON from client", "error", jsonErr)
			h.sendError(conn, fmt.Sprintf("invalid JSON: %s", jsonErr))
			continue
		}
		h.handleSubscription(conn, subMsg)
	}
}

// pingLoop sends keepalive pings until done is closed or a ping fails.
func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer workerutil.Recover("ws-ping", func(any) {
		h.clearIfCurrent(conn)
		h.closeConn(conn, "pingLoop panic recovery")
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !h.writeFrame(conn, websocket.PingMessage, nil, "ping") {
				return
			}
		}
	}
}

// handleSubscription applies a subscribe or unsubscribe request, then
// replays the remembered frame of every newly subscribed topic.
func (h *Hub) handleSubscription(conn *websocket.Conn, msg subscribeMsg) {
	var replay [][]byte
	var unknown []string

	h.mu.Lock()
	if h.conn != conn {
		h.mu.Unlock()
		slog.Debug("[DEBUG-WS] subscription from stale connection, skipping")
		return
	}
	switch msg.Action {
	case subscribeAction:
		for _, topic := range msg.Topics {
			if _, ok := h.topics[topic]; !ok {
				unknown = append(unknown, topic)
				continue
			}
			if h.subscribed[topic] {
				continue
			}
			h.subscribed[topic] = true
			if frame, ok := h.latest[topic]; ok {
				replay = append(replay, frame)
			}
			slog.Debug("[DEBUG-WS] subscribed", "topic", topic)
		}
	case unsubscribeAction:
		for _, topic := range msg.Topics {
			delete(h.subscribed, topic)
			slog.Debug("[DEBUG-WS] unsubscribed", "topic", topic)
		}
	default:
		h.mu.Unlock()
		slog.Debug("[DEBUG-WS] unknown action", "action", msg.Action)
		h.sendError(conn, fmt.Sprintf("unknown action %q", msg.Action))
		return
	}
	h.mu.Unlock()

	if len(unknown) > 0 {
		slices.Sort(unknown)
		h.sendError(conn, fmt.Sprintf("unknown topics: %q", unknown))
	}
	for _, frame := range replay {
		if !h.writeFrame(conn, websocket.BinaryMessage, frame, "replay") {
			return
		}
	}
}

// sendError sends a JSON error message to the client.
func (h *Hub) sendError(conn *websocket.Conn, message string) {
	payload, err := json.Marshal(errorMsg{Type: "error", Message: message})
	if err != nil {
		slog.Debug("[DEBUG-WS] failed to marshal error message", "error", err)
		return
	}
	h.writeFrame(conn, websocket.TextMessage, payload, "error message")
}
