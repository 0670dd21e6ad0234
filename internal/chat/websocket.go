package chat

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sessionbridge/orchestrator/internal/logging"
)

// wireMessage is the JSON shape exchanged over the dev bridge.
type wireMessage struct {
	Text      string `json:"text"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	ThreadRef string `json:"thread_ref,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketBridge is a development-only ChatTransport: one websocket
// connection is treated as one channel. Production chat vendors are
// explicitly out of this spec's scope (spec.md §1); this exists so the
// core can be exercised end-to-end without one.
type WebSocketBridge struct {
	inbox chan Message
	log   *logging.Logger

	mu    sync.RWMutex
	conns map[string]*websocket.Conn
}

// NewWebSocketBridge constructs an unstarted bridge; call Handler to
// get the http.Handler to mount.
func NewWebSocketBridge(log *logging.Logger) *WebSocketBridge {
	if log == nil {
		log = logging.Default()
	}
	return &WebSocketBridge{
		inbox: make(chan Message, 256),
		conns: make(map[string]*websocket.Conn),
		log:   log,
	}
}

func (b *WebSocketBridge) Messages() <-chan Message { return b.inbox }

// Handler upgrades a connection and registers it under the channel id
// given in the "channel" query parameter.
func (b *WebSocketBridge) Handler(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		http.Error(w, "missing channel query parameter", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	b.mu.Lock()
	b.conns[channel] = conn
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.conns, channel)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var wm wireMessage
		if err := json.Unmarshal(data, &wm); err != nil {
			continue
		}
		wm.ChannelID = channel
		b.inbox <- Message{
			Text:      wm.Text,
			UserID:    wm.UserID,
			ChannelID: channel,
			ThreadRef: wm.ThreadRef,
			Timestamp: time.Now(),
		}
	}
}

func (b *WebSocketBridge) Send(channel, text string) error {
	b.mu.RLock()
	conn := b.conns[channel]
	b.mu.RUnlock()
	if conn == nil {
		return nil
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (b *WebSocketBridge) Typing(channel string) error { return nil }

func (b *WebSocketBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.conns {
		conn.Close()
	}
	close(b.inbox)
	return nil
}
