// Package gateway pushes service events to the operations gateway over a
// WebSocket connection. The push is best-effort: a down gateway must never
// affect webhook handling.
package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types pushed to the gateway.
const (
	EventInboundMessage = "inbound_message"
	EventFlowCompleted  = "flow_completed"
	EventMediaAnalyzed  = "media_analyzed"
)

// Event is one service event.
type Event struct {
	Type      string `json:"type"`
	Channel   string `json:"channel"`
	From      string `json:"from,omitempty"`
	Name      string `json:"name,omitempty"`
	Text      string `json:"text,omitempty"`
	FlowID    string `json:"flow_id,omitempty"`
	FlowToken string `json:"flow_token,omitempty"`
	At        string `json:"at"`
}

// Notifier delivers events to the gateway. A nil or disabled Notifier
// silently drops events.
type Notifier struct {
	url   string
	token string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewNotifier creates a gateway notifier. An empty url disables it.
func NewNotifier(url, token string) *Notifier {
	return &Notifier{url: url, token: token}
}

// Enabled reports whether a gateway URL is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Connect establishes the WebSocket connection.
func (n *Notifier) Connect() error {
	if !n.Enabled() {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	header := make(map[string][]string)
	if n.token != "" {
		header["Authorization"] = []string{"Bearer " + n.token}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(n.url, header)
	if err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}

	n.conn = conn
	log.Printf("gateway: connected to %s", n.url)
	return nil
}

// Notify sends an event, stamping it with the current time. Delivery
// failures are reconnect-and-retried once, then dropped with a log line.
func (n *Notifier) Notify(evt Event) {
	if !n.Enabled() {
		return
	}
	evt.Channel = "whatsapp"
	evt.At = time.Now().UTC().Format(time.RFC3339)

	if err := n.send(evt); err != nil {
		log.Printf("gateway: send failed, reconnecting: %v", err)
		if err := n.Connect(); err != nil {
			log.Printf("gateway: reconnect failed, dropping event: %v", err)
			return
		}
		if err := n.send(evt); err != nil {
			log.Printf("gateway: dropping event after retry: %v", err)
		}
	}
}

func (n *Notifier) send(evt Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return fmt.Errorf("not connected to gateway")
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Close closes the WebSocket connection.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
