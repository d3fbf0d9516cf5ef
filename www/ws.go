package www

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsMessage is one event on the WebSocket stream.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSHandler streams the same events as SSEHandler, one JSON text frame each.
// Anything the client sends is ignored.
func (h *EventHub) WSHandler(w http.ResponseWriter, r *http.Request) {
	ch := h.AddClient()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.RemoveClient(ch)
		log.Printf("ws: upgrade: %v", err)
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer func() {
		ping.Stop()
		h.RemoveClient(ch)
		conn.Close()
	}()

	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case evt := <-ch:
			if evt.Event == "keepalive" {
				continue
			}
			data := json.RawMessage(evt.Data)
			if !json.Valid(data) {
				data, _ = json.Marshal(evt.Data)
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(wsMessage{Event: evt.Event, Data: data}); err != nil {
				log.Printf("ws: write error: %v", err)
				return
			}
		}
	}
}
