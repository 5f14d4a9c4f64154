package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/netleapio/uniremote-gateway/espnow"
	"github.com/netleapio/uniremote-gateway/rcvr"
)

const (
	wsClientBuffer = 16
	wsWriteTimeout = 5 * time.Second
)

type jsonUpdate struct {
	Type   string               `json:"type"`
	Node   *NodeState           `json:"node,omitempty"`
	Addr   *espnow.MAC          `json:"addr,omitempty"`
	Status *rcvr.ExtendedStatus `json:"status,omitempty"`
}

type jsonStatus struct {
	Receiver rcvr.ExtendedStatus `json:"receiver"`
	Nodes    []NodeState         `json:"nodes"`
}

// WebSocket streams node updates and receiver status to browsers.
type WebSocket struct {
	eventChannel chan NodeChange
	manager      *NodeManager
	status       func() rcvr.ExtendedStatus
	upgrader     websocket.Upgrader

	lock    sync.Mutex
	clients map[chan []byte]struct{}
}

func NewWebSocketListener(status func() rcvr.ExtendedStatus) *WebSocket {
	return &WebSocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		eventChannel: make(chan NodeChange, 10),
		status:       status,
		clients:      make(map[chan []byte]struct{}),
	}
}

func (ws *WebSocket) Init(manager *NodeManager) {
	ws.manager = manager
	manager.AddListener(ws.eventChannel)
}

// Start fans node changes out to connected clients until ctx is done.
func (ws *WebSocket) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case change := <-ws.eventChannel:
				ws.broadcast(ws.nodeUpdate(change))
			}
		}
	}()
}

// Serve starts the HTTP server on addr and returns once it is listening.
func (ws *WebSocket) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: ws.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("web server stopped")
		}
	}()

	log.WithField("addr", ln.Addr().String()).Info("web server started")

	return nil
}

func (ws *WebSocket) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.serveWS)
	mux.HandleFunc("/status", ws.serveStatus)
	return mux
}

// PublishStatus sends the receiver status to every client.
func (ws *WebSocket) PublishStatus(st rcvr.ExtendedStatus) {
	ws.broadcast(jsonUpdate{Type: "status", Status: &st})
}

func (ws *WebSocket) nodeUpdate(change NodeChange) jsonUpdate {
	if change.Changes&ChangeNodeGone != 0 {
		addr := change.Node
		return jsonUpdate{Type: "gone", Addr: &addr}
	}

	node := ws.manager.GetNode(change.Node)
	if node == nil {
		addr := change.Node
		return jsonUpdate{Type: "gone", Addr: &addr}
	}
	return jsonUpdate{Type: "node", Node: node}
}

func (ws *WebSocket) broadcast(update jsonUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		log.WithError(err).Error("encoding websocket update")
		return
	}

	ws.lock.Lock()
	defer ws.lock.Unlock()

	for ch := range ws.clients {
		select {
		case ch <- data:
		default:
			// slow client, skip
		}
	}
}

func (ws *WebSocket) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := make(chan []byte, wsClientBuffer)
	ws.lock.Lock()
	ws.clients[ch] = struct{}{}
	ws.lock.Unlock()

	defer func() {
		ws.lock.Lock()
		delete(ws.clients, ch)
		ws.lock.Unlock()
	}()

	// Reader goroutine only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	st := ws.status()
	if err := ws.write(conn, jsonUpdate{Type: "status", Status: &st}); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case data := <-ch:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (ws *WebSocket) write(conn *websocket.Conn, update jsonUpdate) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(update)
}

func (ws *WebSocket) serveStatus(w http.ResponseWriter, r *http.Request) {
	resp := jsonStatus{Receiver: ws.status(), Nodes: []NodeState{}}
	if ws.manager != nil {
		resp.Nodes = ws.manager.Nodes()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Warn("writing status response")
	}
}
