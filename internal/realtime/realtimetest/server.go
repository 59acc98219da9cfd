// Package realtimetest provides an in-process Socket.IO server for tests,
// in the spirit of net/http/httptest.
package realtimetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"UnifiedMCP-Client/internal/realtime"
)

// Handler answers an emitted event. Returning ok=false leaves the emission
// unacknowledged.
type Handler func(event string, data json.RawMessage) (reply any, ok bool)

// Emission records an event received from a client.
type Emission struct {
	Event string
	Data  json.RawMessage
	AckID *uint64
}

// Server is a minimal Socket.IO v5 server over websocket.
type Server struct {
	*httptest.Server

	// Token, when set, must match the "token" field of the CONNECT auth.
	Token   string
	Handler Handler
	// CloseAfterReply closes the client socket right after each
	// acknowledgement is written.
	CloseAfterReply bool

	mu        sync.Mutex
	conns     map[*websocket.Conn]*sync.Mutex
	emissions []Emission
	auth      []json.RawMessage
	connected chan struct{}
}

// NewServer starts a server that answers emissions with handler.
func NewServer(handler Handler) *Server {
	s := &Server{
		Handler:   handler,
		conns:     make(map[*websocket.Conn]*sync.Mutex),
		connected: make(chan struct{}, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/socket.io/", s.handleWS)
	s.Server = httptest.NewServer(mux)
	return s
}

// Emissions returns the events received so far.
func (s *Server) Emissions() []Emission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Emission(nil), s.emissions...)
}

// Auth returns the CONNECT payloads received so far.
func (s *Server) Auth() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.auth...)
}

// WaitConnected blocks until a client completed the namespace CONNECT.
func (s *Server) WaitConnected(timeout time.Duration) bool {
	select {
	case <-s.connected:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Push sends an unsolicited event to every connected client.
func (s *Server) Push(event string, data any) error {
	payload, err := json.Marshal([]any{event, data})
	if err != nil {
		return err
	}
	frame := "4" + realtime.EncodePacket(realtime.Packet{Type: realtime.PacketEvent, Data: payload})
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, writeMu := range s.conns {
		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, []byte(frame))
		writeMu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every client socket without a Socket.IO disconnect.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	writeMu := &sync.Mutex{}
	write := func(frame string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, []byte(frame))
	}
	defer conn.Close()

	open := `0{"sid":"test-sid","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`
	if err := write(open); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.forget(conn)
			return
		}
		frame := string(data)
		if frame == "" || frame[0] != '4' {
			continue
		}
		p, err := realtime.DecodePacket(frame[1:])
		if err != nil {
			continue
		}
		switch p.Type {
		case realtime.PacketConnect:
			s.mu.Lock()
			s.auth = append(s.auth, p.Data)
			s.mu.Unlock()
			if !s.authorized(p.Data) {
				_ = write(`44{"message":"unauthorized"}`)
				continue
			}
			s.mu.Lock()
			s.conns[conn] = writeMu
			s.mu.Unlock()
			if err := write(`40{"sid":"socket-1"}`); err != nil {
				return
			}
			s.connected <- struct{}{}
		case realtime.PacketDisconnect:
			s.forget(conn)
			return
		case realtime.PacketEvent:
			if s.handleEvent(p, write) && s.CloseAfterReply {
				s.forget(conn)
				return
			}
		}
	}
}

func (s *Server) authorized(data json.RawMessage) bool {
	if s.Token == "" {
		return true
	}
	var auth struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &auth); err != nil {
		return false
	}
	return auth.Token == s.Token
}

// handleEvent records an emission and reports whether it was acknowledged.
func (s *Server) handleEvent(p realtime.Packet, write func(string) error) bool {
	var items []json.RawMessage
	if err := json.Unmarshal(p.Data, &items); err != nil || len(items) == 0 {
		return false
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return false
	}
	var arg json.RawMessage
	if len(items) > 1 {
		arg = items[1]
	}
	s.mu.Lock()
	s.emissions = append(s.emissions, Emission{Event: name, Data: arg, AckID: p.ID})
	s.mu.Unlock()

	if s.Handler == nil || p.ID == nil {
		return false
	}
	reply, ok := s.Handler(name, arg)
	if !ok {
		return false
	}
	payload, err := json.Marshal([]any{reply})
	if err != nil {
		panic(fmt.Sprintf("realtimetest: encode reply: %v", err))
	}
	return write("4"+realtime.EncodePacket(realtime.Packet{Type: realtime.PacketAck, ID: p.ID, Data: payload})) == nil
}

func (s *Server) forget(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}
