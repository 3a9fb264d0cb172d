// Package api is the thin external-collaborator façade described in
// SPEC_FULL §3: a WebSocket push channel for live amplitude/segmented
// output and a JSON-over-gRPC control stream accepting the handful of
// commands that drive a coordinator.Coordinator. It intentionally does
// not replicate the teacher's much larger GUI backend (session/model
// management, waveform rendering, import/export, speaker renaming) —
// those are a separate product's concern, not this engine's.
package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/velesar/aiwisper-engine/internal/coordinator"
)

// Config is the façade's own listener configuration, distinct from
// coordinator.Config (which shapes recording strategy).
type Config struct {
	HTTPAddr string // e.g. ":8742"; "" disables the HTTP/WebSocket listener
	GRPCAddr string // "unix:///tmp/aiwisper-grpc.sock" or "npipe:\\.\pipe\aiwisper-grpc"
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type sendFunc func(Message) error

type transportClient interface {
	Send(Message) error
	Close() error
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (c *wsClient) Close() error { return c.conn.Close() }

type grpcClient struct {
	stream Control_StreamServer
	mu     sync.Mutex
}

func (c *grpcClient) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream.Send(&msg)
}

func (c *grpcClient) Close() error { return nil }

// Server bridges a single coordinator.Coordinator to any number of
// WebSocket or gRPC clients.
type Server struct {
	Config      Config
	Coordinator *coordinator.Coordinator

	clients map[transportClient]bool
	mu      sync.Mutex

	ampStop chan struct{}
}

// NewServer wires srv to coord and registers the coordinator callbacks
// that turn segmented output into broadcast Messages.
func NewServer(cfg Config, coord *coordinator.Coordinator) *Server {
	s := &Server{
		Config:      cfg,
		Coordinator: coord,
		clients:     make(map[transportClient]bool),
	}
	coord.OnText(func(text string) {
		s.broadcast(Message{Type: "segment_text", Text: text})
	})
	return s
}

// Start launches the gRPC control listener (if configured) and blocks
// serving HTTP/WebSocket on Config.HTTPAddr. Call in its own goroutine.
func (s *Server) Start() {
	if s.Config.GRPCAddr != "" {
		go s.startGRPCServer()
	}
	s.ampStop = make(chan struct{})
	go s.pushAmplitude()

	if s.Config.HTTPAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	log.Printf("api: listening on %s (ws) and %s (grpc)", s.Config.HTTPAddr, s.Config.GRPCAddr)
	if err := http.ListenAndServe(s.Config.HTTPAddr, mux); err != nil {
		log.Printf("api: http server stopped: %v", err)
	}
}

// Stop halts the amplitude-push loop. The HTTP/gRPC listeners are left
// running for the lifetime of the process, matching the teacher.
func (s *Server) Stop() {
	if s.ampStop != nil {
		close(s.ampStop)
	}
}

// amplitudePushInterval matches a UI meter's typical refresh rate.
const amplitudePushInterval = 100 * time.Millisecond

func (s *Server) pushAmplitude() {
	ticker := time.NewTicker(amplitudePushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ampStop:
			return
		case <-ticker.C:
			if s.Coordinator.State() != coordinator.Recording {
				continue
			}
			s.broadcast(Message{Type: "audio_level", MicAmplitude: s.Coordinator.Amplitude()})
		}
	}
}

func (s *Server) broadcast(msg Message) {
	s.mu.Lock()
	if len(s.clients) == 0 {
		s.mu.Unlock()
		return
	}
	targets := make([]transportClient, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.Send(msg); err != nil {
			s.removeClient(c)
		}
	}
}

func (s *Server) addClient(c transportClient) {
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
}

func (s *Server) removeClient(c transportClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	_ = c.Close()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("api: upgrade:", err)
		return
	}

	client := &wsClient{conn: conn}
	s.addClient(client)
	defer s.removeClient(client)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		s.processMessage(client.Send, msg)
	}
}

// Stream implements the gRPC bidirectional control stream, mirroring
// the WebSocket's request/response loop over JSON-coded protobuf-free
// messages (see grpc_service.go).
func (s *Server) Stream(stream Control_StreamServer) error {
	client := &grpcClient{stream: stream}
	s.addClient(client)
	defer s.removeClient(client)

	for {
		msg, err := stream.Recv()
		if err != nil {
			return nil
		}
		if msg == nil {
			continue
		}
		s.processMessage(client.Send, *msg)
	}
}

func (s *Server) processMessage(send sendFunc, msg Message) {
	switch msg.Type {
	case "start_dictation":
		if err := s.Coordinator.StartDictation(); err != nil {
			send(Message{Type: "error", Error: err.Error()})
			return
		}
		send(Message{Type: "state", Status: s.Coordinator.State().String()})

	case "stop_dictation":
		text, err := s.Coordinator.StopDictation()
		if err != nil {
			send(Message{Type: "error", Error: err.Error(), Text: text})
			return
		}
		send(Message{Type: "dictation_result", Text: text})

	case "start_conference":
		if err := s.Coordinator.StartConference(); err != nil {
			send(Message{Type: "error", Error: err.Error()})
			return
		}
		send(Message{Type: "state", Status: s.Coordinator.State().String()})

	case "stop_conference":
		text, err := s.Coordinator.StopConference()
		if err != nil {
			send(Message{Type: "error", Error: err.Error(), Text: text})
			return
		}
		send(Message{Type: "conference_result", Text: text})

	case "get_progress":
		for _, p := range s.Coordinator.Progress() {
			send(Message{Type: "segment_progress", SegmentID: p.SegmentID, Status: string(p.Status)})
		}

	default:
		send(Message{Type: "error", Error: "unknown message type: " + msg.Type})
	}
}
