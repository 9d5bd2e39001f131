// Package testsdr is an in-process mock UberSDR server for integration
// tests: an admission endpoint plus a WebSocket sample stream speaking the
// same wire formats the real client dial path decodes. It uses
// gorilla/websocket for the server side, since the spec's manual-framing
// requirement (component C2) applies only to the client dial path.
package testsdr

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// AdmissionResponse controls what the mock's /connection endpoint returns.
type AdmissionResponse struct {
	Allowed        bool     `json:"allowed"`
	Reason         string   `json:"reason,omitempty"`
	AllowedIQModes []string `json:"allowed_iq_modes,omitempty"`
}

// Server is a mock UberSDR instance for tests.
type Server struct {
	httpSrv *httptest.Server

	mu        sync.Mutex
	admission AdmissionResponse
	onConnect func(conn *websocket.Conn, r *http.Request)

	upgrader websocket.Upgrader
}

// New starts a mock server. By default admission always succeeds.
func New() *Server {
	s := &Server{
		admission: AdmissionResponse{Allowed: true},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	router.HandleFunc("/connection", s.handleConnection).Methods(http.MethodPost)
	router.HandleFunc("/ws", s.handleWebSocket)

	s.httpSrv = httptest.NewServer(router)
	return s
}

// URL returns the mock server's base http:// URL.
func (s *Server) URL() string { return s.httpSrv.URL }

// Close shuts the mock server down.
func (s *Server) Close() { s.httpSrv.Close() }

// SetAdmission overrides the /connection response for subsequent requests.
func (s *Server) SetAdmission(resp AdmissionResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admission = resp
}

// OnConnect installs a callback invoked with each accepted WebSocket
// connection, letting a test drive the sample stream directly.
func (s *Server) OnConnect(fn func(conn *websocket.Conn, r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = fn
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := s.admission
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	onConnect := s.onConnect
	s.mu.Unlock()

	if onConnect != nil {
		onConnect(conn, r)
	}
}

// EncodeRawPCM builds an uncompressed interleaved big-endian int16 I/Q
// payload from float samples in [-1, 1], matching the FormatPCM wire shape.
func EncodeRawPCM(pairs [][2]float32) []byte {
	buf := make([]byte, len(pairs)*4)
	for i, p := range pairs {
		iv := int16(p[0] * 32767)
		qv := int16(p[1] * 32767)
		binary.BigEndian.PutUint16(buf[i*4:], uint16(iv))
		binary.BigEndian.PutUint16(buf[i*4+2:], uint16(qv))
	}
	return buf
}
