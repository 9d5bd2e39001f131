// Package session implements the per-receiver connection state machine
// (spec component C3): HTTP admission, manual WebSocket handshake, keepalive,
// retune, and exponential-backoff reconnection with generation-tagged
// callbacks so stale sockets can never deliver samples into a live receiver.
package session

import (
	"errors"
	"time"
)

// State is one node of the SessionController state machine.
type State int

const (
	Disconnected State = iota
	Admitting
	Connecting
	Connected
	Reconnecting
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Admitting:
		return "admitting"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ErrAdmissionRejected is returned when the server's /connection response
// carries allowed:false.
type ErrAdmissionRejected struct {
	Reason string
}

func (e *ErrAdmissionRejected) Error() string {
	if e.Reason == "" {
		return "session: admission rejected"
	}
	return "session: admission rejected: " + e.Reason
}

// ErrModeNotAllowed is returned when the negotiated mode is not present in
// the admission response's allowed_iq_modes list.
var ErrModeNotAllowed = errors.New("session: mode not permitted by admission response")

// ErrTLSUnsupported is returned by buildWebSocketURL when TLS is requested
// but the codec path has no TLS hook wired in (spec §4.3: "a build with a
// TLS-less codec path MUST refuse wss:// with a clear error").
var ErrTLSUnsupported = errors.New("session: wss:// requested but TLS is not supported by this build")

// ErrHandshakeFailed covers a non-101 or missing-Upgrade response to the
// WebSocket handshake.
var ErrHandshakeFailed = errors.New("session: websocket handshake failed")

// Config is the static, per-receiver configuration a Controller is built
// from. Only Frequency changes after construction: Controller.SetFrequency
// updates it in place, so later reconnects dial the retuned frequency.
type Config struct {
	Host     string
	Port     int
	TLS      bool
	Password string

	Frequency uint64
	Mode      string
	Format    string // "", "opus", or "pcm-zstd"

	BandwidthLow  *int
	BandwidthHigh *int

	AdmitTimeout     time.Duration
	HandshakeTimeout time.Duration
	KeepaliveEvery   time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

// DefaultConfig fills in the timing constants the spec pins down explicitly.
func DefaultConfig() Config {
	return Config{
		AdmitTimeout:     5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		KeepaliveEvery:   30 * time.Second,
		InitialBackoff:   1 * time.Second,
		MaxBackoff:       60 * time.Second,
	}
}

// admissionRequest is the /connection POST body.
type admissionRequest struct {
	UserSessionID string `json:"user_session_id"`
	Password      string `json:"password,omitempty"`
}

// admissionResponse is the /connection response body.
type admissionResponse struct {
	Allowed        bool     `json:"allowed"`
	Reason         string   `json:"reason,omitempty"`
	AllowedIQModes []string `json:"allowed_iq_modes,omitempty"`
	Bypassed       bool     `json:"bypassed,omitempty"`
	MaxSessionTime int      `json:"max_session_time,omitempty"`
	ClientIP       string   `json:"client_ip,omitempty"`
}

// userAgent is sent on both the admission POST and the WebSocket handshake.
const userAgent = "ubersdr-ingest/1.0 (go)"
