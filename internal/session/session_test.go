package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStateStringing(t *testing.T) {
	cases := map[State]string{
		Disconnected: "disconnected",
		Admitting:    "admitting",
		Connecting:   "connecting",
		Connected:    "connected",
		Reconnecting: "reconnecting",
		Error:        "error",
		State(99):    "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestAdmitAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("User-Agent = %q, want %q", r.Header.Get("User-Agent"), userAgent)
		}
		var req admissionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.UserSessionID == "" {
			t.Error("expected non-empty user_session_id")
		}
		json.NewEncoder(w).Encode(admissionResponse{Allowed: true, AllowedIQModes: []string{"iq48", "iq96"}})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := admit(ctx, srv.URL, "test-session", cfg)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !resp.Allowed {
		t.Fatal("expected allowed=true")
	}
	if err := checkModeAllowed(resp, "iq48"); err != nil {
		t.Errorf("checkModeAllowed(iq48): %v", err)
	}
	if err := checkModeAllowed(resp, "usb"); err == nil {
		t.Error("expected checkModeAllowed(usb) to fail")
	}
}

func TestAdmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(admissionResponse{Allowed: false, Reason: "password required"})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := admit(ctx, srv.URL, "test-session", cfg)
	if err == nil {
		t.Fatal("expected admission rejection error")
	}
	rejErr, ok := err.(*ErrAdmissionRejected)
	if !ok {
		t.Fatalf("err type = %T, want *ErrAdmissionRejected", err)
	}
	if rejErr.Reason != "password required" {
		t.Errorf("Reason = %q, want %q", rejErr.Reason, "password required")
	}
}

func TestAdmitHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := admit(ctx, srv.URL, "test-session", cfg); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
}

func TestBuildWebSocketURLRefusesTLS(t *testing.T) {
	cfg := Config{Host: "example.org", Port: 8080, TLS: true, Frequency: 14074000, Mode: "iq48"}
	if _, err := buildWebSocketURL(cfg, "sess"); err != ErrTLSUnsupported {
		t.Fatalf("err = %v, want ErrTLSUnsupported", err)
	}
}

func TestBuildWebSocketURLQueryParams(t *testing.T) {
	low, high := 300, 2700
	cfg := Config{
		Host: "example.org", Port: 8080,
		Frequency: 14074000, Mode: "usb", Format: "opus", Password: "hunter2",
		BandwidthLow: &low, BandwidthHigh: &high,
	}
	u, err := buildWebSocketURL(cfg, "abc-123")
	if err != nil {
		t.Fatalf("buildWebSocketURL: %v", err)
	}
	want := "ws://example.org:8080/ws?"
	if len(u) < len(want) || u[:len(want)] != want {
		t.Fatalf("url = %q, want prefix %q", u, want)
	}
	for _, frag := range []string{"frequency=14074000", "mode=usb", "user_session_id=abc-123", "format=opus", "password=hunter2", "version=2", "bandwidthLow=300", "bandwidthHigh=2700"} {
		if !contains(u, frag) {
			t.Errorf("url %q missing fragment %q", u, frag)
		}
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func TestControllerStopWithoutStartIsNoop(t *testing.T) {
	c := New(DefaultConfig(), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.State() != Disconnected {
		t.Fatalf("state = %v, want Disconnected", c.State())
	}
}
