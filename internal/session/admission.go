package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// admit issues the HTTP admission POST and returns the parsed response.
// Any status other than 200 or a transport error is a hard failure: admission gates
// every WebSocket open, so a failed check must not be treated as a pass.
func admit(ctx context.Context, httpURL, sessionID string, cfg Config) (admissionResponse, error) {
	reqBody := admissionRequest{UserSessionID: sessionID, Password: cfg.Password}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return admissionResponse{}, fmt.Errorf("session: marshal admission request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, httpURL, bytes.NewReader(body))
	if err != nil {
		return admissionResponse{}, fmt.Errorf("session: build admission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", userAgent)

	client := &http.Client{Timeout: cfg.AdmitTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return admissionResponse{}, fmt.Errorf("session: admission request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return admissionResponse{}, fmt.Errorf("session: admission HTTP status %d", resp.StatusCode)
	}

	var out admissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return admissionResponse{}, fmt.Errorf("session: decode admission response: %w", err)
	}
	if !out.Allowed {
		return out, &ErrAdmissionRejected{Reason: out.Reason}
	}
	return out, nil
}

// admissionURL builds the http(s)://host:port/connection endpoint.
func admissionURL(cfg Config) string {
	scheme := "http"
	if cfg.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/connection", scheme, cfg.Host, cfg.Port)
}

// checkModeAllowed enforces the admission response's allowed_iq_modes list
// when the server supplied one; an empty list, or a bypassed admission,
// means unrestricted.
func checkModeAllowed(resp admissionResponse, mode string) error {
	if len(resp.AllowedIQModes) == 0 || resp.Bypassed {
		return nil
	}
	for _, m := range resp.AllowedIQModes {
		if m == mode {
			return nil
		}
	}
	return fmt.Errorf("%w: %q not in %v", ErrModeNotAllowed, mode, resp.AllowedIQModes)
}
