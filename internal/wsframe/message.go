package wsframe

import "encoding/json"

// InboundMessage is the JSON control vocabulary the server may send.
// Only Type is required; the remaining fields are populated per type.
type InboundMessage struct {
	Type      string `json:"type"`
	Data      string `json:"data,omitempty"` // "audio": base64 int16 I/Q pairs
	SessionID string `json:"sessionId,omitempty"`
	Frequency uint64 `json:"frequency,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ParseInboundMessage decodes a text-frame payload into the JSON control
// vocabulary.
func ParseInboundMessage(payload []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return InboundMessage{}, err
	}
	return msg, nil
}

// TuneMessage is the outbound "tune" command, changing frequency/mode/
// bandwidth without tearing down the session.
type TuneMessage struct {
	Type          string `json:"type"`
	Frequency     uint64 `json:"frequency"`
	Mode          string `json:"mode,omitempty"`
	BandwidthLow  *int   `json:"bandwidthLow,omitempty"`
	BandwidthHigh *int   `json:"bandwidthHigh,omitempty"`
}

// EncodeTune marshals a tune command.
func EncodeTune(frequency uint64, mode string, bwLow, bwHigh *int) ([]byte, error) {
	return json.Marshal(TuneMessage{
		Type:          "tune",
		Frequency:     frequency,
		Mode:          mode,
		BandwidthLow:  bwLow,
		BandwidthHigh: bwHigh,
	})
}

// EncodePing marshals the keepalive ping.
func EncodePing() ([]byte, error) {
	return json.Marshal(map[string]string{"type": "ping"})
}
