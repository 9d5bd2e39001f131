package wsframe

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/cwsl/ubersdr-ingest/internal/iqsample"
	"github.com/klauspost/compress/zstd"
)

func TestDecodePCMRawInterleaved(t *testing.T) {
	dec, err := NewPayloadDecoder(FormatPCM, 48000)
	if err != nil {
		t.Fatalf("NewPayloadDecoder: %v", err)
	}
	defer dec.Close()

	body := make([]byte, 8)
	binary.BigEndian.PutUint16(body[0:], uint16(int16(1000)))
	binary.BigEndian.PutUint16(body[2:], uint16(int16(-1000)))
	binary.BigEndian.PutUint16(body[4:], uint16(int16(0)))
	binary.BigEndian.PutUint16(body[6:], uint16(int16(16000)))

	samples, err := dec.Decode(body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2", len(samples))
	}
	if samples[0].I <= 0 || samples[0].Q >= 0 {
		t.Fatalf("unexpected sample 0: %+v", samples[0])
	}
}

func buildPCMZstdFullPacket(t *testing.T, sampleRate uint32, body []byte) []byte {
	t.Helper()
	hdr := make([]byte, pcmFullHeader)
	binary.LittleEndian.PutUint16(hdr[0:2], pcmMagicFull)
	hdr[2] = 1 // version
	hdr[3] = 2 // format type: zstd
	binary.LittleEndian.PutUint64(hdr[4:12], 12345)
	binary.LittleEndian.PutUint64(hdr[12:20], 67890)
	binary.LittleEndian.PutUint32(hdr[20:24], sampleRate)
	hdr[24] = 2 // channels

	raw := append(hdr, body...)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil)
}

func buildPCMZstdMinimalPacket(t *testing.T, body []byte) []byte {
	t.Helper()
	hdr := make([]byte, pcmMinHeader)
	binary.LittleEndian.PutUint16(hdr[0:2], pcmMagicMinimal)
	hdr[2] = 1
	binary.LittleEndian.PutUint64(hdr[3:11], 99999)

	raw := append(hdr, body...)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil)
}

func TestDecodePCMZstdFullHeader(t *testing.T) {
	dec, err := NewPayloadDecoder(FormatPCMZstd, 48000)
	if err != nil {
		t.Fatalf("NewPayloadDecoder: %v", err)
	}
	defer dec.Close()

	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:], uint16(int16(500)))
	binary.BigEndian.PutUint16(body[2:], uint16(int16(-500)))

	packet := buildPCMZstdFullPacket(t, 48000, body)

	samples, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("len(samples) = %d, want 1", len(samples))
	}
	if dec.lastSampleRate != 48000 {
		t.Fatalf("lastSampleRate = %d, want 48000", dec.lastSampleRate)
	}
}

func TestDecodePCMZstdMinimalRequiresPriorFullHeader(t *testing.T) {
	dec, err := NewPayloadDecoder(FormatPCMZstd, 48000)
	if err != nil {
		t.Fatalf("NewPayloadDecoder: %v", err)
	}
	defer dec.Close()

	body := make([]byte, 4)
	packet := buildPCMZstdMinimalPacket(t, body)

	if _, err := dec.Decode(packet); err == nil {
		t.Fatal("expected error decoding minimal header before any full header")
	}

	// After a full header establishes state, minimal packets should decode.
	fullBody := make([]byte, 4)
	binary.BigEndian.PutUint16(fullBody[0:], uint16(int16(1)))
	binary.BigEndian.PutUint16(fullBody[2:], uint16(int16(2)))
	if _, err := dec.Decode(buildPCMZstdFullPacket(t, 48000, fullBody)); err != nil {
		t.Fatalf("Decode full: %v", err)
	}

	samples, err := dec.Decode(packet)
	if err != nil {
		t.Fatalf("Decode minimal after full: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("len(samples) = %d, want 1", len(samples))
	}
}

func TestDecodePCMZstdInvalidMagic(t *testing.T) {
	dec, err := NewPayloadDecoder(FormatPCMZstd, 48000)
	if err != nil {
		t.Fatalf("NewPayloadDecoder: %v", err)
	}
	defer dec.Close()

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	bad := enc.EncodeAll([]byte{0xFF, 0xFF, 0, 0, 0, 0}, nil)
	enc.Close()

	if _, err := dec.Decode(bad); err == nil {
		t.Fatal("expected error for invalid magic")
	}
}

func TestDecimateByTwoHalvesLength(t *testing.T) {
	in := make([]iqsample.Sample, 10)
	for i := range in {
		in[i] = iqsample.Sample{I: float32(i), Q: float32(-i)}
	}
	out := decimateByTwo(in)
	if len(out) != 5 {
		t.Fatalf("len(out) = %d, want 5", len(out))
	}
	for i, s := range out {
		if s != in[i*2] {
			t.Fatalf("out[%d] = %+v, want %+v", i, s, in[i*2])
		}
	}
}

func TestDecodeLegacyAudioBase64(t *testing.T) {
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:], uint16(int16(2000)))
	binary.BigEndian.PutUint16(body[2:], uint16(int16(-2000)))
	encoded := base64.StdEncoding.EncodeToString(body)

	samples, err := DecodeLegacyAudio(encoded)
	if err != nil {
		t.Fatalf("DecodeLegacyAudio: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("len(samples) = %d, want 1", len(samples))
	}
	if samples[0].I <= 0 || samples[0].Q >= 0 {
		t.Fatalf("unexpected sample: %+v", samples[0])
	}
}

func TestDecodeLegacyAudioBadBase64(t *testing.T) {
	if _, err := DecodeLegacyAudio("not-valid-base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestParseInboundMessage(t *testing.T) {
	msg, err := ParseInboundMessage([]byte(`{"type":"tuned","frequency":14074000,"mode":"usb"}`))
	if err != nil {
		t.Fatalf("ParseInboundMessage: %v", err)
	}
	if msg.Type != "tuned" || msg.Frequency != 14074000 || msg.Mode != "usb" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestEncodeTune(t *testing.T) {
	low, high := 300, 2700
	data, err := EncodeTune(7074000, "usb", &low, &high)
	if err != nil {
		t.Fatalf("EncodeTune: %v", err)
	}
	msg, err := ParseInboundMessage(data)
	if err != nil {
		t.Fatalf("round-trip parse: %v", err)
	}
	if msg.Type != "tune" || msg.Frequency != 7074000 {
		t.Fatalf("unexpected round trip: %+v", msg)
	}
}
