package wsframe

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello ubersdr")
	if err := WriteFrame(&buf, OpText, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	// WriteFrame masks; ReadFrame must transparently unmask when reading
	// its own output back (defensive path, servers should send unmasked).
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Opcode != OpText {
		t.Fatalf("opcode = %v, want OpText", frame.Opcode)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("payload = %q, want %q", frame.Payload, payload)
	}
}

func TestReadFrameUnmaskedServerFrame(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	var buf bytes.Buffer
	buf.WriteByte(0x80 | byte(OpBinary))
	buf.WriteByte(byte(len(payload))) // no mask bit
	buf.Write(payload)

	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("payload = %v, want %v", frame.Payload, payload)
	}
}

func TestReadFrameRejectsFragmentation(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(OpText)) // FIN=0
	buf.WriteByte(0x00)

	_, err := ReadFrame(&buf)
	if err != ErrFragmented {
		t.Fatalf("err = %v, want ErrFragmented", err)
	}
}

func TestReadFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x80 | byte(OpBinary))
	buf.WriteByte(127)
	// Encode a length larger than MaxPayloadLen.
	var lenBytes [8]byte
	big := uint64(MaxPayloadLen) + 1
	for i := 7; i >= 0; i-- {
		lenBytes[i] = byte(big)
		big >>= 8
	}
	buf.Write(lenBytes[:])

	_, err := ReadFrame(&buf)
	if err != ErrPayloadTooLarge {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestReadFrameTruncatedHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x80 | byte(OpBinary))
	// missing second header byte entirely

	_, err := ReadFrame(&buf)
	if err == nil {
		t.Fatal("expected error on truncated header")
	}
}

func TestWriteFrameExtendedLength16(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{0xAB}, 200)
	if err := WriteFrame(&buf, OpBinary, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatal("payload mismatch on 16-bit extended length round trip")
	}
}

func TestWriteCloseFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteClose(&buf, 1000); err != nil {
		t.Fatalf("WriteClose: %v", err)
	}
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Opcode != OpClose {
		t.Fatalf("opcode = %v, want OpClose", frame.Opcode)
	}
	if len(frame.Payload) != 2 {
		t.Fatalf("close payload len = %d, want 2", len(frame.Payload))
	}
}
