package engine

import (
	"log"
	"sync"

	"github.com/cwsl/ubersdr-ingest/internal/mode"
	"github.com/cwsl/ubersdr-ingest/internal/ringbuffer"
	"github.com/cwsl/ubersdr-ingest/internal/sampleproducer"
	"github.com/cwsl/ubersdr-ingest/internal/session"
	"github.com/cwsl/ubersdr-ingest/internal/shifter"
	"github.com/cwsl/ubersdr-ingest/internal/wsframe"
)

// receiver bundles one slot's C1/C3/C4/C5 instances. Its lock is the
// "receiver-lock" in the spec's lock-order chain (SupervisorAPI >
// receiver-lock > ring-lock > assembler-lock).
type receiver struct {
	mu sync.Mutex

	id        int
	active    bool
	frequency uint64
	mode      mode.Mode
	offsetHz  int32
	sessionID string

	ring       *ringbuffer.RingBuffer
	shifter    *shifter.Shifter
	producer   *sampleproducer.Producer
	controller *session.Controller
	decoder    *wsframe.PayloadDecoder

	cancelRun func()
}

// receiverHandler adapts a receiver's decoder/producer pair to the
// session.FrameHandler interface the Controller drives frames through.
type receiverHandler struct {
	rx     *receiver
	logger *log.Logger
}

func (h *receiverHandler) OnBinaryFrame(payload []byte) {
	h.rx.mu.Lock()
	decoder := h.rx.decoder
	producer := h.rx.producer
	h.rx.mu.Unlock()

	if decoder == nil || producer == nil {
		return
	}
	samples, err := decoder.Decode(payload)
	if err != nil {
		h.logger.Printf("engine: receiver %d: decode error: %v", h.rx.id, err)
		return
	}
	producer.Ingest(samples, len(payload))
}

func (h *receiverHandler) OnControlMessage(msg wsframe.InboundMessage) {
	switch msg.Type {
	case "status":
		h.rx.mu.Lock()
		if msg.Frequency != 0 {
			h.rx.frequency = msg.Frequency
		}
		if msg.SessionID != "" {
			h.rx.sessionID = msg.SessionID
		}
		h.rx.mu.Unlock()
	case "audio":
		samples, err := wsframe.DecodeLegacyAudio(msg.Data)
		if err != nil {
			h.logger.Printf("engine: receiver %d: legacy audio decode error: %v", h.rx.id, err)
			return
		}
		h.rx.mu.Lock()
		producer := h.rx.producer
		h.rx.mu.Unlock()
		if producer != nil {
			producer.Ingest(samples, len(msg.Data))
		}
	case "error":
		h.logger.Printf("engine: receiver %d: server error message: %s", h.rx.id, msg.Error)
	}
}

func (h *receiverHandler) OnDisconnect(err error) {
	h.logger.Printf("engine: receiver %d: disconnected: %v", h.rx.id, err)

	h.rx.mu.Lock()
	ring := h.rx.ring
	h.rx.mu.Unlock()
	if ring != nil {
		ring.Reset()
	}
}

func newDecoderForFormat(format string, streamRateHz int) (*wsframe.PayloadDecoder, error) {
	f := wsframe.FormatPCM
	switch format {
	case "opus":
		f = wsframe.FormatOpus
	case "pcm-zstd":
		f = wsframe.FormatPCMZstd
	}
	return wsframe.NewPayloadDecoder(f, streamRateHz)
}
