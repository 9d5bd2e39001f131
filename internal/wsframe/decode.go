package wsframe

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/cwsl/ubersdr-ingest/internal/iqsample"
	"github.com/klauspost/compress/zstd"
	opus "gopkg.in/hraban/opus.v2"
)

// Format is the negotiated binary payload variant. It is fixed once from
// the WebSocket URL's `format` query parameter at session start and never
// changes within a session (spec §9: "the tag is fixed at session start
// ... and does not change within a session").
type Format int

const (
	FormatPCM Format = iota
	FormatPCMZstd
	FormatOpus
)

const (
	pcmMagicFull    = 0x5043 // "PC"
	pcmMagicMinimal = 0x504D // "PM"
	pcmFullHeader   = 29
	pcmMinHeader    = 13

	opusHeaderSize   = 21
	opusReferenceHz  = 12000
	opusFrameSeconds = 0.02 // 20ms frames
)

// PayloadDecoder turns one binary WebSocket frame payload into decoded I/Q
// samples, dispatching by the format fixed at session construction. It is
// stateful: PCM-zstd tracks the last full header seen (for minimal-header
// packets) and Opus holds a decoder bound to the negotiated sample rate.
type PayloadDecoder struct {
	format Format

	zstdDec *zstd.Decoder

	opusDec        *opus.Decoder
	opusSampleRate int
	opusChannels   int

	lastSampleRate int
	lastChannels   int

	streamRateHz int // configured stream (mode) sample rate, for Opus 2:1 decimation
}

// NewPayloadDecoder constructs a decoder for the given negotiated format and
// configured stream sample rate (used only to decide Opus decimation).
func NewPayloadDecoder(format Format, streamRateHz int) (*PayloadDecoder, error) {
	d := &PayloadDecoder{format: format, streamRateHz: streamRateHz}

	if format == FormatPCMZstd {
		zr, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("wsframe: create zstd reader: %w", err)
		}
		d.zstdDec = zr
	}

	return d, nil
}

// Close releases codec resources.
func (d *PayloadDecoder) Close() {
	if d.zstdDec != nil {
		d.zstdDec.Close()
	}
}

// Decode dispatches to the format-specific decoder and returns the samples
// carried by one binary frame payload. Any malformed packet, whatever the
// format, returns an error for the whole payload; the engine's frame
// handler logs it and drops that payload without closing the session. No
// counter of dropped packets is kept.
func (d *PayloadDecoder) Decode(payload []byte) ([]iqsample.Sample, error) {
	switch d.format {
	case FormatPCMZstd:
		return d.decodePCMZstd(payload)
	case FormatOpus:
		return d.decodeOpus(payload)
	default:
		return d.decodePCM(payload)
	}
}

// decodePCM decodes a raw (uncompressed) interleaved big-endian int16 I/Q
// payload with no framing header.
func (d *PayloadDecoder) decodePCM(payload []byte) ([]iqsample.Sample, error) {
	return bigEndianPairsToSamples(payload)
}

// decodePCMZstd decompresses the frame, then parses the PC/PM header.
func (d *PayloadDecoder) decodePCMZstd(payload []byte) ([]iqsample.Sample, error) {
	raw, err := d.zstdDec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("wsframe: zstd decompress: %w", err)
	}

	if len(raw) < 2 {
		return nil, fmt.Errorf("wsframe: PCM packet too short: %d bytes", len(raw))
	}

	magic := binary.LittleEndian.Uint16(raw[0:2])
	var body []byte

	switch magic {
	case pcmMagicFull:
		if len(raw) < pcmFullHeader {
			return nil, fmt.Errorf("wsframe: full PCM header truncated: %d bytes", len(raw))
		}
		d.lastSampleRate = int(binary.LittleEndian.Uint32(raw[20:24]))
		d.lastChannels = int(raw[24])
		body = raw[pcmFullHeader:]

	case pcmMagicMinimal:
		if len(raw) < pcmMinHeader {
			return nil, fmt.Errorf("wsframe: minimal PCM header truncated: %d bytes", len(raw))
		}
		if d.lastSampleRate == 0 {
			return nil, fmt.Errorf("wsframe: minimal PCM header received before any full header")
		}
		body = raw[pcmMinHeader:]

	default:
		return nil, fmt.Errorf("wsframe: invalid PCM magic 0x%04X", magic)
	}

	return bigEndianPairsToSamples(body)
}

// opusPacketHeader is the 21-byte little-endian header preceding one Opus
// packet in the binary payload (spec §4.2).
type opusPacketHeader struct {
	Timestamp      uint64
	SampleRate     uint32
	Channels       uint8
	BasebandPower  float32
	NoiseDensity   float32
}

func (d *PayloadDecoder) decodeOpus(payload []byte) ([]iqsample.Sample, error) {
	if len(payload) < opusHeaderSize {
		return nil, fmt.Errorf("wsframe: opus packet too short: %d bytes", len(payload))
	}

	hdr := opusPacketHeader{
		Timestamp:  binary.LittleEndian.Uint64(payload[0:8]),
		SampleRate: binary.LittleEndian.Uint32(payload[8:12]),
		Channels:   payload[12],
	}

	if d.opusDec == nil || d.opusSampleRate != int(hdr.SampleRate) || d.opusChannels != int(hdr.Channels) {
		dec, err := opus.NewDecoder(int(hdr.SampleRate), int(hdr.Channels))
		if err != nil {
			return nil, fmt.Errorf("wsframe: create opus decoder (%d Hz, %d ch): %w", hdr.SampleRate, hdr.Channels, err)
		}
		d.opusDec = dec
		d.opusSampleRate = int(hdr.SampleRate)
		d.opusChannels = int(hdr.Channels)
	}

	opusData := payload[opusHeaderSize:]
	frameSize := int(float64(hdr.SampleRate) * opusFrameSeconds)
	pcm := make([]int16, frameSize*int(hdr.Channels))

	n, err := d.opusDec.Decode(opusData, pcm)
	if err != nil {
		return nil, fmt.Errorf("wsframe: opus decode: %w", err)
	}
	pcm = pcm[:n*int(hdr.Channels)]

	samples := int16sToSamples(pcm)

	// Opus decodes at its reference rate; downsample to the configured
	// stream rate by 2:1 decimation only, no filter, per spec §3: this is
	// a documented, deliberately unfiltered choice.
	if d.streamRateHz > 0 && int(hdr.SampleRate) == 2*d.streamRateHz {
		samples = decimateByTwo(samples)
	}

	return samples, nil
}

// decimateByTwo drops every other sample pair (no anti-alias filter, by
// spec design; see decodeOpus).
func decimateByTwo(in []iqsample.Sample) []iqsample.Sample {
	out := make([]iqsample.Sample, 0, len(in)/2+1)
	for i := 0; i < len(in); i += 2 {
		out = append(out, in[i])
	}
	return out
}

func bigEndianPairsToSamples(body []byte) ([]iqsample.Sample, error) {
	n := len(body) / 4 // 2 channels * 2 bytes
	out := make([]iqsample.Sample, n)
	for i := 0; i < n; i++ {
		iRaw := int16(binary.BigEndian.Uint16(body[i*4:]))
		qRaw := int16(binary.BigEndian.Uint16(body[i*4+2:]))
		out[i] = iqsample.Sample{I: iqsample.Int16ToFloat(iRaw), Q: iqsample.Int16ToFloat(qRaw)}
	}
	return out, nil
}

func int16sToSamples(pcm []int16) []iqsample.Sample {
	n := len(pcm) / 2
	out := make([]iqsample.Sample, n)
	for i := 0; i < n; i++ {
		out[i] = iqsample.Sample{
			I: iqsample.Int16ToFloat(pcm[i*2]),
			Q: iqsample.Int16ToFloat(pcm[i*2+1]),
		}
	}
	return out
}

// DecodeLegacyAudio decodes the "audio" text message's base64 int16 I/Q
// payload (legacy transport, spec §4.2).
func DecodeLegacyAudio(base64Data string) ([]iqsample.Sample, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Data)
	if err != nil {
		return nil, fmt.Errorf("wsframe: legacy audio base64 decode: %w", err)
	}
	return bigEndianPairsToSamples(raw)
}
